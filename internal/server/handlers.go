package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

// maxUploadBytes bounds the accepted PDF size.
const maxUploadBytes = 50 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	if err := extract.ValidateFilename(header.Filename); err != nil {
		s.respondError(w, http.StatusBadRequest, "only PDF files are supported")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.String("session_id", sessionID),
		zap.Int("bytes", len(content)))

	result, err := s.processor.ProcessDocument(r.Context(), header.Filename, content, sessionID)
	if err != nil {
		if errors.Is(err, extract.ErrNotPDF) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("upload processing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type queryResponse struct {
	Success          bool        `json:"success"`
	Query            string      `json:"query"`
	DocumentID       string      `json:"document_id"`
	ResultCount      int         `json:"result_count"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	SearchTimeMs     int64       `json:"search_time_ms"`
	Response         string      `json:"response"`
	DetailedResponse interface{} `json:"detailed_response,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request",
		zap.String("document_id", req.DocumentID),
		zap.Int("top_k", req.TopK))

	outcome, err := s.processor.Query(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := queryResponse{
		Success:          true,
		Query:            outcome.Retrieval.Query,
		DocumentID:       outcome.Retrieval.DocumentID,
		ResultCount:      outcome.Retrieval.ResultCount,
		ProcessingTimeMs: outcome.Retrieval.ProcessingTimeMs,
		SearchTimeMs:     outcome.Retrieval.SearchTimeMs,
		Response:         outcome.Retrieval.Context,
	}
	if outcome.Answer != nil {
		resp.Response = outcome.Answer.FormattedAnswer
		resp.DetailedResponse = outcome.Answer
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessionDocuments(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	docs, err := s.processor.ListSessionDocuments(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("list session documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":     sessionID,
		"document_count": len(docs),
		"documents":      docs,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	doc, err := s.processor.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("get document failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	s.logger.Debug("delete document request", zap.String("document_id", documentID))
	if err := s.processor.DeleteDocument(r.Context(), documentID); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"document_id": documentID,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	s.logger.Debug("clear session request", zap.String("session_id", sessionID))
	deleted, err := s.processor.ClearSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("clear session failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"session_id":    sessionID,
		"deleted_count": deleted,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
