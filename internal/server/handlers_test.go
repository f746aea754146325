package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/processor"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	const dims = 64

	gen := embedding.NewGenerator(embedding.NewMockProvider(dims), nil, "mock",
		embedding.WithDimensions(dims), embedding.WithBatchPause(0))
	idx, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	vectors := vector.NewStore(idx, gen, vector.WithBatchPause(0))

	ch, err := chunker.NewChunker(1000, 200)
	if err != nil {
		t.Fatal(err)
	}

	// Pages are delimited with form feeds so tests can upload plain text
	// instead of building real PDFs.
	extractPages := func(content []byte) (map[int]string, error) {
		pages := make(map[int]string)
		for i, text := range strings.Split(string(content), "\f") {
			if strings.TrimSpace(text) != "" {
				pages[i] = text
			}
		}
		if len(pages) == 0 {
			return nil, errors.New("no pages")
		}
		return pages, nil
	}

	proc := processor.New(ch, extractPages, store.NewMemoryStore(), vectors, retriever.New(vectors))
	return NewServer(proc, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop())
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func uploadDocument(t *testing.T, router http.Handler, filename, content, sessionID string) map[string]interface{} {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	url := "/upload"
	if sessionID != "" {
		url += "?session_id=" + sessionID
	}
	r := httptest.NewRequest(http.MethodPost, url, body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status: got %d, body %s", w.Code, w.Body.String())
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHandleUpload(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	out := uploadDocument(t, router, "notes.pdf", "The quarterly budget was approved in March.", "")
	if out["status"] != "success" {
		t.Errorf("status: got %v", out["status"])
	}
	if out["document_id"] == "" || out["session_id"] == "" {
		t.Error("expected document_id and session_id in response")
	}
	if out["filename"] != "notes.pdf" {
		t.Errorf("filename: got %v", out["filename"])
	}
}

func TestHandleUpload_RejectsNonPDF(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	body, contentType := multipartUpload(t, "notes.txt", "plain text")
	r := httptest.NewRequest(http.MethodPost, "/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleQuery(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	out := uploadDocument(t, router, "contract.pdf", "The warranty period lasts for twenty four months after purchase.", "")
	documentID := out["document_id"].(string)

	reqBody, _ := json.Marshal(map[string]interface{}{
		"query":       "how long is the warranty period",
		"document_id": documentID,
		"top_k":       5,
	})
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.DocumentID != documentID {
		t.Errorf("document_id: got %q", resp.DocumentID)
	}
	if resp.ResultCount == 0 {
		t.Error("expected at least one result")
	}
	if !strings.Contains(resp.Response, "warranty") {
		t.Errorf("response should carry matched context, got %q", resp.Response)
	}
}

func TestHandleQuery_UnknownDocument(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	reqBody, _ := json.Marshal(map[string]interface{}{
		"query":       "anything",
		"document_id": "missing",
	})
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleQuery_MissingFields(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	r := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query": ""}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleSessionDocumentsAndDelete(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	out1 := uploadDocument(t, router, "a.pdf", "first document about rivers", "sess-1")
	uploadDocument(t, router, "b.pdf", "second document about mountains", "sess-1")

	r := httptest.NewRequest(http.MethodGet, "/documents/sess-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: got %d", w.Code)
	}
	var list struct {
		SessionID     string                   `json:"session_id"`
		DocumentCount int                      `json:"document_count"`
		Documents     []map[string]interface{} `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.DocumentCount != 2 || len(list.Documents) != 2 {
		t.Errorf("document_count: got %d", list.DocumentCount)
	}

	documentID := out1["document_id"].(string)
	r = httptest.NewRequest(http.MethodGet, "/document/"+documentID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("get document status: got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodDelete, "/document/"+documentID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("delete status: got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/document/"+documentID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status: got %d, want 404", w.Code)
	}
}

func TestHandleListSessionDocuments_UnknownSession(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	r := httptest.NewRequest(http.MethodGet, "/documents/never-seen", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleDeleteDocument_NotFound(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	r := httptest.NewRequest(http.MethodDelete, "/document/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleClearSession(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	uploadDocument(t, router, "a.pdf", "first document about rivers", "sess-9")
	uploadDocument(t, router, "b.pdf", "second document about mountains", "sess-9")

	r := httptest.NewRequest(http.MethodDelete, "/session/sess-9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Success      bool   `json:"success"`
		SessionID    string `json:"session_id"`
		DeletedCount int    `json:"deleted_count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.DeletedCount != 2 {
		t.Errorf("unexpected clear result: %+v", out)
	}

	r = httptest.NewRequest(http.MethodGet, "/documents/sess-9", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("list after clear status: got %d, want 200", w.Code)
	}
	var list struct {
		DocumentCount int                      `json:"document_count"`
		Documents     []map[string]interface{} `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.DocumentCount != 0 || len(list.Documents) != 0 {
		t.Errorf("cleared session still lists documents: %+v", list)
	}

	r = httptest.NewRequest(http.MethodDelete, "/session/sess-9", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat clear status: got %d, want 200", w.Code)
	}
	out = struct {
		Success      bool   `json:"success"`
		SessionID    string `json:"session_id"`
		DeletedCount int    `json:"deleted_count"`
	}{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.DeletedCount != 0 {
		t.Errorf("unexpected repeat clear result: %+v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
