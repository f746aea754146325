package models

// QueryResult is one similarity-search hit. Ephemeral: it lives only for the
// duration of a request and is never persisted.
type QueryResult struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
	Page         int     `json:"page"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	// Extra carries provider-specific metadata fields the core does not consume.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Retrieval is the output of the query processor: filtered results plus the
// page-ordered context assembled from them.
type Retrieval struct {
	Query            string        `json:"query"`
	DocumentID       string        `json:"document_id"`
	Results          []QueryResult `json:"results"`
	ResultCount      int           `json:"result_count"`
	Context          string        `json:"context"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	SearchTimeMs     int64         `json:"search_time_ms"`
}

// UploadResult is returned after a document has been processed and stored.
type UploadResult struct {
	DocumentID   string        `json:"document_id"`
	SessionID    string        `json:"session_id"`
	Filename     string        `json:"filename"`
	Status       string        `json:"status"`
	Statistics   Statistics    `json:"statistics"`
	SampleChunks []SampleChunk `json:"sample_chunks"`
}

// SampleChunk is a preview of one stored chunk, shown in upload responses.
// Page is 1-indexed for display.
type SampleChunk struct {
	ChunkID     string `json:"chunk_id"`
	Page        int    `json:"page"`
	TextPreview string `json:"text_preview"`
}
