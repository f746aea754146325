// Package models defines core data structures for documents, chunks, sessions, and query results.
package models

// TextChunk is a contiguous span of cleaned text extracted from one page of one document.
// Chunks are immutable after creation; offsets are relative to the cleaned page text.
type TextChunk struct {
	ID           string `json:"chunk_id"`
	Text         string `json:"text"`
	PageNumber   int    `json:"page_number"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	// ChunkIndex is the chunk's ordinal within its page, used to restore
	// document order when assembling retrieval context.
	ChunkIndex int `json:"chunk_index"`
	StartChar  int `json:"start_char_idx"`
	EndChar    int `json:"end_char_idx"`
}

// Statistics summarizes a processed document.
type Statistics struct {
	TotalChunks     int `json:"total_chunks"`
	TotalPages      int `json:"total_pages"`
	TotalCharacters int `json:"total_characters"`
	EstimatedTokens int `json:"estimated_tokens"`
}

// ComputeStatistics aggregates chunk counts, unique pages, characters, and an
// estimated token count (~4 characters per token) for a document's chunks.
func ComputeStatistics(chunks []TextChunk) Statistics {
	if len(chunks) == 0 {
		return Statistics{}
	}
	pages := make(map[int]struct{})
	totalChars := 0
	for _, ch := range chunks {
		pages[ch.PageNumber] = struct{}{}
		totalChars += len(ch.Text)
	}
	return Statistics{
		TotalChunks:     len(chunks),
		TotalPages:      len(pages),
		TotalCharacters: totalChars,
		EstimatedTokens: totalChars / 4,
	}
}
