package models

import "fmt"

// DefaultTopK is the number of results returned when a query does not specify one.
const DefaultTopK = 5

// QueryRequest is a question asked against one document.
type QueryRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
	TopK       int    `json:"top_k,omitempty"`
}

// Validate ensures the request has the required fields and normalizes TopK.
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.DocumentID == "" {
		return fmt.Errorf("document_id cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > 100 {
		q.TopK = 100
	}
	return nil
}
