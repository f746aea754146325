// Package chunker splits cleaned page text into overlapping, boundary-aware chunks.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(` {2,}`)
)

// Clean normalizes raw extracted text: runs of 3+ newlines collapse to 2,
// runs of 2+ spaces collapse to 1, form feeds are removed, and surrounding
// whitespace is trimmed. Chunk offsets are relative to the cleaned text.
func Clean(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\f", "")
	return strings.TrimSpace(text)
}

// Chunker splits text into overlapping character windows, preferring to break
// at paragraph, then sentence, then word boundaries.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker. chunkSize must be positive and chunkOverlap
// must be smaller than chunkSize; an overlap >= size would never advance.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk cleans text and splits it into TextChunks for one page of a document.
// Text no longer than the chunk size yields a single chunk spanning the whole
// text. Empty text (after cleaning) yields no chunks.
func (c *Chunker) Chunk(text string, pageNumber int, documentID, documentName string) []models.TextChunk {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}
	if len(cleaned) <= c.chunkSize {
		return []models.TextChunk{{
			ID:           uuid.New().String(),
			Text:         cleaned,
			PageNumber:   pageNumber,
			DocumentID:   documentID,
			DocumentName: documentName,
			ChunkIndex:   0,
			StartChar:    0,
			EndChar:      len(cleaned),
		}}
	}

	var chunks []models.TextChunk
	start := 0
	for {
		end := start + c.chunkSize
		last := end >= len(cleaned)
		if last {
			end = len(cleaned)
		} else {
			end = c.breakPoint(cleaned, start, end)
		}
		if piece := strings.TrimSpace(cleaned[start:end]); piece != "" {
			chunks = append(chunks, models.TextChunk{
				ID:           uuid.New().String(),
				Text:         piece,
				PageNumber:   pageNumber,
				DocumentID:   documentID,
				DocumentName: documentName,
				ChunkIndex:   len(chunks),
				StartChar:    start,
				EndChar:      end,
			})
		}
		if last {
			break
		}
		next := end - c.chunkOverlap
		// A break point close to the window start can put the overlapped
		// cursor at or before the current one; advance without overlap so
		// the tail is still emitted. end > start always, so this terminates.
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint finds the best position to end a chunk inside (start, end],
// preferring paragraph breaks, then sentence endings, then spaces. Paragraph
// and sentence breaks are only accepted past the window midpoint, spaces past
// the quarter point, so a natural boundary near the window start cannot
// produce a degenerately short chunk.
func (c *Chunker) breakPoint(s string, start, end int) int {
	window := s[start:end]
	if p := strings.LastIndex(window, "\n\n"); p != -1 && p > c.chunkSize/2 {
		return start + p + 2
	}
	if p := lastSentenceEnd(window); p != -1 && p > c.chunkSize/2 {
		return start + p + 2
	}
	if p := strings.LastIndex(window, " "); p != -1 && p > c.chunkSize/4 {
		return start + p + 1
	}
	return end
}

// lastSentenceEnd returns the rightmost position of ". ", "! ", or "? " in s,
// or -1 if none is present.
func lastSentenceEnd(s string) int {
	p := strings.LastIndex(s, ". ")
	if q := strings.LastIndex(s, "! "); q > p {
		p = q
	}
	if q := strings.LastIndex(s, "? "); q > p {
		p = q
	}
	return p
}

// ChunkPages chunks a page-number-to-text mapping in ascending page order and
// returns all chunks for the document. Pages that clean to empty text are skipped.
func (c *Chunker) ChunkPages(pages map[int]string, documentID, documentName string) []models.TextChunk {
	pageNumbers := make([]int, 0, len(pages))
	for n := range pages {
		pageNumbers = append(pageNumbers, n)
	}
	sort.Ints(pageNumbers)
	var all []models.TextChunk
	for _, n := range pageNumbers {
		all = append(all, c.Chunk(pages[n], n, documentID, documentName)...)
	}
	return all
}
