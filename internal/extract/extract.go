// Package extract provides per-page text extraction from PDF documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when the input is not a PDF document.
var ErrNotPDF = errors.New("not a PDF document")

// ValidateFilename checks that the filename carries a .pdf extension.
func ValidateFilename(name string) error {
	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		return fmt.Errorf("%w: %s", ErrNotPDF, name)
	}
	return nil
}

// PagesFromPDF extracts plain text per page, keyed by 0-indexed page
// number. Pages whose text is blank are omitted.
func PagesFromPDF(content []byte) (map[int]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages := make(map[int]string)
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages[i] = text
	}
	return pages, nil
}
