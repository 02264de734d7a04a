// Package pdfcheck inspects PDFs before OCR: does a document already
// carry a usable text layer, and how many pages does it have.
package pdfcheck

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// textThreshold is the number of extracted characters on a single page
// above which the document counts as already searchable. Born-digital
// PDFs easily clear it; stray artifacts in scans do not.
const textThreshold = 50

// HasText reports whether any page's extracted text, after trimming
// whitespace, exceeds the threshold. Callers should treat an error as
// "no text" and send the file through OCR.
func HasText(path string) (bool, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer doc.Close()

	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return false, fmt.Errorf("extract text from page %d of %s: %w", i+1, path, err)
		}
		if len([]rune(strings.TrimSpace(text))) > textThreshold {
			return true, nil
		}
	}
	return false, nil
}

// PageCount returns the number of pages, or 0 if the file cannot be
// opened. Used by the [NOMBRE_PAGES] naming token.
func PageCount(path string) int {
	doc, err := fitz.New(path)
	if err != nil {
		return 0
	}
	defer doc.Close()
	return doc.NumPage()
}
