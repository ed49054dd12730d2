package extract

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDF extracts the embedded text of a PDF, concatenating pages in order.
// A page with no text layer (a scanned image, for example) contributes an
// empty string; there is no OCR fallback for such pages.
func PDF(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		pageText, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", page+1, err)
		}
		text.WriteString(pageText)
	}
	return text.String(), nil
}
