// Package extract turns raw uploaded documents (images, PDFs, CSV files)
// into plain text or tabular rows. It performs no amount parsing and no
// network calls besides the vision backends used for image transcription.
package extract

import "context"

// Recognizer transcribes the text of a document image.
type Recognizer interface {
	// RecognizeText returns the best-effort plain text of an image or
	// single-page document. No confidence score is reported.
	RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases backend resources.
	Close() error
}
