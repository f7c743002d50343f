// Package ocr turns submitted quote PDFs into the plain text the
// extraction strategies work on. Scanned quotes go through the Mistral
// OCR API; digital PDFs only need pdftotext.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/betagouv/quotecheck/internal/config"
)

// Extractor extracts text content from quote PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, mistralKey string) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral.key")
		}
		return NewMistralOCR(mistralKey, cfg.Model), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
