// Package ocr extracts text content from downloaded publication PDFs.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/oeaw/storyscout/internal/config"
)

// Extractor extracts text from the leading pages of a PDF file. A
// maxPages of 0 extracts the whole document.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
