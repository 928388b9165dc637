// Package ocr turns cached PDF files into plain text.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cda-harvester/internal/config"
)

// Extractor extracts text content from PDF files. An empty string with a nil
// error means the file was readable but carried no text.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocal(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
