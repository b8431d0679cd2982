package driven

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// TextExtractor extracts per-page text from a PDF.
type TextExtractor interface {
	// Extract returns every page of pdfPath in order. Pages whose embedded
	// text is shorter than the configured threshold are recognised
	// optically when an OCREngine is healthy. Recognition failures degrade
	// to the raw text for that page only.
	Extract(ctx context.Context, pdfPath string) ([]domain.Page, error)
}

// OCREngine recognises text on a single PDF page.
type OCREngine interface {
	// RecognisePage rasterises page (1-based) of pdfPath and returns the recognised text.
	RecognisePage(ctx context.Context, pdfPath string, page int) (string, error)

	// Healthy returns nil when the engine can be used.
	Healthy(ctx context.Context) error
}
