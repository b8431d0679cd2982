package driven

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// FormatConverter produces the canonical page-oriented representation (PDF)
// of a source document.
type FormatConverter interface {
	// ToPDF returns the path of a PDF with the same content as doc.
	// PDFs are returned unchanged. Office formats are converted next to
	// the source. Other formats fail with domain.ErrUnsupportedFormat and
	// converter failures with domain.ErrConversion.
	ToPDF(ctx context.Context, doc domain.SourceDocument) (string, error)

	// CheckAvailable returns domain.ErrToolNotFound if the converter is not installed.
	CheckAvailable() error
}
