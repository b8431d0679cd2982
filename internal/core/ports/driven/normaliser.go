package driven

import "github.com/custodia-labs/tender-ingest/internal/core/domain"

// TextNormaliser turns extracted pages into the canonical page-marked text
// and manages its cached sidecar artifact.
type TextNormaliser interface {
	// Render concatenates pages with page markers and canonicalises the result.
	Render(pages []domain.Page) string

	// OCRPages counts the pages of normalised text that came from recognition.
	OCRPages(normalised string) int

	// LoadSidecar returns the cached text at path. The second value is
	// false when no artifact exists.
	LoadSidecar(path string) (string, bool, error)

	// SaveSidecar writes the normalised text artifact.
	SaveSidecar(path, normalised string) error
}
