package text

import (
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextNormaliser = (*Normaliser)(nil)

// Normaliser exposes the package functions through the TextNormaliser port.
type Normaliser struct{}

// New creates a Normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Render returns the normalised page-marked text of pages.
func (n *Normaliser) Render(pages []domain.Page) string {
	return Normalise(RenderPages(pages))
}

// OCRPages counts "(OCR)" page markers.
func (n *Normaliser) OCRPages(normalised string) int {
	return CountOCRPages(normalised)
}

// LoadSidecar reads the artifact at path.
func (n *Normaliser) LoadSidecar(path string) (string, bool, error) {
	return LoadSidecar(path)
}

// SaveSidecar writes the artifact at path.
func (n *Normaliser) SaveSidecar(path, normalised string) error {
	return SaveSidecar(path, normalised)
}
