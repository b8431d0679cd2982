package driven

import "github.com/custodia-labs/tender-ingest/internal/core/domain"

// Chunker splits normalised document text into section-tagged chunks.
type Chunker interface {
	// Name returns the chunker identifier.
	Name() string

	// Chunk splits normalised text of the document labelled source.
	// The result is deterministic for identical input.
	Chunk(normalised, source string) []domain.Chunk
}
