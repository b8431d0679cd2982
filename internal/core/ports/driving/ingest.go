package driving

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// IngestOptions configures one ingestion run.
type IngestOptions struct {
	// SourceDir is the folder of tender documents.
	SourceDir string

	// Collection overrides the derived collection name.
	Collection string

	// Reset deletes the destination store before ingesting.
	Reset bool

	// NoCache ignores existing sidecar text artifacts.
	NoCache bool

	// Embedding selects the provider mode and model.
	Embedding domain.EmbeddingRequest
}

// IngestionService runs the ingestion pipeline over a folder.
type IngestionService interface {
	// Ingest processes every accepted file in opts.SourceDir and writes the
	// resulting chunks. Document-scoped failures are listed in the report.
	// A folder yielding no chunks returns the report together with an error
	// wrapping domain.ErrNothingToIndex. Run-scoped failures return a
	// classified error.
	Ingest(ctx context.Context, opts IngestOptions) (*domain.IngestionReport, error)
}
