package driving

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// SearchService performs similarity search over a collection.
type SearchService interface {
	// Search embeds query with the collection's provider and returns ranked chunks.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}

// CollectionService lists and deletes collections.
type CollectionService interface {
	// List returns all collections.
	List(ctx context.Context) ([]domain.Collection, error)

	// Get returns one collection or domain.ErrNotFound.
	Get(ctx context.Context, name string) (*domain.Collection, error)

	// Delete removes a collection.
	Delete(ctx context.Context, name string) error
}
