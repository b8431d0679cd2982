package driven

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// VectorStore persists chunks and their embeddings in named collections.
//
// Writes against one collection are not safe to run concurrently; callers
// use a single writer per collection.
type VectorStore interface {
	// EnsureCollection creates the collection if needed. It returns
	// domain.ErrCollectionMismatch if the collection exists with a different
	// provider, model or dimension.
	EnsureCollection(ctx context.Context, c domain.Collection) error

	// UpsertBatch writes records keyed by their ID, replacing existing ones.
	UpsertBatch(ctx context.Context, collection string, records []domain.Record) error

	// Insert writes a single record. It returns an error wrapping
	// domain.ErrDuplicate when the ID already exists.
	Insert(ctx context.Context, collection string, record domain.Record) error

	// Flush makes previous writes durable.
	Flush(ctx context.Context, collection string) error

	// Search returns the records nearest to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// GetCollection returns collection metadata or domain.ErrNotFound.
	GetCollection(ctx context.Context, name string) (*domain.Collection, error)

	// ListCollections returns every collection with its record count.
	ListCollections(ctx context.Context) ([]domain.Collection, error)

	// DeleteCollection removes a collection and its records.
	DeleteCollection(ctx context.Context, name string) error

	// Reset deletes every collection held by the store.
	Reset(ctx context.Context) error

	// Ping returns an error wrapping domain.ErrStoreUnavailable when the
	// store cannot be reached.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
