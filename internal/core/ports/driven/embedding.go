package driven

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// EmbeddingService generates vector embeddings from text.
//
// Implementations include:
//   - Ollama (nomic-embed-text, mxbai-embed-large) running locally
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Gemini (text-embedding-004)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 768, 1536).
	// Zero means unknown until the first embedding is produced.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ResolvedEmbedding is a ready-to-use provider plus its resolved names.
type ResolvedEmbedding struct {
	Service  EmbeddingService
	Provider domain.AIProvider
	Model    string
}

// EmbeddingResolver selects and validates an embedding backend.
type EmbeddingResolver interface {
	// Resolve negotiates a provider for req. See domain.ProviderMode for
	// the selection strategy. Errors wrap domain.ErrConfiguration,
	// domain.ErrProviderUnavailable or domain.ErrInvalidProvider.
	Resolve(ctx context.Context, req domain.EmbeddingRequest) (*ResolvedEmbedding, error)

	// Open builds the service for a known provider and model, as recorded
	// on an existing collection. No fallback happens.
	Open(ctx context.Context, provider domain.AIProvider, model string) (EmbeddingService, error)
}
