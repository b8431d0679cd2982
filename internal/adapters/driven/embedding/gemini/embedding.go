// Package gemini provides an embedding service adapter using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// maxBatch is the largest request BatchEmbedContents accepts.
const maxBatch = 100

var modelDimensions = map[string]int{
	"text-embedding-004":   768,
	"embedding-001":        768,
	"gemini-embedding-001": 3072,
}

// Config holds configuration for the Gemini embedding service.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model to use (default: text-embedding-004).
	Model string
}

// EmbeddingService generates embeddings using Gemini.
type EmbeddingService struct {
	client *genai.Client
	model  string

	mu         sync.RWMutex
	dimensions int
}

// NewEmbeddingService creates a Gemini embedding service. Extra client
// options are appended after the API key.
func NewEmbeddingService(ctx context.Context, cfg Config, opts ...option.ClientOption) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for the gemini provider", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", domain.ErrProviderUnavailable, err)
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: modelDimensions[cfg.Model],
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := s.client.EmbeddingModel(s.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classify(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: gemini returned an empty embedding", domain.ErrEmbeddingFailed)
	}
	s.learn(len(res.Embedding.Values))
	return res.Embedding.Values, nil
}

// EmbedBatch generates embeddings for multiple texts, maxBatch per request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := s.client.EmbeddingModel(s.model)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, classify(err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs",
				domain.ErrEmbeddingFailed, len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("%w: gemini returned an empty embedding", domain.ErrEmbeddingFailed)
			}
			out = append(out, e.Values)
		}
	}

	s.learn(len(out[0]))
	return out, nil
}

// Dimensions returns the embedding vector size, or 0 until known.
func (s *EmbeddingService) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping fetches the model description.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.EmbeddingModel(s.model).Info(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the underlying client.
func (s *EmbeddingService) Close() error {
	return s.client.Close()
}

func (s *EmbeddingService) learn(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimensions == 0 {
		s.dimensions = n
	}
}

// classify maps client errors onto domain sentinels. A rejected key is a
// configuration error.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: gemini rejected GEMINI_API_KEY: %s", domain.ErrConfiguration, apiErr.Message)
		default:
			return fmt.Errorf("%w: gemini (status %d): %w", domain.ErrEmbeddingFailed, apiErr.Code, err)
		}
	}
	return fmt.Errorf("%w: gemini: %w", domain.ErrEmbeddingFailed, err)
}
