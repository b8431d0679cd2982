package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers similarity queries. Queries are embedded with the
// provider and model recorded on the collection so vectors stay comparable.
type SearchService struct {
	store             driven.VectorStore
	resolver          driven.EmbeddingResolver
	defaultCollection string
	log               *zap.Logger
}

// NewSearchService creates a search service. defaultCollection is used
// when a query names no collection; it may be empty.
func NewSearchService(
	store driven.VectorStore,
	resolver driven.EmbeddingResolver,
	defaultCollection string,
	log *zap.Logger,
) *SearchService {
	return &SearchService{
		store:             store,
		resolver:          resolver,
		defaultCollection: defaultCollection,
		log:               logger.OrNop(log),
	}
}

// Search embeds query and returns the nearest chunks.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	// Return empty for empty query
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	name, err := s.collectionFor(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	collection, err := s.store.GetCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}

	embedder, err := s.resolver.Open(ctx, domain.AIProvider(collection.Provider), collection.Model)
	if err != nil {
		return nil, fmt.Errorf("open embedding provider: %w", err)
	}
	defer embedder.Close()

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, name, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	s.log.Debug("search",
		zap.String("collection", name),
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}

// collectionFor picks the explicit name, the configured default, or the
// only collection in the store.
func (s *SearchService) collectionFor(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.defaultCollection != "" {
		return s.defaultCollection, nil
	}

	all, err := s.store.ListCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("list collections: %w", err)
	}
	switch len(all) {
	case 0:
		return "", fmt.Errorf("%w: no collections, run ingest first", domain.ErrNotFound)
	case 1:
		return all[0].Name, nil
	default:
		names := make([]string, len(all))
		for i := range all {
			names[i] = all[i].Name
		}
		return "", fmt.Errorf("%w: several collections exist, choose one of %s",
			domain.ErrInvalidInput, strings.Join(names, ", "))
	}
}
