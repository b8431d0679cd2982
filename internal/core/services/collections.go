package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure CollectionService implements the interface.
var _ driving.CollectionService = (*CollectionService)(nil)

// CollectionService manages collections in the vector store.
type CollectionService struct {
	store driven.VectorStore
	log   *zap.Logger
}

// NewCollectionService creates a collection service.
func NewCollectionService(store driven.VectorStore, log *zap.Logger) *CollectionService {
	return &CollectionService{store: store, log: logger.OrNop(log)}
}

// List returns every collection sorted by name.
func (s *CollectionService) List(ctx context.Context) ([]domain.Collection, error) {
	all, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// Get returns one collection.
func (s *CollectionService) Get(ctx context.Context, name string) (*domain.Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}
	return s.store.GetCollection(ctx, name)
}

// Delete removes a collection and its chunks.
func (s *CollectionService) Delete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}
	if err := s.store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	s.log.Info("collection deleted", zap.String("collection", name))
	return nil
}
