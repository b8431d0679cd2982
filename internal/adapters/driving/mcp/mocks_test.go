package mcp

import (
	"context"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error
	query   string
	opts    domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.query = query
	m.opts = opts
	return m.results, m.err
}

// mockCollectionService is a mock implementation of driving.CollectionService.
type mockCollectionService struct {
	collections []domain.Collection
	err         error
}

func (m *mockCollectionService) List(_ context.Context) ([]domain.Collection, error) {
	return m.collections, m.err
}

func (m *mockCollectionService) Get(_ context.Context, name string) (*domain.Collection, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.collections {
		if m.collections[i].Name == name {
			c := m.collections[i]
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockCollectionService) Delete(_ context.Context, _ string) error {
	return m.err
}
