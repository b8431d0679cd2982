// Package memory provides an in-process VectorStore. Contents are lost when
// the process exits.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

type collection struct {
	meta    domain.Collection
	records map[string]domain.Record
}

// VectorStore is an in-memory implementation of driven.VectorStore.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewVectorStore creates an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{collections: make(map[string]*collection)}
}

// EnsureCollection creates c if missing and checks compatibility otherwise.
func (s *VectorStore) EnsureCollection(_ context.Context, c domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[c.Name]
	if !ok {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		c.Count = 0
		s.collections[c.Name] = &collection{meta: c, records: make(map[string]domain.Record)}
		return nil
	}
	if !existing.meta.Compatible(c) {
		return fmt.Errorf("%w: collection %q holds %s/%s (%d dims), got %s/%s (%d dims)",
			domain.ErrCollectionMismatch, c.Name,
			existing.meta.Provider, existing.meta.Model, existing.meta.Dimensions,
			c.Provider, c.Model, c.Dimensions)
	}
	if existing.meta.Dimensions == 0 {
		existing.meta.Dimensions = c.Dimensions
	}
	return nil
}

// UpsertBatch writes records, replacing existing IDs.
func (s *VectorStore) UpsertBatch(_ context.Context, name string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(name)
	if err != nil {
		return err
	}
	for _, r := range records {
		c.records[r.ID] = clone(r)
	}
	return nil
}

// Insert writes one record, failing with ErrDuplicate when the ID exists.
func (s *VectorStore) Insert(_ context.Context, name string, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(name)
	if err != nil {
		return err
	}
	if _, ok := c.records[record.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, record.ID)
	}
	c.records[record.ID] = clone(record)
	return nil
}

// Flush is a no-op.
func (s *VectorStore) Flush(_ context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.get(name)
	return err
}

// Search scores every record by cosine similarity.
func (s *VectorStore) Search(_ context.Context, name string, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.get(name)
	if err != nil {
		return nil, err
	}

	var results []domain.SearchResult
	for id, r := range c.records {
		if !opts.Matches(r.Chunk) {
			continue
		}
		results = append(results, domain.SearchResult{
			ID:    id,
			Chunk: r.Chunk,
			Score: domain.Cosine(vector, r.Vector),
		})
	}
	return domain.RankResults(results, opts.EffectiveLimit()), nil
}

// GetCollection returns collection metadata.
func (s *VectorStore) GetCollection(_ context.Context, name string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	meta := c.meta
	meta.Count = len(c.records)
	return &meta, nil
}

// ListCollections returns all collections sorted by name.
func (s *VectorStore) ListCollections(_ context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		meta := c.meta
		meta.Count = len(c.records)
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteCollection removes a collection.
func (s *VectorStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(name); err != nil {
		return err
	}
	delete(s.collections, name)
	return nil
}

// Reset removes every collection.
func (s *VectorStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*collection)
	return nil
}

// Ping always succeeds.
func (s *VectorStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *VectorStore) Close() error {
	return nil
}

// Records returns a copy of a collection's records sorted by ID.
func (s *VectorStore) Records(name string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	out := make([]domain.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *VectorStore) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}
	return c, nil
}

func clone(r domain.Record) domain.Record {
	r.Vector = slices.Clone(r.Vector)
	if r.Chunk.Page != nil {
		p := *r.Chunk.Page
		r.Chunk.Page = &p
	}
	return r
}
