package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// --- Mock implementations ---

// fakeEmbedder implements driven.EmbeddingService with deterministic vectors.
type fakeEmbedder struct {
	mu         sync.Mutex
	model      string
	dims       int
	learned    int
	vectors    map[string][]float32
	batchErr   error
	embedErr   error
	batchSizes []int
	embedCalls int
	closed     bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{model: "nomic-embed-text:latest", dims: 3}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	sum := 0
	for _, b := range []byte(text) {
		sum += int(b)
	}
	return []float32{float32(len(text)), float32(sum % 97), 1}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	v := f.vector(text)
	f.learned = len(v)
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(texts))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int {
	if f.dims > 0 {
		return f.dims
	}
	return f.learned
}

func (f *fakeEmbedder) ModelName() string            { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { f.closed = true; return nil }

// fakeResolver implements driven.EmbeddingResolver.
type fakeResolver struct {
	mu       sync.Mutex
	embedder *fakeEmbedder
	provider domain.AIProvider
	err      error
	calls    int
	requests []domain.EmbeddingRequest
	opened   []string
}

func newFakeResolver(e *fakeEmbedder) *fakeResolver {
	return &fakeResolver{embedder: e, provider: domain.AIProviderOllama}
}

func (r *fakeResolver) Resolve(_ context.Context, req domain.EmbeddingRequest) (*driven.ResolvedEmbedding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &driven.ResolvedEmbedding{Service: r.embedder, Provider: r.provider, Model: r.embedder.model}, nil
}

func (r *fakeResolver) Open(_ context.Context, provider domain.AIProvider, model string) (driven.EmbeddingService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, provider.String()+"/"+model)
	if r.err != nil {
		return nil, r.err
	}
	return r.embedder, nil
}

// fakeConverter implements driven.FormatConverter without a subprocess.
type fakeConverter struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (c *fakeConverter) ToPDF(_ context.Context, doc domain.SourceDocument) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, filepath.Base(doc.Path))
	if err := c.fail[doc.Stem()]; err != nil {
		return "", err
	}
	if doc.Format == domain.FormatPDF {
		return doc.Path, nil
	}
	return strings.TrimSuffix(doc.Path, filepath.Ext(doc.Path)) + ".pdf", nil
}

func (c *fakeConverter) CheckAvailable() error { return nil }

// fakeExtractor implements driven.TextExtractor from canned pages.
type fakeExtractor struct {
	mu    sync.Mutex
	pages map[string][]domain.Page
	calls int
}

func (e *fakeExtractor) Extract(ctx context.Context, pdfPath string) ([]domain.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, ok := e.pages[domain.Stem(pdfPath)]
	if !ok {
		return nil, fmt.Errorf("%w: no pages for %s", domain.ErrExtraction, pdfPath)
	}
	return pages, nil
}

func (e *fakeExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*memory.VectorStore

	mu        sync.Mutex
	upsertErr error
	insertErr map[string]error
	pingErr   error
	// pingOK is the number of pings that succeed before pingErr applies.
	pingOK  int
	pings   int
	upserts int
	inserts int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{VectorStore: memory.NewVectorStore(), insertErr: make(map[string]error)}
}

func (s *faultyStore) UpsertBatch(ctx context.Context, name string, records []domain.Record) error {
	s.mu.Lock()
	s.upserts++
	err := s.upsertErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.VectorStore.UpsertBatch(ctx, name, records)
}

func (s *faultyStore) Insert(ctx context.Context, name string, record domain.Record) error {
	s.mu.Lock()
	s.inserts++
	err := s.insertErr[record.Chunk.Content]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.VectorStore.Insert(ctx, name, record)
}

func (s *faultyStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if s.pingErr != nil && s.pings > s.pingOK {
		return s.pingErr
	}
	return s.VectorStore.Ping(ctx)
}

// --- helpers ---

// writeFile creates name in dir with placeholder bytes.
func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o600))
	return path
}

// chunksOf builds n distinct chunks for source.
func chunksOf(source string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{
			Content: fmt.Sprintf("fragmento %d de %s", i, source),
			Source:  source,
			Section: domain.SectionGeneral,
		}
	}
	return out
}
