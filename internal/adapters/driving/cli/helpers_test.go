package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
)

// --- Mock implementations ---

// mockIngestService is a mock implementation of driving.IngestionService.
type mockIngestService struct {
	mu     sync.Mutex
	report *domain.IngestionReport
	err    error
	calls  []driving.IngestOptions
}

func (m *mockIngestService) Ingest(_ context.Context, opts driving.IngestOptions) (*domain.IngestionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, opts)
	return m.report, m.err
}

func (m *mockIngestService) Calls() []driving.IngestOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driving.IngestOptions(nil), m.calls...)
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error
	query   string
	opts    domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.query = query
	m.opts = opts
	return m.results, m.err
}

// mockCollectionService is a mock implementation of driving.CollectionService.
type mockCollectionService struct {
	collections []domain.Collection
	err         error
	deleted     []string
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

func (m *mockCollectionService) Delete(_ context.Context, name string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, name)
	return nil
}

// --- helpers ---

type testServices struct {
	ingest      *mockIngestService
	search      *mockSearchService
	collections *mockCollectionService
}

// setupTestServices installs mocks as the package services and returns a
// function restoring the previous state.
func setupTestServices() (*testServices, func()) {
	prevIngest, prevSearch, prevCollections := ingestService, searchService, collectionService
	prevFactory, prevChecks, prevClose := appFactory, checksFactory, closeApp

	page := 2
	ts := &testServices{
		ingest: &mockIngestService{report: sampleReport()},
		search: &mockSearchService{results: []domain.SearchResult{{
			ID:    "9f2c",
			Score: 0.912,
			Chunk: domain.Chunk{
				Content: "La garantía definitiva será del 5% del importe de adjudicación.",
				Source:  "pliego",
				Section: "GARANTÍAS",
				Page:    &page,
			},
		}}},
		collections: &mockCollectionService{collections: []domain.Collection{
			{Name: "licitaciones-ollama-nomic-embed-text", Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768, Count: 42},
		}},
	}
	ingestService, searchService, collectionService = ts.ingest, ts.search, ts.collections
	appFactory, checksFactory, closeApp = nil, nil, nil

	return ts, func() {
		ingestService, searchService, collectionService = prevIngest, prevSearch, prevCollections
		appFactory, checksFactory, closeApp = prevFactory, prevChecks, prevClose
	}
}

func sampleReport() *domain.IngestionReport {
	r := domain.NewIngestionReport()
	r.Collection = "licitaciones-ollama-nomic-embed-text"
	r.Provider = "ollama"
	r.Model = "nomic-embed-text"
	r.Processed = []string{"anexo.docx", "pliego.pdf"}
	r.Errors = []domain.DocumentError{{Source: "roto.pdf", Kind: domain.KindDocument, Reason: "extraction failed"}}
	r.Skipped = []domain.SkippedDocument{{Source: "anexo.pdf", Reason: "converted copy of anexo.docx"}}
	r.TotalChunks = 12
	r.Write = domain.WriteStats{Written: 12}
	r.Sections = map[string][]string{"pliego.pdf": {"GARANTÍAS", "GENERAL"}}
	return r
}

// execute runs rootCmd with args against an isolated config file unless
// args name one.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), "", args...)
}

// executeContext runs rootCmd with ctx and stdin input.
func executeContext(t *testing.T, ctx context.Context, input string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	if !slices.Contains(args, "--config") {
		args = append(args, "--config", filepath.Join(t.TempDir(), "config.toml"))
	}
	rootCmd.SetArgs(append(args, "--env-file", ""))
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// resetFlags restores every flag to its default so tests do not leak
// values into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			var vals []string
			if def := strings.Trim(f.DefValue, "[]"); def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
