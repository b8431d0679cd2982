package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/normalisers/pdf"
	"github.com/custodia-labs/tender-ingest/internal/normalisers/text"
	"github.com/custodia-labs/tender-ingest/internal/postprocessors/chunker"
)

// prose builds n characters of heading-free sentences.
func prose(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "El oferente numero %d debera cumplir con lo establecido en este documento. ", i)
	}
	return b.String()[:n]
}

const guaranteesDoc = "GARANTÍAS\n\nEl adjudicatario constituirá una garantía de fiel cumplimiento del contrato.\n\n" +
	"La garantía se devolverá al término del contrato previa conformidad."

// pipeline wires the orchestrator to fakes plus the real normaliser and chunker.
type pipeline struct {
	dir       string
	store     *faultyStore
	embedder  *fakeEmbedder
	resolver  *fakeResolver
	converter *fakeConverter
	extractor *fakeExtractor
	orch      *IngestionOrchestrator
}

func newPipeline(t *testing.T, opts ...IngestOption) *pipeline {
	t.Helper()
	p := &pipeline{
		dir:       t.TempDir(),
		store:     newFaultyStore(),
		embedder:  newFakeEmbedder(),
		converter: &fakeConverter{fail: make(map[string]error)},
		extractor: &fakeExtractor{pages: make(map[string][]domain.Page)},
	}
	p.resolver = newFakeResolver(p.embedder)
	p.orch = NewIngestionOrchestrator(
		p.converter,
		p.extractor,
		text.New(),
		chunker.New(chunker.WithChunkSize(1800), chunker.WithOverlap(200)),
		p.resolver,
		p.store,
		opts...,
	)
	return p
}

// add creates name in the folder and registers its extracted pages.
func (p *pipeline) add(t *testing.T, name string, pages ...string) {
	t.Helper()
	writeFile(t, p.dir, name)
	extracted := make([]domain.Page, len(pages))
	for i, s := range pages {
		extracted[i] = domain.Page{Number: i + 1, Text: s}
	}
	p.extractor.pages[domain.Stem(name)] = extracted
}

func (p *pipeline) ingest(ctx context.Context, mutate ...func(*driving.IngestOptions)) (*domain.IngestionReport, error) {
	opts := driving.IngestOptions{SourceDir: p.dir, Embedding: domain.EmbeddingRequest{Mode: domain.ProviderModeAuto}}
	for _, m := range mutate {
		m(&opts)
	}
	return p.orch.Ingest(ctx, opts)
}

func ids(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestIngest_Folder(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	p.add(t, "memoria.docx", prose(900))
	writeFile(t, p.dir, "presupuesto.xlsx")

	report, err := p.ingest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"memoria", "pliego"}, report.Processed)
	assert.Empty(t, report.Errors)
	assert.Contains(t, report.Sections["pliego"], "GARANTÍAS")
	assert.Equal(t, []string{domain.SectionGeneral}, report.Sections["memoria"])
	assert.Equal(t, "licitaciones-ollama-nomic-embed-text_latest", report.Collection)
	assert.Equal(t, "ollama", report.Provider)
	assert.Equal(t, "nomic-embed-text:latest", report.Model)
	assert.Positive(t, report.TotalChunks)
	assert.Equal(t, report.TotalChunks, report.Write.Written)
	assert.Len(t, p.store.Records(report.Collection), report.TotalChunks)
	assert.Equal(t, 1, p.resolver.calls, "provider is resolved once per run")
	assert.True(t, p.embedder.closed)

	// Sidecars are written next to the sources.
	sidecar, err := os.ReadFile(filepath.Join(p.dir, "pliego.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "=== PAGE 1 ===")

	coll, err := p.store.GetCollection(context.Background(), report.Collection)
	require.NoError(t, err)
	assert.Equal(t, 3, coll.Dimensions)
}

func TestIngest_GuaranteesHeadingIsTagged(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)

	report, err := p.ingest(context.Background())
	require.NoError(t, err)

	records := p.store.Records(report.Collection)
	tagged := slices.ContainsFunc(records, func(r domain.Record) bool { return r.Chunk.Section == "GARANTÍAS" })
	assert.True(t, tagged)
}

func TestIngest_Deterministic(t *testing.T) {
	build := func() []string {
		p := newPipeline(t)
		p.add(t, "pliego.pdf", guaranteesDoc, prose(2500))
		p.add(t, "anexo.doc", prose(700))
		report, err := p.ingest(context.Background())
		require.NoError(t, err)
		return ids(p.store.Records(report.Collection))
	}

	assert.Equal(t, build(), build())
}

func TestIngest_IdempotentReingestion(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc, prose(3000))

	first, err := p.ingest(context.Background())
	require.NoError(t, err)
	before := ids(p.store.Records(first.Collection))

	second, err := p.ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.TotalChunks, second.TotalChunks)
	assert.Equal(t, before, ids(p.store.Records(second.Collection)))
}

func TestIngest_IdempotentThroughDuplicateSkips(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc, prose(3000))

	first, err := p.ingest(context.Background())
	require.NoError(t, err)

	// Force the per-item path: every insert now conflicts.
	p.store.upsertErr = domain.ErrPersistence
	second, err := p.ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.TotalChunks, second.Write.Skipped)
	assert.Zero(t, second.Write.Written)
	assert.Zero(t, second.Write.Failed)
	assert.Len(t, p.store.Records(second.Collection), first.TotalChunks)
}

func TestIngest_SidecarCache(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)

	_, err := p.ingest(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.extractor.Calls())

	_, err = p.ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.extractor.Calls(), "cached sidecar short-circuits extraction")

	_, err = p.ingest(context.Background(), func(o *driving.IngestOptions) { o.NoCache = true })
	require.NoError(t, err)
	assert.Equal(t, 2, p.extractor.Calls())
}

func TestIngest_EditedSourceIsExtractedAgain(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", prose(600))

	first, err := p.ingest(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{domain.SectionGeneral}, first.Sections["pliego"])

	p.extractor.pages["pliego"] = []domain.Page{{Number: 1, Text: guaranteesDoc}}
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(p.dir, "pliego.pdf"), later, later))

	second, err := p.ingest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, p.extractor.Calls(), "sidecar older than the source is not reused")
	assert.Contains(t, second.Sections["pliego"], "GARANTÍAS")
}

func TestIngest_DocAndDocxWithSameStem(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.docx", guaranteesDoc)
	writeFile(t, p.dir, "pliego.doc")

	report, err := p.ingest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"pliego"}, report.Processed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "pliego.doc", report.Skipped[0].Source)
	assert.Equal(t, []string{"pliego.docx"}, p.converter.calls)
	assert.Equal(t, 1, p.extractor.Calls())
}

func TestIngest_PlainProseWithReset(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.store.EnsureCollection(context.Background(), domain.Collection{Name: "old", Provider: "openai", Model: "m"}))
	p.add(t, "memoria.pdf", prose(4000))

	report, err := p.ingest(context.Background(), func(o *driving.IngestOptions) { o.Reset = true })
	require.NoError(t, err)

	_, err = p.store.GetCollection(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	records := p.store.Records(report.Collection)
	require.GreaterOrEqual(t, len(records), 3)
	require.GreaterOrEqual(t, report.TotalChunks, 3)
	for _, r := range records {
		assert.Equal(t, domain.SectionGeneral, r.Chunk.Section)
		assert.Less(t, utf8.RuneCountInString(r.Chunk.Content), 2000)
	}
	assert.Equal(t, []string{domain.SectionGeneral}, report.Sections["memoria"])
}

// ocrRunner answers pdfinfo and pdftotext for a three-page PDF whose
// second page carries no embedded text.
type ocrRunner struct{}

func (ocrRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "pdfinfo":
		return []byte("Title: pliego\nPages:          3\n"), nil
	case "pdftotext":
		switch args[1] {
		case "1":
			return []byte("Primera pagina del pliego con texto suficiente para no reconocer.\f"), nil
		case "3":
			return []byte("Tercera pagina del pliego con texto suficiente para no reconocer.\f"), nil
		default:
			return []byte("\f"), nil
		}
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

func (ocrRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

type ocrEngine struct{ pages []int }

func (e *ocrEngine) RecognisePage(_ context.Context, _ string, page int) (string, error) {
	e.pages = append(e.pages, page)
	return "Texto escaneado de la segunda pagina.", nil
}

func (e *ocrEngine) Healthy(_ context.Context) error { return nil }

func TestIngest_OCRPageIsMarked(t *testing.T) {
	engine := &ocrEngine{}
	p := newPipeline(t)
	p.orch.extractor = pdf.New(ocrRunner{}, pdf.WithOCR(engine))
	writeFile(t, p.dir, "pliego.pdf")

	report, err := p.ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2}, engine.pages)
	assert.Equal(t, 1, report.OCRPages)

	sidecar, err := os.ReadFile(filepath.Join(p.dir, "pliego.txt"))
	require.NoError(t, err)
	got := string(sidecar)
	assert.Contains(t, got, "=== PAGE 1 ===\n")
	assert.Contains(t, got, "=== PAGE 2 (OCR) ===\n")
	assert.Contains(t, got, "=== PAGE 3 ===\n")
	assert.NotContains(t, got, "=== PAGE 1 (OCR)")
	assert.NotContains(t, got, "=== PAGE 3 (OCR)")
}

func TestIngest_EmptyFolder(t *testing.T) {
	p := newPipeline(t)
	writeFile(t, p.dir, "notas.odt")

	report, err := p.ingest(context.Background())

	require.ErrorIs(t, err, domain.ErrNothingToIndex)
	require.NotNil(t, report)
	assert.Empty(t, report.Processed)
	assert.Zero(t, p.resolver.calls)
}

func TestIngest_NoChunks(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "escaneado.pdf", "", "  ")

	report, err := p.ingest(context.Background())

	require.ErrorIs(t, err, domain.ErrNothingToIndex)
	assert.Equal(t, []string{"escaneado"}, report.Processed)
	assert.Zero(t, report.TotalChunks)
	assert.Zero(t, p.resolver.calls)
}

func TestIngest_MissingFolder(t *testing.T) {
	p := newPipeline(t)

	_, err := p.orch.Ingest(context.Background(), driving.IngestOptions{SourceDir: filepath.Join(p.dir, "nope")})

	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestIngest_OfficeOriginalWinsOverSameStemPDF(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.docx", guaranteesDoc)
	writeFile(t, p.dir, "pliego.pdf")

	report, err := p.ingest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"pliego"}, report.Processed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "pliego.pdf", report.Skipped[0].Source)
	assert.Equal(t, []string{"pliego.docx"}, p.converter.calls)
}

func TestIngest_DocumentErrorsAreRecorded(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	p.add(t, "anexo.doc", prose(500))
	writeFile(t, p.dir, "roto.pdf")
	p.converter.fail["anexo"] = fmt.Errorf("%w: soffice exited 1", domain.ErrConversion)

	report, err := p.ingest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"pliego"}, report.Processed)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, "anexo", report.Errors[0].Source)
	assert.Equal(t, domain.KindDocument, report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Reason, "conversion failed")
	assert.Equal(t, "roto", report.Errors[1].Source)
	assert.Equal(t, domain.KindDocument, report.Errors[1].Kind)
}

func TestIngest_ProviderFailureWritesNothing(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	p.resolver.err = fmt.Errorf("%w: set OPENAI_API_KEY", domain.ErrConfiguration)

	report, err := p.ingest(context.Background())

	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.Equal(t, []string{"pliego"}, report.Processed)
	all, err := p.store.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIngest_CollectionMismatch(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	require.NoError(t, p.store.EnsureCollection(context.Background(), domain.Collection{
		Name: "pliegos", Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536,
	}))

	_, err := p.ingest(context.Background(), func(o *driving.IngestOptions) { o.Collection = "pliegos" })

	assert.ErrorIs(t, err, domain.ErrCollectionMismatch)
	assert.Empty(t, p.store.Records("pliegos"))
}

func TestIngest_ExplicitCollectionAndRequest(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	req := domain.EmbeddingRequest{Mode: domain.ProviderModeLocal, Model: "nomic-embed-text"}

	report, err := p.ingest(context.Background(), func(o *driving.IngestOptions) {
		o.Collection = "obra-puente"
		o.Embedding = req
	})

	require.NoError(t, err)
	assert.Equal(t, "obra-puente", report.Collection)
	assert.Equal(t, []domain.EmbeddingRequest{req}, p.resolver.requests)
	assert.NotEmpty(t, p.store.Records("obra-puente"))
}

func TestIngest_ProbesUnknownDimensions(t *testing.T) {
	p := newPipeline(t)
	p.embedder.dims = 0
	p.add(t, "pliego.pdf", guaranteesDoc)

	report, err := p.ingest(context.Background())
	require.NoError(t, err)

	coll, err := p.store.GetCollection(context.Background(), report.Collection)
	require.NoError(t, err)
	assert.Equal(t, 3, coll.Dimensions)
}

func TestIngest_StoreUnavailableStopsNewDocuments(t *testing.T) {
	p := newPipeline(t, WithWorkers(1))
	p.add(t, "a.pdf", guaranteesDoc)
	p.add(t, "b.pdf", prose(300))
	p.add(t, "c.pdf", prose(300))
	p.store.pingOK = 1
	p.store.pingErr = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)

	report, err := p.ingest(context.Background())

	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.KindStore, domain.KindOf(err))
	assert.Equal(t, []string{"a"}, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "b", report.Errors[0].Source)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "c", report.Skipped[0].Source)
	assert.Equal(t, 1, p.extractor.Calls())
	assert.Zero(t, p.resolver.calls)
}

func TestIngest_Canceled(t *testing.T) {
	p := newPipeline(t)
	p.add(t, "pliego.pdf", guaranteesDoc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ingest(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
	assert.Zero(t, p.resolver.calls)
}

func TestIngest_ParallelWorkersMatchSequential(t *testing.T) {
	run := func(workers int) (*domain.IngestionReport, []string) {
		p := newPipeline(t, WithWorkers(workers))
		for i := range 8 {
			p.add(t, fmt.Sprintf("doc%02d.pdf", i), guaranteesDoc, prose(1000+i*300))
		}
		report, err := p.ingest(context.Background())
		require.NoError(t, err)
		return report, ids(p.store.Records(report.Collection))
	}

	seqReport, seqIDs := run(1)
	parReport, parIDs := run(4)

	assert.Equal(t, seqIDs, parIDs)
	assert.Equal(t, seqReport.Processed, parReport.Processed)
	assert.Equal(t, seqReport.TotalChunks, parReport.TotalChunks)
	assert.Equal(t, seqReport.Sections, parReport.Sections)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.pdf", "a.DOCX", "b.doc", "b.pdf", "notes.txt", "z.xlsx"} {
		writeFile(t, dir, name)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	docs, skipped, err := discover(dir)

	require.NoError(t, err)
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = filepath.Base(d.Path)
	}
	assert.Equal(t, []string{"a.DOCX", "b.doc", "c.pdf"}, names)
	require.Len(t, skipped, 1)
	assert.Equal(t, "b.pdf", skipped[0].Source)
}

func TestDiscover_OneDocumentPerStem(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pliego.doc", "pliego.docx", "pliego.pdf", "anexo.doc", "anexo.pdf", "oferta.pdf"} {
		writeFile(t, dir, name)
	}

	docs, skipped, err := discover(dir)

	require.NoError(t, err)
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = filepath.Base(d.Path)
	}
	assert.Equal(t, []string{"anexo.doc", "oferta.pdf", "pliego.docx"}, names)

	reasons := make(map[string]string, len(skipped))
	for _, s := range skipped {
		reasons[s.Source] = s.Reason
	}
	assert.Equal(t, map[string]string{
		"anexo.pdf":  skipOfficeOriginal,
		"pliego.doc": skipOlderFormat,
		"pliego.pdf": skipOfficeOriginal,
	}, reasons)
}

func TestDiscover_NotADirectory(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pliego.pdf")

	_, _, err := discover(path)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
