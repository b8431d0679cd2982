package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure IngestionOrchestrator implements the interface.
var _ driving.IngestionService = (*IngestionOrchestrator)(nil)

// skipReason values reported for documents that were not processed.
const (
	skipOfficeOriginal = "office original with the same name takes precedence"
	skipOlderFormat    = ".docx file with the same name takes precedence"
	skipSameName       = "another file with the same name was kept"
	skipStoreDown      = "not started: vector store unavailable"
)

// IngestionOrchestrator runs the pipeline over a folder: format conversion,
// text extraction, normalisation and chunking per document on a bounded
// worker pool, then one provider resolution and a single writer.
type IngestionOrchestrator struct {
	converter  driven.FormatConverter
	extractor  driven.TextExtractor
	normaliser driven.TextNormaliser
	chunker    driven.Chunker
	resolver   driven.EmbeddingResolver
	store      driven.VectorStore
	writer     *VectorIndexWriter

	workers int
	prefix  string
	log     *zap.Logger
}

// IngestOption configures an IngestionOrchestrator.
type IngestOption func(*IngestionOrchestrator)

// WithWorkers sets the extraction pool size. Values below 1 are ignored.
func WithWorkers(n int) IngestOption {
	return func(o *IngestionOrchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCollectionPrefix sets the prefix of derived collection names.
func WithCollectionPrefix(prefix string) IngestOption {
	return func(o *IngestionOrchestrator) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithWriter replaces the default index writer.
func WithWriter(w *VectorIndexWriter) IngestOption {
	return func(o *IngestionOrchestrator) {
		if w != nil {
			o.writer = w
		}
	}
}

// WithIngestLogger sets the logger.
func WithIngestLogger(l *zap.Logger) IngestOption {
	return func(o *IngestionOrchestrator) {
		o.log = logger.OrNop(l)
	}
}

// NewIngestionOrchestrator creates an orchestrator.
func NewIngestionOrchestrator(
	converter driven.FormatConverter,
	extractor driven.TextExtractor,
	normaliser driven.TextNormaliser,
	chunker driven.Chunker,
	resolver driven.EmbeddingResolver,
	store driven.VectorStore,
	opts ...IngestOption,
) *IngestionOrchestrator {
	o := &IngestionOrchestrator{
		converter:  converter,
		extractor:  extractor,
		normaliser: normaliser,
		chunker:    chunker,
		resolver:   resolver,
		store:      store,
		workers:    runtime.NumCPU(),
		prefix:     domain.DefaultCollectionPrefix,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.writer == nil {
		o.writer = NewVectorIndexWriter(store, WithWriterLogger(o.log))
	}
	return o
}

// docResult is what one worker hands to the collector.
type docResult struct {
	doc      domain.SourceDocument
	chunks   []domain.Chunk
	ocrPages int
	cached   bool
	err      error
	// notStarted is set when the document was never attempted.
	notStarted bool
}

// Ingest processes every accepted file in opts.SourceDir.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *IngestionOrchestrator) Ingest(ctx context.Context, opts driving.IngestOptions) (*domain.IngestionReport, error) {
	report := domain.NewIngestionReport()
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	// 1. Reset the destination when asked
	if opts.Reset {
		if err := o.store.Reset(ctx); err != nil {
			return report, fmt.Errorf("reset store: %w", err)
		}
		o.log.Info("vector store reset")
	}

	// 2. Enumerate accepted files in lexicographic order
	docs, skipped, err := discover(opts.SourceDir)
	if err != nil {
		return report, err
	}
	report.Skipped = append(report.Skipped, skipped...)
	if len(docs) == 0 {
		report.Sort()
		return report, fmt.Errorf("%w: no .pdf, .doc or .docx files in %s", domain.ErrNothingToIndex, opts.SourceDir)
	}
	o.log.Info("ingesting folder",
		zap.String("dir", opts.SourceDir),
		zap.Int("documents", len(docs)),
		zap.Int("workers", o.workers))

	// 3. Extract and chunk on the worker pool
	chunks, err := o.extractAll(ctx, docs, opts.NoCache, report)
	report.TotalChunks = len(chunks)
	report.Sort()
	if err != nil {
		return report, err
	}
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: no text could be chunked in %s", domain.ErrNothingToIndex, opts.SourceDir)
	}

	// 4. Resolve the embedding provider once
	resolved, err := o.resolver.Resolve(ctx, opts.Embedding)
	if err != nil {
		return report, fmt.Errorf("resolve embedding provider: %w", err)
	}
	defer resolved.Service.Close()
	report.Provider = resolved.Provider.String()
	report.Model = resolved.Model

	dims, err := probeDimensions(ctx, resolved.Service, chunks[0].Content)
	if err != nil {
		return report, err
	}

	// 5. Confirm the collection
	collection := domain.Collection{
		Name:       domain.CollectionName(opts.Collection, o.prefix, resolved.Provider.String(), resolved.Model),
		Provider:   resolved.Provider.String(),
		Model:      resolved.Model,
		Dimensions: dims,
	}
	report.Collection = collection.Name
	if err := o.store.EnsureCollection(ctx, collection); err != nil {
		return report, fmt.Errorf("collection %s: %w", collection.Name, err)
	}

	// 6. Write through the single writer
	stats, err := o.writer.Write(ctx, collection.Name, resolved.Service, chunks)
	report.Write = stats
	if err != nil {
		return report, fmt.Errorf("write %s: %w", collection.Name, err)
	}

	o.log.Info("ingestion complete",
		zap.String("collection", collection.Name),
		zap.Int("processed", len(report.Processed)),
		zap.Int("errors", len(report.Errors)),
		zap.Int("chunks", report.TotalChunks),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return report, nil
}

// extractAll fans documents out to the pool and collects their chunks on
// the calling goroutine. Chunks are returned grouped by source in source
// order, each group in document order.
func (o *IngestionOrchestrator) extractAll(
	ctx context.Context,
	docs []domain.SourceDocument,
	noCache bool,
	report *domain.IngestionReport,
) ([]domain.Chunk, error) {
	results := make(chan docResult)
	var halted atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	go func() {
		defer close(results)
		for _, doc := range docs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- o.runDocument(gctx, doc, noCache, &halted)
				return nil
			})
		}
		_ = g.Wait()
	}()

	var storeErr error
	bySource := make(map[string][]domain.Chunk)
	for r := range results {
		source := r.doc.Stem()
		switch {
		case r.notStarted:
			report.Skipped = append(report.Skipped, domain.SkippedDocument{Source: source, Reason: skipStoreDown})
		case r.err != nil && domain.KindOf(r.err) == domain.KindStore:
			if storeErr == nil {
				storeErr = r.err
			}
			report.AddError(source, r.err)
		case r.err != nil && errors.Is(r.err, context.Canceled):
			report.AddError(source, r.err)
		case r.err != nil:
			o.log.Warn("document failed", zap.String("source", source), zap.Error(r.err))
			report.AddError(source, r.err)
		default:
			report.Processed = append(report.Processed, source)
			report.AddSections(source, r.chunks)
			report.OCRPages += r.ocrPages
			bySource[source] = append(bySource[source], r.chunks...)
			o.log.Debug("document chunked",
				zap.String("source", source),
				zap.Int("chunks", len(r.chunks)),
				zap.Bool("cached", r.cached))
		}
	}

	if storeErr != nil {
		o.log.Error("vector store unavailable, stopped starting new documents", zap.Error(storeErr))
		return nil, storeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var chunks []domain.Chunk
	for _, s := range sources {
		chunks = append(chunks, bySource[s]...)
	}
	return chunks, nil
}

// runDocument checks the store before starting doc. A failed check halts
// every document not yet started.
func (o *IngestionOrchestrator) runDocument(
	ctx context.Context,
	doc domain.SourceDocument,
	noCache bool,
	halted *atomic.Bool,
) docResult {
	if halted.Load() {
		return docResult{doc: doc, notStarted: true}
	}
	if err := ctx.Err(); err != nil {
		return docResult{doc: doc, err: err}
	}
	if err := o.store.Ping(ctx); err != nil {
		halted.Store(true)
		return docResult{doc: doc, err: err}
	}
	return o.processDocument(ctx, doc, noCache)
}

// processDocument converts, extracts, normalises and chunks one document.
// Extraction is skipped when noCache is off and a sidecar artifact exists
// that is not older than the source.
func (o *IngestionOrchestrator) processDocument(ctx context.Context, doc domain.SourceDocument, noCache bool) docResult {
	result := docResult{doc: doc}
	sidecar := doc.SidecarPath()

	normalised, cached := "", false
	if !noCache && sidecarFresh(sidecar, doc.Path) {
		text, ok, err := o.normaliser.LoadSidecar(sidecar)
		if err != nil {
			o.log.Warn("ignoring unreadable sidecar", zap.String("source", doc.Stem()), zap.Error(err))
		}
		normalised, cached = text, ok && err == nil
	}

	if !cached {
		pdfPath, err := o.converter.ToPDF(ctx, doc)
		if err != nil {
			result.err = err
			return result
		}
		doc.PDFPath = pdfPath

		pages, err := o.extractor.Extract(ctx, pdfPath)
		if err != nil {
			result.err = err
			return result
		}
		normalised = o.normaliser.Render(pages)

		if err := o.normaliser.SaveSidecar(sidecar, normalised); err != nil {
			o.log.Warn("sidecar not written", zap.String("source", doc.Stem()), zap.Error(err))
		}
	}

	result.cached = cached
	result.ocrPages = o.normaliser.OCRPages(normalised)
	result.chunks = o.chunker.Chunk(normalised, doc.Stem())
	return result
}

// sidecarFresh reports whether the sidecar exists and was written no
// earlier than the source was last modified.
func sidecarFresh(sidecar, source string) bool {
	sc, err := os.Stat(sidecar)
	if err != nil {
		return false
	}
	src, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !sc.ModTime().Before(src.ModTime())
}

// probeDimensions returns the provider's vector size, embedding sample
// when the provider does not know it up front.
func probeDimensions(ctx context.Context, svc driven.EmbeddingService, sample string) (int, error) {
	if dims := svc.Dimensions(); dims > 0 {
		return dims, nil
	}
	v, err := svc.Embed(ctx, sample)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: empty probe embedding", domain.ErrEmbeddingFailed)
	}
	return len(v), nil
}

// discover lists accepted files directly inside dir in lexicographic
// order, keeping one file per stem: a .docx wins over a .doc, and any
// office file wins over the PDF it converts to.
func discover(dir string) ([]domain.SourceDocument, []domain.SkippedDocument, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, dir)
		}
		return nil, nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var candidates []domain.SourceDocument
	// office maps a stem to the best office format seen for it.
	office := make(map[string]domain.Format)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		doc, err := domain.NewSourceDocument(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if doc.Format.IsOffice() && office[doc.Stem()] != domain.FormatDOCX {
			office[doc.Stem()] = doc.Format
		}
		candidates = append(candidates, doc)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })

	var (
		docs    []domain.SourceDocument
		skipped []domain.SkippedDocument
		kept    = make(map[string]bool)
	)
	for _, doc := range candidates {
		stem := doc.Stem()
		best, hasOffice := office[stem]
		reason := ""
		switch {
		case doc.Format == domain.FormatPDF && hasOffice:
			reason = skipOfficeOriginal
		case doc.Format.IsOffice() && doc.Format != best:
			reason = skipOlderFormat
		case kept[stem]:
			// Extensions differing only in case, e.g. a.pdf and a.PDF.
			reason = skipSameName
		}
		if reason != "" {
			skipped = append(skipped, domain.SkippedDocument{Source: filepath.Base(doc.Path), Reason: reason})
			continue
		}
		kept[stem] = true
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}
