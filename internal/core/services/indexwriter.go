package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// DefaultBatchSize is the number of chunks embedded and written per batch.
const DefaultBatchSize = 100

// action is the decision taken after a failed write.
type action int

const (
	// actionWritten means the item was persisted.
	actionWritten action = iota
	// actionSkip counts the item as skipped and continues.
	actionSkip
	// actionFail counts the item as failed and continues.
	actionFail
	// actionRetryItems retries every item of a batch individually.
	actionRetryItems
	// actionAbort stops the writer and returns the error.
	actionAbort
)

// fallbackPolicy maps a write error to the next step. Batched failures
// are retried item by item unless the error is run-scoped; individual
// duplicates are skipped, other individual failures are counted and
// the writer moves on.
func fallbackPolicy(err error, batched bool) action {
	if err == nil {
		return actionWritten
	}
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return actionAbort
	}
	switch domain.KindOf(err) {
	case domain.KindStore, domain.KindCanceled, domain.KindConfiguration:
		return actionAbort
	case domain.KindDuplicate:
		if batched {
			return actionRetryItems
		}
		return actionSkip
	default:
		if batched {
			return actionRetryItems
		}
		return actionFail
	}
}

// VectorIndexWriter embeds chunks and persists them into one collection.
// A writer is not safe for concurrent use.
type VectorIndexWriter struct {
	store     driven.VectorStore
	batchSize int
	log       *zap.Logger
}

// WriterOption configures a VectorIndexWriter.
type WriterOption func(*VectorIndexWriter)

// WithBatchSize sets the batch size. Values below 1 are ignored.
func WithBatchSize(n int) WriterOption {
	return func(w *VectorIndexWriter) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(w *VectorIndexWriter) {
		w.log = logger.OrNop(l)
	}
}

// NewVectorIndexWriter creates a writer for store.
func NewVectorIndexWriter(store driven.VectorStore, opts ...WriterOption) *VectorIndexWriter {
	w := &VectorIndexWriter{
		store:     store,
		batchSize: DefaultBatchSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BatchSize returns the configured batch size.
func (w *VectorIndexWriter) BatchSize() int {
	return w.batchSize
}

// Write embeds chunks with embedder and persists them into collection,
// then flushes the collection. Chunks repeating an identity already seen
// in this call are counted as skipped.
//
// The returned stats are valid even when an error aborts the write.
func (w *VectorIndexWriter) Write(
	ctx context.Context,
	collection string,
	embedder driven.EmbeddingService,
	chunks []domain.Chunk,
) (domain.WriteStats, error) {
	var stats domain.WriteStats

	unique := make([]domain.Chunk, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for i := range chunks {
		id := chunks[i].ID()
		if seen[id] {
			stats.Skipped++
			continue
		}
		seen[id] = true
		unique = append(unique, chunks[i])
	}

	for start := 0; start < len(unique); start += w.batchSize {
		end := min(start+w.batchSize, len(unique))
		batchStats, err := w.writeBatch(ctx, collection, embedder, unique[start:end])
		stats.Add(batchStats)
		if err != nil {
			return stats, err
		}
	}

	if err := w.store.Flush(ctx, collection); err != nil {
		return stats, fmt.Errorf("flush %s: %w", collection, err)
	}

	w.log.Debug("collection written",
		zap.String("collection", collection),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// writeBatch tries one embed plus upsert for batch and falls back to
// individual writes when the policy allows it.
func (w *VectorIndexWriter) writeBatch(
	ctx context.Context,
	collection string,
	embedder driven.EmbeddingService,
	batch []domain.Chunk,
) (domain.WriteStats, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingFailed, len(vectors), len(batch))
	}
	if err == nil {
		records := make([]domain.Record, len(batch))
		for i := range batch {
			records[i] = domain.NewRecord(batch[i], vectors[i])
		}
		err = w.store.UpsertBatch(ctx, collection, records)
		if err == nil {
			return domain.WriteStats{Written: len(batch)}, nil
		}
	} else {
		vectors = nil
	}

	if fallbackPolicy(err, true) == actionAbort {
		return domain.WriteStats{}, err
	}

	w.log.Warn("batched write failed, retrying items individually",
		zap.String("collection", collection),
		zap.Int("items", len(batch)),
		zap.Error(err))
	return w.writeItems(ctx, collection, embedder, batch, vectors)
}

// writeItems persists each chunk on its own. vectors may be nil, in which
// case every chunk is embedded individually.
func (w *VectorIndexWriter) writeItems(
	ctx context.Context,
	collection string,
	embedder driven.EmbeddingService,
	batch []domain.Chunk,
	vectors [][]float32,
) (domain.WriteStats, error) {
	var stats domain.WriteStats
	for i := range batch {
		err := w.writeItem(ctx, collection, embedder, batch[i], vectors, i)

		switch fallbackPolicy(err, false) {
		case actionWritten:
			stats.Written++
		case actionSkip:
			stats.Skipped++
		case actionAbort:
			return stats, err
		default:
			stats.Failed++
			w.log.Warn("chunk write failed",
				zap.String("source", batch[i].Source),
				zap.String("chunk", batch[i].ID()),
				zap.Error(err))
		}
	}
	return stats, nil
}

func (w *VectorIndexWriter) writeItem(
	ctx context.Context,
	collection string,
	embedder driven.EmbeddingService,
	c domain.Chunk,
	vectors [][]float32,
	i int,
) error {
	var vector []float32
	if vectors != nil {
		vector = vectors[i]
	} else {
		v, err := embedder.Embed(ctx, c.Content)
		if err != nil {
			return err
		}
		vector = v
	}
	return w.store.Insert(ctx, collection, domain.NewRecord(c, vector))
}
