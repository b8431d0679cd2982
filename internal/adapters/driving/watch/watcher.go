// Package watch re-runs ingestion when tender documents in a folder change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// DefaultDebounce is the quiet period after the last relevant event before
// ingestion is re-run. Office conversion writes files in several steps.
const DefaultDebounce = 2 * time.Second

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("watcher is closed")

// ReportFunc receives the outcome of every ingestion run.
type ReportFunc func(report *domain.IngestionReport, err error)

// Watcher runs ingestion once and again after every burst of changes.
type Watcher struct {
	service  driving.IngestionService
	opts     driving.IngestOptions
	debounce time.Duration
	onReport ReportFunc
	log      *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReportFunc sets the callback invoked after each run.
func WithReportFunc(fn ReportFunc) Option {
	return func(w *Watcher) {
		w.onReport = fn
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(w *Watcher) {
		w.log = logger.OrNop(log)
	}
}

// New creates a watcher for opts.SourceDir.
func New(service driving.IngestionService, opts driving.IngestOptions, options ...Option) *Watcher {
	w := &Watcher{
		service:  service,
		opts:     opts,
		debounce: DefaultDebounce,
		onReport: func(*domain.IngestionReport, error) {},
		log:      zap.NewNop(),
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Run ingests the folder, then blocks re-ingesting on changes until ctx is
// done. Only the first run honours opts.Reset. Run-scoped failures of later
// runs are passed to the report callback and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.opts.SourceDir)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrFileNotFound, w.opts.SourceDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, w.opts.SourceDir)
	}

	fsw, err := w.open()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.opts.SourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.opts.SourceDir, err)
	}

	w.ingest(ctx, w.opts)

	next := w.opts
	next.Reset = false

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			w.ingest(ctx, next)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) open() (*fsnotify.Watcher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.watcher == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		w.watcher = fsw
	}
	return w.watcher, nil
}

func (w *Watcher) ingest(ctx context.Context, opts driving.IngestOptions) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.service.Ingest(ctx, opts)
	switch {
	case err == nil:
		w.log.Info("ingestion finished",
			zap.Int("processed", len(report.Processed)),
			zap.Int("errored", len(report.Errors)),
			zap.Int("chunks", report.TotalChunks))
	case errors.Is(err, domain.ErrNothingToIndex):
		w.log.Info("nothing to index", zap.String("dir", opts.SourceDir))
	default:
		w.log.Error("ingestion failed", zap.Error(err))
	}
	w.onReport(report, err)
}

// relevant reports whether event should trigger a new run: a create or write
// of an accepted, visible file. A PDF next to an office file of the same stem
// is the converter's own output and is ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	format, ok := domain.FormatFromPath(event.Name)
	if !ok {
		return false
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return false
	}
	if format == domain.FormatPDF && hasOfficeSibling(event.Name) {
		return false
	}
	return true
}

func hasOfficeSibling(pdfPath string) bool {
	stem := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath))
	for _, ext := range []string{".docx", ".doc", ".DOCX", ".DOC"} {
		if _, err := os.Stat(stem + ext); err == nil {
			return true
		}
	}
	return false
}
