// Package tesseract recognises scanned PDF pages by rasterising them with
// pdftoppm (Poppler) and running tesseract on the image.
package tesseract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

const (
	// DefaultDPI is the rasterisation resolution.
	DefaultDPI = 300

	// DefaultLanguages is the bilingual recognition model.
	DefaultLanguages = "spa+eng"
)

// Ensure Engine implements the interface.
var _ driven.OCREngine = (*Engine)(nil)

// Engine is an OCREngine backed by pdftoppm and tesseract.
type Engine struct {
	runner    driven.CommandRunner
	dpi       int
	languages string
	log       *zap.Logger

	healthMu sync.Mutex
	healthy  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDPI sets the rasterisation resolution.
func WithDPI(dpi int) Option {
	return func(e *Engine) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithLanguages sets the tesseract language list, e.g. "spa+eng".
func WithLanguages(langs string) Option {
	return func(e *Engine) {
		if langs != "" {
			e.languages = langs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = logger.OrNop(l)
	}
}

// New creates an Engine.
func New(runner driven.CommandRunner, opts ...Option) *Engine {
	e := &Engine{
		runner:    runner,
		dpi:       DefaultDPI,
		languages: DefaultLanguages,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InstallInstructions returns how to install the recognition tools.
func InstallInstructions() string {
	return `OCR requires Poppler (pdftoppm) and Tesseract with Spanish and English models.

Install with:
  macOS:  brew install poppler tesseract tesseract-lang
  Ubuntu: sudo apt install poppler-utils tesseract-ocr tesseract-ocr-spa
  Fedora: sudo dnf install poppler-utils tesseract tesseract-langpack-spa`
}

// Healthy checks the binaries and language models. A passing check is
// remembered; a failing one is repeated on the next call.
func (e *Engine) Healthy(ctx context.Context) error {
	e.healthMu.Lock()
	defer e.healthMu.Unlock()
	if e.healthy {
		return nil
	}
	if err := e.check(ctx); err != nil {
		e.log.Warn("ocr unavailable", zap.Error(err))
		return err
	}
	e.healthy = true
	return nil
}

func (e *Engine) check(ctx context.Context) error {
	for _, bin := range []string{"pdftoppm", "tesseract"} {
		if _, err := e.runner.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrToolNotFound, bin)
		}
	}

	out, err := e.runner.Run(ctx, "tesseract", "--list-langs")
	if err != nil {
		return fmt.Errorf("listing tesseract languages: %w", err)
	}
	installed := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		installed[strings.TrimSpace(line)] = true
	}
	for _, lang := range strings.Split(e.languages, "+") {
		if !installed[lang] {
			return fmt.Errorf("%w: tesseract language %q", domain.ErrToolNotFound, lang)
		}
	}
	return nil
}

// RecognisePage rasterises one page and returns the recognised text.
func (e *Engine) RecognisePage(ctx context.Context, pdfPath string, page int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "tender-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	n := strconv.Itoa(page)
	if _, err := e.runner.Run(ctx, "pdftoppm",
		"-png", "-r", strconv.Itoa(e.dpi),
		"-f", n, "-l", n, "-singlefile",
		pdfPath, prefix,
	); err != nil {
		return "", fmt.Errorf("rasterising page %d: %w", page, err)
	}

	out, err := e.runner.Run(ctx, "tesseract", prefix+".png", "stdout", "-l", e.languages)
	if err != nil {
		return "", fmt.Errorf("recognising page %d: %w", page, err)
	}
	return strings.TrimSpace(string(out)), nil
}
