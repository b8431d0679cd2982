// Package pdf extracts per-page text from PDFs using Poppler's pdfinfo and
// pdftotext, falling back to optical recognition for sparse pages.
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// DefaultMinChars is the embedded-text length below which a page is
// sent to recognition.
const DefaultMinChars = 30

// ErrPDFToolNotFound indicates pdftotext or pdfinfo is not installed.
var ErrPDFToolNotFound = fmt.Errorf("%w: pdftotext/pdfinfo (poppler) not installed", domain.ErrToolNotFound)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor implements driven.TextExtractor.
type Extractor struct {
	runner   driven.CommandRunner
	ocr      driven.OCREngine
	minChars int
	log      *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR enables recognition of sparse pages.
func WithOCR(engine driven.OCREngine) Option {
	return func(e *Extractor) {
		e.ocr = engine
	}
}

// WithMinChars sets the recognition threshold.
func WithMinChars(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.minChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		e.log = logger.OrNop(l)
	}
}

// New creates an Extractor that runs Poppler through runner.
func New(runner driven.CommandRunner, opts ...Option) *Extractor {
	e := &Extractor{runner: runner, minChars: DefaultMinChars, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InstallInstructions returns how to install Poppler.
func InstallInstructions() string {
	return `pdftotext and pdfinfo (Poppler) are required for PDF extraction.

Install with:
  macOS:  brew install poppler
  Ubuntu: sudo apt install poppler-utils
  Fedora: sudo dnf install poppler-utils`
}

// CheckAvailable returns ErrPDFToolNotFound if Poppler is missing.
func (e *Extractor) CheckAvailable() error {
	for _, bin := range []string{"pdfinfo", "pdftotext"} {
		if _, err := e.runner.LookPath(bin); err != nil {
			return ErrPDFToolNotFound
		}
	}
	return nil
}

// Extract returns every page of pdfPath in order.
//
//nolint:gocyclo // linear per-page fallback chain
func (e *Extractor) Extract(ctx context.Context, pdfPath string) ([]domain.Page, error) {
	count, err := e.pageCount(ctx, pdfPath)
	if err != nil {
		return nil, err
	}

	ocrReady := false
	if e.ocr != nil {
		ocrReady = e.ocr.Healthy(ctx) == nil
	}

	pages := make([]domain.Page, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := e.pageText(ctx, pdfPath, n)
		if err != nil {
			e.log.Warn("pdftotext failed", zap.String("pdf", pdfPath), zap.Int("page", n), zap.Error(err))
			text = ""
		}

		page := domain.Page{Number: n, Text: text}
		if e.needsOCR(text) && ocrReady {
			recognised, err := e.ocr.RecognisePage(ctx, pdfPath, n)
			switch {
			case err != nil:
				e.log.Warn("ocr failed, keeping raw text",
					zap.String("pdf", pdfPath), zap.Int("page", n), zap.Error(err))
			case recognised != "":
				page.Text = recognised
				page.OCRUsed = true
			}
		}

		if strings.TrimSpace(page.Text) == "" {
			e.log.Debug("empty page", zap.String("pdf", pdfPath), zap.Int("page", n),
				zap.Error(domain.ErrExtraction))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// needsOCR reports whether text is shorter than the threshold.
func (e *Extractor) needsOCR(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) < e.minChars
}

func (e *Extractor) pageCount(ctx context.Context, pdfPath string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", pdfPath)
	if err != nil {
		return 0, fmt.Errorf("%w: pdfinfo failed: %w", domain.ErrExtraction, err)
	}
	n, err := parsePageCount(out)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	return n, nil
}

func (e *Extractor) pageText(ctx context.Context, pdfPath string, page int) (string, error) {
	n := strconv.Itoa(page)
	out, err := e.runner.Run(ctx, "pdftotext", "-f", n, "-l", n, "-enc", "UTF-8", pdfPath, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	// pdftotext ends every page with a form feed.
	return strings.TrimRight(string(out), "\f\n"), nil
}

// parsePageCount reads the "Pages:" line of pdfinfo output.
func parsePageCount(out []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("parsing page count %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("page count not found in pdfinfo output")
}
