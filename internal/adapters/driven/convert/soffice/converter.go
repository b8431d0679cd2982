// Package soffice converts office documents to PDF with a headless
// LibreOffice instance.
package soffice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// DefaultBinary is the converter executable looked up on PATH.
const DefaultBinary = "soffice"

// Ensure Converter implements the interface.
var _ driven.FormatConverter = (*Converter)(nil)

// Converter produces canonical PDFs for tender documents.
type Converter struct {
	runner driven.CommandRunner
	binary string
	log    *zap.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithBinary overrides the converter executable name or path.
func WithBinary(bin string) Option {
	return func(c *Converter) {
		if bin != "" {
			c.binary = bin
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		c.log = logger.OrNop(l)
	}
}

// New creates a Converter that runs commands through runner.
func New(runner driven.CommandRunner, opts ...Option) *Converter {
	c := &Converter{runner: runner, binary: DefaultBinary, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InstallInstructions returns how to install the converter.
func InstallInstructions() string {
	return `LibreOffice is required to convert .doc/.docx files.

Install with:
  macOS:  brew install --cask libreoffice
  Ubuntu: sudo apt install libreoffice-writer
  Fedora: sudo dnf install libreoffice-writer

Set SOFFICE_BIN if the binary is not on PATH.`
}

// CheckAvailable returns domain.ErrToolNotFound if the converter is missing.
func (c *Converter) CheckAvailable() error {
	if _, err := c.runner.LookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrToolNotFound, c.binary)
	}
	return nil
}

// ToPDF returns a PDF path for doc. PDFs pass through unchanged. Office
// files are converted into the source directory; an existing PDF with the
// same stem that is newer than the source is reused. Each conversion runs
// with its own throwaway LibreOffice profile.
func (c *Converter) ToPDF(ctx context.Context, doc domain.SourceDocument) (string, error) {
	srcInfo, err := os.Stat(doc.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrFileNotFound, doc.Path)
		}
		return "", fmt.Errorf("stat %s: %w", doc.Path, err)
	}

	format, ok := domain.FormatFromPath(doc.Path)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(doc.Path))
	}
	if format == domain.FormatPDF {
		return doc.Path, nil
	}

	outDir := filepath.Dir(doc.Path)
	outPath := filepath.Join(outDir, doc.Stem()+".pdf")

	if info, err := os.Stat(outPath); err == nil && !info.ModTime().Before(srcInfo.ModTime()) {
		c.log.Debug("reusing converted pdf", zap.String("source", doc.Stem()), zap.String("pdf", outPath))
		return outPath, nil
	}

	profile, err := os.MkdirTemp("", "tender-soffice-*")
	if err != nil {
		return "", fmt.Errorf("%w: creating profile dir: %w", domain.ErrConversion, err)
	}
	defer os.RemoveAll(profile)

	c.log.Debug("converting to pdf", zap.String("source", doc.Stem()), zap.String("binary", c.binary))
	out, err := c.runner.Run(ctx, c.binary,
		"-env:UserInstallation="+profileURL(profile),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		doc.Path,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrConversion, filepath.Base(doc.Path), err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("%w: %s produced no output: %s",
			domain.ErrConversion, c.binary, strings.TrimSpace(string(out)))
	}
	return outPath, nil
}

// profileURL renders dir as the file URL LibreOffice expects.
func profileURL(dir string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String()
}
