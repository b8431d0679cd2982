package domain

import (
	"path/filepath"
	"strings"
)

// Format is the original format of a source document.
type Format string

// Accepted input formats.
const (
	FormatPDF  Format = "pdf"
	FormatDOC  Format = "doc"
	FormatDOCX Format = "docx"
)

// FormatFromPath returns the format implied by the file extension.
// The second value is false for extensions the pipeline does not accept.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, true
	case ".doc":
		return FormatDOC, true
	case ".docx":
		return FormatDOCX, true
	default:
		return "", false
	}
}

// IsOffice returns true for formats that need conversion to PDF.
func (f Format) IsOffice() bool {
	return f == FormatDOC || f == FormatDOCX
}

// SourceDocument is a tender file discovered in the input folder.
type SourceDocument struct {
	// Path is the filesystem path of the original file.
	Path string

	// Format is the original format.
	Format Format

	// PDFPath is the canonical page-oriented representation.
	// Empty until the document has been normalised.
	PDFPath string
}

// NewSourceDocument builds a SourceDocument for path.
// It returns ErrUnsupportedFormat for extensions other than pdf, doc and docx.
func NewSourceDocument(path string) (SourceDocument, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return SourceDocument{}, ErrUnsupportedFormat
	}
	return SourceDocument{Path: path, Format: format}, nil
}

// Stem is the file name without directory and extension.
// It is the stable source label attached to every chunk.
func (d SourceDocument) Stem() string {
	return Stem(d.Path)
}

// SidecarPath is the cached normalised text artifact next to the source.
func (d SourceDocument) SidecarPath() string {
	return strings.TrimSuffix(d.Path, filepath.Ext(d.Path)) + ".txt"
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Page is the extracted text of one page of a canonical PDF.
type Page struct {
	// Number is the 1-based page index.
	Number int

	// Text is the raw extracted or recognised text.
	Text string

	// OCRUsed is true when Text came from optical recognition.
	OCRUsed bool
}
