// Package text canonicalises extracted document text and manages the
// page-marked sidecar artifact.
//
// The output of Normalise must be byte-stable across runs: chunk identity
// is derived from it.
package text

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

var (
	hyphenBreak     = regexp.MustCompile(`([\p{L}\p{N}_])-\n([\p{L}\p{N}_])`)
	trailingSpace   = regexp.MustCompile(`[ \t]+\n`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
	repeatedBlanks  = regexp.MustCompile(`[ \t]{2,}`)
	pageMarker      = regexp.MustCompile(`=== PAGE (\d+)( \(OCR\))? ===`)
	ocrMarkerSuffix = " (OCR)"
)

// Normalise applies, in order: NFC composition, de-hyphenation across line
// breaks, trailing whitespace removal, newline run collapsing and blank run
// collapsing. Page markers are left intact.
func Normalise(s string) string {
	s = norm.NFC.String(s)
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	s = repeatedBlanks.ReplaceAllString(s, " ")
	return s
}

// Marker returns the page boundary marker line for p, without newlines.
func Marker(p domain.Page) string {
	suffix := ""
	if p.OCRUsed {
		suffix = ocrMarkerSuffix
	}
	return "=== PAGE " + strconv.Itoa(p.Number) + suffix + " ==="
}

// RenderPages concatenates pages in order, each prefixed by
// "\n=== PAGE n ===\n" or "\n=== PAGE n (OCR) ===\n".
func RenderPages(pages []domain.Page) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString("\n")
		b.WriteString(Marker(p))
		b.WriteString("\n")
		b.WriteString(p.Text)
	}
	return b.String()
}

// FirstPage returns the number of the first page marker in s.
func FirstPage(s string) (int, bool) {
	m := pageMarker.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// CountOCRPages returns how many page markers in s are tagged (OCR).
func CountOCRPages(s string) int {
	count := 0
	for _, m := range pageMarker.FindAllStringSubmatch(s, -1) {
		if m[2] != "" {
			count++
		}
	}
	return count
}
