// Package chunker splits normalised tender text into bounded, overlapping,
// section-tagged fragments.
//
// Splitting is recursive and priority ordered: section and chapter headings,
// numbered clauses, all-caps heading lines, known tender headings, then
// blank lines, lines, sentences and words. A fragment is only split at a
// lower-priority separator when no higher one keeps it under the size bound.
package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
	"github.com/custodia-labs/tender-ingest/internal/normalisers/text"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1800

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

var (
	pageMarkerLine = regexp.MustCompile(`=== PAGE (\d+)(?: \(OCR\))? ===`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// Processor splits document text into section-aware chunks.
type Processor struct {
	chunkSize  int
	overlap    int
	separators []separator
	sections   []section
	log        *zap.Logger
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		p.log = logger.OrNop(l)
	}
}

// New creates a new chunker processor with the given options.
// Separator and section patterns are compiled once here.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: buildSeparators(),
		sections:   buildSections(),
		log:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "section-chunker"
}

// ChunkSize returns the configured maximum chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Chunk splits normalised text into ordered chunks labelled with source.
// Fragments holding nothing but page markers are dropped.
func (p *Processor) Chunk(normalised, source string) []domain.Chunk {
	fragments := p.Split(normalised)
	markers := pageMarkerLine.FindAllStringSubmatchIndex(normalised, -1)

	chunks := make([]domain.Chunk, 0, len(fragments))
	searchFrom := 0
	for _, frag := range fragments {
		offset := strings.Index(normalised[searchFrom:], frag)
		if offset >= 0 {
			offset += searchFrom
			searchFrom = offset + 1
		}

		if strings.TrimSpace(pageMarkerLine.ReplaceAllString(frag, "")) == "" {
			continue
		}

		chunk := domain.Chunk{
			Content: frag,
			Source:  source,
			Section: p.SectionOf(frag),
		}
		if n, ok := text.FirstPage(frag); ok {
			chunk.Page = &n
		} else if n, ok := pageAt(normalised, markers, offset); ok {
			chunk.Page = &n
		}
		chunks = append(chunks, chunk)
	}

	p.log.Debug("chunked document",
		zap.String("source", source),
		zap.Int("chars", utf8.RuneCountInString(normalised)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// SectionOf returns the canonical tag of the earliest known heading in s,
// or domain.SectionGeneral. A heading counts when it opens a line or is
// written in upper case.
func (p *Processor) SectionOf(s string) string {
	best, tag := -1, ""
	for _, sec := range p.sections {
		for _, re := range []*regexp.Regexp{sec.line, sec.upper} {
			loc := re.FindStringIndex(s)
			if loc == nil {
				continue
			}
			if best == -1 || loc[0] < best {
				best, tag = loc[0], sec.tag
			}
		}
	}
	if tag == "" {
		return domain.SectionGeneral
	}
	return strings.ToUpper(whitespaceRun.ReplaceAllString(tag, " "))
}

// Split returns the trimmed, non-empty fragments of s in reading order.
func (p *Processor) Split(s string) []string {
	return p.split(s, p.separators)
}

func (p *Processor) split(s string, seps []separator) []string {
	var (
		chosen = seps[len(seps)-1]
		rest   []separator
	)
	for i, sep := range seps {
		if sep.re.MatchString(s) {
			chosen, rest = sep, seps[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeep(s, chosen) {
		if runeLen(piece) < p.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, p.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			// Nothing left to split on; the piece is kept oversized.
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, p.split(piece, rest)...)
	}
	if len(good) > 0 {
		final = append(final, p.merge(good)...)
	}
	return final
}

// merge packs pieces into fragments of at most chunkSize characters,
// carrying up to overlap characters of trailing pieces into the next one.
func (p *Processor) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > p.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for len(current) > 0 && (total > p.overlap || total+n > p.chunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// pageAt returns the page of the last marker starting at or before offset.
func pageAt(s string, markers [][]int, offset int) (int, bool) {
	if offset < 0 || len(markers) == 0 {
		return 0, false
	}
	i := sort.Search(len(markers), func(i int) bool { return markers[i][0] > offset })
	if i == 0 {
		return 0, false
	}
	m := markers[i-1]
	return text.FirstPage(s[m[0]:m[1]])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
