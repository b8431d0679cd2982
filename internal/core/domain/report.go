package domain

import (
	"sort"
	"time"
)

// DocumentError records why a single source failed.
type DocumentError struct {
	Source string    `json:"source"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// SkippedDocument records a source that was deliberately not processed.
type SkippedDocument struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// WriteStats are the counts returned by the index writer.
type WriteStats struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add accumulates other into s.
func (s *WriteStats) Add(other WriteStats) {
	s.Written += other.Written
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// IngestionReport is the per-run aggregate. It is not persisted.
type IngestionReport struct {
	Collection  string              `json:"collection"`
	Provider    string              `json:"provider"`
	Model       string              `json:"model"`
	Processed   []string            `json:"processed"`
	Errors      []DocumentError     `json:"errors"`
	Skipped     []SkippedDocument   `json:"skipped,omitempty"`
	TotalChunks int                 `json:"total_chunks"`
	Sections    map[string][]string `json:"sections"`
	Write       WriteStats          `json:"write"`
	OCRPages    int                 `json:"ocr_pages"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
}

// NewIngestionReport creates an empty report.
func NewIngestionReport() *IngestionReport {
	return &IngestionReport{
		Processed: []string{},
		Errors:    []DocumentError{},
		Sections:  make(map[string][]string),
		StartedAt: time.Now(),
	}
}

// AddSections merges the section tags of chunks into the per-source set.
// Section lists are kept sorted and unique.
func (r *IngestionReport) AddSections(source string, chunks []Chunk) {
	seen := make(map[string]bool)
	for _, s := range r.Sections[source] {
		seen[s] = true
	}
	for i := range chunks {
		seen[chunks[i].Section] = true
	}
	sections := make([]string, 0, len(seen))
	for s := range seen {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	r.Sections[source] = sections
}

// AddError records a document-scoped failure.
func (r *IngestionReport) AddError(source string, err error) {
	r.Errors = append(r.Errors, DocumentError{
		Source: source,
		Kind:   KindOf(err),
		Reason: err.Error(),
	})
}

// Sort orders every list by source so reports are stable across runs
// regardless of worker scheduling.
func (r *IngestionReport) Sort() {
	sort.Strings(r.Processed)
	sort.Slice(r.Errors, func(i, j int) bool { return r.Errors[i].Source < r.Errors[j].Source })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].Source < r.Skipped[j].Source })
}

// Empty returns true when no chunk was produced.
func (r *IngestionReport) Empty() bool {
	return r.TotalChunks == 0
}
