package domain

import (
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
)

// SectionGeneral tags fragments that contain no known heading.
const SectionGeneral = "GENERAL"

// identitySeparator cannot appear in normalised text.
const identitySeparator = "\x1f"

// Chunk is the unit of indexing: a bounded fragment of normalised text.
type Chunk struct {
	// Content is the trimmed fragment text. Never empty.
	Content string `json:"content"`

	// Source is the stem of the originating document.
	Source string `json:"source"`

	// Section is a controlled-vocabulary heading tag or SectionGeneral.
	Section string `json:"section"`

	// Page is the first page marker found in the fragment, if any.
	Page *int `json:"page,omitempty"`
}

// ID returns the content-addressed identity of the chunk: the hex SHA-1
// of source, section and content joined by an unambiguous separator.
// Identical triples always yield the same identifier.
func (c Chunk) ID() string {
	h := sha1.New() //nolint:gosec // content addressing, not security
	h.Write([]byte(c.Source))
	h.Write([]byte(identitySeparator))
	h.Write([]byte(c.Section))
	h.Write([]byte(identitySeparator))
	h.Write([]byte(c.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// PageNumber returns the page or 0 when absent.
func (c Chunk) PageNumber() int {
	if c.Page == nil {
		return 0
	}
	return *c.Page
}

// Record is a chunk paired with its embedding, ready for persistence.
type Record struct {
	ID     string
	Chunk  Chunk
	Vector []float32
}

// NewRecord builds a Record keyed by the chunk identity.
func NewRecord(c Chunk, vector []float32) Record {
	return Record{ID: c.ID(), Chunk: c, Vector: vector}
}
