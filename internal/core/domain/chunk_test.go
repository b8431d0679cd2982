package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_ID_Deterministic(t *testing.T) {
	c := Chunk{Content: "El contratista deberá presentar garantías.", Source: "pliego", Section: "GARANTÍAS"}

	assert.Equal(t, c.ID(), c.ID())
	assert.Len(t, c.ID(), 40)
}

func TestChunk_ID_IgnoresPage(t *testing.T) {
	page := 3
	a := Chunk{Content: "texto", Source: "pliego", Section: SectionGeneral}
	b := Chunk{Content: "texto", Source: "pliego", Section: SectionGeneral, Page: &page}

	assert.Equal(t, a.ID(), b.ID())
}

func TestChunk_ID_ChangesWithEachField(t *testing.T) {
	base := Chunk{Content: "texto", Source: "pliego", Section: SectionGeneral}

	tests := []struct {
		name  string
		chunk Chunk
	}{
		{"content", Chunk{Content: "texto.", Source: "pliego", Section: SectionGeneral}},
		{"source", Chunk{Content: "texto", Source: "pliego2", Section: SectionGeneral}},
		{"section", Chunk{Content: "texto", Source: "pliego", Section: "PLAZOS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base.ID(), tt.chunk.ID())
		})
	}
}

func TestChunk_ID_SeparatorIsUnambiguous(t *testing.T) {
	a := Chunk{Source: "ab", Section: "c", Content: "d"}
	b := Chunk{Source: "a", Section: "bc", Content: "d"}

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestChunk_PageNumber(t *testing.T) {
	page := 7
	assert.Equal(t, 0, Chunk{}.PageNumber())
	assert.Equal(t, 7, Chunk{Page: &page}.PageNumber())
}

func TestNewRecord(t *testing.T) {
	c := Chunk{Content: "texto", Source: "pliego", Section: SectionGeneral}
	r := NewRecord(c, []float32{0.1, 0.2})

	assert.Equal(t, c.ID(), r.ID)
	assert.Equal(t, c, r.Chunk)
	assert.Equal(t, []float32{0.1, 0.2}, r.Vector)
}
