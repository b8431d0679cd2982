package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		prefix   string
		provider string
		model    string
		want     string
	}{
		{"explicit wins", "mi-coleccion", "x", "ollama", "nomic-embed-text", "mi-coleccion"},
		{"derived", "", "licitaciones", "openai", "text-embedding-3-small", "licitaciones-openai-text-embedding-3-small"},
		{"colons replaced", "", "licitaciones", "ollama", "nomic-embed-text:latest", "licitaciones-ollama-nomic-embed-text_latest"},
		{"default prefix", "", "", "gemini", "text-embedding-004", "licitaciones-gemini-text-embedding-004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionName(tt.explicit, tt.prefix, tt.provider, tt.model))
		})
	}
}

func TestCollectionName_DistinctProvidersNeverCollide(t *testing.T) {
	a := CollectionName("", "", "ollama", "m")
	b := CollectionName("", "", "openai", "m")
	assert.NotEqual(t, a, b)
}

func TestCollection_Compatible(t *testing.T) {
	c := Collection{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768}

	assert.True(t, c.Compatible(Collection{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768}))
	assert.True(t, c.Compatible(Collection{Provider: "ollama", Model: "nomic-embed-text"}))
	assert.False(t, c.Compatible(Collection{Provider: "ollama", Model: "nomic-embed-text", Dimensions: 1024}))
	assert.False(t, c.Compatible(Collection{Provider: "openai", Model: "nomic-embed-text", Dimensions: 768}))
	assert.False(t, c.Compatible(Collection{Provider: "ollama", Model: "mxbai-embed-large", Dimensions: 768}))
}
