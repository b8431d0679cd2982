package domain

import (
	"strings"
	"time"
)

// DefaultCollectionPrefix is prepended to derived collection names.
const DefaultCollectionPrefix = "licitaciones"

// Collection is a named partition of the vector store bound to exactly
// one provider and embedding model.
type Collection struct {
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}

// CollectionName returns explicit verbatim when set. Otherwise it derives
// <prefix>-<provider>-<model> with colons in the model replaced by
// underscores, so distinct provider/model pairs never share a collection.
func CollectionName(explicit, prefix, provider, model string) string {
	if explicit != "" {
		return explicit
	}
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}
	return prefix + "-" + provider + "-" + strings.ReplaceAll(model, ":", "_")
}

// Compatible reports whether other can be written into c.
// Dimensions of zero mean unknown and match anything.
func (c Collection) Compatible(other Collection) bool {
	if c.Provider != other.Provider || c.Model != other.Model {
		return false
	}
	if c.Dimensions == 0 || other.Dimensions == 0 {
		return true
	}
	return c.Dimensions == other.Dimensions
}
