package mcp

import (
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Search runs similarity search over a collection.
	Search driving.SearchService

	// Collections lists collections. Optional; without it the
	// list_collections tool and collection resources return empty results.
	Collections driving.CollectionService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
