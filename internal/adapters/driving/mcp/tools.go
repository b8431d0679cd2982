package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the text to find similar tender fragments for"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Collection string   `json:"collection,omitempty" jsonschema:"collection to search; empty selects the default"`
	Sections   []string `json:"sections,omitempty" jsonschema:"restrict results to these section tags, e.g. GARANTÍAS"`
	Sources    []string `json:"sources,omitempty" jsonschema:"restrict results to these source document names"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Section string  `json:"section"`
	Page    *int    `json:"page,omitempty"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// ListCollectionsInput is the empty input of the list_collections tool.
type ListCollectionsInput struct{}

// ListCollectionsOutput is the output schema for the list_collections tool.
type ListCollectionsOutput struct {
	Collections []CollectionOutput `json:"collections"`
}

// CollectionOutput describes one collection.
type CollectionOutput struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Count      int    `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over ingested tender documents. Returns ranked fragments with source, section and page.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_collections",
		Description: "List indexed collections with their embedding provider, model and fragment count",
	}, s.handleListCollections)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.SearchOptions{
		Collection: input.Collection,
		Limit:      input.Limit,
		Sections:   input.Sections,
		Sources:    input.Sources,
	}
	results, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		s.log.Warn("mcp search failed", zap.Error(err))
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			ID:      results[i].ID,
			Source:  results[i].Chunk.Source,
			Section: results[i].Chunk.Section,
			Page:    results[i].Chunk.Page,
			Score:   results[i].Score,
			Content: results[i].Chunk.Content,
		}
	}

	return nil, output, nil
}

// handleListCollections handles the list_collections tool invocation.
func (s *Server) handleListCollections(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListCollectionsInput,
) (*mcp.CallToolResult, ListCollectionsOutput, error) {
	output := ListCollectionsOutput{Collections: []CollectionOutput{}}
	if s.ports.Collections == nil {
		return nil, output, nil
	}

	collections, err := s.ports.Collections.List(ctx)
	if err != nil {
		return nil, ListCollectionsOutput{}, err
	}
	for _, c := range collections {
		output.Collections = append(output.Collections, toCollectionOutput(c))
	}
	return nil, output, nil
}

func toCollectionOutput(c domain.Collection) CollectionOutput {
	return CollectionOutput{
		Name:       c.Name,
		Provider:   c.Provider,
		Model:      c.Model,
		Dimensions: c.Dimensions,
		Count:      c.Count,
	}
}
