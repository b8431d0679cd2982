// Package domain defines the core entities of the tender ingestion pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceDocument: A tender file discovered in the input folder
//   - Page: Extracted text of one page, possibly recognised optically
//   - Chunk: A section-tagged fragment of normalised text
//   - Collection: A named partition of the vector store
//   - IngestionReport: The per-run aggregate
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
package domain
