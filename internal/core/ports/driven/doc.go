// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - CommandRunner: Runs external binaries under a timeout
//   - FormatConverter: Produces the canonical PDF for a source document
//   - TextExtractor: Extracts per-page text with OCR fallback
//   - OCREngine: Recognises text on a rasterised page
//   - EmbeddingService: Turns text into vectors
//   - EmbeddingResolver: Selects and validates an EmbeddingService
//   - VectorStore: Durable collections of chunks and vectors
//   - ConfigStore: Configuration file persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
