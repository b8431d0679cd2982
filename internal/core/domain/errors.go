package domain

import (
	"context"
	"errors"
)

// Domain errors classify pipeline failures.
// Adapters wrap these with fmt.Errorf("%w: ...") so callers can use errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates a missing or rejected credential, or an
	// invalid setting.
	// It is fatal to provider resolution; nothing is written.
	ErrConfiguration = errors.New("configuration error")

	// Document-scoped errors. These are recorded in the report and
	// never abort the folder.

	// ErrUnsupportedFormat indicates a file extension the pipeline cannot accept.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFileNotFound indicates the input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrConversion indicates the document converter failed or produced no output.
	ErrConversion = errors.New("conversion failed")

	// ErrExtraction indicates neither embedded text nor recognition yielded text.
	ErrExtraction = errors.New("extraction failed")

	// ErrToolNotFound indicates a required external binary is not installed.
	ErrToolNotFound = errors.New("external tool not found")

	// Run-scoped errors.

	// ErrProviderUnavailable indicates the explicitly requested local
	// inference service cannot be reached.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidProvider indicates an unrecognised provider or mode name.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrEmbeddingFailed indicates the provider rejected or failed an embedding request.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrPersistence indicates a write to the vector store failed.
	// Batched failures are recovered by per-item writes.
	ErrPersistence = errors.New("persistence error")

	// ErrDuplicate indicates the record already exists in the collection.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStoreUnavailable indicates the vector store cannot be reached.
	// It aborts the run and stops new documents from starting.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrCollectionMismatch indicates a collection already holds vectors
	// from a different model or dimension.
	ErrCollectionMismatch = errors.New("collection provider mismatch")

	// ErrNothingToIndex indicates a run found no processable files or no chunks.
	ErrNothingToIndex = errors.New("nothing to index")
)

// ErrorKind is the coarse classification of an error.
type ErrorKind string

// Error kinds, from most to least specific scope.
const (
	KindNone          ErrorKind = ""
	KindDocument      ErrorKind = "document"
	KindConfiguration ErrorKind = "configuration"
	KindProvider      ErrorKind = "provider"
	KindDuplicate     ErrorKind = "duplicate"
	KindPersistence   ErrorKind = "persistence"
	KindStore         ErrorKind = "store"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

// IsRunScoped returns true if errors of this kind abort the whole run.
func (k ErrorKind) IsRunScoped() bool {
	switch k {
	case KindConfiguration, KindProvider, KindStore, KindCanceled:
		return true
	default:
		return false
	}
}

// KindOf classifies err. It returns KindNone for a nil error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrStoreUnavailable):
		return KindStore
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrInvalidProvider),
		errors.Is(err, ErrCollectionMismatch):
		return KindConfiguration
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrEmbeddingFailed):
		return KindProvider
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrFileNotFound),
		errors.Is(err, ErrConversion), errors.Is(err, ErrExtraction),
		errors.Is(err, ErrToolNotFound):
		return KindDocument
	default:
		return KindUnknown
	}
}
