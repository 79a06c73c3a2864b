package types

import "fmt"

// ExtractionError means the source file could not be opened or parsed
// at all. Individual unreadable pages are skipped, not reported here.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ChunkingError covers an unknown chunking method or an unexpected
// failure inside a chunking run.
type ChunkingError struct {
	Method string
	Err    error
}

func (e *ChunkingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unknown chunking method: %s", e.Method)
	}
	return fmt.Sprintf("chunking (%s): %v", e.Method, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// EmbeddingError wraps a provider failure. A failed batch aborts the
// whole embedding stage; partial embeddings are never committed.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NotFoundError is returned when a referenced resource is missing or
// not owned by the caller. Surfaced, never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}
