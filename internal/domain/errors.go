package domain

import "errors"

var (
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrEmptyCollection signals a collection with no documents.
	ErrEmptyCollection = errors.New("collection has no documents")
	// ErrEmptyQuery signals a query with no extractable terms after normalization.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrInvalidTopK signals a non-positive top_k.
	ErrInvalidTopK = errors.New("top_k must be positive")
	// ErrIndexNotBuilt signals a search against a missing or empty vector index.
	ErrIndexNotBuilt = errors.New("vector index not built")
	// ErrTaskNotFound signals an unknown query task identifier.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEmbeddingProviderError signals an unreachable or failing embedding backend.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals an unreachable or failing generation backend.
	ErrGenerationProviderError = errors.New("generation provider error")
)
