package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a document with the same source ID already
	// exists and the caller asked for the reject-duplicate policy.
	ErrConflict = errors.New("source already ingested")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation indicates an enrichment result failed schema validation.
	// Recovered locally by falling back to base metadata.
	ErrValidation = errors.New("metadata validation failed")

	// ErrExternalService indicates an external collaborator call
	// (extraction, enrichment, embedding, summarisation) failed or timed out.
	ErrExternalService = errors.New("external service failed")

	// ErrUnknownModel indicates an embedding model is not registered.
	// Every vector operation must name a registered model.
	ErrUnknownModel = errors.New("unknown embedding model")

	// ErrDimensionMismatch indicates a vector's length does not match
	// the registered dimension for its model.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNoContent indicates text extraction produced nothing to index.
	// Fatal for the item: a document without text cannot be ingested.
	ErrNoContent = errors.New("no extractable content")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector/semantic search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrSearchUnavailable indicates no search backend is configured.
	ErrSearchUnavailable = errors.New("search backend unavailable")
)
