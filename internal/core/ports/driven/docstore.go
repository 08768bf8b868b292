package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// DocumentStore persists one record per ingested item.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// Add stores a document. When the document's SourceID is already
	// present, the policy decides: ConflictReject returns ErrConflict,
	// ConflictUpdate overwrites metadata in place and keeps the
	// existing ID. Returns the ID of the stored document.
	Add(ctx context.Context, doc *domain.Document, policy domain.ConflictPolicy) (string, error)

	// GetByID retrieves a document by surrogate key.
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// GetBySourceID retrieves a document by its natural key.
	GetBySourceID(ctx context.Context, sourceID string) (*domain.Document, error)

	// Delete removes a document and cascades to its embeddings.
	Delete(ctx context.Context, id string) error
}
