package driving

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// Searcher answers natural-language queries over the stores.
type Searcher interface {
	// Search plans, executes and fuses the two branches of a hybrid
	// query, returning a ranked, deduplicated result list.
	Search(ctx context.Context, q domain.Query) ([]domain.ResultItem, error)
}

// DocumentService exposes direct document operations.
type DocumentService interface {
	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// DeleteDocument removes a document, its embeddings, and its
	// entries in every index.
	DeleteDocument(ctx context.Context, id string) error
}
