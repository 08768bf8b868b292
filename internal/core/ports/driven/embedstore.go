package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// EmbeddingStore persists embedding vectors. Embeddings are owned by a
// document and keyed by (document_id, chunk_index, embedding_type);
// Upsert replaces an existing aspect in place.
type EmbeddingStore interface {
	// Upsert stores or replaces one embedding.
	Upsert(ctx context.Context, emb *domain.Embedding) error

	// Get retrieves one embedding by surrogate key.
	Get(ctx context.Context, id string) (*domain.Embedding, error)

	// GetByDocument retrieves all embeddings for a document, ordered
	// by embedding type and chunk index.
	GetByDocument(ctx context.Context, documentID string) ([]domain.Embedding, error)

	// PruneChunks removes content-chunk embeddings with an index above
	// maxIndex. Used when a re-ingested document shrank.
	PruneChunks(ctx context.Context, documentID string, maxIndex int) error
}
