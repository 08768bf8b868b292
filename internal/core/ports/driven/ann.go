package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// ANNIndex is an optional approximate-nearest-neighbour backend.
// Each embedding model gets its own index scope (a Qdrant collection),
// so an index only ever covers vectors of one dimension and metric.
//
// When configured, the pipeline mirrors stored embeddings into the
// index and the searcher uses it for the semantic branch instead of
// the SQLite scan.
type ANNIndex interface {
	VectorSearcher

	// EnsureModel creates the index scope for a model if missing.
	EnsureModel(ctx context.Context, info domain.ModelInfo) error

	// Upsert mirrors one embedding, with enough document payload to
	// push filters down to the backend.
	Upsert(ctx context.Context, emb domain.Embedding, doc domain.Document) error

	// DeleteByDocument removes all points for a document across all
	// model scopes.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Close releases resources.
	Close() error
}
