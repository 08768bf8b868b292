package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// SearchHit is one candidate from either search branch, in rank order.
type SearchHit struct {
	// EmbeddingID is the matched embedding.
	EmbeddingID string

	// DocumentID is the embedding's owner.
	DocumentID string

	// Score is the backend's native score (similarity or bm25).
	// Fusion uses rank positions, not this value.
	Score float64
}

// VectorSearchRequest asks for the nearest embeddings under one model.
type VectorSearchRequest struct {
	// Model selects the vector space (and therefore the index).
	Model string

	// Vector is the embedded query text.
	Vector []float32

	// Types optionally restricts the searched aspects.
	Types []domain.EmbeddingType

	// Filters restrict candidates before ranking.
	Filters domain.Filters

	// Limit is the candidate window size.
	Limit int
}

// KeywordSearchRequest asks for the best full-text matches.
type KeywordSearchRequest struct {
	// MatchQuery is the prepared full-text expression.
	MatchQuery string

	// Types optionally restricts the searched aspects.
	Types []domain.EmbeddingType

	// Filters restrict candidates before ranking.
	Filters domain.Filters

	// Limit is the candidate window size.
	Limit int
}

// VectorSearcher executes the semantic branch of a hybrid query.
// Implemented by the SQLite store (model-scoped scan) and by the
// Qdrant adapter (one collection per model).
type VectorSearcher interface {
	VectorSearch(ctx context.Context, req VectorSearchRequest) ([]SearchHit, error)
}

// KeywordSearcher executes the full-text branch of a hybrid query.
// Backed by SQLite FTS5 over embedding content.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, req KeywordSearchRequest) ([]SearchHit, error)
}
