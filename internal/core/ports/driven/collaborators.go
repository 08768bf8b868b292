package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// TextExtractor turns raw item bytes into plain text (OCR/parsing).
// Failure is fatal for the item: with no text there is nothing to index.
type TextExtractor interface {
	// Extract returns the plain text for the given bytes.
	Extract(ctx context.Context, raw []byte, mimeType string) (string, error)
}

// MetadataExtractor asks an LLM to populate the metadata schema from
// extracted text. The returned map is untyped; the pipeline validates
// it against the schema before trusting it.
type MetadataExtractor interface {
	Extract(ctx context.Context, text string, schema domain.Schema) (map[string]any, error)
}

// EmbeddingService generates vector embeddings from text.
//
// The model is an explicit per-call parameter: there is no ambient
// "current model", and the returned vector's length is a function of
// the model (validated against the ModelRegistry by callers).
type EmbeddingService interface {
	// Embed generates a vector for the text under the named model.
	Embed(ctx context.Context, text, model string) ([]float32, error)

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Summariser produces the optional "summary" aspect.
// This is an optional service - when nil, no summary aspect is generated.
type Summariser interface {
	Summarise(ctx context.Context, content string, maxLength int) (string, error)
}
