package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmbeddingType names a document aspect that receives its own vector.
type EmbeddingType string

const (
	// EmbeddingTitle embeds the document title (chunk index 0).
	EmbeddingTitle EmbeddingType = "title"
	// EmbeddingSummary embeds a generated summary (chunk index 0).
	EmbeddingSummary EmbeddingType = "summary"
	// EmbeddingContentChunk embeds one content chunk (chunk index 1..N).
	EmbeddingContentChunk EmbeddingType = "content_chunk"
	// EmbeddingOCRText embeds OCR output distinct from the main content.
	EmbeddingOCRText EmbeddingType = "ocr_text"
	// EmbeddingImageVector is a non-text vector for image similarity.
	EmbeddingImageVector EmbeddingType = "image_vector"
)

// Valid reports whether the embedding type is one of the closed set.
func (t EmbeddingType) Valid() bool {
	switch t {
	case EmbeddingTitle, EmbeddingSummary, EmbeddingContentChunk,
		EmbeddingOCRText, EmbeddingImageVector:
		return true
	}
	return false
}

// DocumentLevelIndex is the chunk index shared by document-level
// aspects (title, summary, ocr_text). Content chunks count from 1.
const DocumentLevelIndex = 0

// Embedding is one vector for one aspect of a document. A document owns
// its embeddings: they are never created independently and are removed
// when the document is deleted.
//
// The tuple (DocumentID, ChunkIndex, Type) is unique per store.
type Embedding struct {
	// ID is the opaque surrogate key.
	ID string

	// DocumentID is the owning document.
	DocumentID string

	// ChunkIndex is 0 for document-level aspects, 1..N for content chunks.
	ChunkIndex int

	// Type is the aspect this vector represents.
	Type EmbeddingType

	// Content is the source text. Empty for non-text vectors.
	Content string

	// Vector is the embedding itself. Its length is fixed by Model.
	Vector []float32

	// Model identifies the embedding model that produced Vector.
	Model string

	// ContentHash is the hex SHA-256 of Content, used to detect
	// unchanged aspects on re-ingestion.
	ContentHash string

	// AddedAt is when the embedding was stored.
	AddedAt time.Time
}

// HashContent returns the hex SHA-256 of an aspect's source text.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
