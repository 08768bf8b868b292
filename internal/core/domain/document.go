package domain

import "time"

// SourceType classifies where an ingested item came from.
// The set is closed: stores index on it and filters compare it exactly.
type SourceType string

const (
	// SourceEmail is a message pulled from a mailbox.
	SourceEmail SourceType = "email"
	// SourcePDF is a (possibly scanned) PDF file.
	SourcePDF SourceType = "pdf"
	// SourceNote is a free-form text note.
	SourceNote SourceType = "note"
	// SourceImage is an image with OCR-extracted text.
	SourceImage SourceType = "image"
	// SourceWebpage is a captured web page.
	SourceWebpage SourceType = "webpage"
)

// Valid reports whether the source type is one of the closed set.
func (t SourceType) Valid() bool {
	switch t {
	case SourceEmail, SourcePDF, SourceNote, SourceImage, SourceWebpage:
		return true
	}
	return false
}

// Document represents one ingested item and its structured metadata.
// It is the canonical record after extraction and enrichment.
type Document struct {
	// ID is the opaque surrogate key.
	ID string

	// SourceType classifies the origin (email, pdf, note, ...).
	SourceType SourceType

	// SourceID is the natural key from the origin system.
	// Optional, but globally unique when present: at most one
	// document exists per non-empty SourceID.
	SourceID string

	// SourceURI is the original location (file path, message URL, ...).
	SourceURI string

	// Title is the human-readable title.
	Title string

	// Metadata is the schema-guided metadata bag.
	Metadata Metadata

	// CreatedAt is the origin timestamp (when the item was authored).
	CreatedAt time.Time

	// AddedAt is when the item was ingested.
	AddedAt time.Time
}
