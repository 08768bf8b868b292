package domain

import "time"

// SourceItem is one item handed to the ingestion pipeline: raw content
// plus the minimal metadata the acquiring collaborator already knows.
type SourceItem struct {
	// SourceType classifies the origin.
	SourceType SourceType

	// SourceID is the natural key from the origin system. Optional;
	// when set it makes ingestion idempotent.
	SourceID string

	// SourceURI is the original location.
	SourceURI string

	// Title is the known title (filename, subject line, ...).
	Title string

	// RawContent is the item's raw bytes, fed to text extraction.
	RawContent []byte

	// MIMEType describes RawContent.
	MIMEType string

	// OCRText is OCR collaborator output for scanned items. Embedded
	// as its own aspect when distinct from the extracted text.
	OCRText string

	// CreatedAt is the origin timestamp.
	CreatedAt time.Time

	// BaseMetadata is step-1 metadata (headers, file attributes). It is
	// kept even when enrichment fails.
	BaseMetadata Metadata
}

// ConflictPolicy selects what happens when a source ID is already ingested.
type ConflictPolicy int

const (
	// ConflictReject refuses the duplicate with ErrConflict.
	ConflictReject ConflictPolicy = iota

	// ConflictUpdate re-uses the existing document and regenerates
	// only the aspects whose content changed.
	ConflictUpdate
)

// AspectRef identifies one embedding aspect of a document.
type AspectRef struct {
	Type       EmbeddingType
	ChunkIndex int
}

// StageConflict is the warning stage recorded when batch ingestion
// refuses an item as an already ingested duplicate.
const StageConflict = "conflict"

// Warning records a non-fatal failure for one pipeline stage or aspect.
type Warning struct {
	// Stage is the pipeline step that failed (e.g. "enrich", "embed").
	Stage string

	// Aspect is set when the failure is scoped to one embedding aspect.
	Aspect *AspectRef

	// Message describes the failure.
	Message string
}

// IngestionReport is the structured outcome of ingesting one item.
// Warnings are additive information: a document that reached persistence
// is never invalidated by later per-aspect failures.
type IngestionReport struct {
	// DocumentID is the ingested (or re-used) document.
	DocumentID string

	// StoredAspects lists aspects written during this run.
	StoredAspects []AspectRef

	// SkippedAspects lists aspects left untouched because their
	// content hash matched the stored embedding.
	SkippedAspects []AspectRef

	// Warnings lists per-stage and per-aspect failures.
	Warnings []Warning
}

// Warn appends a stage-level warning.
func (r *IngestionReport) Warn(stage, format string) {
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Message: format})
}

// WarnAspect appends an aspect-scoped warning.
func (r *IngestionReport) WarnAspect(stage string, ref AspectRef, message string) {
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Aspect: &ref, Message: message})
}

// Conflicted reports whether the item was refused as a duplicate.
func (r *IngestionReport) Conflicted() bool {
	for _, w := range r.Warnings {
		if w.Stage == StageConflict {
			return true
		}
	}
	return false
}
