package driving

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// IngestOptions configures one ingestion run.
type IngestOptions struct {
	// OnConflict decides what happens when the source ID is already
	// ingested. Defaults to ConflictReject.
	OnConflict domain.ConflictPolicy

	// Model is the embedding model for every aspect of this run.
	// Required: there is no process-wide default model.
	Model string

	// GenerateSummary asks the summariser for a summary aspect.
	// Ignored when no summariser is configured.
	GenerateSummary bool
}

// Ingestor runs the ingestion pipeline.
type Ingestor interface {
	// Ingest processes one source item end to end and reports what was
	// stored, skipped, and warned about.
	Ingest(ctx context.Context, item domain.SourceItem, opts IngestOptions) (*domain.IngestionReport, error)

	// IngestBatch processes items concurrently under the configured
	// worker limit. One report is returned per item, in input order;
	// a failed item yields a report with an empty DocumentID and the
	// error recorded as a warning.
	IngestBatch(ctx context.Context, items []domain.SourceItem, opts IngestOptions) []domain.IngestionReport
}
