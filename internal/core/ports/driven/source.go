package driven

import (
	"context"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// ItemSource produces source items for the ingestion pipeline.
// The filesystem adapter is the canonical implementation; mailbox and
// web-capture acquirers live outside this repository and feed items in
// through the same shape.
type ItemSource interface {
	// Scan emits every item currently available. The items channel is
	// closed when the scan completes; errors arrive on the second
	// channel without stopping the scan.
	Scan(ctx context.Context) (<-chan domain.SourceItem, <-chan error)

	// Watch emits items as they appear until the context is cancelled.
	Watch(ctx context.Context) (<-chan domain.SourceItem, <-chan error)

	// Close releases resources.
	Close() error
}
