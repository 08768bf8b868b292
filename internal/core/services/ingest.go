package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/packrat-labs/packrat/internal/chunker"
	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
	"github.com/packrat-labs/packrat/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.Ingestor = (*IngestionPipeline)(nil)

// DefaultWorkers bounds batch ingestion concurrency.
const DefaultWorkers = 4

// DefaultCallTimeout caps each external collaborator call.
const DefaultCallTimeout = 30 * time.Second

// IngestionPipeline turns source items into stored documents and
// embeddings. External collaborators are ports: extraction and
// enrichment run through opaque services, and only the resulting
// documents, metadata and vectors are owned here.
type IngestionPipeline struct {
	docs       driven.DocumentStore
	embs       driven.EmbeddingStore
	extractor  driven.TextExtractor
	enricher   driven.MetadataExtractor
	embedder   driven.EmbeddingService
	summariser driven.Summariser
	ann        driven.ANNIndex
	registry   *domain.ModelRegistry

	schema      domain.Schema
	splitter    *chunker.Splitter
	limiter     *rate.Limiter
	workers     int
	callTimeout time.Duration
}

// PipelineOption configures the ingestion pipeline.
type PipelineOption func(*IngestionPipeline)

// WithSummariser enables the optional summary aspect.
func WithSummariser(s driven.Summariser) PipelineOption {
	return func(p *IngestionPipeline) { p.summariser = s }
}

// WithANNIndex mirrors stored embeddings into an external index.
func WithANNIndex(ann driven.ANNIndex) PipelineOption {
	return func(p *IngestionPipeline) { p.ann = ann }
}

// WithSchema overrides the metadata schema enrichment is validated against.
func WithSchema(s domain.Schema) PipelineOption {
	return func(p *IngestionPipeline) {
		if s != nil {
			p.schema = s
		}
	}
}

// WithSplitter overrides the content chunker.
func WithSplitter(s *chunker.Splitter) PipelineOption {
	return func(p *IngestionPipeline) {
		if s != nil {
			p.splitter = s
		}
	}
}

// WithWorkers sets the batch concurrency limit.
func WithWorkers(n int) PipelineOption {
	return func(p *IngestionPipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRateLimit throttles external collaborator calls.
func WithRateLimit(limit rate.Limit, burst int) PipelineOption {
	return func(p *IngestionPipeline) { p.limiter = rate.NewLimiter(limit, burst) }
}

// WithCallTimeout caps each external collaborator call.
func WithCallTimeout(d time.Duration) PipelineOption {
	return func(p *IngestionPipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// NewIngestionPipeline creates a pipeline over the given stores and
// collaborators.
func NewIngestionPipeline(
	docs driven.DocumentStore,
	embs driven.EmbeddingStore,
	extractor driven.TextExtractor,
	enricher driven.MetadataExtractor,
	embedder driven.EmbeddingService,
	registry *domain.ModelRegistry,
	opts ...PipelineOption,
) *IngestionPipeline {
	p := &IngestionPipeline{
		docs:        docs,
		embs:        embs,
		extractor:   extractor,
		enricher:    enricher,
		embedder:    embedder,
		registry:    registry,
		schema:      domain.DefaultSchema(),
		splitter:    chunker.New(),
		limiter:     rate.NewLimiter(rate.Inf, 1),
		workers:     DefaultWorkers,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// aspect is one unit of embeddable content.
type aspect struct {
	ref     domain.AspectRef
	content string
}

// aspectsUnchanged reports whether the stored hashes cover exactly the
// incoming aspects, meaning a re-ingest would write nothing at all.
func aspectsUnchanged(aspects []aspect, existing map[domain.AspectRef]string) bool {
	if len(existing) != len(aspects) {
		return false
	}
	for _, a := range aspects {
		if existing[a.ref] != domain.HashContent(a.content) {
			return false
		}
	}
	return true
}

// Ingest processes one item end to end. A document that reaches
// persistence is never invalidated by later per-aspect failures; those
// are reported as warnings instead.
func (p *IngestionPipeline) Ingest(
	ctx context.Context, item domain.SourceItem, opts driving.IngestOptions,
) (*domain.IngestionReport, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: ingestion needs an embedding model", domain.ErrInvalidInput)
	}
	if _, err := p.registry.Get(opts.Model); err != nil {
		return nil, err
	}
	if !item.SourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidInput, item.SourceType)
	}

	logger.Debug("Ingesting: type=%s, source_id=%q, uri=%q", item.SourceType, item.SourceID, item.SourceURI)

	report := &domain.IngestionReport{}

	// 1. EXTRACT
	text, err := p.extractText(ctx, item)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(item.Title)
	ocr := strings.TrimSpace(item.OCRText)
	if text == "" && ocr == "" && title == "" {
		return nil, fmt.Errorf("%w: nothing extractable from item %q", domain.ErrNoContent, item.SourceID)
	}

	// 2. ENRICH
	meta := p.enrichMetadata(ctx, item, text, report)

	// 3. COLLECT ASPECTS
	aspects, chunkCount := p.collectAspects(ctx, title, text, ocr, opts, report)

	// Under ConflictUpdate an unchanged item is a no-op: when the stored
	// aspect hashes cover exactly the incoming aspects, nothing is
	// written and the document row keeps its previously enriched
	// metadata.
	var existing map[domain.AspectRef]string
	haveHashes := false
	if opts.OnConflict == domain.ConflictUpdate && item.SourceID != "" {
		prior, err := p.docs.GetBySourceID(ctx, item.SourceID)
		switch {
		case err == nil:
			existing = p.existingHashes(ctx, prior.ID, opts.Model, report)
			haveHashes = true
			if aspectsUnchanged(aspects, existing) {
				report.DocumentID = prior.ID
				for _, a := range aspects {
					report.SkippedAspects = append(report.SkippedAspects, a.ref)
				}
				logger.Debug("Unchanged %s: all %d aspects skipped", prior.ID, len(aspects))
				return report, nil
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("resolving existing document: %w", err)
		}
	}

	// 4. PERSIST DOCUMENT
	doc := &domain.Document{
		ID:         uuid.New().String(),
		SourceType: item.SourceType,
		SourceID:   item.SourceID,
		SourceURI:  item.SourceURI,
		Title:      title,
		Metadata:   meta,
		CreatedAt:  item.CreatedAt,
	}
	docID, err := p.docs.Add(ctx, doc, opts.OnConflict)
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}
	report.DocumentID = docID
	doc.ID = docID

	// 5. EMBED ASPECTS
	if !haveHashes {
		existing = p.existingHashes(ctx, docID, opts.Model, report)
	}
	p.embedAspects(ctx, doc, aspects, existing, opts.Model, report)

	// 6. PRUNE stale chunks left over from a longer previous revision.
	if err := p.embs.PruneChunks(ctx, docID, chunkCount); err != nil {
		report.Warn("prune", err.Error())
	}

	logger.Debug("Ingested %s: %d stored, %d skipped, %d warnings",
		docID, len(report.StoredAspects), len(report.SkippedAspects), len(report.Warnings))
	return report, nil
}

// IngestBatch processes items concurrently under the worker limit.
// One report per item, in input order; a failed item yields a report
// with an empty DocumentID and the error recorded as a warning, with
// rejected duplicates marked under StageConflict.
func (p *IngestionPipeline) IngestBatch(
	ctx context.Context, items []domain.SourceItem, opts driving.IngestOptions,
) []domain.IngestionReport {
	logger.Section("Batch Ingestion")
	logger.Info("Ingesting %d items with %d workers", len(items), p.workers)

	reports := make([]domain.IngestionReport, len(items))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				reports[i].Warn("ingest", ctx.Err().Error())
				return
			}

			report, err := p.Ingest(ctx, items[i], opts)
			switch {
			case errors.Is(err, domain.ErrConflict):
				reports[i].Warn(domain.StageConflict, err.Error())
			case err != nil:
				logger.Warn("Item %d failed: %v", i, err)
				reports[i].Warn("ingest", err.Error())
			default:
				reports[i] = *report
			}
		}(i)
	}

	wg.Wait()
	return reports
}

// extractText runs text extraction when the item carries raw bytes.
// Extraction failure is fatal: with no text there is nothing to index.
func (p *IngestionPipeline) extractText(ctx context.Context, item domain.SourceItem) (string, error) {
	if len(item.RawContent) == 0 {
		return "", nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	text, err := p.extractor.Extract(callCtx, item.RawContent, item.MIMEType)
	if err != nil {
		return "", fmt.Errorf("%w: extract text: %v", domain.ErrExternalService, err)
	}
	return strings.TrimSpace(text), nil
}

// enrichMetadata merges base metadata with schema-validated enrichment.
// Enrichment failure keeps the base metadata and records a warning.
func (p *IngestionPipeline) enrichMetadata(
	ctx context.Context, item domain.SourceItem, text string, report *domain.IngestionReport,
) domain.Metadata {
	meta := domain.NewMetadata()
	meta.Merge(item.BaseMetadata)

	if p.enricher == nil || text == "" {
		return meta
	}
	if err := p.limiter.Wait(ctx); err != nil {
		report.Warn("enrich", err.Error())
		return meta
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	raw, err := p.enricher.Extract(callCtx, text, p.schema)
	if err != nil {
		report.Warn("enrich", fmt.Sprintf("metadata extraction failed: %v", err))
		return meta
	}

	enriched, warnings, err := p.schema.Validate(raw)
	if err != nil {
		report.Warn("enrich", err.Error())
		return meta
	}
	for _, w := range warnings {
		report.Warn("enrich", w)
	}

	meta.Merge(enriched)
	return meta
}

// collectAspects assembles everything embeddable from one item and
// returns the aspects plus the number of content chunks.
func (p *IngestionPipeline) collectAspects(
	ctx context.Context, title, text, ocr string,
	opts driving.IngestOptions, report *domain.IngestionReport,
) ([]aspect, int) {
	var aspects []aspect

	if title != "" {
		aspects = append(aspects, aspect{
			ref:     domain.AspectRef{Type: domain.EmbeddingTitle, ChunkIndex: domain.DocumentLevelIndex},
			content: title,
		})
	}

	if opts.GenerateSummary && p.summariser != nil && text != "" {
		ref := domain.AspectRef{Type: domain.EmbeddingSummary, ChunkIndex: domain.DocumentLevelIndex}
		summary, err := p.summarise(ctx, text)
		switch {
		case err != nil:
			report.WarnAspect("summarise", ref, err.Error())
		case summary != "":
			aspects = append(aspects, aspect{ref: ref, content: summary})
		}
	}

	// OCR output identical to the extracted text adds nothing.
	if ocr != "" && ocr != text {
		aspects = append(aspects, aspect{
			ref:     domain.AspectRef{Type: domain.EmbeddingOCRText, ChunkIndex: domain.DocumentLevelIndex},
			content: ocr,
		})
	}

	chunks := p.splitter.Split(text)
	for i, chunk := range chunks {
		aspects = append(aspects, aspect{
			ref:     domain.AspectRef{Type: domain.EmbeddingContentChunk, ChunkIndex: i + 1},
			content: chunk,
		})
	}

	return aspects, len(chunks)
}

// existingHashes maps each stored aspect of the document to its content
// hash, scoped to the run's model. Aspects whose hash matches are
// skipped instead of re-embedded.
func (p *IngestionPipeline) existingHashes(
	ctx context.Context, docID, model string, report *domain.IngestionReport,
) map[domain.AspectRef]string {
	stored, err := p.embs.GetByDocument(ctx, docID)
	if err != nil {
		report.Warn("embed", fmt.Sprintf("loading existing embeddings: %v", err))
		return nil
	}

	hashes := make(map[domain.AspectRef]string, len(stored))
	for _, emb := range stored {
		if emb.Model != model {
			continue
		}
		hashes[domain.AspectRef{Type: emb.Type, ChunkIndex: emb.ChunkIndex}] = emb.ContentHash
	}
	return hashes
}

// embedAspects embeds and stores each aspect, skipping unchanged ones.
// Per-aspect failures warn and continue.
func (p *IngestionPipeline) embedAspects(
	ctx context.Context, doc *domain.Document, aspects []aspect,
	existing map[domain.AspectRef]string, model string, report *domain.IngestionReport,
) {
	annReady := p.prepareIndex(ctx, model, report)

	for _, a := range aspects {
		hash := domain.HashContent(a.content)
		if existing[a.ref] == hash {
			report.SkippedAspects = append(report.SkippedAspects, a.ref)
			continue
		}

		vector, err := p.embed(ctx, a.content, model)
		if err != nil {
			report.WarnAspect("embed", a.ref, err.Error())
			continue
		}

		emb := &domain.Embedding{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			ChunkIndex:  a.ref.ChunkIndex,
			Type:        a.ref.Type,
			Content:     a.content,
			Vector:      vector,
			Model:       model,
			ContentHash: hash,
		}
		if err := p.embs.Upsert(ctx, emb); err != nil {
			report.WarnAspect("store", a.ref, err.Error())
			continue
		}
		report.StoredAspects = append(report.StoredAspects, a.ref)

		if annReady {
			if err := p.ann.Upsert(ctx, *emb, *doc); err != nil {
				report.WarnAspect("index", a.ref, err.Error())
			}
		}
	}
}

// prepareIndex ensures the external index has a scope for the model.
// Mirroring is skipped for this run when the index cannot be prepared.
func (p *IngestionPipeline) prepareIndex(
	ctx context.Context, model string, report *domain.IngestionReport,
) bool {
	if p.ann == nil {
		return false
	}

	info, err := p.registry.Get(model)
	if err != nil {
		report.Warn("index", err.Error())
		return false
	}
	if err := p.ann.EnsureModel(ctx, info); err != nil {
		report.Warn("index", fmt.Sprintf("preparing index for %s: %v", model, err))
		return false
	}
	return true
}

// embed generates one vector under the rate limit and call timeout.
func (p *IngestionPipeline) embed(ctx context.Context, text, model string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(callCtx, text, model)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", domain.ErrExternalService, err)
	}
	return vector, nil
}

// summarise produces the optional summary aspect content.
func (p *IngestionPipeline) summarise(ctx context.Context, text string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	summary, err := p.summariser.Summarise(callCtx, text, p.splitter.MaxSize())
	if err != nil {
		return "", fmt.Errorf("%w: summarise: %v", domain.ErrExternalService, err)
	}
	return strings.TrimSpace(summary), nil
}
