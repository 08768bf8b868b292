package cli

import (
	"context"
	"errors"
	"time"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
)

// mockIngestor records calls and returns a canned report.
type mockIngestor struct {
	items   []domain.SourceItem
	opts    []driving.IngestOptions
	batches [][]domain.SourceItem
	report  domain.IngestionReport
	err     error
}

func (m *mockIngestor) Ingest(_ context.Context, item domain.SourceItem, opts driving.IngestOptions) (*domain.IngestionReport, error) {
	m.items = append(m.items, item)
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	report := m.report
	return &report, nil
}

func (m *mockIngestor) IngestBatch(ctx context.Context, items []domain.SourceItem, opts driving.IngestOptions) []domain.IngestionReport {
	m.batches = append(m.batches, items)
	reports := make([]domain.IngestionReport, len(items))
	for i, item := range items {
		r, err := m.Ingest(ctx, item, opts)
		switch {
		case errors.Is(err, domain.ErrConflict):
			reports[i].Warn(domain.StageConflict, err.Error())
		case err != nil:
			reports[i].Warn("ingest", err.Error())
		default:
			reports[i] = *r
		}
	}
	return reports
}

// mockSearcher records the query and returns canned results.
type mockSearcher struct {
	query   domain.Query
	results []domain.ResultItem
	err     error
}

func (m *mockSearcher) Search(_ context.Context, q domain.Query) ([]domain.ResultItem, error) {
	m.query = q
	return m.results, m.err
}

// mockDocuments serves a fixed document.
type mockDocuments struct {
	doc       *domain.Document
	deleted   []string
	getErr    error
	deleteErr error
}

func (m *mockDocuments) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.doc == nil || m.doc.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.doc, nil
}

func (m *mockDocuments) DeleteDocument(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// mockSource emits scripted items.
type mockSource struct {
	root  string
	items []domain.SourceItem
}

func (m *mockSource) Scan(context.Context) (<-chan domain.SourceItem, <-chan error) {
	items := make(chan domain.SourceItem, len(m.items))
	errs := make(chan error)
	for _, item := range m.items {
		items <- item
	}
	close(items)
	close(errs)
	return items, errs
}

func (m *mockSource) Watch(ctx context.Context) (<-chan domain.SourceItem, <-chan error) {
	items := make(chan domain.SourceItem)
	errs := make(chan error)
	go func() {
		<-ctx.Done()
		close(items)
		close(errs)
	}()
	return items, errs
}

func (m *mockSource) Close() error { return nil }

var errMockFailure = errors.New("mock failure")

// setupTestServices wires mocks into the package-level service slots
// and returns the mocks plus a cleanup restoring the previous state.
func setupTestServices() (*mockIngestor, *mockSearcher, *mockDocuments, func()) {
	ing := &mockIngestor{report: domain.IngestionReport{
		DocumentID: "doc-1",
		StoredAspects: []domain.AspectRef{
			{Type: domain.EmbeddingTitle},
			{Type: domain.EmbeddingContentChunk, ChunkIndex: 1},
		},
	}}
	srch := &mockSearcher{results: []domain.ResultItem{
		{
			DocumentID:     "doc-1",
			Title:          "Pharmacy Receipt",
			SourceType:     domain.SourceEmail,
			CreatedAt:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			EmbeddingType:  domain.EmbeddingContentChunk,
			MatchedContent: "Total: $42.10 at the pharmacy.",
			RRFScore:       0.0328,
		},
	}}
	docs := &mockDocuments{doc: &domain.Document{
		ID:         "doc-1",
		Title:      "Pharmacy Receipt",
		SourceType: domain.SourceEmail,
		AddedAt:    time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
	}}

	prev := Services{
		Ingestor:        ingestor,
		Searcher:        searchService,
		DocumentService: documentService,
		NewSource:       newSource,
		DefaultModel:    defaultModel,
	}

	SetServices(Services{
		Ingestor:        ing,
		Searcher:        srch,
		DocumentService: docs,
		NewSource: func(root string) driven.ItemSource {
			return &mockSource{root: root, items: []domain.SourceItem{
				{SourceType: domain.SourceNote, SourceID: "/notes/a.txt", SourceURI: "file:///notes/a.txt", RawContent: []byte("a")},
			}}
		},
		DefaultModel: "nomic-embed-text",
	})

	return ing, srch, docs, func() {
		SetServices(prev)
	}
}
