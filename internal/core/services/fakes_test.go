package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
)

// ==================== Document store fake ====================

type fakeDocStore struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	bySource map[string]string
	addErr   error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:     make(map[string]*domain.Document),
		bySource: make(map[string]string),
	}
}

func (f *fakeDocStore) Add(_ context.Context, doc *domain.Document, policy domain.ConflictPolicy) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return "", f.addErr
	}

	if doc.SourceID != "" {
		if existingID, ok := f.bySource[doc.SourceID]; ok {
			if policy == domain.ConflictReject {
				return "", fmt.Errorf("%w: source_id %q", domain.ErrConflict, doc.SourceID)
			}
			updated := *doc
			updated.ID = existingID
			f.docs[existingID] = &updated
			return existingID, nil
		}
	}

	stored := *doc
	f.docs[doc.ID] = &stored
	if doc.SourceID != "" {
		f.bySource[doc.SourceID] = doc.ID
	}
	return doc.ID, nil
}

func (f *fakeDocStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) GetBySourceID(_ context.Context, sourceID string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.bySource[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *f.docs[id]
	return &copied, nil
}

func (f *fakeDocStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(f.docs, id)
	if doc.SourceID != "" {
		delete(f.bySource, doc.SourceID)
	}
	return nil
}

// ==================== Embedding store fake ====================

type fakeEmbStore struct {
	mu       sync.Mutex
	byID     map[string]*domain.Embedding
	byAspect map[string]string // aspect key -> embedding ID
	upserts  int
}

func newFakeEmbStore() *fakeEmbStore {
	return &fakeEmbStore{
		byID:     make(map[string]*domain.Embedding),
		byAspect: make(map[string]string),
	}
}

func aspectKey(docID string, idx int, typ domain.EmbeddingType) string {
	return fmt.Sprintf("%s|%d|%s", docID, idx, typ)
}

func (f *fakeEmbStore) Upsert(_ context.Context, emb *domain.Embedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts++
	key := aspectKey(emb.DocumentID, emb.ChunkIndex, emb.Type)
	if oldID, ok := f.byAspect[key]; ok {
		delete(f.byID, oldID)
	}
	stored := *emb
	f.byID[emb.ID] = &stored
	f.byAspect[key] = emb.ID
	return nil
}

func (f *fakeEmbStore) Get(_ context.Context, id string) (*domain.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	emb, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *emb
	return &copied, nil
}

func (f *fakeEmbStore) GetByDocument(_ context.Context, documentID string) ([]domain.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var embs []domain.Embedding
	for _, emb := range f.byID {
		if emb.DocumentID == documentID {
			embs = append(embs, *emb)
		}
	}
	sort.Slice(embs, func(i, j int) bool {
		if embs[i].Type != embs[j].Type {
			return embs[i].Type < embs[j].Type
		}
		return embs[i].ChunkIndex < embs[j].ChunkIndex
	})
	return embs, nil
}

func (f *fakeEmbStore) PruneChunks(_ context.Context, documentID string, maxIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, emb := range f.byID {
		if emb.DocumentID == documentID && emb.Type == domain.EmbeddingContentChunk && emb.ChunkIndex > maxIndex {
			delete(f.byID, id)
			delete(f.byAspect, aspectKey(documentID, emb.ChunkIndex, emb.Type))
		}
	}
	return nil
}

// aspects returns the stored aspect refs for a document, sorted.
func (f *fakeEmbStore) aspects(documentID string) []domain.AspectRef {
	embs, _ := f.GetByDocument(context.Background(), documentID)
	refs := make([]domain.AspectRef, 0, len(embs))
	for _, emb := range embs {
		refs = append(refs, domain.AspectRef{Type: emb.Type, ChunkIndex: emb.ChunkIndex})
	}
	return refs
}

// ==================== Search branch fakes ====================

type fakeVectorSearcher struct {
	mu   sync.Mutex
	hits []driven.SearchHit
	err  error
	req  driven.VectorSearchRequest
}

func (f *fakeVectorSearcher) VectorSearch(_ context.Context, req driven.VectorSearchRequest) ([]driven.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	return f.hits, f.err
}

type fakeKeywordSearcher struct {
	mu   sync.Mutex
	hits []driven.SearchHit
	err  error
	req  driven.KeywordSearchRequest
}

func (f *fakeKeywordSearcher) KeywordSearch(_ context.Context, req driven.KeywordSearchRequest) ([]driven.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	return f.hits, f.err
}

// ==================== Collaborator fakes ====================

type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Ping(context.Context) error { return nil }
func (f *fakeEmbedder) Close() error               { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type fakeEnricher struct {
	result map[string]any
	err    error
}

func (f *fakeEnricher) Extract(_ context.Context, _ string, _ domain.Schema) (map[string]any, error) {
	return f.result, f.err
}

type fakeSummariser struct {
	summary string
	err     error
}

func (f *fakeSummariser) Summarise(_ context.Context, _ string, _ int) (string, error) {
	return f.summary, f.err
}

// ==================== ANN index fake ====================

type fakeANN struct {
	mu        sync.Mutex
	ensured   []string
	upserted  []string
	deleted   []string
	hits      []driven.SearchHit
	ensureErr error
	upsertErr error
	deleteErr error
}

func (f *fakeANN) VectorSearch(_ context.Context, _ driven.VectorSearchRequest) ([]driven.SearchHit, error) {
	return f.hits, nil
}

func (f *fakeANN) EnsureModel(_ context.Context, info domain.ModelInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, info.Name)
	return nil
}

func (f *fakeANN) Upsert(_ context.Context, emb domain.Embedding, _ domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, emb.ID)
	return nil
}

func (f *fakeANN) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeANN) Close() error { return nil }

// testRegistry returns a registry with the model service tests use.
func testRegistry() *domain.ModelRegistry {
	registry := domain.NewModelRegistry()
	_ = registry.Register(domain.ModelInfo{Name: "test-model", Dimensions: 3, Metric: domain.MetricCosine})
	return registry
}
