package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
)

// kwRequest builds a keyword search request without filters.
func kwRequest(match string, limit int) driven.KeywordSearchRequest {
	return driven.KeywordSearchRequest{MatchQuery: match, Limit: limit}
}

// seedDocument inserts a document and returns its ID.
func seedDocument(t *testing.T, store *Store, sourceID string, st domain.SourceType, created time.Time) string {
	t.Helper()

	doc := testDocument(sourceID)
	doc.SourceType = st
	doc.CreatedAt = created
	id, err := store.DocumentStore().Add(context.Background(), doc, domain.ConflictReject)
	require.NoError(t, err)
	return id
}

// seedEmbedding inserts one embedding and returns its ID.
func seedEmbedding(t *testing.T, store *Store, docID string, idx int,
	typ domain.EmbeddingType, content string, vector []float32,
) string {
	t.Helper()

	emb := &domain.Embedding{
		ID:          uuid.New().String(),
		DocumentID:  docID,
		ChunkIndex:  idx,
		Type:        typ,
		Content:     content,
		Vector:      vector,
		Model:       "test-model",
		ContentHash: domain.HashContent(content),
	}
	require.NoError(t, store.EmbeddingStore().Upsert(context.Background(), emb))
	return emb.ID
}

func countEmbeddings(t *testing.T, store *Store, docID string) int {
	t.Helper()
	embs, err := store.EmbeddingStore().GetByDocument(context.Background(), docID)
	require.NoError(t, err)
	return len(embs)
}

func TestEmbeddingStore_UpsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	embID := seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk,
		"Receipt total $42.10", []float32{0.1, 0.2, 0.3})

	got, err := store.EmbeddingStore().Get(ctx, embID)
	require.NoError(t, err)
	assert.Equal(t, docID, got.DocumentID)
	assert.Equal(t, 1, got.ChunkIndex)
	assert.Equal(t, domain.EmbeddingContentChunk, got.Type)
	assert.Equal(t, "Receipt total $42.10", got.Content)
	assert.InDelta(t, 0.2, got.Vector[1], 1e-6)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, domain.HashContent("Receipt total $42.10"), got.ContentHash)
	assert.False(t, got.AddedAt.IsZero())
}

func TestEmbeddingStore_AspectTupleStaysUnique(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	firstID := seedEmbedding(t, store, docID, 0, domain.EmbeddingTitle,
		"Pharmacy Receipt", []float32{1, 0, 0})

	// Re-writing the same aspect replaces the row, never duplicates it.
	seedEmbedding(t, store, docID, 0, domain.EmbeddingTitle,
		"Pharmacy Receipt v2", []float32{0, 1, 0})

	assert.Equal(t, 1, countEmbeddings(t, store, docID))

	kept, err := store.EmbeddingStore().Get(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Pharmacy Receipt v2", kept.Content)
}

func TestEmbeddingStore_UpsertValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())

	tests := []struct {
		name string
		emb  domain.Embedding
		want error
	}{
		{
			"missing id",
			domain.Embedding{DocumentID: docID, Type: domain.EmbeddingTitle},
			domain.ErrInvalidInput,
		},
		{
			"negative chunk index",
			domain.Embedding{ID: "e", DocumentID: docID, ChunkIndex: -1, Type: domain.EmbeddingTitle},
			domain.ErrInvalidInput,
		},
		{
			"unknown model",
			domain.Embedding{ID: "e", DocumentID: docID, Type: domain.EmbeddingTitle,
				Vector: []float32{1, 0, 0}, Model: "mystery"},
			domain.ErrUnknownModel,
		},
		{
			"dimension mismatch",
			domain.Embedding{ID: "e", DocumentID: docID, Type: domain.EmbeddingTitle,
				Vector: []float32{1, 0}, Model: "test-model"},
			domain.ErrDimensionMismatch,
		},
		{
			"orphan document",
			domain.Embedding{ID: "e", DocumentID: "ghost", Type: domain.EmbeddingTitle,
				Vector: []float32{1, 0, 0}, Model: "test-model"},
			domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := tt.emb
			assert.ErrorIs(t, store.EmbeddingStore().Upsert(ctx, &emb), tt.want)
		})
	}
}

func TestEmbeddingStore_PruneChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	seedEmbedding(t, store, docID, 0, domain.EmbeddingTitle, "title", []float32{1, 0, 0})
	for i := 1; i <= 4; i++ {
		seedEmbedding(t, store, docID, i, domain.EmbeddingContentChunk, "chunk", []float32{1, 0, 0})
	}

	require.NoError(t, store.EmbeddingStore().PruneChunks(ctx, docID, 2))

	embs, err := store.EmbeddingStore().GetByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, embs, 3) // title + chunks 1, 2
	for _, emb := range embs {
		if emb.Type == domain.EmbeddingContentChunk {
			assert.LessOrEqual(t, emb.ChunkIndex, 2)
		}
	}
}

func TestVectorSearch_RanksByCosine(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	best := seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "a", []float32{1, 0, 0})
	mid := seedEmbedding(t, store, docID, 2, domain.EmbeddingContentChunk, "b", []float32{1, 1, 0})
	seedEmbedding(t, store, docID, 3, domain.EmbeddingContentChunk, "c", []float32{0, 0, 1})

	hits, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model:  "test-model",
		Vector: []float32{1, 0, 0},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, best, hits[0].EmbeddingID)
	assert.Equal(t, mid, hits[1].EmbeddingID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorSearch_ModelScoping(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.registry.Register(domain.ModelInfo{
		Name: "other-model", Dimensions: 2, Metric: domain.MetricDot,
	}))

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "a", []float32{1, 0, 0})

	otherEmb := &domain.Embedding{
		ID: uuid.New().String(), DocumentID: docID, ChunkIndex: 2,
		Type: domain.EmbeddingContentChunk, Content: "b",
		Vector: []float32{1, 1}, Model: "other-model",
	}
	require.NoError(t, store.EmbeddingStore().Upsert(ctx, otherEmb))

	hits, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "other-model", Vector: []float32{1, 0}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, otherEmb.ID, hits[0].EmbeddingID)
}

func TestVectorSearch_Errors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "mystery", Vector: []float32{1, 0, 0}, Limit: 10,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownModel)

	_, err = store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0}, Limit: 10,
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0, 0},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVectorSearch_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	october := time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC)
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	emailDoc := seedDocument(t, store, "email-1", domain.SourceEmail, october)
	pdfDoc := seedDocument(t, store, "pdf-1", domain.SourcePDF, march)

	emailEmb := seedEmbedding(t, store, emailDoc, 1, domain.EmbeddingContentChunk, "a", []float32{1, 0, 0})
	seedEmbedding(t, store, pdfDoc, 1, domain.EmbeddingContentChunk, "b", []float32{1, 0, 0})

	after := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	hits, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model:  "test-model",
		Vector: []float32{1, 0, 0},
		Limit:  10,
		Filters: domain.Filters{
			SourceTypes:   []domain.SourceType{domain.SourceEmail},
			CreatedAfter:  &after,
			CreatedBefore: &before,
		},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, emailEmb, hits[0].EmbeddingID)
}

func TestVectorSearch_MetadataFilter(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// testDocument sets category=receipt and extra mailbox=inbox.
	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	embID := seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "a", []float32{1, 0, 0})

	hits, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0, 0}, Limit: 10,
		Filters: domain.Filters{Metadata: map[string]string{"category": "receipt"}},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, embID, hits[0].EmbeddingID)

	// Extra-bag entries are filterable the same way.
	hits, err = store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0, 0}, Limit: 10,
		Filters: domain.Filters{Metadata: map[string]string{"mailbox": "inbox"}},
	})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0, 0}, Limit: 10,
		Filters: domain.Filters{Metadata: map[string]string{"category": "invoice"}},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorSearch_TypeRestriction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	titleEmb := seedEmbedding(t, store, docID, 0, domain.EmbeddingTitle, "title", []float32{1, 0, 0})
	seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "chunk", []float32{1, 0, 0})

	hits, err := store.VectorSearcher().VectorSearch(ctx, driven.VectorSearchRequest{
		Model: "test-model", Vector: []float32{1, 0, 0}, Limit: 10,
		Types: []domain.EmbeddingType{domain.EmbeddingTitle},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, titleEmb, hits[0].EmbeddingID)
}

func TestKeywordSearch_MatchesContent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	receipt := seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk,
		"Receipt total $42.10 from the pharmacy", []float32{1, 0, 0})
	seedEmbedding(t, store, docID, 2, domain.EmbeddingContentChunk,
		"Meeting notes for the offsite", []float32{0, 1, 0})

	hits, err := store.KeywordSearcher().KeywordSearch(ctx, kwRequest(`"pharmacy"`, 10))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, receipt, hits[0].EmbeddingID)
}

func TestKeywordSearch_EmptyQuery(t *testing.T) {
	store := setupTestStore(t)

	hits, err := store.KeywordSearcher().KeywordSearch(context.Background(), kwRequest("  ", 10))
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestKeywordSearch_RespectsFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	emailDoc := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	noteDoc := seedDocument(t, store, "note-1", domain.SourceNote, time.Now().UTC())
	seedEmbedding(t, store, emailDoc, 1, domain.EmbeddingContentChunk, "shared words here", []float32{1, 0, 0})
	noteEmb := seedEmbedding(t, store, noteDoc, 1, domain.EmbeddingContentChunk, "shared words here", []float32{1, 0, 0})

	hits, err := store.KeywordSearcher().KeywordSearch(ctx, driven.KeywordSearchRequest{
		MatchQuery: `"shared"`,
		Filters:    domain.Filters{SourceTypes: []domain.SourceType{domain.SourceNote}},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, noteEmb, hits[0].EmbeddingID)
}

func TestKeywordSearch_UpdatedContentReindexed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docID := seedDocument(t, store, "email-1", domain.SourceEmail, time.Now().UTC())
	seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "about squirrels", []float32{1, 0, 0})

	// Same aspect tuple, new content: the FTS triggers must follow.
	seedEmbedding(t, store, docID, 1, domain.EmbeddingContentChunk, "about badgers", []float32{1, 0, 0})

	hits, err := store.KeywordSearcher().KeywordSearch(ctx, kwRequest(`"squirrels"`, 10))
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.KeywordSearcher().KeywordSearch(ctx, kwRequest(`"badgers"`, 10))
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75}
	out := bytesToVector(vectorToBytes(in))
	assert.Equal(t, in, out)

	assert.Nil(t, vectorToBytes(nil))
	assert.Nil(t, bytesToVector(nil))
}

func TestSimilarity_Metrics(t *testing.T) {
	q := []float32{1, 0}
	c := []float32{1, 1}

	assert.InDelta(t, 1.0/1.4142, similarity(domain.MetricCosine, q, c), 1e-3)
	assert.InDelta(t, 1.0, similarity(domain.MetricDot, q, c), 1e-9)
	assert.InDelta(t, -1.0, similarity(domain.MetricL2, q, c), 1e-9)
	assert.Zero(t, similarity(domain.MetricCosine, []float32{0, 0}, c))
}
