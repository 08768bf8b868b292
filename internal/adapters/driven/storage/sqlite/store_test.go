package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	registry := domain.NewModelRegistry()
	require.NoError(t, registry.Register(domain.ModelInfo{
		Name: "test-model", Dimensions: 3, Metric: domain.MetricCosine,
	}))

	store, err := NewStore(t.TempDir(), registry)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

// testDocument builds a document ready to insert.
func testDocument(sourceID string) *domain.Document {
	meta := domain.NewMetadata()
	meta.Set("category", domain.StringValue("receipt"))
	meta.Extra["mailbox"] = "inbox"

	return &domain.Document{
		ID:         uuid.New().String(),
		SourceType: domain.SourceEmail,
		SourceID:   sourceID,
		SourceURI:  "imap://inbox/" + sourceID,
		Title:      "Pharmacy Receipt",
		Metadata:   meta,
		CreatedAt:  time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, domain.NewModelRegistry())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "packrat.db"), store.Path())
	assert.FileExists(t, store.Path())
}

func TestNewStore_InvalidPath(t *testing.T) {
	_, err := NewStore("/invalid\x00path", domain.NewModelRegistry())
	assert.Error(t, err)
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir, domain.NewModelRegistry())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Re-opening must not re-run applied migrations.
	store, err = NewStore(dir, domain.NewModelRegistry())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestDocumentStore_AddAndGet(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := testDocument("email-123")
	id, err := docs.Add(ctx, doc, domain.ConflictReject)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, id)

	got, err := docs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pharmacy Receipt", got.Title)
	assert.Equal(t, domain.SourceEmail, got.SourceType)
	assert.Equal(t, "email-123", got.SourceID)
	assert.Equal(t, "receipt", got.Metadata.Fields["category"].Str)
	assert.Equal(t, "inbox", got.Metadata.Extra["mailbox"])
	assert.False(t, got.AddedAt.IsZero())

	bySource, err := docs.GetBySourceID(ctx, "email-123")
	require.NoError(t, err)
	assert.Equal(t, id, bySource.ID)
}

func TestDocumentStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	_, err := docs.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = docs.GetBySourceID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = docs.GetBySourceID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_ConflictReject(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	_, err := docs.Add(ctx, testDocument("email-123"), domain.ConflictReject)
	require.NoError(t, err)

	_, err = docs.Add(ctx, testDocument("email-123"), domain.ConflictReject)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDocumentStore_ConflictUpdateKeepsID(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	first := testDocument("email-123")
	firstID, err := docs.Add(ctx, first, domain.ConflictReject)
	require.NoError(t, err)

	second := testDocument("email-123")
	second.Title = "Pharmacy Receipt (amended)"
	secondID, err := docs.Add(ctx, second, domain.ConflictUpdate)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	got, err := docs.GetByID(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Pharmacy Receipt (amended)", got.Title)
}

func TestDocumentStore_DuplicateWithoutSourceID(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	// Documents without a natural key never conflict.
	a := testDocument("")
	b := testDocument("")
	_, err := docs.Add(ctx, a, domain.ConflictReject)
	require.NoError(t, err)
	_, err = docs.Add(ctx, b, domain.ConflictReject)
	require.NoError(t, err)
}

func TestDocumentStore_AddValidation(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	noID := testDocument("x")
	noID.ID = ""
	_, err := docs.Add(ctx, noID, domain.ConflictReject)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	badType := testDocument("y")
	badType.SourceType = "spreadsheet"
	_, err = docs.Add(ctx, badType, domain.ConflictReject)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_DeleteCascades(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	embs := store.EmbeddingStore()
	ctx := context.Background()

	doc := testDocument("email-123")
	id, err := docs.Add(ctx, doc, domain.ConflictReject)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, embs.Upsert(ctx, &domain.Embedding{
			ID:         uuid.New().String(),
			DocumentID: id,
			ChunkIndex: i,
			Type:       domain.EmbeddingContentChunk,
			Content:    "chunk",
			Vector:     []float32{1, 0, 0},
			Model:      "test-model",
		}))
	}

	require.NoError(t, docs.Delete(ctx, id))

	_, err = docs.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	remaining, err := embs.GetByDocument(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Keyword index no longer returns the deleted rows.
	hits, err := store.KeywordSearcher().KeywordSearch(ctx, kwRequest(`"chunk"`, 10))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDocumentStore_DeleteMissing(t *testing.T) {
	store := setupTestStore(t)

	err := store.DocumentStore().Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ZeroCreatedAtStoredAsNull(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := testDocument("email-1")
	doc.CreatedAt = time.Time{}
	id, err := docs.Add(ctx, doc, domain.ConflictReject)
	require.NoError(t, err)

	got, err := docs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.IsZero())
}

func TestNewStore_DefaultDirectory(t *testing.T) {
	if os.Getenv("HOME") == "" {
		t.Skip("no home directory")
	}
	store, err := NewStore("", domain.NewModelRegistry())
	require.NoError(t, err)
	defer store.Close()

	assert.Contains(t, store.Path(), ".packrat")
	assert.Contains(t, store.Path(), "packrat.db")
}
