package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
)

// embeddingStore implements driven.EmbeddingStore plus both search branches.
type embeddingStore struct {
	store *Store
}

var (
	_ driven.EmbeddingStore  = (*embeddingStore)(nil)
	_ driven.VectorSearcher  = (*embeddingStore)(nil)
	_ driven.KeywordSearcher = (*embeddingStore)(nil)
)

// Upsert stores or replaces one embedding. The aspect key
// (document_id, chunk_index, embedding_type) stays unique: a second
// write to the same aspect updates the row in place, keeping its ID.
func (s *embeddingStore) Upsert(ctx context.Context, emb *domain.Embedding) error {
	if emb.ID == "" || emb.DocumentID == "" || emb.Type == "" {
		return fmt.Errorf("%w: embedding needs an ID, document ID and type", domain.ErrInvalidInput)
	}
	if emb.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index", domain.ErrInvalidInput)
	}
	if emb.Vector != nil {
		if err := s.store.registry.CheckVector(emb.Model, emb.Vector); err != nil {
			return err
		}
	}

	if emb.AddedAt.IsZero() {
		emb.AddedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO embeddings
			(id, document_id, chunk_index, embedding_type, content, vector, embedding_model, content_hash, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_index, embedding_type) DO UPDATE SET
			content = excluded.content,
			vector = excluded.vector,
			embedding_model = excluded.embedding_model,
			content_hash = excluded.content_hash,
			added_at = excluded.added_at
	`, emb.ID, emb.DocumentID, emb.ChunkIndex, string(emb.Type),
		nullString(emb.Content), vectorToBytes(emb.Vector), emb.Model,
		nullString(emb.ContentHash), emb.AddedAt)

	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: document %q", domain.ErrNotFound, emb.DocumentID)
		}
		return fmt.Errorf("saving embedding: %w", err)
	}
	return nil
}

// Get retrieves one embedding by surrogate key.
func (s *embeddingStore) Get(ctx context.Context, id string) (*domain.Embedding, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, embedding_type, content, vector, embedding_model, content_hash, added_at
		FROM embeddings WHERE id = ?
	`, id)

	emb, err := scanEmbedding(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return emb, nil
}

// GetByDocument retrieves all embeddings for a document.
func (s *embeddingStore) GetByDocument(ctx context.Context, documentID string) ([]domain.Embedding, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, embedding_type, content, vector, embedding_model, content_hash, added_at
		FROM embeddings WHERE document_id = ?
		ORDER BY embedding_type, chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []domain.Embedding //nolint:prealloc // size unknown from query
	for rows.Next() {
		emb, err := scanEmbedding(rows.Scan)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, *emb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return embeddings, nil
}

// PruneChunks removes content-chunk embeddings above maxIndex.
func (s *embeddingStore) PruneChunks(ctx context.Context, documentID string, maxIndex int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE document_id = ? AND embedding_type = ? AND chunk_index > ?
	`, documentID, string(domain.EmbeddingContentChunk), maxIndex)
	if err != nil {
		return fmt.Errorf("pruning chunks: %w", err)
	}
	return nil
}

// ==================== Vector Search ====================

// VectorSearch scans the candidate rows for one model and ranks them by
// the model's registered metric. Filters restrict the candidate set in
// SQL before any scoring happens, so both search branches rank the same
// population.
func (s *embeddingStore) VectorSearch(
	ctx context.Context, req driven.VectorSearchRequest,
) ([]driven.SearchHit, error) {
	info, err := s.store.registry.Get(req.Model)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != info.Dimensions {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, model %q expects %d",
			domain.ErrDimensionMismatch, len(req.Vector), req.Model, info.Dimensions)
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: non-positive candidate limit", domain.ErrInvalidInput)
	}

	query := `
		SELECT e.id, e.document_id, e.vector
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
		WHERE e.embedding_model = ? AND e.vector IS NOT NULL`
	args := []any{req.Model}

	clause, clauseArgs := typeClause(req.Types)
	query += clause
	args = append(args, clauseArgs...)

	clause, clauseArgs = filterClauses(req.Filters)
	query += clause
	args = append(args, clauseArgs...)

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vector candidates: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.SearchHit
		var blob []byte
		if err := rows.Scan(&hit.EmbeddingID, &hit.DocumentID, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector candidate: %w", err)
		}

		candidate := bytesToVector(blob)
		if len(candidate) != info.Dimensions {
			continue // stale row from a re-registered model
		}
		hit.Score = similarity(info.Metric, req.Vector, candidate)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector candidates: %w", err)
	}

	// Best first; embedding ID breaks score ties for determinism.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EmbeddingID < hits[j].EmbeddingID
	})

	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// ==================== Keyword Search ====================

// KeywordSearch runs the prepared FTS5 expression over embedding
// content, best bm25 match first, under the same filters as the vector
// branch.
func (s *embeddingStore) KeywordSearch(
	ctx context.Context, req driven.KeywordSearchRequest,
) ([]driven.SearchHit, error) {
	if strings.TrimSpace(req.MatchQuery) == "" {
		return nil, nil
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: non-positive candidate limit", domain.ErrInvalidInput)
	}

	query := `
		SELECT e.id, e.document_id, bm25(embeddings_fts) AS rank
		FROM embeddings_fts
		JOIN embeddings e ON e.rowid = embeddings_fts.rowid
		JOIN documents d ON d.id = e.document_id
		WHERE embeddings_fts MATCH ?`
	args := []any{req.MatchQuery}

	clause, clauseArgs := typeClause(req.Types)
	query += clause
	args = append(args, clauseArgs...)

	clause, clauseArgs = filterClauses(req.Filters)
	query += clause
	args = append(args, clauseArgs...)

	// bm25() is smaller-is-better; ID tie-break keeps order stable.
	query += " ORDER BY rank, e.id LIMIT ?"
	args = append(args, req.Limit)

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keyword matches: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.SearchHit
		var rank float64
		if err := rows.Scan(&hit.EmbeddingID, &hit.DocumentID, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword match: %w", err)
		}
		hit.Score = -rank // expose higher-is-better
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword matches: %w", err)
	}
	return hits, nil
}

// ==================== Shared SQL Fragments ====================

// metadataKeyPattern limits filterable metadata keys to simple identifiers.
var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// typeClause restricts candidates to the requested embedding types.
func typeClause(types []domain.EmbeddingType) (string, []any) {
	if len(types) == 0 {
		return "", nil
	}
	placeholders := strings.Repeat("?, ", len(types)-1) + "?"
	args := make([]any, len(types))
	for i, t := range types {
		args[i] = string(t)
	}
	return " AND e.embedding_type IN (" + placeholders + ")", args
}

// filterClauses renders conjunctive document filters into SQL. Metadata
// equality matches either a schema field's string payload or the extra
// bag; keys are sorted so the generated SQL is deterministic.
func filterClauses(f domain.Filters) (string, []any) {
	var sb strings.Builder
	var args []any

	if len(f.SourceTypes) > 0 {
		placeholders := strings.Repeat("?, ", len(f.SourceTypes)-1) + "?"
		sb.WriteString(" AND d.source_type IN (" + placeholders + ")")
		for _, st := range f.SourceTypes {
			args = append(args, string(st))
		}
	}
	if f.CreatedAfter != nil {
		sb.WriteString(" AND d.created_at >= ?")
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		sb.WriteString(" AND d.created_at < ?")
		args = append(args, *f.CreatedBefore)
	}

	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !metadataKeyPattern.MatchString(key) {
			continue
		}
		sb.WriteString(" AND (json_extract(d.metadata, ?) = ? OR json_extract(d.metadata, ?) = ?)")
		args = append(args,
			"$.fields."+key+".str", f.Metadata[key],
			"$.extra."+key, f.Metadata[key])
	}

	return sb.String(), args
}

// ==================== Vector Codec & Scoring ====================

// vectorToBytes converts a []float32 to a little-endian byte slice.
func vectorToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToVector converts a byte slice back to []float32.
func bytesToVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// similarity scores a candidate against the query, higher is better.
func similarity(metric domain.DistanceMetric, query, candidate []float32) float64 {
	switch metric {
	case domain.MetricDot:
		return dot(query, candidate)
	case domain.MetricL2:
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(candidate[i])
			sum += d * d
		}
		return -math.Sqrt(sum)
	default: // cosine
		qn, cn := norm(query), norm(candidate)
		if qn == 0 || cn == 0 {
			return 0
		}
		return dot(query, candidate) / (qn * cn)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// scanEmbedding scans one embedding row via the given scan function.
func scanEmbedding(scan func(dest ...any) error) (*domain.Embedding, error) {
	var emb domain.Embedding
	var embType string
	var content, contentHash sql.NullString
	var blob []byte
	var addedAt sql.NullTime

	if err := scan(&emb.ID, &emb.DocumentID, &emb.ChunkIndex, &embType,
		&content, &blob, &emb.Model, &contentHash, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning embedding: %w", err)
	}

	emb.Type = domain.EmbeddingType(embType)
	emb.Content = content.String
	emb.ContentHash = contentHash.String
	emb.Vector = bytesToVector(blob)
	if addedAt.Valid {
		emb.AddedAt = addedAt.Time
	}
	return &emb, nil
}
