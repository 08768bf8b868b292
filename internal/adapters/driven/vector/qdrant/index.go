// Package qdrant provides an approximate-nearest-neighbour index
// backed by the Qdrant REST API. Each embedding model maps to its own
// collection, so a collection only ever holds vectors of one dimension
// and metric. Document payload is mirrored onto every point so the
// engine's filters push down to the backend.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.ANNIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultBaseURL          = "http://localhost:6333"
	DefaultTimeout          = 30 * time.Second
	DefaultCollectionPrefix = "packrat"
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// BaseURL is the Qdrant REST endpoint (default: http://localhost:6333).
	BaseURL string

	// APIKey authenticates requests. Optional for local instances.
	APIKey string

	// CollectionPrefix namespaces collections (default: packrat).
	CollectionPrefix string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration
}

// Index talks to one Qdrant instance.
type Index struct {
	client  *http.Client
	baseURL string
	apiKey  string
	prefix  string
}

// NewIndex creates a Qdrant index client.
func NewIndex(cfg Config) *Index {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Index{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		prefix:  cfg.CollectionPrefix,
	}
}

// collection maps a model name to its collection.
func (x *Index) collection(model string) string {
	sanitized := strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(model)
	return x.prefix + "-" + sanitized
}

// distanceName maps a registry metric onto Qdrant's distance names.
func distanceName(metric domain.DistanceMetric) string {
	switch metric {
	case domain.MetricDot:
		return "Dot"
	case domain.MetricL2:
		return "Euclid"
	default:
		return "Cosine"
	}
}

// EnsureModel creates the collection for a model if missing.
func (x *Index) EnsureModel(ctx context.Context, info domain.ModelInfo) error {
	name := x.collection(info.Name)

	// An existing collection is left untouched.
	if _, err := x.doRequest(ctx, http.MethodGet, "/collections/"+name, nil); err == nil {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     info.Dimensions,
			"distance": distanceName(info.Metric),
		},
	}
	if _, err := x.doRequest(ctx, http.MethodPut, "/collections/"+name, reqBody); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	logger.Info("Created Qdrant collection %s (%d dims, %s)", name, info.Dimensions, info.Metric)
	return nil
}

// point is the Qdrant point format.
type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Upsert mirrors one embedding into the model's collection.
func (x *Index) Upsert(ctx context.Context, emb domain.Embedding, doc domain.Document) error {
	if emb.Vector == nil {
		return nil
	}

	reqBody := map[string]any{
		"points": []point{{
			ID:      emb.ID,
			Vector:  emb.Vector,
			Payload: pointPayload(emb, doc),
		}},
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", x.collection(emb.Model))
	if _, err := x.doRequest(ctx, http.MethodPut, path, reqBody); err != nil {
		return fmt.Errorf("upserting point %s: %w", emb.ID, err)
	}
	return nil
}

// pointPayload flattens the document fields the engine filters on.
// Metadata values are mirrored in string form under meta_ keys, which
// matches how the engine's equality filters compare them.
func pointPayload(emb domain.Embedding, doc domain.Document) map[string]any {
	payload := map[string]any{
		"document_id":    emb.DocumentID,
		"embedding_type": string(emb.Type),
		"chunk_index":    emb.ChunkIndex,
		"source_type":    string(doc.SourceType),
	}
	if !doc.CreatedAt.IsZero() {
		payload["created_at"] = doc.CreatedAt.UTC().Unix()
	}
	for key, value := range doc.Metadata.Fields {
		payload["meta_"+key] = value.Str
	}
	for key, value := range doc.Metadata.Extra {
		payload["meta_"+key] = value
	}
	return payload
}

// VectorSearch runs the semantic branch against the model's collection.
func (x *Index) VectorSearch(
	ctx context.Context, req driven.VectorSearchRequest,
) ([]driven.SearchHit, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: non-positive candidate limit", domain.ErrInvalidInput)
	}

	reqBody := map[string]any{
		"vector":       req.Vector,
		"limit":        req.Limit,
		"with_payload": []string{"document_id"},
	}
	if filter := searchFilter(req.Types, req.Filters); filter != nil {
		reqBody["filter"] = filter
	}

	path := fmt.Sprintf("/collections/%s/points/search", x.collection(req.Model))
	respBody, err := x.doRequest(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	var response struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	hits := make([]driven.SearchHit, 0, len(response.Result))
	for _, r := range response.Result {
		docID, _ := r.Payload["document_id"].(string)
		hits = append(hits, driven.SearchHit{
			EmbeddingID: r.ID,
			DocumentID:  docID,
			Score:       r.Score,
		})
	}
	return hits, nil
}

// searchFilter renders the engine's conjunctive filters as a Qdrant
// must clause. Nil means unfiltered.
func searchFilter(types []domain.EmbeddingType, f domain.Filters) map[string]any {
	var must []map[string]any

	if len(types) > 0 {
		values := make([]string, len(types))
		for i, t := range types {
			values[i] = string(t)
		}
		must = append(must, map[string]any{
			"key":   "embedding_type",
			"match": map[string]any{"any": values},
		})
	}
	if len(f.SourceTypes) > 0 {
		values := make([]string, len(f.SourceTypes))
		for i, st := range f.SourceTypes {
			values[i] = string(st)
		}
		must = append(must, map[string]any{
			"key":   "source_type",
			"match": map[string]any{"any": values},
		})
	}
	if f.CreatedAfter != nil || f.CreatedBefore != nil {
		rangeClause := map[string]any{}
		if f.CreatedAfter != nil {
			rangeClause["gte"] = f.CreatedAfter.UTC().Unix()
		}
		if f.CreatedBefore != nil {
			rangeClause["lt"] = f.CreatedBefore.UTC().Unix()
		}
		must = append(must, map[string]any{
			"key":   "created_at",
			"range": rangeClause,
		})
	}
	for key, value := range f.Metadata {
		must = append(must, map[string]any{
			"key":   "meta_" + key,
			"match": map[string]any{"value": value},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// DeleteByDocument removes the document's points from every collection
// under this index's prefix.
func (x *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	collections, err := x.listCollections(ctx)
	if err != nil {
		return err
	}

	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{{
				"key":   "document_id",
				"match": map[string]any{"value": documentID},
			}},
		},
	}

	for _, name := range collections {
		if !strings.HasPrefix(name, x.prefix+"-") {
			continue
		}
		path := fmt.Sprintf("/collections/%s/points/delete?wait=true", name)
		if _, err := x.doRequest(ctx, http.MethodPost, path, reqBody); err != nil {
			return fmt.Errorf("deleting points from %s: %w", name, err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (x *Index) Ping(ctx context.Context) error {
	if _, err := x.doRequest(ctx, http.MethodGet, "/", nil); err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	return nil
}

// Close releases resources.
func (x *Index) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// listCollections returns every collection name on the instance.
func (x *Index) listCollections(ctx context.Context) ([]string, error) {
	respBody, err := x.doRequest(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	var response struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("parsing collections response: %w", err)
	}

	names := make([]string, len(response.Result.Collections))
	for i, col := range response.Result.Collections {
		names[i] = col.Name
	}
	return names, nil
}

// doRequest sends one JSON request and returns the raw response body.
func (x *Index) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
