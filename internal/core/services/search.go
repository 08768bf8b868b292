package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
	"github.com/packrat-labs/packrat/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.Searcher = (*SearchService)(nil)

// fusedHit is one candidate after rank fusion, before hydration.
type fusedHit struct {
	embeddingID string
	documentID  string
	score       float64
}

// SearchService answers hybrid queries: it embeds the query text, runs
// the semantic and keyword branches in parallel, fuses their rankings
// with RRF, and hydrates the winners into result items.
type SearchService struct {
	docs     driven.DocumentStore
	embs     driven.EmbeddingStore
	vector   driven.VectorSearcher
	keyword  driven.KeywordSearcher
	embedder driven.EmbeddingService
	planner  *QueryPlanner
}

// NewSearchService creates a search service. The embedder may be nil,
// which disables the semantic branch.
func NewSearchService(
	docs driven.DocumentStore,
	embs driven.EmbeddingStore,
	vector driven.VectorSearcher,
	keyword driven.KeywordSearcher,
	embedder driven.EmbeddingService,
	planner *QueryPlanner,
) *SearchService {
	if planner == nil {
		planner = NewQueryPlanner(domain.DefaultSearchPolicy())
	}
	return &SearchService{
		docs:     docs,
		embs:     embs,
		vector:   vector,
		keyword:  keyword,
		embedder: embedder,
		planner:  planner,
	}
}

// Search plans, executes and fuses both branches of a hybrid query.
func (s *SearchService) Search(ctx context.Context, q domain.Query) ([]domain.ResultItem, error) {
	logger.Section("Search Execution")

	q.SemanticText = strings.TrimSpace(q.SemanticText)
	kwReq := s.planner.KeywordRequest(q)

	if q.SemanticText == "" && kwReq.MatchQuery == "" {
		return nil, fmt.Errorf("%w: query has neither semantic text nor keywords", domain.ErrInvalidInput)
	}
	if q.SemanticText != "" && q.Model == "" {
		return nil, fmt.Errorf("%w: semantic search needs a model", domain.ErrInvalidInput)
	}

	topK := q.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	logger.Debug("Query: semantic=%q, match=%q, model=%q, topK=%d",
		q.SemanticText, kwReq.MatchQuery, q.Model, topK)

	// Run both branches in parallel; a single branch failing degrades
	// the search instead of killing it.
	var vecHits, kwHits []driven.SearchHit
	var vecErr, kwErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vecHits, vecErr = s.semanticBranch(ctx, q)
	}()

	go func() {
		defer wg.Done()
		kwHits, kwErr = s.keywordBranch(ctx, kwReq)
	}()

	wg.Wait()

	if vecErr != nil && kwErr != nil {
		return nil, fmt.Errorf("%w: semantic: %v, keyword: %v",
			domain.ErrSearchUnavailable, vecErr, kwErr)
	}
	if vecErr != nil {
		logger.Warn("Semantic branch failed, keyword results only: %v", vecErr)
	}
	if kwErr != nil {
		logger.Warn("Keyword branch failed, semantic results only: %v", kwErr)
	}

	logger.Debug("Branch hits: semantic=%d, keyword=%d", len(vecHits), len(kwHits))

	fused := fuseRanks(s.planner.Policy().RRFK, kwHits, vecHits)
	results, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	orderResults(results)
	if q.DeduplicateByDocument {
		results = dedupeByDocument(results)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	logger.Info("Search done: %d results", len(results))
	return results, nil
}

// semanticBranch embeds the query text and searches the vector index.
// A query without semantic text yields no semantic candidates.
func (s *SearchService) semanticBranch(ctx context.Context, q domain.Query) ([]driven.SearchHit, error) {
	if q.SemanticText == "" {
		return nil, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbeddingUnavailable)
	}

	vector, err := s.embedder.Embed(ctx, q.SemanticText, q.Model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	logger.Debug("Query embedding: %d dimensions", len(vector))

	hits, err := s.vector.VectorSearch(ctx, s.planner.VectorRequest(q, vector))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// keywordBranch runs the full-text branch.
func (s *SearchService) keywordBranch(
	ctx context.Context, req driven.KeywordSearchRequest,
) ([]driven.SearchHit, error) {
	hits, err := s.keyword.KeywordSearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return hits, nil
}

// fuseRanks merges ranked lists with Reciprocal Rank Fusion: each list
// contributes 1/(k+rank) per hit, ranks counting from 1. An embedding
// found by both branches accumulates both contributions.
func fuseRanks(k int, lists ...[]driven.SearchHit) []fusedHit {
	scores := make(map[string]float64)
	owners := make(map[string]string)

	for _, list := range lists {
		for i, hit := range list {
			scores[hit.EmbeddingID] += 1.0 / float64(k+i+1)
			owners[hit.EmbeddingID] = hit.DocumentID
		}
	}

	fused := make([]fusedHit, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, fusedHit{embeddingID: id, documentID: owners[id], score: score})
	}

	// Embedding ID breaks score ties so fusion output is deterministic.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].embeddingID < fused[j].embeddingID
	})
	return fused
}

// hydrate loads the embedding and document behind each fused hit.
// Candidates deleted since the branch queries ran are skipped.
func (s *SearchService) hydrate(ctx context.Context, fused []fusedHit) ([]domain.ResultItem, error) {
	results := make([]domain.ResultItem, 0, len(fused))

	for _, hit := range fused {
		emb, err := s.embs.Get(ctx, hit.embeddingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get embedding %s: %w", hit.embeddingID, err)
		}

		doc, err := s.docs.GetByID(ctx, emb.DocumentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get document %s: %w", emb.DocumentID, err)
		}

		results = append(results, domain.ResultItem{
			DocumentID:     doc.ID,
			Title:          doc.Title,
			SourceType:     doc.SourceType,
			CreatedAt:      doc.CreatedAt,
			EmbeddingType:  emb.Type,
			MatchedContent: emb.Content,
			RRFScore:       hit.score,
		})
	}
	return results, nil
}

// orderResults sorts by fused score, newest document first on ties,
// document ID as the final tie-break.
func orderResults(results []domain.ResultItem) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

// dedupeByDocument keeps only the best-ranked item per document.
// Results must already be ordered.
func dedupeByDocument(results []domain.ResultItem) []domain.ResultItem {
	seen := make(map[string]bool, len(results))
	deduped := results[:0]
	for _, r := range results {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		deduped = append(deduped, r)
	}
	return deduped
}
