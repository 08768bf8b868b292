package domain

import "time"

// Filters are conjunctive predicates applied to both search branches
// before ranking, so vector and keyword search rank the same candidates.
type Filters struct {
	// SourceTypes restricts to documents of these types. Empty means all.
	SourceTypes []SourceType

	// CreatedAfter keeps documents authored at or after this time.
	CreatedAfter *time.Time

	// CreatedBefore keeps documents authored before this time.
	CreatedBefore *time.Time

	// Metadata requires equality on schema-declared metadata entries.
	// Values are compared in their string form.
	Metadata map[string]string
}

// Empty reports whether no predicate is set.
func (f Filters) Empty() bool {
	return len(f.SourceTypes) == 0 && f.CreatedAfter == nil &&
		f.CreatedBefore == nil && len(f.Metadata) == 0
}

// Query is a structured hybrid search request.
type Query struct {
	// SemanticText is embedded and matched against stored vectors.
	SemanticText string

	// Keywords feed the full-text branch. When empty, the planner
	// falls back to SemanticText.
	Keywords []string

	// Filters restrict the candidate set in both branches.
	Filters Filters

	// Model selects the vector space to search. Required for the
	// semantic branch.
	Model string

	// Types optionally restricts which aspects are searched.
	Types []EmbeddingType

	// TopK caps the number of results returned.
	TopK int

	// DeduplicateByDocument keeps only the best embedding per document.
	DeduplicateByDocument bool
}

// ResultItem is one ranked hybrid search hit.
type ResultItem struct {
	DocumentID     string
	Title          string
	SourceType     SourceType
	CreatedAt      time.Time
	EmbeddingType  EmbeddingType
	MatchedContent string
	RRFScore       float64
}

// SearchPolicy holds the rank-fusion tuning knobs. The defaults come
// from the usual RRF literature but are deliberately configuration,
// not constants.
type SearchPolicy struct {
	// RRFK is the k constant in 1/(k+rank).
	RRFK int

	// CandidateWindow is how many hits each branch fetches before fusion.
	CandidateWindow int
}

// DefaultSearchPolicy returns the stock fusion parameters.
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{RRFK: 60, CandidateWindow: 50}
}

// DefaultTopK caps results when the query does not say.
const DefaultTopK = 10
