package services

import (
	"strings"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
)

// QueryPlanner translates a structured query into the concrete requests
// the two search branches execute. Both requests carry the same filters
// and candidate window, so fusion ranks comparable populations.
type QueryPlanner struct {
	policy domain.SearchPolicy
}

// NewQueryPlanner creates a planner. Zero policy fields fall back to
// the stock fusion parameters.
func NewQueryPlanner(policy domain.SearchPolicy) *QueryPlanner {
	defaults := domain.DefaultSearchPolicy()
	if policy.RRFK <= 0 {
		policy.RRFK = defaults.RRFK
	}
	if policy.CandidateWindow <= 0 {
		policy.CandidateWindow = defaults.CandidateWindow
	}
	return &QueryPlanner{policy: policy}
}

// Policy returns the effective fusion parameters.
func (p *QueryPlanner) Policy() domain.SearchPolicy {
	return p.policy
}

// VectorRequest builds the semantic branch request around an already
// embedded query vector.
func (p *QueryPlanner) VectorRequest(q domain.Query, vector []float32) driven.VectorSearchRequest {
	return driven.VectorSearchRequest{
		Model:   q.Model,
		Vector:  vector,
		Types:   q.Types,
		Filters: q.Filters,
		Limit:   p.policy.CandidateWindow,
	}
}

// KeywordRequest builds the full-text branch request. When the query
// carries no explicit keywords the semantic text doubles as keyword
// input, so a plain natural-language query still exercises both
// branches.
func (p *QueryPlanner) KeywordRequest(q domain.Query) driven.KeywordSearchRequest {
	terms := q.Keywords
	if len(terms) == 0 {
		terms = strings.Fields(q.SemanticText)
	}

	return driven.KeywordSearchRequest{
		MatchQuery: matchExpression(terms),
		Types:      q.Types,
		Filters:    q.Filters,
		Limit:      p.policy.CandidateWindow,
	}
}

// matchExpression renders terms as a disjunctive FTS5 expression. Each
// term is quoted so user input matches literally instead of being
// parsed as query syntax.
func matchExpression(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(strings.ReplaceAll(term, `"`, ""))
		if term == "" {
			continue
		}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}
