package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

var (
	searchModel    string
	searchKeywords []string
	searchTypes    []string
	searchSources  []string
	searchAfter    string
	searchBefore   string
	searchMeta     []string
	searchTop      int
	searchDedupe   bool
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Performs hybrid search across all ingested documents.
Combines keyword (BM25) and semantic (vector) search, fusing both
rankings with reciprocal rank fusion. Filters narrow the candidate
set in both branches.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchModel, "model", "m", "", "embedding model for the semantic branch")
	searchCmd.Flags().StringSliceVarP(&searchKeywords, "keyword", "k", nil, "explicit keyword for the full-text branch (repeatable)")
	searchCmd.Flags().StringSliceVarP(&searchTypes, "type", "t", nil, "restrict to aspect types (title, summary, content_chunk, ocr_text)")
	searchCmd.Flags().StringSliceVarP(&searchSources, "source-type", "s", nil, "restrict to source types (email, pdf, note, image, webpage)")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "keep documents created at or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "keep documents created before this date (YYYY-MM-DD)")
	searchCmd.Flags().StringSliceVar(&searchMeta, "meta", nil, "metadata equality filter as key=value (repeatable)")
	searchCmd.Flags().IntVarP(&searchTop, "top", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVarP(&searchDedupe, "dedupe", "d", false, "keep only the best match per document")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	query, err := buildQuery(args)
	if err != nil {
		return err
	}

	results, err := searchService.Search(context.Background(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

// buildQuery translates flags and the positional argument into a
// structured query.
func buildQuery(args []string) (domain.Query, error) {
	query := domain.Query{
		Keywords:              searchKeywords,
		TopK:                  searchTop,
		DeduplicateByDocument: searchDedupe,
	}
	if len(args) == 1 {
		query.SemanticText = args[0]
	}

	if query.SemanticText != "" {
		query.Model = searchModel
		if query.Model == "" {
			query.Model = defaultModel
		}
	}

	for _, raw := range searchTypes {
		t := domain.EmbeddingType(strings.TrimSpace(raw))
		if !t.Valid() {
			return domain.Query{}, fmt.Errorf("unknown aspect type %q", raw)
		}
		query.Types = append(query.Types, t)
	}

	for _, raw := range searchSources {
		st := domain.SourceType(strings.TrimSpace(raw))
		if !st.Valid() {
			return domain.Query{}, fmt.Errorf("unknown source type %q", raw)
		}
		query.Filters.SourceTypes = append(query.Filters.SourceTypes, st)
	}

	if searchAfter != "" {
		after, err := parseDate(searchAfter)
		if err != nil {
			return domain.Query{}, fmt.Errorf("invalid --after: %w", err)
		}
		query.Filters.CreatedAfter = &after
	}
	if searchBefore != "" {
		before, err := parseDate(searchBefore)
		if err != nil {
			return domain.Query{}, fmt.Errorf("invalid --before: %w", err)
		}
		query.Filters.CreatedBefore = &before
	}

	for _, pair := range searchMeta {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return domain.Query{}, fmt.Errorf("invalid --meta %q: want key=value", pair)
		}
		if query.Filters.Metadata == nil {
			query.Filters.Metadata = make(map[string]string)
		}
		query.Filters.Metadata[key] = value
	}

	return query, nil
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.ResultItem) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.ResultItem) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		title := results[i].Title
		if title == "" {
			title = results[i].DocumentID
		}

		cmd.Printf("  [%d] %s (%.4f)\n", i+1, title, results[i].RRFScore)
		cmd.Printf("      %s · %s", results[i].SourceType, results[i].EmbeddingType)
		if !results[i].CreatedAt.IsZero() {
			cmd.Printf(" · %s", results[i].CreatedAt.Format("2006-01-02"))
		}
		cmd.Println()
		if snippet := snippetOf(results[i].MatchedContent); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}

	return nil
}

// snippetOf trims matched content to one display line.
const snippetLength = 120

func snippetOf(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > snippetLength {
		content = content[:snippetLength] + "..."
	}
	return content
}
