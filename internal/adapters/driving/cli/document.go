package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage ingested documents",
	Long:  `View or delete ingested documents.`,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and all its embeddings",
	Long: `Removes a document, every embedding derived from it, and its
entries in any external index.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentDelete,
}

func init() {
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.GetDocument(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Type:     %s\n", doc.SourceType)
	if doc.SourceID != "" {
		cmd.Printf("  Source:   %s\n", doc.SourceID)
	}
	if doc.SourceURI != "" {
		cmd.Printf("  URI:      %s\n", doc.SourceURI)
	}
	if !doc.CreatedAt.IsZero() {
		cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("  Added:    %s\n", doc.AddedAt.Format("2006-01-02 15:04:05"))

	printMetadata(cmd, doc.Metadata)
	return nil
}

// printMetadata lists fields and extra entries in key order.
func printMetadata(cmd *cobra.Command, meta domain.Metadata) {
	if len(meta.Fields) == 0 && len(meta.Extra) == 0 {
		return
	}

	cmd.Println("\n  Metadata:")

	keys := make([]string, 0, len(meta.Fields))
	for k := range meta.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("    %s: %s\n", k, formatValue(meta.Fields[k]))
	}

	keys = keys[:0]
	for k := range meta.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("    %s: %s\n", k, meta.Extra[k])
	}
}

func formatValue(v domain.Value) string {
	switch v.Kind {
	case domain.KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case domain.KindTimestamp:
		return v.Time.Format("2006-01-02 15:04:05")
	case domain.KindStringList:
		return fmt.Sprintf("%v", v.List)
	default:
		return v.Str
	}
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.DeleteDocument(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}
