// Package cli provides the cobra command tree. Commands drive the core
// only through the driving ports; wiring happens in cmd/packrat.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
	"github.com/packrat-labs/packrat/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services are injected once at startup.
var (
	ingestor        driving.Ingestor
	searchService   driving.Searcher
	documentService driving.DocumentService

	// newSource acquires items from a directory tree. Injected so the
	// commands stay testable without touching the filesystem.
	newSource func(root string) driven.ItemSource

	// defaultModel is used when a command does not pass --model.
	defaultModel string
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "packrat",
	Short: "Personal document retrieval engine",
	Long: `packrat ingests personal documents (emails, PDFs, notes, images),
enriches them with structured metadata, and makes them searchable
through hybrid semantic and keyword retrieval.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Services bundles everything the command tree needs.
type Services struct {
	Ingestor        driving.Ingestor
	Searcher        driving.Searcher
	DocumentService driving.DocumentService
	NewSource       func(root string) driven.ItemSource
	DefaultModel    string
	Version         string
}

// SetServices injects the service implementations.
func SetServices(s Services) {
	ingestor = s.Ingestor
	searchService = s.Searcher
	documentService = s.DocumentService
	newSource = s.NewSource
	defaultModel = s.DefaultModel
	if s.Version != "" {
		version = s.Version
	}
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
