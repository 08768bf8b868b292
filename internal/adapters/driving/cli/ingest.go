package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/packrat-labs/packrat/internal/core/domain"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/ports/driving"
	"github.com/packrat-labs/packrat/internal/logger"
)

var (
	ingestModel   string
	ingestUpdate  bool
	ingestSummary bool
	ingestWatch   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest documents from a directory",
	Long: `Scans a directory tree and ingests every eligible file: text is
extracted, metadata enriched, and embeddings generated for search.
With --watch the command keeps running and ingests files as they
appear or change.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestModel, "model", "m", "", "embedding model (defaults to the configured model)")
	ingestCmd.Flags().BoolVarP(&ingestUpdate, "update", "u", false, "re-ingest already-known items, refreshing changed aspects")
	ingestCmd.Flags().BoolVar(&ingestSummary, "summary", false, "generate a summary aspect for each document")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the directory after the initial scan")
	rootCmd.AddCommand(ingestCmd)
}

func ingestOptions() (driving.IngestOptions, error) {
	model := ingestModel
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		return driving.IngestOptions{}, errors.New("no embedding model: pass --model or configure a default")
	}

	opts := driving.IngestOptions{
		Model:           model,
		GenerateSummary: ingestSummary,
	}
	if ingestUpdate {
		opts.OnConflict = domain.ConflictUpdate
	}
	return opts, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingestor not configured")
	}
	if newSource == nil {
		return errors.New("item source not configured")
	}

	opts, err := ingestOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := newSource(args[0])
	defer source.Close()

	items, errs := source.Scan(ctx)

	// Collect the scan first, then hand everything to the batch
	// ingestor so its worker pool bounds the actual ingestion.
	var batch []domain.SourceItem
	for item := range items {
		batch = append(batch, item)
	}
	for err := range errs {
		cmd.PrintErrf("scan: %v\n", err)
	}

	var ingested, skipped, failed int
	for i, report := range ingestor.IngestBatch(ctx, batch, opts) {
		switch {
		case report.DocumentID != "":
			ingested++
			printReport(cmd, batch[i], &report)
		case report.Conflicted():
			skipped++
			logger.Debug("Skipping already-ingested %s", batch[i].SourceURI)
		default:
			failed++
			for _, w := range report.Warnings {
				cmd.PrintErrf("failed: %s: %s\n", batch[i].SourceURI, w.Message)
			}
		}
	}

	cmd.Printf("Ingested %d, skipped %d, failed %d.\n", ingested, skipped, failed)

	if !ingestWatch {
		return nil
	}
	return watchAndIngest(ctx, cmd, source, opts)
}

// watchAndIngest keeps ingesting as files change, until interrupted.
// Watched items always update in place: a re-written file should
// refresh its document rather than be rejected as a duplicate.
func watchAndIngest(ctx context.Context, cmd *cobra.Command, source driven.ItemSource, opts driving.IngestOptions) error {
	opts.OnConflict = domain.ConflictUpdate

	cmd.Println("Watching for changes. Press Ctrl-C to stop.")
	items, errs := source.Watch(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-items:
			if !ok {
				return nil
			}
			report, err := ingestor.Ingest(ctx, item, opts)
			if err != nil {
				cmd.PrintErrf("failed: %s: %v\n", item.SourceURI, err)
				continue
			}
			printReport(cmd, item, report)
		case err, ok := <-errs:
			if !ok {
				errs = nil // Stop selecting on the closed channel
				continue
			}
			cmd.PrintErrf("watch: %v\n", err)
		}
	}
}

// printReport summarises one ingestion on a single line, with warnings
// indented under it.
func printReport(cmd *cobra.Command, item domain.SourceItem, report *domain.IngestionReport) {
	cmd.Printf("%s  %s (stored %d, unchanged %d)\n",
		report.DocumentID, item.SourceURI,
		len(report.StoredAspects), len(report.SkippedAspects))
	for _, w := range report.Warnings {
		if w.Aspect != nil {
			cmd.Printf("    warning [%s] %s #%d: %s\n", w.Stage, w.Aspect.Type, w.Aspect.ChunkIndex, w.Message)
		} else {
			cmd.Printf("    warning [%s]: %s\n", w.Stage, w.Message)
		}
	}
}
