// Command packrat is the retrieval engine's CLI entry point. It loads
// the configuration, wires the adapters to the core services, and hands
// control to the cobra command tree.
package main

import (
	"context"
	"os"
	"time"

	configfile "github.com/packrat-labs/packrat/internal/adapters/driven/config/file"
	ollamaembed "github.com/packrat-labs/packrat/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/packrat-labs/packrat/internal/adapters/driven/embedding/openai"
	"github.com/packrat-labs/packrat/internal/adapters/driven/extract"
	openaillm "github.com/packrat-labs/packrat/internal/adapters/driven/llm/openai"
	"github.com/packrat-labs/packrat/internal/adapters/driven/source/filesystem"
	"github.com/packrat-labs/packrat/internal/adapters/driven/storage/sqlite"
	"github.com/packrat-labs/packrat/internal/adapters/driven/vector/qdrant"
	"github.com/packrat-labs/packrat/internal/adapters/driving/cli"
	"github.com/packrat-labs/packrat/internal/chunker"
	"github.com/packrat-labs/packrat/internal/core/ports/driven"
	"github.com/packrat-labs/packrat/internal/core/services"
	"github.com/packrat-labs/packrat/internal/logger"

	"golang.org/x/time/rate"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// pingTimeout bounds the startup reachability check of the embedding
// service.
const pingTimeout = 3 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := configfile.Load(os.Getenv("PACKRAT_HOME"))
	if err != nil {
		return err
	}

	registry := cfg.Registry()

	store, err := sqlite.NewStore(cfg.DataDir, registry)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	// A dead embedding service is only fatal once a command needs a
	// vector, so an unreachable one is just worth a warning here.
	pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	if err := embedder.Ping(pingCtx); err != nil {
		logger.Warn("Embedding service unreachable: %v", err)
	}
	cancel()

	pipelineOpts := []services.PipelineOption{
		services.WithWorkers(cfg.Ingest.Workers),
		services.WithSplitter(chunker.New(chunker.WithMaxSize(cfg.Ingest.ChunkSize))),
	}
	if d := cfg.CallTimeout(); d > 0 {
		pipelineOpts = append(pipelineOpts, services.WithCallTimeout(d))
	}
	if cfg.Ingest.RateLimit > 0 {
		pipelineOpts = append(pipelineOpts, services.WithRateLimit(rate.Limit(cfg.Ingest.RateLimit), 1))
	}

	// Enrichment and summarisation are optional: without an API key the
	// pipeline keeps base metadata and skips summaries.
	var enricher driven.MetadataExtractor
	if llm := buildLLM(cfg); llm != nil {
		enricher = llm
		pipelineOpts = append(pipelineOpts, services.WithSummariser(llm))
		defer llm.Close()
	}

	vectorSearcher := store.VectorSearcher()
	documents := services.NewDocumentService(store.DocumentStore())

	// The ANN backend replaces the SQLite scan for the semantic branch
	// when configured.
	if cfg.Qdrant.BaseURL != "" {
		index := qdrant.NewIndex(qdrant.Config{
			BaseURL:          cfg.Qdrant.BaseURL,
			APIKey:           cfg.Qdrant.APIKey,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
		})
		defer index.Close()

		vectorSearcher = index
		documents.SetANNIndex(index)
		pipelineOpts = append(pipelineOpts, services.WithANNIndex(index))
	}

	pipeline := services.NewIngestionPipeline(
		store.DocumentStore(),
		store.EmbeddingStore(),
		extract.New(),
		enricher,
		embedder,
		registry,
		pipelineOpts...,
	)

	searcher := services.NewSearchService(
		store.DocumentStore(),
		store.EmbeddingStore(),
		vectorSearcher,
		store.KeywordSearcher(),
		embedder,
		services.NewQueryPlanner(cfg.SearchPolicy()),
	)

	cli.SetServices(cli.Services{
		Ingestor:        pipeline,
		Searcher:        searcher,
		DocumentService: documents,
		NewSource: func(root string) driven.ItemSource {
			return filesystem.New(root)
		},
		DefaultModel: cfg.Embedding.DefaultModel,
		Version:      version,
	})

	return cli.Execute()
}

// buildEmbedder selects the embedding collaborator from configuration.
func buildEmbedder(cfg configfile.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  apiKey(cfg.Embedding.APIKey),
			BaseURL: cfg.Embedding.BaseURL,
		})
	default:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: cfg.Embedding.BaseURL,
		}), nil
	}
}

// buildLLM creates the enrichment collaborator, or nil when no API key
// is available.
func buildLLM(cfg configfile.Config) *openaillm.LLMService {
	key := apiKey(cfg.LLM.APIKey)
	if key == "" {
		logger.Debug("No LLM API key configured; metadata enrichment disabled")
		return nil
	}

	llm, err := openaillm.NewLLMService(openaillm.LLMConfig{
		APIKey:  key,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		logger.Warn("LLM service unavailable: %v", err)
		return nil
	}
	return llm
}

// apiKey prefers the environment over the config file, so keys need
// not be written to disk.
func apiKey(configured string) string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return configured
}
