// Package file loads and persists the engine's TOML configuration.
// Every tuning knob lives here rather than as a constant: fusion
// parameters, candidate windows, chunk sizes, worker counts, timeouts,
// rate limits, and the embedding model registry.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/packrat-labs/packrat/internal/core/domain"
)

// DefaultDirName is the per-user data directory under $HOME.
const DefaultDirName = ".packrat"

// Config is the full engine configuration.
type Config struct {
	// DataDir holds the SQLite database. Defaults to the config
	// file's directory.
	DataDir string `toml:"data_dir,omitempty"`

	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Search    SearchConfig    `toml:"search"`
	Ingest    IngestConfig    `toml:"ingest"`

	// Models declares the known embedding models. Every vector
	// operation names one of these.
	Models []ModelConfig `toml:"models"`
}

// EmbeddingConfig selects and configures the embedding collaborator.
type EmbeddingConfig struct {
	// Provider is "ollama" or "openai".
	Provider string `toml:"provider"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `toml:"base_url,omitempty"`

	// APIKey authenticates hosted providers. The OPENAI_API_KEY
	// environment variable takes precedence when set.
	APIKey string `toml:"api_key,omitempty"`

	// DefaultModel is used when a command does not name a model.
	DefaultModel string `toml:"default_model"`
}

// LLMConfig configures the enrichment collaborator. Enrichment is
// optional: with no API key the pipeline keeps base metadata only.
type LLMConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model,omitempty"`
}

// QdrantConfig configures the optional ANN backend. With an empty
// BaseURL the SQLite scan serves the semantic branch.
type QdrantConfig struct {
	BaseURL          string `toml:"base_url,omitempty"`
	APIKey           string `toml:"api_key,omitempty"`
	CollectionPrefix string `toml:"collection_prefix,omitempty"`
}

// SearchConfig holds the rank-fusion knobs.
type SearchConfig struct {
	// RRFK is the k constant in 1/(k+rank).
	RRFK int `toml:"rrf_k"`

	// CandidateWindow is how many hits each branch fetches before fusion.
	CandidateWindow int `toml:"candidate_window"`
}

// IngestConfig holds pipeline tuning.
type IngestConfig struct {
	// ChunkSize is the maximum characters per content chunk.
	ChunkSize int `toml:"chunk_size"`

	// Workers bounds batch ingestion concurrency.
	Workers int `toml:"workers"`

	// CallTimeoutSeconds caps each external collaborator call.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`

	// RateLimit throttles external collaborator calls per second.
	// Zero means unlimited.
	RateLimit float64 `toml:"rate_limit,omitempty"`
}

// ModelConfig declares one embedding model's vector space.
type ModelConfig struct {
	Name       string `toml:"name"`
	Dimensions int    `toml:"dimensions"`

	// Metric is "cosine", "dot", or "l2". Defaults to cosine.
	Metric string `toml:"metric,omitempty"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Provider:     "ollama",
			DefaultModel: "nomic-embed-text",
		},
		Search: SearchConfig{
			RRFK:            60,
			CandidateWindow: 50,
		},
		Ingest: IngestConfig{
			ChunkSize:          1200,
			Workers:            4,
			CallTimeoutSeconds: 30,
		},
		Models: []ModelConfig{
			{Name: "nomic-embed-text", Dimensions: 768, Metric: "cosine"},
		},
	}
}

// DefaultDir returns the per-user config directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// Load reads the config from dir. A missing file yields the defaults;
// the directory is created so the store has somewhere to live.
func Load(dir string) (Config, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return Config{}, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Config{}, fmt.Errorf("creating config dir: %w", err)
	}

	cfg := Default()
	cfg.DataDir = dir

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save persists the config to dir with restricted permissions.
func Save(dir string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.toml"), data, 0600)
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q",
			domain.ErrValidation, c.Embedding.Provider)
	}

	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("%w: model entry without a name", domain.ErrValidation)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate model %q", domain.ErrValidation, m.Name)
		}
		seen[m.Name] = true
		if m.Dimensions <= 0 {
			return fmt.Errorf("%w: model %q needs positive dimensions",
				domain.ErrValidation, m.Name)
		}
		switch m.Metric {
		case "", "cosine", "dot", "l2":
		default:
			return fmt.Errorf("%w: model %q has unknown metric %q",
				domain.ErrValidation, m.Name, m.Metric)
		}
	}

	if c.Embedding.DefaultModel != "" && !seen[c.Embedding.DefaultModel] {
		return fmt.Errorf("%w: default model %q is not declared",
			domain.ErrValidation, c.Embedding.DefaultModel)
	}
	if c.Search.RRFK < 0 || c.Search.CandidateWindow < 0 {
		return fmt.Errorf("%w: negative search tuning values", domain.ErrValidation)
	}
	return nil
}

// Registry builds the model registry from the declared models.
func (c Config) Registry() *domain.ModelRegistry {
	registry := domain.NewModelRegistry()
	for _, m := range c.Models {
		metric := domain.MetricCosine
		switch m.Metric {
		case "dot":
			metric = domain.MetricDot
		case "l2":
			metric = domain.MetricL2
		}
		// Entries were checked by Validate.
		_ = registry.Register(domain.ModelInfo{
			Name:       m.Name,
			Dimensions: m.Dimensions,
			Metric:     metric,
		})
	}
	return registry
}

// SearchPolicy converts the search section into fusion parameters.
func (c Config) SearchPolicy() domain.SearchPolicy {
	policy := domain.DefaultSearchPolicy()
	if c.Search.RRFK > 0 {
		policy.RRFK = c.Search.RRFK
	}
	if c.Search.CandidateWindow > 0 {
		policy.CandidateWindow = c.Search.CandidateWindow
	}
	return policy
}

// CallTimeout returns the ingest call timeout as a duration.
func (c Config) CallTimeout() time.Duration {
	if c.Ingest.CallTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Ingest.CallTimeoutSeconds) * time.Second
}
