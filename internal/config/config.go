// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (LIMBUSGUIDE_* runtime override)
//  2. Config file (~/.limbusguide/config.yaml)
//  3. Default values
//
// The retrieval sub-configuration is an immutable value handed to the
// retriever and knowledge base manager at construction; nothing reads
// configuration through a process-wide lookup after startup.
//
// Error Handling:
//   - Sentinel errors for Go-idiomatic checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunking indicates chunk_size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidGroupBoost indicates group_boost is below 1.0.
	ErrInvalidGroupBoost = errors.New("invalid group_boost")

	// ErrInvalidBM25 indicates the BM25 parameters are out of range.
	ErrInvalidBM25 = errors.New("invalid BM25 parameters")

	// ErrInvalidMode indicates the default answer mode is unknown.
	ErrInvalidMode = errors.New("invalid answer mode")

	// ErrInvalidServer indicates the admin server configuration is unusable.
	ErrInvalidServer = errors.New("invalid server configuration")

	// ErrInvalidImportTimeout indicates the import session timeout is non-positive.
	ErrInvalidImportTimeout = errors.New("invalid import timeout")
)

// Default retrieval constants. These mirror the tuning the knowledge base
// ships with; all of them can be overridden per deployment.
const (
	DefaultTopK        = 6
	DefaultChunkSize   = 800
	DefaultOverlap     = 120
	DefaultGroupBoost  = 1.2
	DefaultTagBoost    = 1.5
	DefaultEmbedWeight = 2.0
	DefaultBM25K1      = 1.5
	DefaultBM25B       = 0.75

	// DefaultRerankWindowFactor bounds reranker cost: the candidate window
	// submitted to the reranker is factor × top_k.
	DefaultRerankWindowFactor = 3

	// DefaultImportTimeout is how long a group import session stays open
	// without an explicit finish.
	DefaultImportTimeout = 60 * time.Second

	// DefaultProviderTimeout bounds embedding/reranking provider calls.
	DefaultProviderTimeout = 15 * time.Second
)

// Retrieval is the immutable retrieval configuration consumed by the
// retriever and the knowledge base manager.
type Retrieval struct {
	TopK               int     `mapstructure:"top_k"`
	ChunkSize          int     `mapstructure:"chunk_size"`
	Overlap            int     `mapstructure:"overlap"`
	GroupBoost         float64 `mapstructure:"group_boost"`
	TagBoost           float64 `mapstructure:"tag_boost"`
	EmbedWeight        float64 `mapstructure:"embed_weight"`
	BM25K1             float64 `mapstructure:"bm25_k1"`
	BM25B              float64 `mapstructure:"bm25_b"`
	RerankWindowFactor int     `mapstructure:"rerank_window_factor"`
	UseEmbedding       bool    `mapstructure:"use_embedding"`
	UseReranking       bool    `mapstructure:"use_reranking"`

	// DetailTriggers force detail mode when any of them appears in a query.
	// Empty means use the built-in list.
	DetailTriggers []string `mapstructure:"detail_triggers"`

	ImportTimeout time.Duration `mapstructure:"import_timeout"`
}

// RerankWindow returns the pre-rerank candidate window for a given top_k.
func (r Retrieval) RerankWindow(topK int) int {
	factor := r.RerankWindowFactor
	if factor < 1 {
		factor = DefaultRerankWindowFactor
	}
	return factor * topK
}

// Server configures the admin HTTP API.
type Server struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`

	// Token is the bearer token required on every admin request.
	// Empty means a random token is generated at startup and logged once.
	Token string `mapstructure:"token"`

	// RateLimit is requests per second per client IP; Burst is the bucket size.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// Providers configures the outbound embedding/reranking adapters.
type Providers struct {
	// EmbedderModel is the googlegenai embedder model looked up through
	// Genkit when use_embedding is on.
	EmbedderModel string `mapstructure:"embedder_model"`

	// RerankBaseURL is the base URL of an OpenAI-compatible rerank endpoint.
	RerankBaseURL string `mapstructure:"rerank_base_url"`
	RerankModel   string `mapstructure:"rerank_model"`

	// RerankAPIKeyEnv names the environment variable holding the rerank
	// API key. The key itself never appears in config files.
	RerankAPIKeyEnv string `mapstructure:"rerank_api_key_env"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// Config stores the full application configuration.
type Config struct {
	DBPath string `mapstructure:"db_path"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	Retrieval Retrieval `mapstructure:"retrieval"`
	Server    Server    `mapstructure:"server"`
	Providers Providers `mapstructure:"providers"`
}

// Load reads configuration from file, environment and defaults.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LIMBUSGUIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.DBPath == "" {
		dir, err := configDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		cfg.DBPath = filepath.Join(dir, "limbusguide.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with all defaults applied.
// Handy for tests and embedding the core without viper.
func Default() Config {
	return Config{
		LogLevel: "info",
		Retrieval: Retrieval{
			TopK:               DefaultTopK,
			ChunkSize:          DefaultChunkSize,
			Overlap:            DefaultOverlap,
			GroupBoost:         DefaultGroupBoost,
			TagBoost:           DefaultTagBoost,
			EmbedWeight:        DefaultEmbedWeight,
			BM25K1:             DefaultBM25K1,
			BM25B:              DefaultBM25B,
			RerankWindowFactor: DefaultRerankWindowFactor,
			ImportTimeout:      DefaultImportTimeout,
		},
		Server: Server{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      8765,
			RateLimit: 10,
			Burst:     20,
		},
		Providers: Providers{
			EmbedderModel:   "gemini-embedding-001",
			RerankAPIKeyEnv: "LIMBUSGUIDE_RERANK_API_KEY",
			Timeout:         DefaultProviderTimeout,
		},
	}
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("retrieval.top_k", def.Retrieval.TopK)
	v.SetDefault("retrieval.chunk_size", def.Retrieval.ChunkSize)
	v.SetDefault("retrieval.overlap", def.Retrieval.Overlap)
	v.SetDefault("retrieval.group_boost", def.Retrieval.GroupBoost)
	v.SetDefault("retrieval.tag_boost", def.Retrieval.TagBoost)
	v.SetDefault("retrieval.embed_weight", def.Retrieval.EmbedWeight)
	v.SetDefault("retrieval.bm25_k1", def.Retrieval.BM25K1)
	v.SetDefault("retrieval.bm25_b", def.Retrieval.BM25B)
	v.SetDefault("retrieval.rerank_window_factor", def.Retrieval.RerankWindowFactor)
	v.SetDefault("retrieval.use_embedding", false)
	v.SetDefault("retrieval.use_reranking", false)
	v.SetDefault("retrieval.import_timeout", def.Retrieval.ImportTimeout)
	v.SetDefault("server.enabled", def.Server.Enabled)
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.rate_limit", def.Server.RateLimit)
	v.SetDefault("server.burst", def.Server.Burst)
	v.SetDefault("providers.embedder_model", def.Providers.EmbedderModel)
	v.SetDefault("providers.rerank_api_key_env", def.Providers.RerankAPIKeyEnv)
	v.SetDefault("providers.timeout", def.Providers.Timeout)
}

// Validate checks the configuration, rejecting it before any ingestion
// happens. All violations map to sentinel errors.
func (c *Config) Validate() error {
	r := c.Retrieval

	if r.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, r.ChunkSize)
	}
	if r.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunking, r.Overlap)
	}
	if r.Overlap >= r.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk_size %d", ErrInvalidChunking, r.Overlap, r.ChunkSize)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidTopK, r.TopK)
	}
	if r.GroupBoost < 1.0 {
		return fmt.Errorf("%w: group_boost must be at least 1.0, got %g", ErrInvalidGroupBoost, r.GroupBoost)
	}
	if r.BM25K1 <= 0 {
		return fmt.Errorf("%w: k1 must be positive, got %g", ErrInvalidBM25, r.BM25K1)
	}
	if r.BM25B < 0 || r.BM25B > 1 {
		return fmt.Errorf("%w: b must be within [0,1], got %g", ErrInvalidBM25, r.BM25B)
	}
	if r.ImportTimeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidImportTimeout, r.ImportTimeout)
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidServer, c.Server.Port)
		}
		if c.Server.RateLimit <= 0 {
			return fmt.Errorf("%w: rate_limit must be positive, got %g", ErrInvalidServer, c.Server.RateLimit)
		}
	}

	return nil
}

// configDir returns (and creates) ~/.limbusguide.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".limbusguide")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
