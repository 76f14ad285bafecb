// Package config loads dupscan settings from the environment, an optional
// .env file and an optional per-workspace .dupscan.yaml file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/dshills/dupscan/internal/embedder"
	"github.com/dshills/dupscan/internal/indexer"
	"github.com/dshills/dupscan/internal/searcher"
	"github.com/dshills/dupscan/internal/storage"
	"github.com/dshills/dupscan/internal/walker"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "DUPSCAN"

// ProjectFileName is the per-workspace overlay read by ApplyProject
const ProjectFileName = ".dupscan.yaml"

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DBPath      string `envconfig:"DB_PATH"`
	Backend     string `envconfig:"BACKEND" default:"sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	EmbeddingProvider string  `envconfig:"EMBEDDING_PROVIDER"`
	EmbeddingModel    string  `envconfig:"EMBEDDING_MODEL"`
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	JinaAPIKey        string  `envconfig:"JINA_API_KEY"`
	OllamaURL         string  `envconfig:"OLLAMA_URL"`
	OllamaModel       string  `envconfig:"OLLAMA_MODEL"`
	Dimension         int     `envconfig:"DIMENSION" default:"384"`
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"0"`
	CacheSize         int     `envconfig:"CACHE_SIZE" default:"10000"`

	WindowSize  int      `envconfig:"WINDOW_SIZE" default:"5"`
	BatchSize   int      `envconfig:"BATCH_SIZE" default:"10"`
	Workers     int      `envconfig:"WORKERS" default:"4"`
	MaxFileSize int64    `envconfig:"MAX_FILE_SIZE" default:"1048576"`
	Include     []string `envconfig:"INCLUDE"`
	Exclude     []string `envconfig:"EXCLUDE"`

	CoarseDistance float64 `envconfig:"COARSE_DISTANCE" default:"0.20"`
	FineSimilarity float64 `envconfig:"FINE_SIMILARITY" default:"0.80"`
	CandidateCap   int     `envconfig:"CANDIDATE_CAP" default:"100000"`
	ResultLimit    int     `envconfig:"RESULT_LIMIT" default:"50"`
	BucketSize     int     `envconfig:"BUCKET_SIZE" default:"5"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env (when present) and DUPSCAN_* variables, fills derived
// defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.DBPath == "" {
		path, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultDBPath returns ~/.dupscan/index.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".dupscan", "index.db"), nil
}

// Validate rejects settings the pipeline cannot run with. The coarse
// distance cap must admit at least every pair the fine threshold keeps.
func (c *Config) Validate() error {
	switch {
	case c.WindowSize <= 0:
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.BucketSize <= 0:
		return fmt.Errorf("%w: bucket size must be positive, got %d", ErrInvalidConfig, c.BucketSize)
	case c.CandidateCap <= 0:
		return fmt.Errorf("%w: candidate cap must be positive, got %d", ErrInvalidConfig, c.CandidateCap)
	case c.ResultLimit < 0:
		return fmt.Errorf("%w: result limit must not be negative, got %d", ErrInvalidConfig, c.ResultLimit)
	case c.CoarseDistance <= 0 || c.CoarseDistance >= 1:
		return fmt.Errorf("%w: coarse distance must be in (0,1), got %g", ErrInvalidConfig, c.CoarseDistance)
	case c.FineSimilarity <= 0 || c.FineSimilarity >= 1:
		return fmt.Errorf("%w: fine similarity must be in (0,1), got %g", ErrInvalidConfig, c.FineSimilarity)
	case 1-c.CoarseDistance > c.FineSimilarity:
		return fmt.Errorf("%w: coarse distance %g is stricter than fine similarity %g",
			ErrInvalidConfig, c.CoarseDistance, c.FineSimilarity)
	}

	switch c.Backend {
	case storage.BackendSQLite:
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres backend requires %s_DATABASE_URL", ErrInvalidConfig, EnvPrefix)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ProjectFile is the optional per-workspace overlay
type ProjectFile struct {
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`
	WindowSize int      `yaml:"window_size"`
	Thresholds struct {
		CoarseDistance float64 `yaml:"coarse_distance"`
		FineSimilarity float64 `yaml:"fine_similarity"`
	} `yaml:"thresholds"`
	Limit int `yaml:"limit"`
}

// LoadProjectFile parses <workspace>/.dupscan.yaml. A missing file returns
// (nil, nil).
func LoadProjectFile(workspace string) (*ProjectFile, error) {
	data, err := os.ReadFile(filepath.Join(workspace, ProjectFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading project file: %w", err)
	}

	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFileName, err)
	}
	return &pf, nil
}

// ForWorkspace returns a copy of c with the workspace project file applied
// on top. Unset keys in the file leave the current value alone.
func (c *Config) ForWorkspace(workspace string) (*Config, error) {
	out := *c
	pf, err := LoadProjectFile(workspace)
	if err != nil {
		return nil, err
	}
	if pf == nil {
		return &out, nil
	}

	if len(pf.Include) > 0 {
		out.Include = pf.Include
	}
	if len(pf.Exclude) > 0 {
		out.Exclude = append(append([]string(nil), c.Exclude...), pf.Exclude...)
	}
	if pf.WindowSize != 0 {
		out.WindowSize = pf.WindowSize
	}
	if pf.Thresholds.CoarseDistance != 0 {
		out.CoarseDistance = pf.Thresholds.CoarseDistance
	}
	if pf.Thresholds.FineSimilarity != 0 {
		out.FineSimilarity = pf.Thresholds.FineSimilarity
	}
	if pf.Limit != 0 {
		out.ResultLimit = pf.Limit
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ProjectFileName, err)
	}
	return &out, nil
}

// StorageOptions returns the options for storage.Open
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{Backend: c.Backend, Path: c.DBPath, URL: c.DatabaseURL}
}

// EmbedderConfig returns the options for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	cfg := embedder.Config{
		Provider:          c.EmbeddingProvider,
		Model:             c.EmbeddingModel,
		Dimension:         c.Dimension,
		CacheSize:         c.CacheSize,
		RequestsPerSecond: c.RequestsPerSecond,
		JinaAPIKey:        c.JinaAPIKey,
		OpenAIAPIKey:      c.OpenAIAPIKey,
	}
	if strings.EqualFold(c.EmbeddingProvider, embedder.ProviderOllama) {
		cfg.BaseURL = c.OllamaURL
		if cfg.Model == "" {
			cfg.Model = c.OllamaModel
		}
	}
	return cfg
}

// IndexerConfig returns the options for indexer.New
func (c *Config) IndexerConfig(logger *slog.Logger, lock *indexer.IndexLock) indexer.Config {
	return indexer.Config{
		WindowSize: c.WindowSize,
		BatchSize:  c.BatchSize,
		Workers:    c.Workers,
		Walk: walker.Options{
			Include:     c.Include,
			Exclude:     c.Exclude,
			MaxFileSize: c.MaxFileSize,
		},
		Logger: logger,
		Lock:   lock,
	}
}

// SearchOptions returns the searcher options for one workspace
func (c *Config) SearchOptions(workspace string) searcher.Options {
	return searcher.Options{
		Workspace:     workspace,
		MaxDistance:   c.CoarseDistance,
		MinSimilarity: c.FineSimilarity,
		WindowSize:    c.WindowSize,
		BucketSize:    c.BucketSize,
		CandidateCap:  c.CandidateCap,
		Limit:         c.ResultLimit,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at the configured level
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
