// Package config resolves the effective configuration of a run.
//
// Sources are layered, lowest precedence first: built-in defaults, the TOML
// config file, a .env file, the process environment. Command-line flags are
// applied on top by the CLI before Validate is called.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

var (
	// ErrMissingRequired indicates a required setting is empty.
	ErrMissingRequired = errors.New("missing required configuration")

	// ErrInvalidValue indicates a setting is out of range or unknown.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Store kinds.
const (
	StoreSQLite   = "sqlite"
	StoreWeaviate = "weaviate"
	StoreMemory   = "memory"
)

// Duration is a time.Duration written as "90s" in TOML and the environment.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Embedding selects and reaches the embedding provider.
type Embedding struct {
	Provider       string  `toml:"provider" envconfig:"TENDER_PROVIDER"`
	Model          string  `toml:"model" envconfig:"TENDER_MODEL"`
	HostedProvider string  `toml:"hosted_provider" envconfig:"TENDER_HOSTED_PROVIDER"`
	OllamaHost     string  `toml:"ollama_host" envconfig:"OLLAMA_HOST"`
	OpenAIKey      string  `toml:"openai_api_key,omitempty" envconfig:"OPENAI_API_KEY"`
	GeminiKey      string  `toml:"gemini_api_key,omitempty" envconfig:"GEMINI_API_KEY"`
	HostedRPS      float64 `toml:"hosted_rps" envconfig:"TENDER_HOSTED_RPS"`
}

// Store selects the vector store.
type Store struct {
	Kind             string `toml:"kind" envconfig:"TENDER_STORE"`
	DataDir          string `toml:"data_dir,omitempty" envconfig:"TENDER_DATA_DIR"`
	Collection       string `toml:"collection,omitempty" envconfig:"TENDER_COLLECTION"`
	CollectionPrefix string `toml:"collection_prefix" envconfig:"TENDER_COLLECTION_PREFIX"`
	WeaviateHost     string `toml:"weaviate_host" envconfig:"WEAVIATE_HOST"`
	WeaviateScheme   string `toml:"weaviate_scheme" envconfig:"WEAVIATE_SCHEME"`
	WeaviateAPIKey   string `toml:"weaviate_api_key,omitempty" envconfig:"WEAVIATE_API_KEY"`
}

// Ingest sizes the pipeline.
type Ingest struct {
	ChunkSize    int `toml:"chunk_size" envconfig:"TENDER_CHUNK_SIZE"`
	ChunkOverlap int `toml:"chunk_overlap" envconfig:"TENDER_CHUNK_OVERLAP"`
	BatchSize    int `toml:"batch_size" envconfig:"TENDER_BATCH_SIZE"`
	// Workers is the extraction pool size. Zero uses one worker per CPU.
	Workers int `toml:"workers" envconfig:"TENDER_WORKERS"`
}

// OCR configures optical recognition of sparse pages.
type OCR struct {
	Enabled   bool     `toml:"enabled" envconfig:"TENDER_OCR_ENABLED"`
	MinChars  int      `toml:"min_chars" envconfig:"TENDER_OCR_MIN_CHARS"`
	Languages string   `toml:"languages" envconfig:"TENDER_OCR_LANGUAGES"`
	Timeout   Duration `toml:"timeout" envconfig:"TENDER_OCR_TIMEOUT"`
}

// Convert configures the office document converter.
type Convert struct {
	SofficeBin string   `toml:"soffice_bin" envconfig:"SOFFICE_BIN"`
	Timeout    Duration `toml:"timeout" envconfig:"TENDER_CONVERT_TIMEOUT"`
}

// Log configures the logger.
type Log struct {
	Verbose bool   `toml:"verbose" envconfig:"TENDER_VERBOSE"`
	Format  string `toml:"format" envconfig:"TENDER_LOG_FORMAT"`
}

// Config is the effective configuration.
type Config struct {
	Embedding Embedding `toml:"embedding"`
	Store     Store     `toml:"store"`
	Ingest    Ingest    `toml:"ingest"`
	OCR       OCR       `toml:"ocr"`
	Convert   Convert   `toml:"convert"`
	Log       Log       `toml:"log"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Embedding: Embedding{
			Provider:   string(domain.ProviderModeAuto),
			OllamaHost: "http://localhost:11434",
		},
		Store: Store{
			Kind:             StoreSQLite,
			CollectionPrefix: domain.DefaultCollectionPrefix,
			WeaviateHost:     "localhost:8080",
			WeaviateScheme:   "http",
		},
		Ingest: Ingest{
			ChunkSize:    1800,
			ChunkOverlap: 200,
			BatchSize:    100,
		},
		OCR: OCR{
			Enabled:   true,
			MinChars:  30,
			Languages: "spa+eng",
			Timeout:   Duration{60 * time.Second},
		},
		Convert: Convert{
			SofficeBin: "soffice",
			Timeout:    Duration{2 * time.Minute},
		},
		Log: Log{Format: "console"},
	}
}

// Load layers the config file, .env files and the environment over the
// defaults. Missing .env files are ignored. The result is not validated.
func Load(store driven.ConfigStore, envFiles ...string) (*Config, error) {
	cfg := Default()

	if store != nil {
		if err := store.Load(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
	}

	// godotenv never overrides variables already set in the environment.
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	sections := []any{&cfg.Embedding, &cfg.Store, &cfg.Ingest, &cfg.OCR, &cfg.Convert, &cfg.Log}
	for _, s := range sections {
		if err := envconfig.Process("", s); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with. Errors wrap
// domain.ErrConfiguration and either ErrMissingRequired or ErrInvalidValue.
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return invalid("TENDER_CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return invalid("TENDER_CHUNK_OVERLAP must be in [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.BatchSize <= 0 {
		return invalid("TENDER_BATCH_SIZE must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.Workers < 0 {
		return invalid("TENDER_WORKERS must not be negative, got %d", c.Ingest.Workers)
	}
	if c.OCR.MinChars < 0 {
		return invalid("TENDER_OCR_MIN_CHARS must not be negative, got %d", c.OCR.MinChars)
	}
	if c.Embedding.HostedRPS < 0 {
		return invalid("TENDER_HOSTED_RPS must not be negative, got %g", c.Embedding.HostedRPS)
	}

	if !domain.ProviderMode(c.Embedding.Provider).IsValid() {
		return invalid("TENDER_PROVIDER must be auto, local or hosted, got %q", c.Embedding.Provider)
	}
	if hp := domain.AIProvider(c.Embedding.HostedProvider); hp != "" && (!hp.IsValid() || hp.IsLocal()) {
		return invalid("TENDER_HOSTED_PROVIDER must be openai or gemini, got %q", c.Embedding.HostedProvider)
	}
	if c.Embedding.OllamaHost == "" {
		return fmt.Errorf("%w: %w: OLLAMA_HOST", domain.ErrConfiguration, ErrMissingRequired)
	}

	switch c.Store.Kind {
	case StoreSQLite, StoreMemory:
	case StoreWeaviate:
		if c.Store.WeaviateHost == "" {
			return fmt.Errorf("%w: %w: WEAVIATE_HOST", domain.ErrConfiguration, ErrMissingRequired)
		}
	default:
		return invalid("TENDER_STORE must be sqlite, weaviate or memory, got %q", c.Store.Kind)
	}

	if c.Convert.SofficeBin == "" {
		return fmt.Errorf("%w: %w: SOFFICE_BIN", domain.ErrConfiguration, ErrMissingRequired)
	}
	return nil
}

// EmbeddingRequest returns the provider request for a run.
func (c *Config) EmbeddingRequest() domain.EmbeddingRequest {
	return domain.EmbeddingRequest{
		Mode:  domain.ProviderMode(c.Embedding.Provider),
		Model: c.Embedding.Model,
	}
}

// Masked returns a copy with credentials shortened for display.
func (c *Config) Masked() *Config {
	out := *c
	out.Embedding.OpenAIKey = Mask(c.Embedding.OpenAIKey)
	out.Embedding.GeminiKey = Mask(c.Embedding.GeminiKey)
	out.Store.WeaviateAPIKey = Mask(c.Store.WeaviateAPIKey)
	return &out
}

// Mask hides all but the first and last four characters of a secret.
func Mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "..." + secret[len(secret)-4:]
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", domain.ErrConfiguration, ErrInvalidValue, fmt.Sprintf(format, args...))
}
