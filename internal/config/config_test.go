package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tender-ingest/internal/config"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

func writeTOML(t *testing.T, content string) *file.ConfigStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return file.NewConfigStoreAt(path)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "auto", cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.OllamaHost)
	assert.Equal(t, config.StoreSQLite, cfg.Store.Kind)
	assert.Equal(t, 1800, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, "soffice", cfg.Convert.SofficeBin)
	assert.True(t, cfg.OCR.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoSources(t *testing.T) {
	cfg, err := config.Load(nil)

	require.NoError(t, err)
	assert.Equal(t, config.Default().Ingest, cfg.Ingest)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	store := writeTOML(t, `
[embedding]
provider = "local"
model = "mxbai-embed-large"

[ingest]
chunk_size = 1500

[ocr]
timeout = "90s"
`)

	cfg, err := config.Load(store)

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedding.Model)
	assert.Equal(t, 1500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap, "absent keys keep defaults")
	assert.Equal(t, 90*time.Second, cfg.OCR.Timeout.Duration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	store := writeTOML(t, "[ingest]\nchunk_size = 1500\nbatch_size = 50\n")
	t.Setenv("TENDER_CHUNK_SIZE", "1200")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("TENDER_CONVERT_TIMEOUT", "30s")
	t.Setenv("TENDER_OCR_ENABLED", "false")

	cfg, err := config.Load(store)

	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, "sk-env", cfg.Embedding.OpenAIKey)
	assert.Equal(t, 30*time.Second, cfg.Convert.Timeout.Duration)
	assert.False(t, cfg.OCR.Enabled)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SOFFICE_BIN=/opt/libreoffice/program/soffice\n"), 0o600))
	t.Setenv("SOFFICE_BIN", "")
	require.NoError(t, os.Unsetenv("SOFFICE_BIN"))

	cfg, err := config.Load(nil, envFile, filepath.Join(t.TempDir(), "missing.env"))

	require.NoError(t, err)
	assert.Equal(t, "/opt/libreoffice/program/soffice", cfg.Convert.SofficeBin)
}

func TestLoad_ProcessEnvBeatsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TENDER_MODEL=from-file\n"), 0o600))
	t.Setenv("TENDER_MODEL", "from-env")

	cfg, err := config.Load(nil, envFile)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Embedding.Model)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("TENDER_WORKERS", "many")

	_, err := config.Load(nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := config.Load(writeTOML(t, "[ingest\n"))

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errIs  error
	}{
		{"valid", func(*config.Config) {}, nil},
		{"zero chunk size", func(c *config.Config) { c.Ingest.ChunkSize = 0 }, config.ErrInvalidValue},
		{"negative overlap", func(c *config.Config) { c.Ingest.ChunkOverlap = -1 }, config.ErrInvalidValue},
		{"overlap not below size", func(c *config.Config) { c.Ingest.ChunkOverlap = 1800 }, config.ErrInvalidValue},
		{"zero batch", func(c *config.Config) { c.Ingest.BatchSize = 0 }, config.ErrInvalidValue},
		{"negative workers", func(c *config.Config) { c.Ingest.Workers = -2 }, config.ErrInvalidValue},
		{"unknown mode", func(c *config.Config) { c.Embedding.Provider = "cloud" }, config.ErrInvalidValue},
		{"local as hosted provider", func(c *config.Config) { c.Embedding.HostedProvider = "ollama" }, config.ErrInvalidValue},
		{"unknown hosted provider", func(c *config.Config) { c.Embedding.HostedProvider = "azure" }, config.ErrInvalidValue},
		{"gemini hosted provider", func(c *config.Config) { c.Embedding.HostedProvider = "gemini" }, nil},
		{"unknown store", func(c *config.Config) { c.Store.Kind = "postgres" }, config.ErrInvalidValue},
		{"weaviate without host", func(c *config.Config) {
			c.Store.Kind = config.StoreWeaviate
			c.Store.WeaviateHost = ""
		}, config.ErrMissingRequired},
		{"missing ollama host", func(c *config.Config) { c.Embedding.OllamaHost = "" }, config.ErrMissingRequired},
		{"missing soffice", func(c *config.Config) { c.Convert.SofficeBin = "" }, config.ErrMissingRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errIs == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.errIs)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
		})
	}
}

func TestConfig_EmbeddingRequest(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = "hosted"
	cfg.Embedding.Model = "text-embedding-3-large"

	req := cfg.EmbeddingRequest()

	assert.Equal(t, domain.ProviderModeHosted, req.Mode)
	assert.Equal(t, "text-embedding-3-large", req.Model)
}

func TestConfig_Masked(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.OpenAIKey = "sk-1234567890abcdef"
	cfg.Embedding.GeminiKey = "short"

	masked := cfg.Masked()

	assert.Equal(t, "sk-1...cdef", masked.Embedding.OpenAIKey)
	assert.Equal(t, "****", masked.Embedding.GeminiKey)
	assert.Empty(t, masked.Store.WeaviateAPIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.Embedding.OpenAIKey, "original is untouched")
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	store := file.NewConfigStoreAt(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, store.Save(config.Default()))

	cfg, err := config.Load(store)

	require.NoError(t, err)
	assert.Equal(t, config.Default().Ingest, cfg.Ingest)
	assert.Equal(t, config.Default().OCR, cfg.OCR)
	assert.Equal(t, config.Default().Convert.Timeout, cfg.Convert.Timeout)
	assert.Equal(t, config.Default().Store.CollectionPrefix, cfg.Store.CollectionPrefix)
}
