// Package cli provides the cobra commands of the tender binary.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/tender-ingest/internal/config"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// version is set by the build via SetVersion.
var version = "dev"

// App holds the services a command runs against.
type App struct {
	Ingest      driving.IngestionService
	Search      driving.SearchService
	Collections driving.CollectionService

	// Close releases the store and any other held resources.
	Close func() error
}

// HealthCheck is one line of the doctor report.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
	// Hint is printed when the check fails.
	Hint string
	// Optional checks are reported but do not fail the command.
	Optional bool
}

// AppFactory builds the services from the effective configuration.
type AppFactory func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error)

// ChecksFactory builds the doctor checks from the effective configuration.
type ChecksFactory func(cfg *config.Config, log *zap.Logger) []HealthCheck

// Persistent flags.
var (
	flagVerbose   bool
	flagQuiet     bool
	flagConfig    string
	flagLogFormat string
	flagEnvFiles  []string
)

// Resolved per invocation by loadSettings.
var (
	cfg         *config.Config
	configStore *file.ConfigStore
	log         = zap.NewNop()
)

// Services. Tests assign these directly; otherwise connect builds them.
var (
	ingestService     driving.IngestionService
	searchService     driving.SearchService
	collectionService driving.CollectionService

	appFactory    AppFactory
	checksFactory ChecksFactory
	closeApp      func() error
)

var rootCmd = &cobra.Command{
	Use:   "tender",
	Short: "Ingest tender documents into a searchable vector index",
	Long: `tender turns a folder of tender documents (PDF, DOC, DOCX) into a
section-aware, deduplicated collection of text fragments with embeddings.

Office files are converted with LibreOffice, sparse PDF pages are recognised
with Tesseract, and fragments are embedded locally with Ollama or with a
hosted provider (OpenAI, Gemini) when the local service is unavailable.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "only log warnings and errors")
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.tender/config.toml)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: console or json")
	pf.StringSliceVar(&flagEnvFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment")
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	version = v
}

// SetAppFactory sets how services are built for commands that need them.
func SetAppFactory(f AppFactory) {
	appFactory = f
}

// SetChecksFactory sets how doctor checks are built.
func SetChecksFactory(f ChecksFactory) {
	checksFactory = f
}

// Execute runs the root command and releases wired resources.
func Execute(ctx context.Context) error {
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

// loadSettings resolves configuration and the logger before any command.
func loadSettings(cmd *cobra.Command, _ []string) error {
	if flagConfig != "" {
		configStore = file.NewConfigStoreAt(flagConfig)
	} else {
		store, err := file.NewConfigStore("")
		if err != nil {
			return err
		}
		configStore = store
	}

	loaded, err := config.Load(configStore, flagEnvFiles...)
	if err != nil {
		return err
	}
	cfg = loaded

	if cmd.Flags().Changed("verbose") {
		cfg.Log.Verbose = flagVerbose
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}

	level := ""
	if flagQuiet {
		level = "warn"
	}
	l, err := logger.New(logger.Options{
		Level:   level,
		Verbose: cfg.Log.Verbose,
		Format:  cfg.Log.Format,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	log = l
	return nil
}

// connect validates the configuration and builds the services once.
// Services already assigned are kept.
func connect(ctx context.Context) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if appFactory == nil || closeApp != nil {
		return nil
	}

	app, err := appFactory(ctx, cfg, log)
	if err != nil {
		return err
	}
	if ingestService == nil {
		ingestService = app.Ingest
	}
	if searchService == nil {
		searchService = app.Search
	}
	if collectionService == nil {
		collectionService = app.Collections
	}
	closeApp = app.Close
	if closeApp == nil {
		closeApp = func() error { return nil }
	}
	return nil
}

func shutdown() {
	if closeApp != nil {
		if err := closeApp(); err != nil {
			log.Warn("closing resources", zap.Error(err))
		}
		closeApp = nil
	}
	_ = log.Sync()
}
