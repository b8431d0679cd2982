package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/ai"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/command"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/convert/soffice"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/ocr/tesseract"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/storage/weaviate"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driving/cli"
	"github.com/custodia-labs/tender-ingest/internal/config"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/core/services"
	"github.com/custodia-labs/tender-ingest/internal/normalisers/pdf"
	"github.com/custodia-labs/tender-ingest/internal/normalisers/text"
	"github.com/custodia-labs/tender-ingest/internal/postprocessors/chunker"
)

// openStore opens the vector store selected by cfg.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (driven.VectorStore, error) {
	switch cfg.Store.Kind {
	case config.StoreMemory:
		return memory.NewVectorStore(), nil
	case config.StoreWeaviate:
		return weaviate.Open(ctx, weaviate.Config{
			Host:   cfg.Store.WeaviateHost,
			Scheme: cfg.Store.WeaviateScheme,
			APIKey: cfg.Store.WeaviateAPIKey,
		}, log.Named("weaviate"))
	case config.StoreSQLite, "":
		return sqlite.NewStore(cfg.Store.DataDir)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", domain.ErrConfiguration, cfg.Store.Kind)
	}
}

func resolverConfig(cfg *config.Config) ai.Config {
	return ai.Config{
		OllamaHost:     cfg.Embedding.OllamaHost,
		OpenAIKey:      cfg.Embedding.OpenAIKey,
		GeminiKey:      cfg.Embedding.GeminiKey,
		HostedProvider: domain.AIProvider(cfg.Embedding.HostedProvider),
		HostedRPS:      cfg.Embedding.HostedRPS,
	}
}

// pipeline holds the document stages built from cfg.
type pipeline struct {
	converter *soffice.Converter
	ocr       *tesseract.Engine
	extractor *pdf.Extractor
}

func newPipeline(cfg *config.Config, log *zap.Logger) *pipeline {
	convertRunner := command.NewRunner(
		command.WithTimeout(cfg.Convert.Timeout.Duration),
		command.WithLogger(log.Named("soffice")))
	ocrRunner := command.NewRunner(
		command.WithTimeout(cfg.OCR.Timeout.Duration),
		command.WithLogger(log.Named("ocr")))

	p := &pipeline{
		converter: soffice.New(convertRunner,
			soffice.WithBinary(cfg.Convert.SofficeBin),
			soffice.WithLogger(log.Named("convert"))),
		ocr: tesseract.New(ocrRunner,
			tesseract.WithLanguages(cfg.OCR.Languages),
			tesseract.WithLogger(log.Named("ocr"))),
	}

	extractOpts := []pdf.Option{
		pdf.WithMinChars(cfg.OCR.MinChars),
		pdf.WithLogger(log.Named("extract")),
	}
	if cfg.OCR.Enabled {
		extractOpts = append(extractOpts, pdf.WithOCR(p.ocr))
	}
	p.extractor = pdf.New(command.NewRunner(command.WithLogger(log.Named("poppler"))), extractOpts...)
	return p
}

// newApp builds the services of one invocation.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*cli.App, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	p := newPipeline(cfg, log)
	resolver := ai.NewResolver(resolverConfig(cfg), log.Named("embedding"))
	writer := services.NewVectorIndexWriter(store,
		services.WithBatchSize(cfg.Ingest.BatchSize),
		services.WithWriterLogger(log.Named("writer")))

	ingest := services.NewIngestionOrchestrator(
		p.converter,
		p.extractor,
		text.New(),
		chunker.New(
			chunker.WithChunkSize(cfg.Ingest.ChunkSize),
			chunker.WithOverlap(cfg.Ingest.ChunkOverlap),
			chunker.WithLogger(log.Named("chunker"))),
		resolver,
		store,
		services.WithWorkers(cfg.Ingest.Workers),
		services.WithCollectionPrefix(cfg.Store.CollectionPrefix),
		services.WithWriter(writer),
		services.WithIngestLogger(log.Named("ingest")),
	)

	return &cli.App{
		Ingest:      ingest,
		Search:      services.NewSearchService(store, resolver, cfg.Store.Collection, log.Named("search")),
		Collections: services.NewCollectionService(store, log.Named("collections")),
		Close:       store.Close,
	}, nil
}

// newChecks lists the doctor checks. Only the store is opened; every other
// check looks at installed tools or pings a service.
func newChecks(cfg *config.Config, log *zap.Logger) []cli.HealthCheck {
	p := newPipeline(cfg, log)
	ollamaClient := ollama.NewClient(cfg.Embedding.OllamaHost, 0)
	local := domain.ProviderMode(cfg.Embedding.Provider) == domain.ProviderModeLocal

	return []cli.HealthCheck{
		{
			Name:  "soffice (" + cfg.Convert.SofficeBin + ")",
			Check: func(context.Context) error { return p.converter.CheckAvailable() },
			Hint:  soffice.InstallInstructions(),
		},
		{
			Name:  "pdftotext, pdfinfo",
			Check: func(context.Context) error { return p.extractor.CheckAvailable() },
			Hint:  pdf.InstallInstructions(),
		},
		{
			Name:     "tesseract, pdftoppm (" + cfg.OCR.Languages + ")",
			Check:    p.ocr.Healthy,
			Hint:     tesseract.InstallInstructions(),
			Optional: !cfg.OCR.Enabled,
		},
		{
			Name:     "ollama (" + ollamaClient.BaseURL() + ")",
			Check:    ollamaClient.Ping,
			Hint:     "Start the local service with 'ollama serve' or set OLLAMA_HOST.",
			Optional: !local,
		},
		{
			Name:  "vector store (" + cfg.Store.Kind + ")",
			Check: func(ctx context.Context) error { return pingStore(ctx, cfg, log) },
		},
	}
}

func pingStore(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	return errors.Join(store.Ping(ctx), store.Close())
}
