package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/tender-ingest/internal/config"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driving"
)

// ingestFlags are shared by the ingest and watch commands.
type ingestFlags struct {
	collection string
	reset      bool
	noCache    bool
	provider   string
	model      string
	jsonOut    bool
	batchSize  int
	workers    int
	chunkSize  int
	overlap    int
	noOCR      bool
}

var ingestOpts ingestFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest [folder]",
	Short: "Ingest a folder of tender documents",
	Long: `Converts, extracts, chunks and embeds every PDF, DOC and DOCX file in the
folder, then writes the fragments into a collection of the vector store.

Extracted text is cached next to each source as <name>.txt; use --no-cache
to extract again. Documents that fail are listed in the report and never
stop the rest of the folder.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	addIngestFlags(ingestCmd.Flags(), &ingestOpts)
	rootCmd.AddCommand(ingestCmd)
}

func addIngestFlags(fs *pflag.FlagSet, f *ingestFlags) {
	fs.StringVar(&f.collection, "collection", "", "collection name (default derived from provider and model)")
	fs.BoolVar(&f.reset, "reset", false, "delete every collection in the store before ingesting")
	fs.BoolVar(&f.noCache, "no-cache", false, "ignore cached .txt sidecars")
	fs.StringVar(&f.provider, "provider", "", "embedding provider mode: auto, local or hosted")
	fs.StringVar(&f.model, "model", "", "embedding model")
	fs.BoolVar(&f.jsonOut, "json", false, "print the report as JSON")
	fs.IntVar(&f.batchSize, "batch-size", 0, "fragments per batched write")
	fs.IntVar(&f.workers, "workers", 0, "parallel extraction workers (0 = one per CPU)")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "maximum fragment size in characters")
	fs.IntVar(&f.overlap, "overlap", 0, "overlap between consecutive fragments")
	fs.BoolVar(&f.noOCR, "no-ocr", false, "disable optical recognition of sparse pages")
}

// apply writes the flags the user set over c.
func (f *ingestFlags) apply(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed("collection") {
		c.Store.Collection = f.collection
	}
	if fs.Changed("provider") {
		c.Embedding.Provider = f.provider
	}
	if fs.Changed("model") {
		c.Embedding.Model = f.model
	}
	if fs.Changed("batch-size") {
		c.Ingest.BatchSize = f.batchSize
	}
	if fs.Changed("workers") {
		c.Ingest.Workers = f.workers
	}
	if fs.Changed("chunk-size") {
		c.Ingest.ChunkSize = f.chunkSize
	}
	if fs.Changed("overlap") {
		c.Ingest.ChunkOverlap = f.overlap
	}
	if fs.Changed("no-ocr") {
		c.OCR.Enabled = !f.noOCR
	}
}

// options builds the run options for folder.
func (f *ingestFlags) options(folder string, c *config.Config) driving.IngestOptions {
	return driving.IngestOptions{
		SourceDir:  folder,
		Collection: c.Store.Collection,
		Reset:      f.reset,
		NoCache:    f.noCache,
		Embedding:  c.EmbeddingRequest(),
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		cfg = config.Default()
	}
	ingestOpts.apply(cmd.Flags(), cfg)
	if err := connect(cmd.Context()); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	report, err := ingestService.Ingest(cmd.Context(), ingestOpts.options(args[0], cfg))
	if errors.Is(err, domain.ErrNothingToIndex) {
		if report != nil && (ingestOpts.jsonOut || len(report.Errors) > 0) {
			return writeReport(cmd.OutOrStdout(), report, formatFor(cmd.OutOrStdout(), ingestOpts.jsonOut))
		}
		cmd.Printf("Nothing to index in %s.\n", args[0])
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingestion failed [%s]: %w", domain.KindOf(err), err)
	}

	return writeReport(cmd.OutOrStdout(), report, formatFor(cmd.OutOrStdout(), ingestOpts.jsonOut))
}
