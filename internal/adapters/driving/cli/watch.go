package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driving/watch"
	"github.com/custodia-labs/tender-ingest/internal/config"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

var (
	watchOpts     ingestFlags
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Ingest a folder and re-ingest it when documents change",
	Long: `Runs an ingestion, then keeps watching the folder. Whenever PDF, DOC or
DOCX files are created or modified the folder is ingested again after a
short quiet period. Unchanged fragments are skipped by their identity, so
re-runs only add what changed. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	addIngestFlags(watchCmd.Flags(), &watchOpts)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-ingesting")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		cfg = config.Default()
	}
	watchOpts.apply(cmd.Flags(), cfg)
	if err := connect(cmd.Context()); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	out := cmd.OutOrStdout()
	w := watch.New(ingestService, watchOpts.options(args[0], cfg),
		watch.WithDebounce(watchDebounce),
		watch.WithLogger(log),
		watch.WithReportFunc(func(report *domain.IngestionReport, err error) {
			switch {
			case err == nil || (errors.Is(err, domain.ErrNothingToIndex) && report != nil && watchOpts.jsonOut):
				_ = writeReport(out, report, formatFor(out, watchOpts.jsonOut))
			case errors.Is(err, domain.ErrNothingToIndex):
				cmd.Printf("Nothing to index in %s.\n", args[0])
			default:
				cmd.PrintErrf("Ingestion failed [%s]: %v\n", domain.KindOf(err), err)
			}
		}))
	defer w.Close()

	if !watchOpts.jsonOut {
		cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	}
	return w.Run(cmd.Context())
}
