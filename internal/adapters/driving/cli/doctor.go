package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tender-ingest/internal/config"
)

// DefaultCheckTimeout bounds each doctor check.
const DefaultCheckTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external tools and services",
	Long: `Checks that the document converter, the PDF tools, the OCR engine, the
local embedding service and the vector store are available, and prints how
to install whatever is missing.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if checksFactory == nil {
		return errors.New("health checks not configured")
	}

	failed := 0
	for _, check := range checksFactory(cfg, log) {
		ctx, cancel := context.WithTimeout(cmd.Context(), DefaultCheckTimeout)
		err := check.Check(ctx)
		cancel()

		switch {
		case err == nil:
			cmd.Printf("  ok    %s\n", check.Name)
		case check.Optional:
			cmd.Printf("  warn  %s: %v\n", check.Name, err)
		default:
			cmd.Printf("  FAIL  %s: %v\n", check.Name, err)
			failed++
		}
		if err != nil && check.Hint != "" {
			cmd.Println()
			cmd.Println(indent(check.Hint, "        "))
			cmd.Println()
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d required check(s) failed", failed)
	}
	cmd.Println("All required checks passed.")
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
