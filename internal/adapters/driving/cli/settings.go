package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/tender-ingest/internal/config"
)

var (
	configForce bool
	configJSON  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Show the effective configuration or write a config file with the defaults.

Settings are resolved in this order, later sources winning: built-in
defaults, ~/.tender/config.toml, .env files, the environment, command flags.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, _ []string) {
		if configStore != nil {
			cmd.Println(configStore.Path())
		}
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configJSON, "json", false, "output as JSON")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if cfg == nil {
		cfg = config.Default()
	}
	masked := cfg.Masked()

	if configJSON {
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	data, err := toml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if configStore != nil {
		source := "defaults and environment only"
		if configStore.Exists() {
			source = configStore.Path()
		}
		cmd.Printf("# %s\n", source)
	}
	cmd.Print(string(data))
	if err := cfg.Validate(); err != nil {
		cmd.Printf("\n# invalid: %v\n", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return fmt.Errorf("config store not configured")
	}
	if configStore.Exists() && !configForce {
		cmd.Printf("Overwrite %s? [y/N]: ", configStore.Path())
		if !confirm(cmd) {
			cmd.Println("Aborted.")
			return nil
		}
	}
	if err := configStore.Save(config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	cmd.Printf("Wrote %s\n", configStore.Path())
	return nil
}

// Helper functions.

// confirm reads a yes/no answer from the command input.
func confirm(cmd *cobra.Command) bool {
	answer := strings.ToLower(readLine(bufio.NewReader(cmd.InOrStdin())))
	return answer == "y" || answer == "yes"
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
