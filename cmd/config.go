package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tilestack/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect tilestack configuration",
		Long: `Inspect the configuration a run would use, after merging the config file,
TILESTACK_* environment variables and defaults.

Examples:
  tilestack config show                       # Show resolved configuration as YAML
  tilestack config show --format json         # Show it as JSON
  tilestack config validate                   # Validate .tilestack.yml
  tilestack --config maps.yml config validate # Validate a specific file`,
	}

	var showFormat string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display the resolved configuration including every default value.

Examples:
  tilestack config show
  TILESTACK_GRID_WIDTH=8 tilestack config show`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(viper.GetViper())
			if err != nil {
				return err
			}
			return writeConfig(cmd, cfg, showFormat)
		},
	}
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "yaml", "Output format (yaml, json)")

	var strict bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate the resolved configuration and report errors and warnings.

Examples:
  tilestack config validate
  tilestack config validate --strict   # Treat warnings as errors`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(viper.GetViper())
			if err != nil {
				return err
			}

			result := config.ValidateConfigWithDetails(cfg)
			out := cmd.OutOrStdout()
			if result.HasErrors() || result.HasWarnings() {
				fmt.Fprint(out, result.String())
			}
			if result.HasErrors() {
				return fmt.Errorf("configuration is invalid: %d error(s)", len(result.Errors))
			}
			if strict && result.HasWarnings() {
				return fmt.Errorf("configuration has %d warning(s) (strict mode)", len(result.Warnings))
			}
			fmt.Fprintln(out, "✅ Configuration is valid")
			return nil
		},
	}
	validateCmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	configCmd.AddCommand(showCmd, validateCmd)
	return configCmd
}

func writeConfig(cmd *cobra.Command, cfg *config.Config, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}
