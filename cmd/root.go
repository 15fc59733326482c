// Package cmd provides the command-line interface for tilestack with
// configuration drawn from several sources.
//
// Configuration System:
//
//	Values are resolved with the following precedence:
//	1. Command-line flags (--input-dir, --workers, etc.) - highest priority
//	2. Individual environment variables (TILESTACK_GRID_TILE_WIDTH, etc.)
//	3. Configuration file (--config, TILESTACK_CONFIG_FILE or .tilestack.yml)
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	TILESTACK_CONFIG_FILE: Path to custom configuration file
//	TILESTACK_INPUT_DIR: Override the fragment directory
//	TILESTACK_BUILD_CACHE_POLICY: Override the cache admission policy
//	And every other key following the TILESTACK_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrRunHadErrors is returned when a run completed but recorded errors.
// The process exits non-zero without printing usage.
var ErrRunHadErrors = errors.New("run finished with errors")

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "tilestack",
		Short: "Composite per-floor map captures into tiles, layers and a full map",
		Long: `tilestack rebuilds a layered world map from capture fragments.

For every grid column it composes the floors bottom-up, starting from the
matching chunk of the background atlas and overlaying each floor's capture.
The composed tiles are then stitched into one mosaic per floor and stacked
into a full composite.

Quick Start:
  tilestack build                       Compose tiles and assemble the mosaics
  tilestack compose                     Compose tiles only
  tilestack stitch --tiles-dir out/tiles  Assemble mosaics from rendered tiles
  tilestack config show                 Show the resolved configuration`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tilestack.yml, can also use TILESTACK_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(
		newBuildCommand(),
		newComposeCommand(),
		newStitchCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the CLI until completion or until SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// initConfig initializes the configuration system.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. TILESTACK_CONFIG_FILE environment variable
//  3. .tilestack.yml in the current directory, if present
//
// An explicitly named file must be readable; the default file is optional.
func initConfig(cfgFile string) error {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TILESTACK_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tilestack")
	}

	viper.SetEnvPrefix("TILESTACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
		return nil
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}
