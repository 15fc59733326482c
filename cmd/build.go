package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tilestack/internal/config"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/report"
	"github.com/conneroisu/tilestack/internal/services"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Compose every tile and assemble the layer mosaics and composite",
		Long: `Compose every floor of every grid column from the background atlas and
the capture fragments, then stitch one mosaic per floor and stack them into
the full composite.

Examples:
  tilestack build                                  # Use .tilestack.yml and defaults
  tilestack build -i captures -b world.png -o out  # Explicit locations
  tilestack build --cache-policy persist           # Failed writes break the floors above
  tilestack build --grayscale-underground          # Gray out floors below the surface`,
		PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, services.BuildOptions{})
		},
	}

	fs := cmd.Flags()
	addInputFlags(fs)
	addOutputFlags(fs)
	fs.String("tiles-dir", "tiles", "Tile directory, relative to --output-dir unless absolute")
	addGridFlags(fs)
	addComposeFlags(fs)
	addCompositeFlags(fs)

	return cmd
}

func newComposeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose and write the per-coordinate tiles only",
		Long: `Compose every floor of every grid column and write the X-Y-Z tiles,
without assembling the mosaics. Run "tilestack stitch" later to assemble them.

Examples:
  tilestack compose -i captures -b world.png
  tilestack compose --format tiff --workers 4`,
		PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, services.BuildOptions{ComposeOnly: true})
		},
	}

	fs := cmd.Flags()
	addInputFlags(fs)
	addOutputFlags(fs)
	fs.String("tiles-dir", "tiles", "Tile directory, relative to --output-dir unless absolute")
	addGridFlags(fs)
	addComposeFlags(fs)

	return cmd
}

func newStitchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Assemble the mosaics from already rendered tiles",
		Long: `Load X-Y-Z tiles rendered by an earlier compose run and assemble the
layer mosaics and the full composite from them.

Examples:
  tilestack stitch --tiles-dir out/tiles
  tilestack stitch --tiles-dir tiles -o maps --grayscale-underground`,
		PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd) },
		RunE:    runStitch,
	}

	fs := cmd.Flags()
	addBackgroundFlags(fs)
	addOutputFlags(fs)
	fs.String("tiles-dir", "tiles", "Directory holding the rendered tiles, relative to --output-dir unless absolute")
	addGridFlags(fs)
	addCompositeFlags(fs)
	fs.IntP("workers", "j", 0, "Layers built concurrently (0 = one per CPU)")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts services.BuildOptions) error {
	cfg, logger, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	summary, err := services.NewBuildService(cfg, logger).Build(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return finishRun(cmd.OutOrStdout(), summary)
}

func runStitch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	summary, err := services.NewBuildService(cfg, logger).Stitch(cmd.Context(), cfg.TilesDir())
	if err != nil {
		return err
	}
	return finishRun(cmd.OutOrStdout(), summary)
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	return cfg, logging.NewLogger(lc), nil
}

func finishRun(w io.Writer, summary *report.Summary) error {
	printSummary(w, summary)
	if summary.ExitCode() != 0 {
		return ErrRunHadErrors
	}
	return nil
}

// printSummary writes the human readable run summary.
func printSummary(w io.Writer, s *report.Summary) {
	fmt.Fprintf(w, "%s finished in %s (run %s)\n",
		cases.Title(language.English).String(s.Command),
		s.Duration().Round(time.Millisecond), s.RunID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Grid\t%s\n", services.Describe(s.Grid, s.ZRange))
	if s.Command != "stitch" {
		fmt.Fprintf(tw, "  Fragments\t%s found, %s applied, %s skipped\n",
			humanize.Comma(int64(s.FragmentsFound)),
			humanize.Comma(s.FragmentsApplied),
			humanize.Comma(int64(len(s.FragmentsSkipped))))
		fmt.Fprintf(tw, "  Tiles\t%s composed, %s written, %s columns broken\n",
			humanize.Comma(s.TilesComposed),
			humanize.Comma(s.TilesPersisted),
			humanize.Comma(s.ColumnsBroken))
	} else {
		fmt.Fprintf(tw, "  Tiles\t%s loaded\n", humanize.Comma(int64(s.TilesCached)))
	}
	if s.Workers != nil {
		fmt.Fprintf(tw, "  Workers\t%d workers, %s columns, %s per column\n",
			s.Workers.Workers,
			humanize.Comma(s.Workers.CompletedColumns),
			s.Workers.AverageColumnTime.Round(time.Microsecond))
	}
	if s.Cache != nil {
		fmt.Fprintf(tw, "  Cache\t%s entries, %.0f%% hit rate\n",
			humanize.Comma(int64(s.Cache.Entries)), 100*s.Cache.HitRate())
	}
	if s.Command != "compose" {
		fmt.Fprintf(tw, "  Layers\t%d of %d written\n", s.LayersWritten, len(s.Layers))
		fmt.Fprintf(tw, "  Composite\t%s\n", describeOutput(s.CompositePath, s.CompositeWritten))
	}
	tw.Flush()

	fmt.Fprintf(w, "Errors: %s\n", humanize.Comma(s.TotalErrors))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	title := cases.Title(language.English)
	for _, c := range tserrors.Categories() {
		fmt.Fprintf(tw, "  %s\t%s\n", title.String(strings.ReplaceAll(string(c), "_", " ")),
			humanize.Comma(s.Errors[c]))
	}
	tw.Flush()
}

func describeOutput(path string, written bool) string {
	if path == "" {
		return "none"
	}
	if !written {
		return path + " (not written)"
	}
	if info, err := os.Stat(path); err == nil {
		return fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(info.Size())))
	}
	return path
}
