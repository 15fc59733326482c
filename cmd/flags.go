package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/tilestack/internal/build"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/report"
	"github.com/conneroisu/tilestack/internal/types"
)

// flagKeys maps every pipeline flag to the configuration key it overrides.
var flagKeys = map[string]string{
	"log-level":             "log-level",
	"log-format":            "log-format",
	"input-dir":             "input.dir",
	"extension":             "input.extension",
	"background-file":       "background.file",
	"background-width":      "background.width",
	"background-height":     "background.height",
	"output-dir":            "output.dir",
	"tiles-dir":             "output.tiles_dir",
	"format":                "output.format",
	"grid-width":            "grid.width",
	"grid-height":           "grid.height",
	"tile-width":            "grid.tile_width",
	"tile-height":           "grid.tile_height",
	"surface-floor":         "composite.surface_floor",
	"grayscale-underground": "composite.grayscale_underground",
	"workers":               "build.workers",
	"cache-policy":          "build.cache_policy",
	"summary-format":        "summary.format",
	"html":                  "report.html",
}

// addInputFlags registers the fragment and background flags.
func addInputFlags(fs *pflag.FlagSet) {
	fs.StringP("input-dir", "i", "minimap_data", "Directory holding the capture fragments")
	fs.String("extension", ".minimap", "Fragment file extension")
	addBackgroundFlags(fs)
}

func addBackgroundFlags(fs *pflag.FlagSet) {
	grid := types.DefaultGrid()
	fs.StringP("background-file", "b", "background.png", "Background atlas image")
	fs.Int("background-width", grid.BackgroundWidth, "Expected background width in pixels")
	fs.Int("background-height", grid.BackgroundHeight, "Expected background height in pixels")
}

// addOutputFlags registers where and how results are written.
func addOutputFlags(fs *pflag.FlagSet) {
	fs.StringP("output-dir", "o", "out", "Directory for mosaics, the summary and the gallery")
	fs.String("format", string(raster.FormatPNG), fmt.Sprintf("Image format %v", raster.Formats()))
	fs.String("summary-format", string(report.FormatJSON), "Run summary format (json, yaml, none)")
	fs.Bool("html", true, "Write the index.html gallery")
}

// addGridFlags registers the grid geometry.
func addGridFlags(fs *pflag.FlagSet) {
	grid := types.DefaultGrid()
	fs.Int("grid-width", grid.Width, "Number of grid columns along X")
	fs.Int("grid-height", grid.Height, "Number of grid columns along Y")
	fs.Int("tile-width", grid.TileWidth, "Tile width in pixels")
	fs.Int("tile-height", grid.TileHeight, "Tile height in pixels")
}

// addComposeFlags registers the compose stage settings.
func addComposeFlags(fs *pflag.FlagSet) {
	fs.IntP("workers", "j", 0, "Columns composed concurrently (0 = one per CPU)")
	fs.String("cache-policy", string(build.CacheOnCompose), "When tiles enter the layer cache (compose, persist)")
}

// addCompositeFlags registers the full composite settings.
func addCompositeFlags(fs *pflag.FlagSet) {
	fs.Int("surface-floor", 1, "Lowest floor drawn in color")
	fs.Bool("grayscale-underground", false, "Draw floors below --surface-floor in grayscale")
}

// bindFlags points the configuration keys at the flags of cmd. It runs
// before each command so that only the running command's flags are bound.
func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	bind := func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := viper.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("binding --%s: %w", f.Name, err)
		}
	}
	cmd.InheritedFlags().VisitAll(bind)
	cmd.LocalFlags().VisitAll(bind)
	return bindErr
}
