// Package config provides configuration management for tilestack using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// The configuration covers the grid geometry, the background atlas, input
// and output locations, compositing options and the compose stage worker
// pool. Environment overrides use the TILESTACK_ prefix, with "." and "-"
// in key names replaced by "_" (TILESTACK_GRID_TILE_WIDTH).
package config

import (
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/conneroisu/tilestack/internal/build"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/report"
	"github.com/conneroisu/tilestack/internal/types"
)

type Config struct {
	Grid       GridConfig       `mapstructure:"grid" yaml:"grid"`
	Background BackgroundConfig `mapstructure:"background" yaml:"background"`
	Input      InputConfig      `mapstructure:"input" yaml:"input"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Composite  CompositeConfig  `mapstructure:"composite" yaml:"composite"`
	Build      BuildConfig      `mapstructure:"build" yaml:"build"`
	Summary    SummaryConfig    `mapstructure:"summary" yaml:"summary"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
	LogLevel   string           `mapstructure:"log-level" yaml:"log-level"`
	LogFormat  string           `mapstructure:"log-format" yaml:"log-format"`
}

type GridConfig struct {
	Width      int `mapstructure:"width" yaml:"width"`
	Height     int `mapstructure:"height" yaml:"height"`
	TileWidth  int `mapstructure:"tile_width" yaml:"tile_width"`
	TileHeight int `mapstructure:"tile_height" yaml:"tile_height"`
}

type BackgroundConfig struct {
	File   string `mapstructure:"file" yaml:"file"`
	Width  int    `mapstructure:"width" yaml:"width"`
	Height int    `mapstructure:"height" yaml:"height"`
}

type InputConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Extension string `mapstructure:"extension" yaml:"extension"`
}

type OutputConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	TilesDir string `mapstructure:"tiles_dir" yaml:"tiles_dir"`
	Format   string `mapstructure:"format" yaml:"format"`
}

type CompositeConfig struct {
	SurfaceFloor         int  `mapstructure:"surface_floor" yaml:"surface_floor"`
	GrayscaleUnderground bool `mapstructure:"grayscale_underground" yaml:"grayscale_underground"`
}

type BuildConfig struct {
	Workers     int    `mapstructure:"workers" yaml:"workers"`
	CachePolicy string `mapstructure:"cache_policy" yaml:"cache_policy"`
}

type SummaryConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

type ReportConfig struct {
	HTML bool `mapstructure:"html" yaml:"html"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	grid := types.DefaultGrid()
	v.SetDefault("grid.width", grid.Width)
	v.SetDefault("grid.height", grid.Height)
	v.SetDefault("grid.tile_width", grid.TileWidth)
	v.SetDefault("grid.tile_height", grid.TileHeight)

	v.SetDefault("background.file", "background.png")
	v.SetDefault("background.width", grid.BackgroundWidth)
	v.SetDefault("background.height", grid.BackgroundHeight)

	v.SetDefault("input.dir", "minimap_data")
	v.SetDefault("input.extension", ".minimap")

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.tiles_dir", "tiles")
	v.SetDefault("output.format", string(raster.FormatPNG))

	v.SetDefault("composite.surface_floor", 1)
	v.SetDefault("composite.grayscale_underground", false)

	v.SetDefault("build.workers", 0)
	v.SetDefault("build.cache_policy", string(build.CacheOnCompose))

	v.SetDefault("summary.format", string(report.FormatJSON))
	v.SetDefault("report.html", true)

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v. Keys without a
// value fall back to their defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}

	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return nil, tserrors.ConfigErrorf("invalid configuration: %s", first.Error()).
			WithContext("errors", len(result.Errors))
	}

	return config, nil
}

// Decode reads the configuration held by v without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, tserrors.WrapConfig(err, tserrors.ErrCodeConfigInvalid, "configuration could not be decoded")
	}
	return &config, nil
}

// GridSpec returns the grid geometry.
func (c *Config) GridSpec() types.Grid {
	return types.Grid{
		Width:            c.Grid.Width,
		Height:           c.Grid.Height,
		TileWidth:        c.Grid.TileWidth,
		TileHeight:       c.Grid.TileHeight,
		BackgroundWidth:  c.Background.Width,
		BackgroundHeight: c.Background.Height,
	}
}

// OutputFormat returns the raster format of every output file.
func (c *Config) OutputFormat() raster.Format {
	f, err := raster.ParseFormat(c.Output.Format)
	if err != nil {
		return raster.FormatPNG
	}
	return f
}

// CachePolicy returns the LayerCache admission policy.
func (c *Config) CachePolicy() build.CachePolicy {
	p, err := build.ParseCachePolicy(c.Build.CachePolicy)
	if err != nil {
		return build.CacheOnCompose
	}
	return p
}

// SummaryFormat returns the run summary encoding.
func (c *Config) SummaryFormat() report.Format {
	f, err := report.ParseFormat(c.Summary.Format)
	if err != nil {
		return report.FormatJSON
	}
	return f
}

// Workers returns the compose stage pool size.
func (c *Config) Workers() int {
	if c.Build.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Build.Workers
}

// TilesDir is where per-coordinate tiles are written. A relative tiles_dir
// is resolved against the output directory.
func (c *Config) TilesDir() string {
	if filepath.IsAbs(c.Output.TilesDir) {
		return c.Output.TilesDir
	}
	return filepath.Join(c.Output.Dir, c.Output.TilesDir)
}

// LoggerConfig builds the logger settings.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	if c.LogFormat == "json" {
		cfg.Format = "json"
	}
	return cfg
}
