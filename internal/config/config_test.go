package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tilestack/internal/build"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/report"
	"github.com/conneroisu/tilestack/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, types.DefaultGrid(), cfg.GridSpec())
	assert.Equal(t, "background.png", cfg.Background.File)
	assert.Equal(t, "minimap_data", cfg.Input.Dir)
	assert.Equal(t, ".minimap", cfg.Input.Extension)
	assert.Equal(t, filepath.Join("out", "tiles"), cfg.TilesDir())
	assert.Equal(t, raster.FormatPNG, cfg.OutputFormat())
	assert.Equal(t, build.CacheOnCompose, cfg.CachePolicy())
	assert.Equal(t, report.FormatJSON, cfg.SummaryFormat())
	assert.Equal(t, 1, cfg.Composite.SurfaceFloor)
	assert.False(t, cfg.Composite.GrayscaleUnderground)
	assert.True(t, cfg.Report.HTML)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers())
	assert.Equal(t, logging.LevelInfo, cfg.LoggerConfig().Level)
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *viper.Viper)
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "grid geometry",
			setup: func(v *viper.Viper) {
				v.Set("grid.width", 2)
				v.Set("grid.tile_width", 256)
				v.Set("background.width", 512)
			},
			check: func(t *testing.T, cfg *Config) {
				g := cfg.GridSpec()
				assert.Equal(t, 2, g.Width)
				assert.Equal(t, 256, g.TileWidth)
				assert.Equal(t, 512, g.BackgroundWidth)
			},
		},
		{
			name: "compositing and build",
			setup: func(v *viper.Viper) {
				v.Set("composite.surface_floor", 0)
				v.Set("composite.grayscale_underground", true)
				v.Set("build.workers", 3)
				v.Set("build.cache_policy", "persist")
				v.Set("output.format", "tif")
				v.Set("summary.format", "yaml")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.Composite.SurfaceFloor)
				assert.True(t, cfg.Composite.GrayscaleUnderground)
				assert.Equal(t, 3, cfg.Workers())
				assert.Equal(t, build.CacheOnPersist, cfg.CachePolicy())
				assert.Equal(t, raster.FormatTIFF, cfg.OutputFormat())
				assert.Equal(t, report.FormatYAML, cfg.SummaryFormat())
			},
		},
		{
			name: "absolute tiles dir",
			setup: func(v *viper.Viper) {
				v.Set("output.tiles_dir", "/var/tiles")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/tiles", cfg.TilesDir())
			},
		},
		{
			name: "json debug logging",
			setup: func(v *viper.Viper) {
				v.Set("log-level", "debug")
				v.Set("log-format", "json")
			},
			check: func(t *testing.T, cfg *Config) {
				lc := cfg.LoggerConfig()
				assert.Equal(t, logging.LevelDebug, lc.Level)
				assert.Equal(t, "json", lc.Format)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)
			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".tilestack.yml")
	content := `grid:
  width: 3
  tile_width: 10
input:
  dir: captures
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("TILESTACK_INPUT_DIR", "from-env")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TILESTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Grid.Width)
	assert.Equal(t, 10, cfg.Grid.TileWidth)
	assert.Equal(t, 5, cfg.Grid.Height, "unset keys keep defaults")
	assert.Equal(t, "from-env", cfg.Input.Dir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"zero tile width", "grid.tile_width", 0},
		{"negative grid", "grid.height", -1},
		{"unknown format", "output.format", "webp"},
		{"unknown policy", "build.cache_policy", "sometimes"},
		{"negative workers", "build.workers", -2},
		{"unknown summary", "summary.format", "xml"},
		{"unknown log level", "log-level", "loud"},
		{"unknown log format", "log-format", "xml"},
		{"empty background", "background.file", " "},
		{"empty extension", "input.extension", "."},
		{"not a number", "grid.width", "six"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := LoadFrom(v)
			require.Error(t, err)
			assert.True(t, tserrors.IsConfigError(err))
		})
	}
}

func TestValidateConfigWithDetails(t *testing.T) {
	v := viper.New()
	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	result := ValidateConfigWithDetails(cfg)
	assert.True(t, result.Valid)
	assert.False(t, result.HasWarnings())

	cfg.Background.Width = 100
	cfg.Build.CachePolicy = "bogus"
	result = ValidateConfigWithDetails(cfg)
	assert.False(t, result.Valid)
	assert.True(t, result.HasWarnings())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "build.cache_policy", result.Errors[0].Field)

	cfg.Background.File = "world.webp"
	result = ValidateConfigWithDetails(cfg)
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "background.file", result.Warnings[1].Field)

	out := result.String()
	assert.Contains(t, out, "build.cache_policy")
	assert.Contains(t, out, "background size differs")
}
