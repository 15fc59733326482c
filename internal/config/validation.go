package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/tilestack/internal/build"
	"github.com/conneroisu/tilestack/internal/logging"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/report"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateGridDetails(config, result)
	validatePathsDetails(config, result)
	validateFormatsDetails(config, result)

	if config.Build.Workers < 0 {
		result.addError("build.workers", config.Build.Workers, "workers cannot be negative",
			"Use 0 to run one worker per CPU")
	}
	if _, err := build.ParseCachePolicy(config.Build.CachePolicy); err != nil {
		result.addError("build.cache_policy", config.Build.CachePolicy, err.Error(),
			"'compose' keeps floors above a failed write",
			"'persist' drops every floor above a failed write")
	}

	// Set overall validity
	result.Valid = !result.HasErrors()

	return result
}

func validateGridDetails(config *Config, result *ValidationResult) {
	positive := []struct {
		field string
		value int
	}{
		{"grid.width", config.Grid.Width},
		{"grid.height", config.Grid.Height},
		{"grid.tile_width", config.Grid.TileWidth},
		{"grid.tile_height", config.Grid.TileHeight},
		{"background.width", config.Background.Width},
		{"background.height", config.Background.Height},
	}
	invalid := false
	for _, p := range positive {
		if p.value <= 0 {
			invalid = true
			result.addError(p.field, p.value, fmt.Sprintf("must be positive, got %d", p.value))
		}
	}
	if invalid {
		return
	}

	wantW := config.Grid.Width * config.Grid.TileWidth
	wantH := config.Grid.Height * config.Grid.TileHeight
	if config.Background.Width != wantW || config.Background.Height != wantH {
		result.addWarning("background", fmt.Sprintf("%dx%d", config.Background.Width, config.Background.Height),
			fmt.Sprintf("background size differs from grid size %dx%d", wantW, wantH),
			"Columns whose chunk falls outside the background are skipped")
	}
}

var backgroundExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func validatePathsDetails(config *Config, result *ValidationResult) {
	if strings.TrimSpace(config.Background.File) == "" {
		result.addError("background.file", config.Background.File, "background file cannot be empty",
			"Point --background-file at the exported world background")
	}
	if ext := strings.ToLower(filepath.Ext(config.Background.File)); config.Background.File != "" && !backgroundExtensions[ext] {
		result.addWarning("background.file", config.Background.File,
			fmt.Sprintf("extension %q is not a known image format", ext),
			"Supported backgrounds: png, jpeg, bmp, tiff")
	}
	if strings.TrimSpace(config.Input.Dir) == "" {
		result.addError("input.dir", config.Input.Dir, "input directory cannot be empty")
	}
	if strings.TrimSpace(strings.TrimPrefix(config.Input.Extension, ".")) == "" {
		result.addError("input.extension", config.Input.Extension, "fragment extension cannot be empty",
			"The capture tool writes '.minimap' files")
	}
	if strings.TrimSpace(config.Output.Dir) == "" {
		result.addError("output.dir", config.Output.Dir, "output directory cannot be empty")
	}
	if strings.TrimSpace(config.Output.TilesDir) == "" {
		result.addError("output.tiles_dir", config.Output.TilesDir, "tiles directory cannot be empty")
	}
}

func validateFormatsDetails(config *Config, result *ValidationResult) {
	if _, err := raster.ParseFormat(config.Output.Format); err != nil {
		result.addError("output.format", config.Output.Format, err.Error(),
			"Supported formats: png, bmp, tiff")
	}
	if _, err := report.ParseFormat(config.Summary.Format); err != nil {
		result.addError("summary.format", config.Summary.Format, err.Error())
	}
	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		result.addError("log-level", config.LogLevel, err.Error())
	}
	if config.LogFormat != "text" && config.LogFormat != "json" {
		result.addError("log-format", config.LogFormat, "log format must be 'text' or 'json'")
	}
}
