// Package report produces the structured run summary and the HTML gallery
// page written next to the mosaics.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tilestack/internal/build"
	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/mosaic"
	"github.com/conneroisu/tilestack/internal/types"
)

// Format selects the summary encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatNone Format = "none"
)

// ParseFormat validates a summary format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatNone, "off":
		return FormatNone, nil
	default:
		return "", fmt.Errorf("unknown summary format %q (use json, yaml or none)", name)
	}
}

// Summary is the result of one run.
type Summary struct {
	RunID           string    `json:"run_id" yaml:"run_id"`
	Command         string    `json:"command" yaml:"command"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`

	OutputDir   string       `json:"output_dir" yaml:"output_dir"`
	Grid        types.Grid   `json:"grid" yaml:"grid"`
	ZRange      types.ZRange `json:"z_range" yaml:"z_range"`
	CachePolicy string       `json:"cache_policy,omitempty" yaml:"cache_policy,omitempty"`

	FragmentsFound   int      `json:"fragments_found" yaml:"fragments_found"`
	FragmentsSkipped []string `json:"fragments_skipped,omitempty" yaml:"fragments_skipped,omitempty"`
	FragmentsApplied int64    `json:"fragments_applied" yaml:"fragments_applied"`
	ColumnsBroken    int64    `json:"columns_broken" yaml:"columns_broken"`
	TilesComposed    int64    `json:"tiles_composed" yaml:"tiles_composed"`
	TilesPersisted   int64    `json:"tiles_persisted" yaml:"tiles_persisted"`
	TilesCached      int      `json:"tiles_cached" yaml:"tiles_cached"`

	Cache   *build.CacheStats  `json:"cache,omitempty" yaml:"cache,omitempty"`
	Workers *build.WorkerStats `json:"workers,omitempty" yaml:"workers,omitempty"`

	Layers           []mosaic.LayerResult `json:"layers,omitempty" yaml:"layers,omitempty"`
	LayersWritten    int                  `json:"layers_written" yaml:"layers_written"`
	CompositePath    string               `json:"composite_path,omitempty" yaml:"composite_path,omitempty"`
	CompositeWritten bool                 `json:"composite_written" yaml:"composite_written"`

	Errors       map[tserrors.Category]int64 `json:"errors" yaml:"errors"`
	TotalErrors  int64                       `json:"total_errors" yaml:"total_errors"`
	ErrorDetails []tserrors.ErrorRecord      `json:"error_details,omitempty" yaml:"error_details,omitempty"`
}

// NewSummary starts the summary for a command.
func NewSummary(command string) *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		Errors:    zeroCounts(),
	}
}

func zeroCounts() map[tserrors.Category]int64 {
	counts := make(map[tserrors.Category]int64, len(tserrors.Categories()))
	for _, c := range tserrors.Categories() {
		counts[c] = 0
	}
	return counts
}

// SetErrors copies the per-category counts and retained details from ec.
// Every category is present, including those with no errors.
func (s *Summary) SetErrors(ec *tserrors.ErrorCollector) {
	s.Errors = zeroCounts()
	for c, n := range ec.Counts() {
		s.Errors[c] = n
	}
	s.TotalErrors = ec.Total()
	s.ErrorDetails = ec.Records()
}

// SetAssembly records the mosaic outputs.
func (s *Summary) SetAssembly(res *mosaic.Result) {
	if res == nil {
		return
	}
	s.Layers = res.Layers
	s.LayersWritten = res.LayersWritten()
	s.CompositePath = res.CompositePath
	s.CompositeWritten = res.CompositeWritten
}

// SetCacheStats records how the run used its LayerCache.
func (s *Summary) SetCacheStats(stats build.CacheStats) {
	s.TilesCached = stats.Entries
	s.Cache = &stats
}

// SetWorkerStats records the compose stage worker pool usage.
func (s *Summary) SetWorkerStats(stats build.WorkerStats) {
	s.Workers = &stats
}

// Finish stamps the end time.
func (s *Summary) Finish() {
	s.FinishedAt = time.Now().UTC()
	s.DurationSeconds = s.FinishedAt.Sub(s.StartedAt).Seconds()
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return time.Duration(s.DurationSeconds * float64(time.Second))
}

// Succeeded is true when the run recorded no errors.
func (s *Summary) Succeeded() bool { return s.TotalErrors == 0 }

// ExitCode is 0 for a clean run and 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.Succeeded() {
		return 0
	}
	return 1
}

// Marshal encodes the summary.
func (s *Summary) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(s)
	default:
		return nil, fmt.Errorf("summary format %q cannot be marshalled", format)
	}
}

// FileName returns the summary file name for the format, or "" for none.
func FileName(format Format) string {
	switch format {
	case FormatJSON:
		return "summary.json"
	case FormatYAML:
		return "summary.yaml"
	default:
		return ""
	}
}

// Write stores the summary in dir and returns the file path. FormatNone
// writes nothing.
func (s *Summary) Write(dir string, format Format) (string, error) {
	name := FileName(format)
	if name == "" {
		return "", nil
	}
	data, err := s.Marshal(format)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", tserrors.NewPersistError(tserrors.ErrCodeSummaryPersist, "summary not written", err).WithPath(path)
	}
	return path, nil
}

// ReadSummary loads a summary written by Write, choosing the decoder by
// file extension.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tserrors.WrapIO(err, tserrors.ErrCodeSummaryRead, "summary not readable").WithPath(path)
	}
	var s Summary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, tserrors.NewIOError(tserrors.ErrCodeSummaryRead, "summary not decodable", err).WithPath(path)
	}
	return &s, nil
}
