package build

import (
	"fmt"
	"os"
	"path/filepath"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
	"github.com/conneroisu/tilestack/internal/raster"
	"github.com/conneroisu/tilestack/internal/types"
)

// FileTileWriter writes tiles as X-Y-Z.<ext> files into one directory.
type FileTileWriter struct {
	dir    string
	format raster.Format
}

// NewFileTileWriter creates dir if needed.
func NewFileTileWriter(dir string, format raster.Format) (*FileTileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tiles directory: %w", err)
	}
	return &FileTileWriter{dir: dir, format: format}, nil
}

// Dir returns the output directory.
func (w *FileTileWriter) Dir() string { return w.dir }

// Path returns the file a coordinate is written to.
func (w *FileTileWriter) Path(c types.GridCoordinate) string {
	return filepath.Join(w.dir, c.String()+"."+w.format.Ext())
}

// WriteTile encodes r into the coordinate's file.
func (w *FileTileWriter) WriteTile(c types.GridCoordinate, r *raster.Raster) error {
	path := w.Path(c)
	if err := raster.Save(path, r, w.format); err != nil {
		return tserrors.WrapIO(err, tserrors.ErrCodeFileWrite, "tile file not written").
			WithCoordinate(c).WithPath(path)
	}
	return nil
}
