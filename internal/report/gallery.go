package report

//go:generate templ generate

import (
	"context"
	"os"
	"path/filepath"

	tserrors "github.com/conneroisu/tilestack/internal/errors"
)

// GalleryFile is the name of the HTML page written next to the mosaics.
const GalleryFile = "index.html"

// relative turns an output path into a link relative to the output
// directory.
func (s *Summary) relative(path string) string {
	if s.OutputDir == "" {
		return filepath.ToSlash(filepath.Base(path))
	}
	rel, err := filepath.Rel(s.OutputDir, path)
	if err != nil {
		return filepath.ToSlash(filepath.Base(path))
	}
	return filepath.ToSlash(rel)
}

// WriteGallery renders the gallery into dir/index.html.
func WriteGallery(ctx context.Context, dir string, s *Summary) (string, error) {
	path := filepath.Join(dir, GalleryFile)
	f, err := os.Create(path)
	if err != nil {
		return "", tserrors.NewPersistError(tserrors.ErrCodeSummaryPersist, "gallery not written", err).WithPath(path)
	}
	if err := Gallery(s).Render(ctx, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
