// Package capture extracts the raster payload embedded in a capture fragment.
//
// A fragment is an opaque container; the only part tilestack uses is the PNG
// stream that starts at the first PNG signature in the file.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/conneroisu/tilestack/internal/raster"
)

// signature marks the start of the embedded raster.
var signature = []byte("\x89PNG")

// ErrNoPayload means the fragment holds no raster. It is the decoder's
// "absent" result and is not a corrupt-data error.
var ErrNoPayload = errors.New("no raster payload in fragment")

// PayloadOffset returns the index of the embedded raster, or -1.
func PayloadOffset(data []byte) int {
	return bytes.Index(data, signature)
}

// Decode extracts the raster from a fragment and rescales it to
// width x height when it was captured at another size.
func Decode(data []byte, width, height int) (*raster.Raster, error) {
	off := PayloadOffset(data)
	if off < 0 {
		return nil, ErrNoPayload
	}

	img, err := png.Decode(bytes.NewReader(data[off:]))
	if err != nil {
		return nil, fmt.Errorf("decode payload at offset %d: %w", off, err)
	}

	r := raster.FromImage(img)
	if r.Width() != width || r.Height() != height {
		r = r.Resize(width, height)
	}
	return r, nil
}

// DecodeFile reads and decodes the fragment at path.
func DecodeFile(path string, width, height int) (*raster.Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, width, height)
}
