package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tilestack/internal/raster"
)

// fragment wraps a PNG-encoded raster in container noise.
func fragment(t *testing.T, r *raster.Raster) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("MMAP\x00\x01header-bytes")
	require.NoError(t, raster.Encode(&buf, r, raster.FormatPNG))
	buf.WriteString("trailing-metadata")
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	src := raster.Filled(4, 4, color.NRGBA{G: 200, A: 255})
	src.Set(1, 2, color.NRGBA{R: 9, A: 100})

	got, err := Decode(fragment(t, src), 4, 4)
	require.NoError(t, err)
	assert.True(t, src.Equal(got))
}

func TestDecodeRescales(t *testing.T) {
	src := raster.Filled(2, 2, color.NRGBA{B: 255, A: 255})

	got, err := Decode(fragment(t, src), 6, 6)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(6, 6), got.Size())
	assert.True(t, got.IsOpaque())
}

func TestDecodeNoPayload(t *testing.T) {
	_, err := Decode([]byte("container without any raster"), 4, 4)
	assert.True(t, errors.Is(err, ErrNoPayload))

	_, err = Decode(nil, 4, 4)
	assert.True(t, errors.Is(err, ErrNoPayload))
}

func TestDecodeCorruptPayload(t *testing.T) {
	data := append([]byte("hdr"), signature...)
	data = append(data, []byte("\r\n\x1a\ntruncated")...)

	_, err := Decode(data, 4, 4)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoPayload))
	assert.Contains(t, err.Error(), "offset 3")
}

func TestPayloadOffset(t *testing.T) {
	assert.Equal(t, -1, PayloadOffset([]byte("abc")))
	assert.Equal(t, 2, PayloadOffset([]byte("ab\x89PNGxx")))
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0-0-0.minimap")
	src := raster.Filled(3, 3, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	require.NoError(t, os.WriteFile(path, fragment(t, src), 0o644))

	got, err := DecodeFile(path, 3, 3)
	require.NoError(t, err)
	assert.True(t, src.Equal(got))

	_, err = DecodeFile(filepath.Join(dir, "missing.minimap"), 3, 3)
	assert.Error(t, err)
}
