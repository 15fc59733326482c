package raster

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // backgrounds are sometimes exported as jpeg
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output raster encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatPNG, FormatBMP, FormatTIFF}
}

// ParseFormat accepts a format name or file extension, with or without the
// leading dot. "tif" is accepted as an alias for tiff.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported raster format %q", name)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Encode writes r to w in the given format.
func Encode(w io.Writer, r *Raster, format Format) error {
	switch format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, r.img)
	case FormatBMP:
		return bmp.Encode(w, r.img)
	case FormatTIFF:
		return tiff.Encode(w, r.img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported raster format %q", format)
	}
}

// Decode reads any registered image format (png, jpeg, bmp, tiff) into a
// raster.
func Decode(rd io.Reader) (*Raster, error) {
	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (*Raster, error) {
	return Decode(bytes.NewReader(data))
}

// Load decodes the raster stored at path.
func Load(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(bufio.NewReader(f))
}

// Save encodes r into path. The file is written under a temporary name in
// the same directory and renamed into place, so a failed write never leaves
// a truncated raster behind.
func Save(path string, r *Raster, format Format) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, r, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
