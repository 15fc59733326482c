// Package raster provides the fixed-size RGBA pixel buffer that every stage of
// tilestack exchanges, with the handful of operations the compositor and the
// mosaic assembler need: clone, crop, resample, alpha-over paste, opaque
// paste and grayscale conversion.
//
// Pixels are stored with straight (non-premultiplied) alpha, 8 bits per
// channel, origin at (0,0).
package raster

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Raster is an RGBA pixel buffer anchored at the origin.
type Raster struct {
	img *image.NRGBA
}

// New allocates a fully transparent raster of the given size.
func New(width, height int) *Raster {
	return &Raster{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// FromImage copies any image into a new raster, translating its bounds so
// that the top-left pixel lands at (0,0).
func FromImage(src image.Image) *Raster {
	b := src.Bounds()
	r := New(b.Dx(), b.Dy())
	draw.Draw(r.img, r.img.Bounds(), src, b.Min, draw.Src)
	return r
}

// Filled allocates a raster where every pixel is c.
func Filled(width, height int, c color.NRGBA) *Raster {
	r := New(width, height)
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return r
}

// Image exposes the underlying buffer for encoding. Callers must not
// mutate rasters they do not own.
func (r *Raster) Image() *image.NRGBA { return r.img }

// Width returns the width in pixels.
func (r *Raster) Width() int { return r.img.Rect.Dx() }

// Height returns the height in pixels.
func (r *Raster) Height() int { return r.img.Rect.Dy() }

// Size returns width and height as a point.
func (r *Raster) Size() image.Point { return r.img.Rect.Size() }

// Bounds returns the raster rectangle, always anchored at the origin.
func (r *Raster) Bounds() image.Rectangle { return r.img.Rect }

// At returns the pixel at (x, y).
func (r *Raster) At(x, y int) color.NRGBA { return r.img.NRGBAAt(x, y) }

// Set writes the pixel at (x, y).
func (r *Raster) Set(x, y int, c color.NRGBA) { r.img.SetNRGBA(x, y, c) }

// Clone returns an independent deep copy.
func (r *Raster) Clone() *Raster {
	pix := make([]uint8, len(r.img.Pix))
	copy(pix, r.img.Pix)
	return &Raster{img: &image.NRGBA{Pix: pix, Stride: r.img.Stride, Rect: r.img.Rect}}
}

// Crop copies the pixels inside rect into a new raster. rect must lie fully
// inside the raster.
func (r *Raster) Crop(rect image.Rectangle) (*Raster, error) {
	if rect.Empty() || !rect.In(r.img.Rect) {
		return nil, fmt.Errorf("crop %v outside raster bounds %v", rect, r.img.Rect)
	}
	out := New(rect.Dx(), rect.Dy())
	draw.Draw(out.img, out.img.Bounds(), r.img, rect.Min, draw.Src)
	return out, nil
}

// Resize resamples the raster to width x height with a Catmull-Rom kernel.
// A raster already at the requested size is cloned unchanged.
func (r *Raster) Resize(width, height int) *Raster {
	if r.Width() == width && r.Height() == height {
		return r.Clone()
	}
	out := New(width, height)
	draw.CatmullRom.Scale(out.img, out.img.Bounds(), r.img, r.img.Bounds(), draw.Src, nil)
	return out
}

// PasteOver composites src onto r with its top-left corner at `at`, using
// the alpha channel of src as the blend mask (src over r).
func (r *Raster) PasteOver(src *Raster, at image.Point) {
	dst := image.Rectangle{Min: at, Max: at.Add(src.Size())}
	draw.Draw(r.img, dst, src.img, image.Point{}, draw.Over)
}

// Paste replaces the pixels under src with src, alpha included.
func (r *Raster) Paste(src *Raster, at image.Point) {
	dst := image.Rectangle{Min: at, Max: at.Add(src.Size())}
	draw.Draw(r.img, dst, src.img, image.Point{}, draw.Src)
}

// Grayscale returns a copy with each pixel replaced by its ITU-R 601-2 luma,
// alpha preserved.
func (r *Raster) Grayscale() *Raster {
	out := r.Clone()
	pix := out.img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		l := uint8((uint32(pix[i])*299 + uint32(pix[i+1])*587 + uint32(pix[i+2])*114 + 500) / 1000)
		pix[i], pix[i+1], pix[i+2] = l, l, l
	}
	return out
}

// Equal reports whether both rasters have the same size and pixels.
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Size() != o.Size() {
		return false
	}
	w, h := r.Width(), r.Height()
	for y := 0; y < h; y++ {
		a := r.img.Pix[y*r.img.Stride : y*r.img.Stride+w*4]
		b := o.img.Pix[y*o.img.Stride : y*o.img.Stride+w*4]
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// IsOpaque reports whether every pixel has full alpha.
func (r *Raster) IsOpaque() bool {
	return r.img.Opaque()
}
