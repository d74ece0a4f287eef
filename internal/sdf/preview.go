package sdf

import (
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

// Image returns the field as a grayscale image, row 0 at the top.
func (f Field) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Resolution, f.Resolution))
	copy(img.Pix, f.Data)
	return img
}

// Preview upscales the field for inspection. Scale values below 1 are treated
// as 1.
func Preview(f Field, scale int) *image.Gray {
	src := f.Image()
	if scale <= 1 {
		return src
	}
	size := f.Resolution * scale
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// WritePNG encodes an upscaled preview of the field.
func WritePNG(w io.Writer, f Field, scale int) error {
	return png.Encode(w, Preview(f, scale))
}
