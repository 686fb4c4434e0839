package dedup

import (
	"fmt"
	"image"
	"image/gif"
	"os"
	"time"
)

// Frame is one decoded image of the sequence. Pix is an owned RGB buffer,
// row-major, 3 bytes per pixel. Frames are discarded as soon as their
// fingerprint is computed to bound memory.
type Frame struct {
	Index  int
	Delay  time.Duration
	Width  int
	Height int
	Pix    []byte
}

// FrameFromPaletted converts a decoded GIF frame to RGB, applying the
// frame's palette. If the palette is empty the color index is used as a
// gray level; that is a degraded mode, not a faithful decode.
func FrameFromPaletted(index int, img *image.Paletted, delay time.Duration) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{
		Index:  index,
		Delay:  delay,
		Width:  w,
		Height: h,
		Pix:    make([]byte, w*h*3),
	}

	if len(img.Palette) == 0 {
		for i, idx := range img.Pix {
			f.Pix[i*3] = idx
			f.Pix[i*3+1] = idx
			f.Pix[i*3+2] = idx
		}
		return f
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			o := (y*w + x) * 3
			f.Pix[o] = byte(r >> 8)
			f.Pix[o+1] = byte(g >> 8)
			f.Pix[o+2] = byte(bl >> 8)
		}
	}
	return f
}

// Image exposes the frame's pixels as an image.Image for hashing and
// re-encoding. The pixels are copied into a fresh opaque RGBA.
func (f *Frame) Image() image.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		rgba.Pix[i*4] = f.Pix[i*3]
		rgba.Pix[i*4+1] = f.Pix[i*3+1]
		rgba.Pix[i*4+2] = f.Pix[i*3+2]
		rgba.Pix[i*4+3] = 0xff
	}
	return rgba
}

// DecodeFrameFile reads one exploded single-frame GIF from disk.
func DecodeFrameFile(path string, index int, delay time.Duration) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame file %s: %w", path, err)
	}
	defer fh.Close()

	img, err := gif.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode frame file %s: %w", path, err)
	}

	paletted, ok := img.(*image.Paletted)
	if !ok {
		// gif.Decode always yields *image.Paletted today; guard anyway.
		return nil, fmt.Errorf("decode frame file %s: unexpected image type %T", path, img)
	}
	return FrameFromPaletted(index, paletted, delay), nil
}
