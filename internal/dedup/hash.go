package dedup

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// Fingerprint is a 64-bit difference hash of a frame's luma gradient.
// Similarity between two fingerprints is their Hamming distance, in [0, 64].
type Fingerprint uint64

const (
	hashCols = 9
	hashRows = 8
)

// Hash resamples img to a 9x8 grid, converts to luma and packs one
// left>right bit per cell, row-major. Deterministic and side-effect free;
// a uniform frame hashes to zero.
func Hash(img image.Image) Fingerprint {
	small := image.NewRGBA(image.Rect(0, 0, hashCols, hashRows))
	draw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var luma [hashRows][hashCols]int32
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashCols; x++ {
			o := small.PixOffset(x, y)
			r := int32(small.Pix[o])
			g := int32(small.Pix[o+1])
			b := int32(small.Pix[o+2])
			// ITU-R BT.601 integer luma.
			luma[y][x] = (299*r + 587*g + 114*b) / 1000
		}
	}

	var h Fingerprint
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashRows; x++ {
			if luma[y][x] > luma[y][x+1] {
				h |= 1 << uint(y*8+x)
			}
		}
	}
	return h
}

// Distance is the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}
