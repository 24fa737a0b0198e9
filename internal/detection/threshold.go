package detection

import (
	"image"

	"github.com/anthonynsimon/bild/parallel"
)

// binarizeInverse builds the foreground mask for src: pixels with
// luminance at or below level become white (255), all others black.
// Dark sheets on a light background therefore come out as foreground.
//
// The comparison is an exact integer compare on the gray pixel buffer;
// rows are processed in parallel.
func binarizeInverse(src *image.Gray, level uint8) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	width := bounds.Dx()

	parallel.Line(bounds.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			srcOff := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dstOff := dst.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < width; x++ {
				if src.Pix[srcOff+x] <= level {
					dst.Pix[dstOff+x] = 0xFF
				}
			}
		}
	})

	return dst
}

// zeroBorder forces the outermost pixel ring of mask to background.
// Boundaries traced afterwards can never include a border pixel.
func zeroBorder(mask *image.Gray) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	for x := 0; x < w; x++ {
		mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y)] = 0
		mask.Pix[mask.PixOffset(b.Min.X+x, b.Min.Y+h-1)] = 0
	}
	for y := 0; y < h; y++ {
		mask.Pix[mask.PixOffset(b.Min.X, b.Min.Y+y)] = 0
		mask.Pix[mask.PixOffset(b.Min.X+w-1, b.Min.Y+y)] = 0
	}
}
