// Package annotate renders detection results onto images for visual
// inspection. The overlay is a debugging artifact and never feeds back
// into the pipeline.
package annotate

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/harveyblob04/vision-system/internal/detection"
)

const (
	strokeRadius = 1
	centerRadius = 5
)

// Overlay renders the detected rectangles onto a copy of the grayscale
// source. Each rectangle gets its own hue: the traced outline is stroked
// and the computed center is marked with a filled disc. The source image
// is not modified.
func Overlay(gray *image.Gray, rects []detection.Rectangle) *image.RGBA {
	out := clone.AsRGBA(gray)
	colors := palette(len(rects))
	for i, rect := range rects {
		strokeContour(out, rect.Contour, colors[i])
		fillDisc(out, rect.Center, centerRadius, colors[i])
	}
	return out
}

// ArtifactPath derives the overlay file name from the source image path,
// keeping the directory and extension.
func ArtifactPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "_overlay" + ext
}

// IsArtifact reports whether name carries the "_overlay" stem suffix
// that ArtifactPath produces.
func IsArtifact(name string) bool {
	return strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), "_overlay")
}

// palette returns n fully saturated colors with evenly spaced hues.
// The assignment is deterministic, so repeated runs over the same image
// produce identical overlays.
func palette(n int) []color.RGBA {
	colors := make([]color.RGBA, n)
	for i := range colors {
		hue := float64(i) * 360.0 / float64(n)
		r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func strokeContour(img *image.RGBA, contour []image.Point, c color.RGBA) {
	n := len(contour)
	if n == 0 {
		return
	}
	if n == 1 {
		stamp(img, contour[0].X, contour[0].Y, c)
		return
	}
	for i := 0; i < n; i++ {
		drawLine(img, contour[i], contour[(i+1)%n], c)
	}
}

// drawLine draws a thick segment between a and b using Bresenham's
// algorithm.
func drawLine(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	x, y := a.X, a.Y
	err := dx + dy
	for {
		stamp(img, x, y, c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// stamp paints a small square around (x, y) so strokes stay visible on
// large images. SetRGBA ignores out-of-bounds pixels.
func stamp(img *image.RGBA, x, y int, c color.RGBA) {
	for dy := -strokeRadius; dy <= strokeRadius; dy++ {
		for dx := -strokeRadius; dx <= strokeRadius; dx++ {
			img.SetRGBA(x+dx, y+dy, c)
		}
	}
}

func fillDisc(img *image.RGBA, center image.Point, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(center.X+dx, center.Y+dy, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
