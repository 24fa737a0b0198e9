package detection

import (
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Rectangle is a four-vertex candidate found in an image.
type Rectangle struct {
	// Contour is the traced outer boundary, clockwise, compressed to
	// direction changes.
	Contour []image.Point

	// Approx is the simplified polygon the candidate was accepted on;
	// it always has exactly four vertices.
	Approx []image.Point

	// Center is the centroid of the traced boundary, truncated to
	// integer pixel coordinates.
	Center image.Point
}

// Result holds every rectangle found in one image, in discovery order.
type Result struct {
	Rectangles []Rectangle
}

// Centers projects the center point of each rectangle, preserving order.
func (r *Result) Centers() []image.Point {
	centers := make([]image.Point, len(r.Rectangles))
	for i, rect := range r.Rectangles {
		centers[i] = rect.Center
	}
	return centers
}

// Extractor finds rectangle centers in grayscale images.
//
// The zero value is not useful; populate Threshold. Extractor is
// stateless apart from its configuration and safe for concurrent use.
type Extractor struct {
	// Threshold is the inverse binarization level: luminance at or
	// below it counts as foreground.
	Threshold uint8

	// SaveMask writes the binary mask beside the source image as
	// "<stem>_bw<ext>" before border suppression is applied. A failed
	// mask write is logged and does not fail the extraction.
	SaveMask bool

	// Logger receives debug and warning records. Nil uses slog.Default().
	Logger *slog.Logger
}

// Extract runs rectangle-center extraction over the image at path.
//
// The image is loaded as grayscale and binarized with the inverse rule:
// luminance at or below Threshold is foreground. After border
// suppression the outer boundary of every foreground component is
// traced, simplified with Douglas-Peucker at 2% of its closed
// perimeter, and kept when exactly four vertices remain. The center of
// each kept candidate is the centroid of its traced boundary from
// Green's-theorem moments, truncated toward zero. Candidates whose
// boundary encloses no area are dropped.
//
// An image with no rectangles produces a Result with an empty
// Rectangles slice and a nil error. Load and decode failures return
// ErrFileNotFound, ErrFileUnreadable, or ErrDecodeFailed.
func (e *Extractor) Extract(path string) (*Result, error) {
	gray, err := LoadGray(path)
	if err != nil {
		return nil, err
	}

	mask := binarizeInverse(gray, e.Threshold)

	if e.SaveMask {
		maskPath := maskArtifactPath(path)
		if err := imaging.Save(mask, maskPath); err != nil {
			e.logger().Warn("mask artifact not written", "path", maskPath, "error", err)
		} else {
			e.logger().Debug("mask artifact written", "path", maskPath)
		}
	}

	zeroBorder(mask)

	contours := findContours(mask)
	rectangles := make([]Rectangle, 0, len(contours))
	for _, contour := range contours {
		approx := approxPolygon(contour, 0.02*perimeter(contour))
		if len(approx) != 4 {
			continue
		}
		m := polygonMoments(contour)
		if m.M00 == 0 {
			continue
		}
		rectangles = append(rectangles, Rectangle{
			Contour: contour,
			Approx:  approx,
			Center:  image.Pt(int(m.M10/m.M00), int(m.M01/m.M00)),
		})
	}

	e.logger().Debug("extraction finished",
		"path", path,
		"contours", len(contours),
		"rectangles", len(rectangles))

	return &Result{Rectangles: rectangles}, nil
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// maskArtifactPath derives the debug mask name: "<stem>_bw<ext>".
func maskArtifactPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_bw" + ext
}

// IsMaskArtifact reports whether name carries the "_bw" stem suffix
// Extract gives its saved masks.
func IsMaskArtifact(name string) bool {
	return strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), "_bw")
}
