package detection

import "image"

// Moments holds the spatial moments of a closed polygon up to first
// order. M00 is the enclosed area; M10/M00 and M01/M00 locate the
// centroid. The sign convention is normalized so M00 is never negative,
// regardless of the winding direction of the input.
type Moments struct {
	M00 float64
	M10 float64
	M01 float64
}

// polygonMoments computes boundary moments with Green's theorem over the
// closed polygon through points. A polygon that encloses no area (fewer
// than three distinct vertices, or a degenerate chain that doubles back
// on itself) yields the zero value.
func polygonMoments(points []image.Point) Moments {
	n := len(points)
	if n == 0 {
		return Moments{}
	}

	var a00, a10, a01 float64
	px := float64(points[n-1].X)
	py := float64(points[n-1].Y)
	for i := 0; i < n; i++ {
		x := float64(points[i].X)
		y := float64(points[i].Y)
		cross := px*y - x*py
		a00 += cross
		a10 += cross * (px + x)
		a01 += cross * (py + y)
		px, py = x, y
	}
	if a00 == 0 {
		return Moments{}
	}

	half, sixth := 0.5, 1.0/6
	if a00 < 0 {
		half, sixth = -half, -sixth
	}
	return Moments{
		M00: a00 * half,
		M10: a10 * sixth,
		M01: a01 * sixth,
	}
}
