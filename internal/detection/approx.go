package detection

import (
	"image"
	"math"
)

// perimeter returns the length of the closed polyline through points,
// including the segment from the last point back to the first.
func perimeter(points []image.Point) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var length float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		length += math.Hypot(float64(points[j].X-points[i].X), float64(points[j].Y-points[i].Y))
	}
	return length
}

// approxPolygon simplifies a closed contour with the Douglas-Peucker
// algorithm. The ring is split at the point farthest from points[0] and
// each half is simplified as an open chain; vertices farther than
// epsilon from their chord survive. The result keeps the original cyclic
// order.
func approxPolygon(points []image.Point, epsilon float64) []image.Point {
	n := len(points)
	if n < 3 {
		out := make([]image.Point, n)
		copy(out, points)
		return out
	}

	far, maxSq := 0, 0.0
	for i := 1; i < n; i++ {
		dx := float64(points[i].X - points[0].X)
		dy := float64(points[i].Y - points[0].Y)
		if d := dx*dx + dy*dy; d > maxSq {
			maxSq, far = d, i
		}
	}
	if far == 0 {
		return []image.Point{points[0]}
	}

	first := simplifyOpen(points[:far+1], epsilon)

	back := make([]image.Point, 0, n-far+1)
	back = append(back, points[far:]...)
	back = append(back, points[0])
	second := simplifyOpen(back, epsilon)

	// both halves contain the split endpoints; keep each once
	out := make([]image.Point, 0, len(first)+len(second))
	out = append(out, first...)
	if len(second) > 2 {
		out = append(out, second[1:len(second)-1]...)
	}
	return out
}

// simplifyOpen runs Douglas-Peucker over an open chain, keeping both
// endpoints. Iterative with an explicit segment stack.
func simplifyOpen(points []image.Point, epsilon float64) []image.Point {
	n := len(points)
	if n < 3 {
		out := make([]image.Point, n)
		copy(out, points)
		return out
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ start, end int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.end-s.start < 2 {
			continue
		}

		far, maxDist := s.start, 0.0
		for i := s.start + 1; i < s.end; i++ {
			if d := lineDist(points[i], points[s.start], points[s.end]); d > maxDist {
				maxDist, far = d, i
			}
		}
		if maxDist > epsilon {
			keep[far] = true
			stack = append(stack, span{s.start, far}, span{far, s.end})
		}
	}

	out := make([]image.Point, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

// lineDist is the perpendicular distance from p to the line through a
// and b. When a == b it degrades to the point distance.
func lineDist(p, a, b image.Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	norm := math.Hypot(dx, dy)
	if norm == 0 {
		return math.Hypot(float64(p.X-a.X), float64(p.Y-a.Y))
	}
	num := math.Abs(dx*float64(p.Y-a.Y) - dy*float64(p.X-a.X))
	return num / norm
}
