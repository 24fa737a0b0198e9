package detection

import "image"

// moore lists the 8-neighbourhood in clockwise order for screen
// coordinates (y grows downward), starting at east.
var moore = [8]image.Point{
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
}

// findContours returns the outer boundary of every 8-connected
// foreground component in mask, ordered by raster position of each
// component's first pixel. Boundaries are traced clockwise and
// compressed so that runs of same-direction steps keep only their
// endpoints. Holes inside a component are consumed with the component
// and never produce a boundary of their own.
func findContours(mask *image.Gray) [][]image.Point {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	grid := make([]bool, w*h)
	for y := 0; y < h; y++ {
		off := mask.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			grid[y*w+x] = mask.Pix[off+x] != 0
		}
	}

	visited := make([]bool, w*h)
	var contours [][]image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !grid[y*w+x] || visited[y*w+x] {
				continue
			}
			contour := compressChain(traceBoundary(grid, w, h, x, y))
			fillComponent(grid, visited, w, h, x, y)
			if b.Min.X != 0 || b.Min.Y != 0 {
				for i := range contour {
					contour[i].X += b.Min.X
					contour[i].Y += b.Min.Y
				}
			}
			contours = append(contours, contour)
		}
	}
	return contours
}

// traceBoundary walks the outer boundary of the component containing
// (sx, sy) clockwise using Moore neighbourhood tracing. The start pixel
// must be the component's first pixel in raster order, which guarantees
// its west neighbour is background. The walk stops when it is about to
// repeat its first move out of the start pixel, or at a hard step cap on
// pathological masks. An isolated pixel yields a one-point boundary.
func traceBoundary(grid []bool, w, h, sx, sy int) []image.Point {
	fg := func(p image.Point) bool {
		return p.X >= 0 && p.X < w && p.Y >= 0 && p.Y < h && grid[p.Y*w+p.X]
	}

	start := image.Pt(sx, sy)
	contour := []image.Point{start}
	cur := start
	backtrack := image.Pt(sx-1, sy)
	var firstNext image.Point
	haveFirst := false

	for steps := 0; steps < 8*w*h; steps++ {
		bi := dirIndex(backtrack.Sub(cur))
		next := image.Point{}
		ni := -1
		for i := 1; i <= 8; i++ {
			ci := (bi + i) % 8
			n := cur.Add(moore[ci])
			if fg(n) {
				next, ni = n, ci
				break
			}
			backtrack = n
		}
		if ni < 0 {
			return contour
		}
		if !haveFirst {
			firstNext = next
			haveFirst = true
		} else if cur == start && next == firstNext {
			break
		}
		contour = append(contour, next)
		cur = next
	}

	if len(contour) > 1 && contour[len(contour)-1] == start {
		contour = contour[:len(contour)-1]
	}
	return contour
}

// dirIndex maps a king-move delta to its position in the moore ring.
func dirIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}

// fillComponent marks every pixel 8-connected to (sx, sy) as visited.
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large components.
func fillComponent(grid, visited []bool, w, h, sx, sy int) {
	stack := []image.Point{image.Pt(sx, sy)}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		i := p.Y*w + p.X
		if visited[i] || !grid[i] {
			continue
		}
		visited[i] = true

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Pt(p.X+dx, p.Y+dy))
			}
		}
	}
}

// compressChain drops the interior points of straight runs from a closed
// pixel chain: a point survives only if the step into it and the step
// out of it differ in direction. The polygon described by the chain is
// unchanged.
func compressChain(contour []image.Point) []image.Point {
	n := len(contour)
	if n < 3 {
		return contour
	}
	out := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		cur := contour[i]
		in := cur.Sub(contour[(i+n-1)%n])
		dir := contour[(i+1)%n].Sub(cur)
		if in != dir {
			out = append(out, cur)
		}
	}
	if len(out) == 0 {
		return contour[:1]
	}
	return out
}
