// Package detection finds rectangular sheet outlines in grayscale images
// and reports their centers in pixel coordinates.
//
// The pipeline mirrors a classic scanned-document workflow:
//
//  1. Inverse binarization: pixels at or below a fixed luminance level
//     become foreground (ink, sheet shadow), everything brighter becomes
//     background (paper, light table).
//  2. Border suppression: the outermost pixel ring is forced to
//     background so shapes touching the frame cannot produce open
//     boundaries.
//  3. Contour tracing: the outer boundary of every 8-connected
//     foreground component is walked with Moore neighbourhood tracing.
//     Interior holes are never reported; only external outlines are.
//  4. Polygon approximation: each boundary is simplified with the
//     Douglas-Peucker algorithm at a tolerance of 2% of its closed
//     perimeter. Shapes that reduce to exactly four vertices are kept
//     as rectangle candidates.
//  5. Moments: the centroid of each candidate comes from Green's-theorem
//     polygon moments over its traced boundary, truncated to integer
//     pixel coordinates.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Determinism
//
// Results are deterministic for a given image and threshold: components
// are discovered in raster order of their topmost-leftmost pixel, and the
// boundary walk, simplification, and moment computation are all
// order-stable. Running twice over the same file yields identical
// centers.
//
// # Limitations
//
//   - Rotated rectangles are detected (the four-vertex rule is
//     orientation-free) but heavily rounded corners may simplify to more
//     than four vertices and be dropped.
//   - A foreground island fully enclosed by a hole in another component
//     is traced as its own outline.
//   - The binarization level is fixed per extraction; unevenly lit scans
//     may need a different level, not an adaptive one.
package detection
