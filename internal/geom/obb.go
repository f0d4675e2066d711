package geom

import (
	"fmt"
	"math"
	"sort"
)

// areaEpsilon is the relative margin a candidate rectangle must beat the
// current best by. Near-ties keep the earlier hull edge so the result does
// not flip between equivalent frames on float noise.
const areaEpsilon = 1e-9

// Rect is a rectangle that may be rotated to any angle.
//
// Corners are ordered min-min, max-min, max-max, min-max in the fitted
// frame, rotated so that Corners[0] is the top-most (then left-most)
// corner. In image coordinates (y down) this is a clockwise walk.
type Rect struct {
	Corners [4]Point
	Width   float64 // extent along the fitted edge direction
	Height  float64 // extent along its normal
	Angle   float64 // direction of the width axis, radians in (-pi, pi]
}

// Area returns Width * Height. Degenerate rectangles have zero area.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Contains reports whether p lies inside r or on its boundary within eps.
func (r Rect) Contains(p Point, eps float64) bool {
	for i := 0; i < 4; i++ {
		a, b := r.Corners[i], r.Corners[(i+1)%4]
		// All corners wind the same way, so every edge must see p on the
		// same side (or on the edge).
		c := cross(a, b, p)
		edge := math.Hypot(b.X-a.X, b.Y-a.Y)
		if edge == 0 {
			continue
		}
		if c/edge < -eps {
			return false
		}
	}
	return true
}

// ConvexHull returns the convex hull of pts using Andrew's monotone chain.
// The hull is counter-clockwise in a y-up frame; collinear and duplicate
// points are dropped. Inputs with fewer than three distinct, non-collinear
// points yield a hull of one or two points.
func ConvexHull(pts []Point) []Point {
	ps := make([]Point, len(pts))
	copy(ps, pts)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})
	ps = dedupe(ps)
	if len(ps) < 3 {
		return ps
	}

	hull := make([]Point, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// MinAreaRect computes the minimum-area enclosing rectangle of pts with
// rotating calipers: for each convex hull edge, the bounding box aligned to
// that edge is measured and the smallest one kept.
//
// Collinear inputs produce a zero-height rectangle spanning the segment and
// a single point produces a zero-size rectangle; neither is an error here.
func MinAreaRect(pts []Point) Rect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return Rect{}
	case 1:
		return Rect{Corners: [4]Point{hull[0], hull[0], hull[0], hull[0]}}
	}

	var best Rect
	bestArea := math.Inf(1)
	n := len(hull)
	for i := 0; i < n; i++ {
		a, b := hull[i], hull[(i+1)%n]
		dx, dy := b.X-a.X, b.Y-a.Y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		u := Point{X: dx / length, Y: dy / length}
		v := Point{X: -u.Y, Y: u.X}

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			pu := p.X*u.X + p.Y*u.Y
			pv := p.X*v.X + p.Y*v.Y
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}

		area := (maxU - minU) * (maxV - minV)
		if bestArea-area > areaEpsilon*math.Max(1, area) {
			bestArea = area
			best = Rect{
				Corners: [4]Point{
					frame(u, v, minU, minV),
					frame(u, v, maxU, minV),
					frame(u, v, maxU, maxV),
					frame(u, v, minU, maxV),
				},
				Width:  maxU - minU,
				Height: maxV - minV,
				Angle:  math.Atan2(u.Y, u.X),
			}
		}
	}
	best.Corners = canonicalStart(best.Corners)
	return best
}

// FitOBB fits the minimum-area rotated rectangle around a pixel-space
// polygon and returns its four corners normalized by the image size.
// Rectangles that overshoot the image or collapse to zero area are rejected.
func FitOBB(pixels []Point, width, height int) ([]Point, error) {
	if len(pixels) < MinPolygonPoints {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(pixels))
	}
	if width <= 0 || height <= 0 {
		return nil, ErrNoDimensions
	}
	for _, p := range pixels {
		if !finite(p.X) || !finite(p.Y) {
			return nil, fmt.Errorf("%w: non-finite input (%g, %g)", ErrOutOfRange, p.X, p.Y)
		}
	}
	rect := MinAreaRect(pixels)
	if rect.Area() <= 0 {
		return nil, ErrDegenerate
	}
	out := make([]Point, 0, 4)
	for i, c := range rect.Corners {
		p, err := CheckUnit(Point{X: c.X / float64(width), Y: c.Y / float64(height)})
		if err != nil {
			return nil, fmt.Errorf("corner %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func frame(u, v Point, s, t float64) Point {
	return Point{X: u.X*s + v.X*t, Y: u.Y*s + v.Y*t}
}

// canonicalStart rotates the corner cycle so the corner with the smallest y
// (ties broken by smallest x) comes first. Winding is preserved.
func canonicalStart(c [4]Point) [4]Point {
	start := 0
	for i := 1; i < 4; i++ {
		dy := c[i].Y - c[start].Y
		if dy < -areaEpsilon || (math.Abs(dy) <= areaEpsilon && c[i].X < c[start].X) {
			start = i
		}
	}
	var out [4]Point
	for i := 0; i < 4; i++ {
		out[i] = c[(start+i)%4]
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func dedupe(sorted []Point) []Point {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
