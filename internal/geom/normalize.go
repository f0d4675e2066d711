// Package geom implements the polygon math behind label conversion:
// unit conversion into normalized image space and minimum-area
// oriented rectangle fitting.
//
// All coordinates use image conventions: origin top-left, x to the right,
// y downward. Normalized coordinates are fractions of image width and
// height and must lie in [0, 1] before they are emitted.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// Point is a 2-D point. Units depend on context (percent, pixel or normalized).
type Point struct {
	X, Y float64
}

// Units identifies the coordinate space a source polygon is expressed in.
type Units int

const (
	// UnitsPixel means absolute pixel coordinates (COCO exports).
	UnitsPixel Units = iota
	// UnitsPercent means percentages 0-100 of width/height (Label Studio exports).
	UnitsPercent
)

func (u Units) String() string {
	switch u {
	case UnitsPercent:
		return "percent"
	default:
		return "pixel"
	}
}

// MinPolygonPoints is the smallest point count that can enclose a region.
const MinPolygonPoints = 3

// rangeTolerance absorbs float noise when checking the [0,1] invariant.
// Values within tolerance of a bound are snapped onto it.
const rangeTolerance = 1e-9

var (
	// ErrTooFewPoints is returned for polygons with fewer than three points.
	ErrTooFewPoints = errors.New("polygon has fewer than 3 points")

	// ErrOutOfRange is returned when a normalized coordinate falls outside [0,1].
	ErrOutOfRange = errors.New("normalized coordinate outside [0,1]")

	// ErrDegenerate is returned when a fitted rectangle has zero area.
	ErrDegenerate = errors.New("degenerate rectangle (zero area)")

	// ErrMalformed is returned for source polygons that cannot be read as
	// a point list (odd coordinate counts, RLE masks, short points).
	ErrMalformed = errors.New("malformed polygon")

	// ErrNoDimensions is returned when normalization is attempted without
	// known pixel dimensions.
	ErrNoDimensions = errors.New("image dimensions unknown")
)

// IsGeometryError reports whether err is one of the per-instance geometry
// rejections (as opposed to an image-level failure).
func IsGeometryError(err error) bool {
	return errors.Is(err, ErrTooFewPoints) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrDegenerate)
}

// ToPixels converts points from the given units into pixel coordinates.
// Percent points become p * dim / 100; pixel points are copied unchanged.
func ToPixels(pts []Point, units Units, width, height int) ([]Point, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrNoDimensions
	}
	out := make([]Point, len(pts))
	for i, p := range pts {
		if units == UnitsPercent {
			out[i] = Point{X: p.X * float64(width) / 100, Y: p.Y * float64(height) / 100}
		} else {
			out[i] = p
		}
	}
	return out, nil
}

// ClampPixels clamps pixel points onto the image rectangle [0,w]x[0,h].
func ClampPixels(pts []Point, width, height int) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: clamp(p.X, 0, float64(width)), Y: clamp(p.Y, 0, float64(height))}
	}
	return out
}

// Normalize divides pixel points by the image dimensions. With clamp set,
// every coordinate is clamped to [0,1]; otherwise any coordinate outside
// the range (beyond float tolerance) fails with ErrOutOfRange.
func Normalize(pixels []Point, width, height int, clampToUnit bool) ([]Point, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrNoDimensions
	}
	out := make([]Point, len(pixels))
	for i, p := range pixels {
		x := p.X / float64(width)
		y := p.Y / float64(height)
		if clampToUnit && finite(x) && finite(y) {
			x, y = clamp(x, 0, 1), clamp(y, 0, 1)
		}
		var err error
		if out[i], err = CheckUnit(Point{X: x, Y: y}); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	return out, nil
}

// NormalizePolygon runs the full polygon normalization for one instance:
// point-count check, conversion to pixels, then normalization. Pixel-space
// sources (COCO) are clamped; percent sources are range-checked instead.
func NormalizePolygon(pts []Point, units Units, width, height int) ([]Point, error) {
	if len(pts) < MinPolygonPoints {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(pts))
	}
	pixels, err := ToPixels(pts, units, width, height)
	if err != nil {
		return nil, err
	}
	return Normalize(pixels, width, height, units == UnitsPixel)
}

// CheckUnit validates that p lies in [0,1]^2, snapping values within
// tolerance of a bound onto the bound.
func CheckUnit(p Point) (Point, error) {
	x, okX := snapUnit(p.X)
	y, okY := snapUnit(p.Y)
	if !okX || !okY {
		return p, fmt.Errorf("%w: (%g, %g)", ErrOutOfRange, p.X, p.Y)
	}
	return Point{X: x, Y: y}, nil
}

func snapUnit(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return v, false
	case v < -rangeTolerance || v > 1+rangeTolerance:
		return v, false
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	}
	return v, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
