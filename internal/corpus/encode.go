package corpus

import (
	"errors"

	"github.com/flxnaf/beamestraight/internal/geom"
	"github.com/flxnaf/beamestraight/internal/resolve"
)

// Rejection reasons, used as keys in ProjectStats.Rejections.
const (
	ReasonImageNotFound     = "image_not_found"
	ReasonImageUnreadable   = "image_unreadable"
	ReasonDimensionsUnknown = "dimensions_unknown"
	ReasonGeometryInvalid   = "geometry_invalid"
	ReasonUnknownClass      = "unknown_class"
	ReasonOther             = "other"
)

// ErrImageUnreadable marks a resolved raster whose header could not be read
// when the export carries no dimensions either.
var ErrImageUnreadable = errors.New("image unreadable")

// Reason maps a per-item error onto its rejection reason.
func Reason(err error) string {
	switch {
	case errors.Is(err, resolve.ErrImageNotFound):
		return ReasonImageNotFound
	case errors.Is(err, ErrImageUnreadable):
		return ReasonImageUnreadable
	case errors.Is(err, geom.ErrNoDimensions):
		return ReasonDimensionsUnknown
	case geom.IsGeometryError(err):
		return ReasonGeometryInvalid
	case errors.Is(err, ErrUnknownClass):
		return ReasonUnknownClass
	}
	return ReasonOther
}

// Encode converts one raw annotation into normalized points for mode.
//
// OBB: points are taken to pixel space (pixel sources clamped to the image
// first), fitted with the minimum-area rotated rectangle, and the corners
// re-normalized and range-checked. Seg: the polygon is normalized directly.
func Encode(mode Mode, a RawAnnotation, width, height int) ([]geom.Point, error) {
	if a.Invalid != nil {
		return nil, a.Invalid
	}
	if mode != ModeOBB {
		return geom.NormalizePolygon(a.Points, a.Units, width, height)
	}
	pixels, err := geom.ToPixels(a.Points, a.Units, width, height)
	if err != nil {
		return nil, err
	}
	if a.Units == geom.UnitsPixel {
		pixels = geom.ClampPixels(pixels, width, height)
	}
	return geom.FitOBB(pixels, width, height)
}
