// Package placement maps on-screen click positions onto page-native
// coordinates and computes the default corner position for a signature.
//
// Screen coordinates have their origin at the top-left with y growing down.
// Page coordinates follow the PDF convention: origin at the bottom-left with
// y growing up.
package placement

import (
	"errors"
	"math"
)

// ErrNotLaidOut is returned when the rendered surface has no size yet.
// Callers should retry once layout has happened.
var ErrNotLaidOut = errors.New("rendered surface has zero size")

// DefaultReductionFactor scales a captured signature down before placement.
const DefaultReductionFactor = 0.5

// DefaultCornerMargin is the inset of the corner placement, as a fraction of
// the page width and height.
const DefaultCornerMargin = 0.05

// Point is a coordinate pair.
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair.
type Size struct {
	Width  float64
	Height float64
}

// IsZero reports whether either dimension is zero or negative.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Scale returns the native-to-rendered ratio for each axis.
func Scale(rendered, native Size) (sx, sy float64, err error) {
	if rendered.IsZero() {
		return 0, 0, ErrNotLaidOut
	}
	return native.Width / rendered.Width, native.Height / rendered.Height, nil
}

// ToNative scales a screen point into native units without changing the
// axis orientation: native = screen * (native size / rendered size).
func ToNative(p Point, rendered, native Size) (Point, error) {
	sx, sy, err := Scale(rendered, native)
	if err != nil {
		return Point{}, err
	}
	return Point{X: p.X * sx, Y: p.Y * sy}, nil
}

// FlipY converts a top-left-origin y into a bottom-left-origin y for a page
// of the given height. objHeight is the height of the placed object, so the
// result is the object's bottom edge.
func FlipY(y, pageHeight, objHeight float64) float64 {
	return pageHeight - y - objHeight
}

// ScreenToPage converts a click on the rendered page into the bottom-left
// corner of an object of size obj in page coordinates. The click marks the
// object's top-left corner.
func ScreenToPage(click Point, rendered, native, obj Size) (Point, error) {
	p, err := ToNative(click, rendered, native)
	if err != nil {
		return Point{}, err
	}
	return Point{X: p.X, Y: FlipY(p.Y, native.Height, obj.Height)}, nil
}

// Corner returns the bottom-left corner for an object of size obj anchored
// at the bottom-right of page, inset by margin times the page dimensions.
func Corner(page, obj Size, margin float64) Point {
	return Point{
		X: page.Width - page.Width*margin - obj.Width,
		Y: page.Height * margin,
	}
}

// ScaleSignature applies the reduction factor to capture-time dimensions.
// A non-positive factor falls back to DefaultReductionFactor.
func ScaleSignature(width, height int, factor float64) Size {
	if factor <= 0 {
		factor = DefaultReductionFactor
	}
	return Size{Width: float64(width) * factor, Height: float64(height) * factor}
}

// Clamp keeps an object of size obj fully inside page by moving its
// bottom-left corner.
func Clamp(p Point, page, obj Size) Point {
	return Point{
		X: math.Max(0, math.Min(p.X, page.Width-obj.Width)),
		Y: math.Max(0, math.Min(p.Y, page.Height-obj.Height)),
	}
}
