// Package signature captures a handwritten signature from pointer or touch
// input and renders it to PNG.
package signature

import (
	"math"
	"sync"
	"time"

	"docsign/internal/docsign"
)

// Default surface geometry.
const (
	DefaultWidth     = 500
	DefaultHeight    = 150
	DefaultLineWidth = 2.0
)

// Point is a position in surface pixels, origin top-left.
type Point struct {
	X, Y float64
}

// Touch is one contact point of a touch event, in client coordinates.
type Touch struct {
	ClientX, ClientY float64
}

// Surface is a fixed-size drawing area. Strokes are kept in normalized
// [0,1] coordinates so that they follow the surface across resizes.
// Surface is safe for concurrent use.
type Surface struct {
	mu        sync.Mutex
	width     int
	height    int
	lineWidth float64

	strokes      [][]Point // normalized
	drawing      bool
	hasSignature bool
}

// NewSurface creates an empty surface. Non-positive arguments take the
// defaults.
func NewSurface(width, height int, lineWidth float64) *Surface {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if lineWidth <= 0 {
		lineWidth = DefaultLineWidth
	}
	return &Surface{width: width, height: height, lineWidth: lineWidth}
}

// Size returns the surface dimensions in pixels.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// PointerDown starts a stroke. origin is the surface's top-left corner in
// client coordinates.
func (s *Surface) PointerDown(clientX, clientY float64, origin Point) {
	s.begin(Point{X: clientX - origin.X, Y: clientY - origin.Y})
}

// PointerMove extends the current stroke, if any.
func (s *Surface) PointerMove(clientX, clientY float64, origin Point) {
	s.extend(Point{X: clientX - origin.X, Y: clientY - origin.Y})
}

// PointerUp ends the current stroke. Leaving the surface ends it too.
func (s *Surface) PointerUp() {
	s.end()
}

// TouchStart starts a stroke at the first touch.
func (s *Surface) TouchStart(touches []Touch, origin Point) {
	if len(touches) == 0 {
		return
	}
	s.begin(Point{X: touches[0].ClientX - origin.X, Y: touches[0].ClientY - origin.Y})
}

// TouchMove extends the current stroke with the first touch.
func (s *Surface) TouchMove(touches []Touch, origin Point) {
	if len(touches) == 0 {
		return
	}
	s.extend(Point{X: touches[0].ClientX - origin.X, Y: touches[0].ClientY - origin.Y})
}

// TouchEnd ends the current stroke.
func (s *Surface) TouchEnd() {
	s.end()
}

func (s *Surface) begin(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = true
	s.strokes = append(s.strokes, []Point{s.normalize(p)})
}

// extend appends to the open stroke. Only movement while drawing counts as
// content; a bare press leaves HasSignature unchanged.
func (s *Surface) extend(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing || len(s.strokes) == 0 {
		return
	}
	last := len(s.strokes) - 1
	s.strokes[last] = append(s.strokes[last], s.normalize(p))
	s.hasSignature = true
}

func (s *Surface) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return
	}
	s.drawing = false
	// A press without movement leaves nothing visible
	if last := len(s.strokes) - 1; last >= 0 && len(s.strokes[last]) < 2 {
		s.strokes = s.strokes[:last]
	}
}

func (s *Surface) normalize(p Point) Point {
	return Point{X: p.X / float64(s.width), Y: p.Y / float64(s.height)}
}

// Clear discards all strokes and returns the surface to its initial state.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strokes = nil
	s.drawing = false
	s.hasSignature = false
}

// Resize changes the surface dimensions. Strokes are rescaled with the
// surface when the aspect ratio is unchanged; otherwise they would distort,
// so they are discarded and the surface is cleared.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 || (width == s.width && height == s.height) {
		return
	}
	oldRatio := float64(s.width) / float64(s.height)
	newRatio := float64(width) / float64(height)
	s.width, s.height = width, height
	if math.Abs(oldRatio-newRatio) > 1e-9 {
		s.strokes = nil
		s.drawing = false
		s.hasSignature = false
	}
}

// HasSignature reports whether anything has been drawn since the last Clear.
func (s *Surface) HasSignature() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSignature
}

// Strokes returns the strokes in current surface pixels.
func (s *Surface) Strokes() [][]Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pixelStrokes()
}

func (s *Surface) pixelStrokes() [][]Point {
	out := make([][]Point, 0, len(s.strokes))
	for _, stroke := range s.strokes {
		ps := make([]Point, len(stroke))
		for i, p := range stroke {
			ps[i] = Point{X: p.X * float64(s.width), Y: p.Y * float64(s.height)}
		}
		out = append(out, ps)
	}
	return out
}

// Confirm renders the surface and returns the captured signature. An empty
// surface is rejected with a ValidationError.
func (s *Surface) Confirm(signerName string, now time.Time) (*docsign.SignatureData, error) {
	s.mu.Lock()
	if !s.hasSignature {
		s.mu.Unlock()
		return nil, &docsign.ValidationError{Field: "signature", Message: "please provide your signature"}
	}
	w, h, lw := s.width, s.height, s.lineWidth
	strokes := s.pixelStrokes()
	s.mu.Unlock()

	img, err := EncodePNG(Rasterize(w, h, lw, strokes))
	if err != nil {
		return nil, err
	}
	return &docsign.SignatureData{
		Image:      img,
		Width:      w,
		Height:     h,
		SignerName: signerName,
		SignedAt:   now.UTC(),
	}, nil
}
