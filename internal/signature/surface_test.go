package signature

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"
	"time"

	"docsign/internal/docsign"
)

var signedAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func inkBounds(img image.Image) image.Rectangle {
	b := img.Bounds()
	out := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				out = out.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return out
}

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func drawLine(s *Surface, origin Point) {
	s.PointerDown(origin.X+10, origin.Y+20, origin)
	s.PointerMove(origin.X+100, origin.Y+20, origin)
	s.PointerMove(origin.X+100, origin.Y+80, origin)
	s.PointerUp()
}

func TestSurface_ConfirmEmptyIsRejected(t *testing.T) {
	s := NewSurface(0, 0, 0)

	_, err := s.Confirm("Ada", signedAt)
	if !docsign.IsValidation(err) {
		t.Fatalf("Confirm() error = %v, want ValidationError", err)
	}

	// A press without movement is not a signature
	s.PointerDown(5, 5, Point{})
	s.PointerUp()
	if s.HasSignature() {
		t.Error("HasSignature() = true after a bare press")
	}
	if _, err := s.Confirm("Ada", signedAt); err == nil {
		t.Error("Confirm() after a bare press expected error")
	}
}

func TestSurface_Confirm(t *testing.T) {
	s := NewSurface(500, 150, 2)
	drawLine(s, Point{X: 300, Y: 400})

	if !s.HasSignature() {
		t.Fatal("HasSignature() = false after drawing")
	}

	sig, err := s.Confirm("Ada Lovelace", signedAt)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if sig.Width != 500 || sig.Height != 150 {
		t.Errorf("Confirm() size = %dx%d, want 500x150", sig.Width, sig.Height)
	}
	if sig.SignerName != "Ada Lovelace" || !sig.SignedAt.Equal(signedAt) {
		t.Errorf("Confirm() = %+v", sig)
	}

	img, err := png.Decode(bytes.NewReader(sig.Image))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	ink := inkBounds(img)
	// Stroke runs from (10,20) to (100,80) with a 1px radius
	if ink.Min.X < 8 || ink.Min.X > 10 || ink.Max.X < 100 || ink.Max.X > 102 {
		t.Errorf("ink x range = [%d,%d), want about [9,101)", ink.Min.X, ink.Max.X)
	}
	if ink.Min.Y < 18 || ink.Min.Y > 20 || ink.Max.Y < 80 || ink.Max.Y > 82 {
		t.Errorf("ink y range = [%d,%d), want about [19,81)", ink.Min.Y, ink.Max.Y)
	}
	if _, _, _, a := img.At(250, 140).RGBA(); a != 0 {
		t.Error("background is not transparent")
	}
}

func TestSurface_ClearResetsEverything(t *testing.T) {
	s := NewSurface(500, 150, 2)
	drawLine(s, Point{})

	s.Clear()

	if s.HasSignature() {
		t.Error("HasSignature() = true after Clear")
	}
	if len(s.Strokes()) != 0 {
		t.Errorf("Strokes() = %v after Clear, want none", s.Strokes())
	}
	if _, err := s.Confirm("Ada", signedAt); err == nil {
		t.Error("Confirm() after Clear expected error")
	}

	// Moving without a new press does not draw
	s.PointerMove(50, 50, Point{})
	if s.HasSignature() {
		t.Error("HasSignature() = true after move without press")
	}
}

func TestSurface_PointerAndTouchAgree(t *testing.T) {
	origin := Point{X: 40, Y: 75}

	mouse := NewSurface(500, 150, 2)
	mouse.PointerDown(50, 95, origin)
	mouse.PointerMove(140, 125, origin)
	mouse.PointerUp()

	touch := NewSurface(500, 150, 2)
	touch.TouchStart([]Touch{{ClientX: 50, ClientY: 95}, {ClientX: 999, ClientY: 999}}, origin)
	touch.TouchMove([]Touch{{ClientX: 140, ClientY: 125}}, origin)
	touch.TouchEnd()

	m, tc := mouse.Strokes(), touch.Strokes()
	if len(m) != 1 || len(tc) != 1 {
		t.Fatalf("strokes: mouse %v, touch %v", m, tc)
	}
	for i := range m[0] {
		if m[0][i] != tc[0][i] {
			t.Errorf("point %d: mouse %+v, touch %+v", i, m[0][i], tc[0][i])
		}
	}
	if !near(m[0][0], Point{X: 10, Y: 20}) {
		t.Errorf("first point = %+v, want {10 20}", m[0][0])
	}

	// An empty touch list is ignored
	touch.TouchMove(nil, origin)
}

func TestSurface_Resize(t *testing.T) {
	t.Run("same aspect ratio rescales strokes", func(t *testing.T) {
		s := NewSurface(500, 150, 2)
		drawLine(s, Point{})

		s.Resize(1000, 300)

		if !s.HasSignature() {
			t.Fatal("HasSignature() = false after proportional resize")
		}
		got := s.Strokes()[0][1]
		if !near(got, Point{X: 200, Y: 40}) {
			t.Errorf("rescaled point = %+v, want {200 40}", got)
		}
		if w, h := s.Size(); w != 1000 || h != 300 {
			t.Errorf("Size() = %dx%d, want 1000x300", w, h)
		}
	})

	t.Run("aspect ratio change discards strokes", func(t *testing.T) {
		s := NewSurface(500, 150, 2)
		drawLine(s, Point{})

		s.Resize(320, 150)

		if s.HasSignature() {
			t.Error("HasSignature() = true after aspect change")
		}
		if len(s.Strokes()) != 0 {
			t.Errorf("Strokes() = %v, want none", s.Strokes())
		}
	})

	t.Run("surface stays usable after resize", func(t *testing.T) {
		s := NewSurface(500, 150, 2)
		s.Resize(320, 150)
		drawLine(s, Point{})

		sig, err := s.Confirm("Ada", signedAt)
		if err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}
		if sig.Width != 320 || sig.Height != 150 {
			t.Errorf("Confirm() size = %dx%d, want 320x150", sig.Width, sig.Height)
		}
	})
}

func TestDataURL(t *testing.T) {
	s := NewSurface(200, 100, 2)
	drawLine(s, Point{})
	sig, err := s.Confirm("Ada", signedAt)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	got, err := FromDataURL(ToDataURL(sig.Image), "Ada", signedAt)
	if err != nil {
		t.Fatalf("FromDataURL() error = %v", err)
	}
	if got.Width != 200 || got.Height != 100 || !bytes.Equal(got.Image, sig.Image) {
		t.Errorf("FromDataURL() = %dx%d, %d bytes", got.Width, got.Height, len(got.Image))
	}

	for _, bad := range []string{"", "data:image/jpeg;base64,AAAA", "data:image/png;base64,!!!", "data:image/png;base64,AAAA"} {
		if _, err := FromDataURL(bad, "Ada", signedAt); !docsign.IsValidation(err) {
			t.Errorf("FromDataURL(%q) error = %v, want ValidationError", bad, err)
		}
	}
}

func TestReplay(t *testing.T) {
	s := Replay(500, 150, 2, [][]Point{{{10, 20}, {100, 20}}, {}, {{5, 5}}})
	if !s.HasSignature() {
		t.Fatal("HasSignature() = false after Replay")
	}
	if n := len(s.Strokes()); n != 1 {
		t.Errorf("Strokes() has %d strokes, want 1", n)
	}
}
