package placement

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestToNative(t *testing.T) {
	tests := []struct {
		name     string
		click    Point
		rendered Size
		native   Size
		want     Point
	}{
		{
			name:     "scale factor 1 returns raw input",
			click:    Point{X: 123.25, Y: 456.5},
			rendered: Size{Width: 612, Height: 792},
			native:   Size{Width: 612, Height: 792},
			want:     Point{X: 123.25, Y: 456.5},
		},
		{
			name:     "rendered at 2x halves coordinates",
			click:    Point{X: 200, Y: 300},
			rendered: Size{Width: 1224, Height: 1584},
			native:   Size{Width: 612, Height: 792},
			want:     Point{X: 100, Y: 150},
		},
		{
			name:     "rendered at 1.2x",
			click:    Point{X: 60, Y: 120},
			rendered: Size{Width: 734.4, Height: 950.4},
			native:   Size{Width: 612, Height: 792},
			want:     Point{X: 50, Y: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToNative(tt.click, tt.rendered, tt.native)
			if err != nil {
				t.Fatalf("ToNative() error = %v", err)
			}
			if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) {
				t.Errorf("ToNative() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestToNative_ScaleProperty(t *testing.T) {
	native := Size{Width: 612, Height: 792}
	for _, s := range []float64{0.25, 0.5, 0.6, 1, 1.2, 1.7, 3} {
		rendered := Size{Width: native.Width / s, Height: native.Height / s}
		for _, p := range []Point{{0, 0}, {1, 1}, {33.3, 71.9}, {400, 10}} {
			got, err := ToNative(p, rendered, native)
			if err != nil {
				t.Fatalf("ToNative() error = %v", err)
			}
			if !almostEqual(got.X, p.X*s) || !almostEqual(got.Y, p.Y*s) {
				t.Errorf("s=%v p=%+v: got %+v, want (%v, %v)", s, p, got, p.X*s, p.Y*s)
			}
		}
	}
}

func TestToNative_NotLaidOut(t *testing.T) {
	for _, rendered := range []Size{{0, 0}, {0, 100}, {100, 0}, {-1, 5}} {
		_, err := ToNative(Point{X: 1, Y: 1}, rendered, Size{Width: 612, Height: 792})
		if !errors.Is(err, ErrNotLaidOut) {
			t.Errorf("ToNative(rendered=%+v) error = %v, want ErrNotLaidOut", rendered, err)
		}
	}
}

func TestScreenToPage_FlipsY(t *testing.T) {
	native := Size{Width: 612, Height: 792}
	obj := Size{Width: 100, Height: 40}

	got, err := ScreenToPage(Point{X: 50, Y: 0}, native, native, obj)
	if err != nil {
		t.Fatalf("ScreenToPage() error = %v", err)
	}
	// A click at the top edge puts the object's top at the page top.
	if got.X != 50 || got.Y != 752 {
		t.Errorf("ScreenToPage() = %+v, want {50 752}", got)
	}
}

func TestCorner(t *testing.T) {
	page := Size{Width: 600, Height: 800}
	obj := Size{Width: 100, Height: 50}

	got := Corner(page, obj, 0.05)

	if !almostEqual(got.X, 470) {
		t.Errorf("Corner().X = %v, want 470", got.X)
	}
	if !almostEqual(got.Y, 40) {
		t.Errorf("Corner().Y = %v, want 40", got.Y)
	}
}

func TestScaleSignature(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		want   Size
	}{
		{name: "half", factor: 0.5, want: Size{Width: 250, Height: 75}},
		{name: "zero falls back to default", factor: 0, want: Size{Width: 250, Height: 75}},
		{name: "full size", factor: 1, want: Size{Width: 500, Height: 150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleSignature(500, 150, tt.factor)
			if got != tt.want {
				t.Errorf("ScaleSignature() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	page := Size{Width: 612, Height: 792}
	obj := Size{Width: 100, Height: 50}

	got := Clamp(Point{X: 600, Y: -10}, page, obj)
	if got.X != 512 || got.Y != 0 {
		t.Errorf("Clamp() = %+v, want {512 0}", got)
	}
}
