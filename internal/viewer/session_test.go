package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"docsign/internal/config"
)

// fakeRenderer blocks each render on release until its context ends or a
// value arrives.
type fakeRenderer struct {
	pages   int
	started chan Key
	release chan struct{}
}

func newFakeRenderer(pages int) *fakeRenderer {
	return &fakeRenderer{pages: pages, started: make(chan Key, 8), release: make(chan struct{})}
}

func (f *fakeRenderer) PageCount() int { return f.pages }

func (f *fakeRenderer) Render(ctx context.Context, page int, scale float64) (*Frame, error) {
	f.started <- Key{Page: page, Scale: scale}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
		return &Frame{NativeWidth: 612, NativeHeight: 792, Width: int(612 * scale), Height: int(792 * scale)}, nil
	}
}

func instantRenderer(pages int) *fakeRenderer {
	f := newFakeRenderer(pages)
	close(f.release)
	return f
}

func TestSession_Navigation(t *testing.T) {
	s := NewSession("doc-1", instantRenderer(3), DefaultOptions())

	if s.Page() != 1 {
		t.Fatalf("Page() = %d, want 1", s.Page())
	}
	if got := s.Prev(); got != 1 {
		t.Errorf("Prev() on first page = %d, want 1", got)
	}
	if got := s.Next(); got != 2 {
		t.Errorf("Next() = %d, want 2", got)
	}
	s.Next()
	if got := s.Next(); got != 3 {
		t.Errorf("Next() on last page = %d, want 3", got)
	}

	tests := []struct {
		in, want int
	}{
		{0, 1},
		{-4, 1},
		{2, 2},
		{3, 3},
		{99, 3},
	}
	for _, tt := range tests {
		if got := s.GoTo(tt.in); got != tt.want {
			t.Errorf("GoTo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSession_Zoom(t *testing.T) {
	s := NewSession("doc-1", instantRenderer(1), DefaultOptions())

	if s.Scale() != 1.2 {
		t.Fatalf("Scale() = %v, want 1.2", s.Scale())
	}
	if got := s.ZoomIn(); got != 1.4 {
		t.Errorf("ZoomIn() = %v, want 1.4", got)
	}
	for i := 0; i < 20; i++ {
		s.ZoomIn()
	}
	if got := s.Scale(); got != 3 {
		t.Errorf("Scale() after many ZoomIn = %v, want 3", got)
	}
	for i := 0; i < 20; i++ {
		s.ZoomOut()
	}
	if got := s.Scale(); got != 0.6 {
		t.Errorf("Scale() after many ZoomOut = %v, want 0.6", got)
	}
	if got := s.ZoomIn(); got != 0.8 {
		t.Errorf("ZoomIn() from min = %v, want 0.8", got)
	}

	if got := s.SetScale(10); got != 3 {
		t.Errorf("SetScale(10) = %v, want 3", got)
	}
	if got := s.SetScale(0.1); got != 0.6 {
		t.Errorf("SetScale(0.1) = %v, want 0.6", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	got := OptionsFromConfig(config.ViewerConfig{InitialScale: 5, MinScale: 0.5, MaxScale: 2, ScaleStep: 0.25})
	if got.InitialScale != 2 {
		t.Errorf("InitialScale = %v, want clamped to 2", got.InitialScale)
	}

	got = OptionsFromConfig(config.ViewerConfig{})
	if got != DefaultOptions() {
		t.Errorf("OptionsFromConfig(zero) = %+v, want defaults", got)
	}
}

func TestSession_Render(t *testing.T) {
	s := NewSession("doc-1", instantRenderer(2), DefaultOptions())
	s.Next()

	frame, err := s.Render(context.Background())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := Key{DocumentID: "doc-1", Page: 2, Scale: 1.2}
	if frame.Key != want {
		t.Errorf("frame.Key = %+v, want %+v", frame.Key, want)
	}
}

func TestSession_Render_NavigationCancelsInFlight(t *testing.T) {
	r := newFakeRenderer(3)
	s := NewSession("doc-1", r, DefaultOptions())

	done := make(chan error, 1)
	go func() {
		_, err := s.Render(context.Background())
		done <- err
	}()
	<-r.started

	s.Next()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStaleRender) {
			t.Errorf("Render() error = %v, want ErrStaleRender", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight render was not cancelled by navigation")
	}
}

func TestSession_Render_NewerRequestSupersedes(t *testing.T) {
	r := newFakeRenderer(3)
	s := NewSession("doc-1", r, DefaultOptions())

	first := make(chan error, 1)
	go func() {
		_, err := s.Render(context.Background())
		first <- err
	}()
	<-r.started

	// Zoom without waiting, then issue the newer render.
	s.ZoomIn()
	if err := <-first; !errors.Is(err, ErrStaleRender) {
		t.Fatalf("first Render() error = %v, want ErrStaleRender", err)
	}

	second := make(chan *Frame, 1)
	go func() {
		f, err := s.Render(context.Background())
		if err != nil {
			t.Errorf("second Render() error = %v", err)
		}
		second <- f
	}()
	if k := <-r.started; k.Scale != 1.4 {
		t.Errorf("second render scale = %v, want 1.4", k.Scale)
	}
	close(r.release)

	if f := <-second; f == nil || f.Scale != 1.4 {
		t.Errorf("second frame = %+v, want scale 1.4", f)
	}
}

func TestSession_Open_CancelsInFlight(t *testing.T) {
	r := newFakeRenderer(3)
	s := NewSession("doc-1", r, DefaultOptions())
	s.GoTo(3)

	done := make(chan error, 1)
	go func() {
		_, err := s.Render(context.Background())
		done <- err
	}()
	<-r.started

	s.Open("doc-2", instantRenderer(1))
	if err := <-done; !errors.Is(err, ErrStaleRender) {
		t.Errorf("Render() error = %v, want ErrStaleRender", err)
	}
	if s.Page() != 1 {
		t.Errorf("Page() after Open = %d, want 1", s.Page())
	}
	if s.Key().DocumentID != "doc-2" {
		t.Errorf("DocumentID = %q, want doc-2", s.Key().DocumentID)
	}
}

func TestSession_Render_CallerCancel(t *testing.T) {
	s := NewSession("doc-1", newFakeRenderer(1), DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The fake blocks until ctx ends, which it already has.
	_, err := s.Render(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
}
