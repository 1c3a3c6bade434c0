// Package viewer tracks page navigation and zoom for a displayed document
// and renders pages, discarding renders that a newer request superseded.
package viewer

import (
	"context"
	"errors"
	"math"
	"sync"

	"docsign/internal/config"
)

// ErrStaleRender is returned by Render when the page, scale or document
// changed before the render finished.
var ErrStaleRender = errors.New("render superseded by a newer request")

// Key identifies a render target.
type Key struct {
	DocumentID string
	Page       int
	Scale      float64
}

// Options bound the zoom of a Session.
type Options struct {
	InitialScale float64
	MinScale     float64
	MaxScale     float64
	ScaleStep    float64
}

// DefaultOptions matches the viewer section of a new config.
func DefaultOptions() Options {
	return Options{InitialScale: 1.2, MinScale: 0.6, MaxScale: 3, ScaleStep: 0.2}
}

// OptionsFromConfig converts the config section, falling back to defaults
// for unset or inconsistent values.
func OptionsFromConfig(cfg config.ViewerConfig) Options {
	o := Options{
		InitialScale: cfg.InitialScale,
		MinScale:     cfg.MinScale,
		MaxScale:     cfg.MaxScale,
		ScaleStep:    cfg.ScaleStep,
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinScale <= 0 || o.MaxScale <= 0 || o.MinScale > o.MaxScale {
		o.MinScale, o.MaxScale = d.MinScale, d.MaxScale
	}
	if o.ScaleStep <= 0 {
		o.ScaleStep = d.ScaleStep
	}
	if o.InitialScale <= 0 {
		o.InitialScale = d.InitialScale
	}
	o.InitialScale = math.Max(o.MinScale, math.Min(o.InitialScale, o.MaxScale))
	return o
}

// Session is the view state of one open document.
type Session struct {
	mu       sync.Mutex
	opts     Options
	docID    string
	renderer Renderer
	page     int
	scale    float64

	inflight Key
	cancel   context.CancelFunc
}

// NewSession opens docID at page 1 and the initial scale.
func NewSession(docID string, r Renderer, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:     opts,
		docID:    docID,
		renderer: r,
		page:     1,
		scale:    opts.InitialScale,
	}
}

// Open switches the session to another document, resetting to page 1.
// Zoom is kept.
func (s *Session) Open(docID string, r Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docID = docID
	s.renderer = r
	s.page = 1
	s.cancelStaleLocked()
}

func (s *Session) Key() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyLocked()
}

func (s *Session) keyLocked() Key {
	return Key{DocumentID: s.docID, Page: s.page, Scale: s.scale}
}

func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) NumPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numPagesLocked()
}

func (s *Session) numPagesLocked() int {
	if s.renderer == nil {
		return 0
	}
	return s.renderer.PageCount()
}

func (s *Session) Scale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scale
}

// Next moves forward one page, stopping at the last page.
func (s *Session) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.page + 1)
}

// Prev moves back one page, stopping at page 1.
func (s *Session) Prev() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.page - 1)
}

// GoTo moves to page n clamped to [1, NumPages] and returns the new page.
func (s *Session) GoTo(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(n)
}

func (s *Session) goToLocked(n int) int {
	last := max(1, s.numPagesLocked())
	s.page = min(max(n, 1), last)
	s.cancelStaleLocked()
	return s.page
}

// ZoomIn increases the scale by one step up to the maximum.
func (s *Session) ZoomIn() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScaleLocked(s.scale + s.opts.ScaleStep)
}

// ZoomOut decreases the scale by one step down to the minimum.
func (s *Session) ZoomOut() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScaleLocked(s.scale - s.opts.ScaleStep)
}

// SetScale sets the scale clamped to the configured range.
func (s *Session) SetScale(scale float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setScaleLocked(scale)
}

func (s *Session) setScaleLocked(scale float64) float64 {
	// Round away float drift from repeated steps
	scale = math.Round(scale*1000) / 1000
	s.scale = math.Max(s.opts.MinScale, math.Min(scale, s.opts.MaxScale))
	s.cancelStaleLocked()
	return s.scale
}

// cancelStaleLocked cancels the in-flight render if it no longer targets
// the current key.
func (s *Session) cancelStaleLocked() {
	if s.cancel != nil && s.inflight != s.keyLocked() {
		s.cancel()
		s.cancel = nil
	}
}

// Render renders the current page at the current scale. A render still in
// flight for a different key is cancelled first. If the key changes while
// this render runs, it is cancelled and returns ErrStaleRender.
func (s *Session) Render(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	key := s.keyLocked()
	r := s.renderer
	if r == nil {
		s.mu.Unlock()
		return nil, errors.New("no document open")
	}
	if s.cancel != nil && s.inflight != key {
		s.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	s.inflight, s.cancel = key, cancel
	s.mu.Unlock()
	defer cancel()

	frame, err := r.Render(rctx, key.Page, key.Scale)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == key {
		s.cancel = nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if rctx.Err() != nil || s.keyLocked() != key {
		return nil, ErrStaleRender
	}
	if err != nil {
		return nil, err
	}
	frame.Key = key
	return frame, nil
}
