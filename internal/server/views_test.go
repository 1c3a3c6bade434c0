package server

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docsign/internal/compositor"
	"docsign/internal/config"
	"docsign/internal/docsign"
	"docsign/internal/testutil"
	"docsign/internal/viewer"
)

func newViewServer(t *testing.T, maxViews int) (*Server, *docsign.Service) {
	t.Helper()
	svc := docsign.NewService(docsign.NewStore(), testutil.NewTestDatabase(t), testutil.NewTestStorage(),
		testutil.NewRecordingMailer(), compositor.NewSet(), docsign.NewNopLogger(), testutil.FixedClock(),
		testutil.NewStubIDGenerator(), docsign.Options{
			BaseURL:        "https://docs.example.com",
			Timeout:        time.Second,
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
		})
	cfg := config.NewConfig("test", t.TempDir())
	s, err := New(svc, docsign.NewNopLogger(), testutil.FixedClock(), Options{
		Signing:  cfg.Signing,
		Viewer:   viewer.OptionsFromConfig(cfg.Viewer),
		MaxViews: maxViews,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, svc
}

func renderView(t *testing.T, s *Server, id, view string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/documents/%s/pages/1?scale=1&format=png&view=%s", id, view), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec.Code
}

func TestServer_Views_Bounded(t *testing.T) {
	s, svc := newViewServer(t, 4)
	data := testutil.SolidPNG(40, 30, color.White)
	doc, err := svc.AddDocument(context.Background(), docsign.NewDocument{
		Name:      "photo.png",
		MediaType: "image/png",
		Size:      int64(len(data)),
		Body:      bytes.NewReader(data),
	})
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		if code := renderView(t, s, doc.ID, fmt.Sprintf("v%d", i)); code != http.StatusOK {
			t.Fatalf("render v%d status = %d, want 200", i, code)
		}
	}
	if got := s.views.Len(); got != 4 {
		t.Errorf("views.Len() = %d, want 4", got)
	}
	if _, ok := s.views.Peek("v0"); ok {
		t.Error("least recently used view v0 is still cached")
	}
	if _, ok := s.views.Peek("v9"); !ok {
		t.Error("most recent view v9 is not cached")
	}

	svc.Store().Apply(docsign.Event{Type: docsign.EventDelete, Table: docsign.TableDocuments, Document: doc})
	if code := renderView(t, s, doc.ID, "v9"); code != http.StatusNotFound {
		t.Fatalf("render after delete status = %d, want 404", code)
	}
	if got := s.views.Len(); got != 0 {
		t.Errorf("views.Len() after delete = %d, want 0", got)
	}
}
