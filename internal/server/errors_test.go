package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"docsign/internal/docsign"
	"docsign/internal/placement"
	"docsign/internal/viewer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", &docsign.ValidationError{Field: "email", Message: "bad"}, http.StatusBadRequest, "validation"},
		{"not laid out", fmt.Errorf("placing: %w", placement.ErrNotLaidOut), http.StatusBadRequest, "validation"},
		{"not found", &docsign.NotFoundError{Kind: "document", ID: "x"}, http.StatusNotFound, "not_found"},
		{"already signed", docsign.ErrAlreadySigned, http.StatusConflict, "already_signed"},
		{"not signed", docsign.ErrNotSigned, http.StatusConflict, "not_signed"},
		{"stale render", viewer.ErrStaleRender, http.StatusConflict, "stale_render"},
		{"compositing", &docsign.CompositingError{Err: docsign.ErrUnsupportedImage}, http.StatusUnprocessableEntity, "compositing"},
		{"unreadable document", fmt.Errorf("signing a.pdf: %w", &docsign.DocumentError{Err: errors.New("missing EOF marker")}), http.StatusUnprocessableEntity, "document"},
		{"page out of range", fmt.Errorf("signing a.pdf: %w", &docsign.ValidationError{Field: "placement", Message: "page 5 out of range [1, 1]"}), http.StatusBadRequest, "validation"},
		{"size limit", &docsign.UploadError{Reason: docsign.UploadSizeLimit, Err: docsign.ErrObjectTooLarge}, http.StatusRequestEntityTooLarge, "upload"},
		{"permission", &docsign.UploadError{Reason: docsign.UploadPermission, Err: docsign.ErrPermissionDenied}, http.StatusBadGateway, "upload"},
		{"verification", &docsign.VerificationError{URL: "http://x", Err: errors.New("404")}, http.StatusBadGateway, "verification"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := classify(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if resp.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", resp.Kind, tt.kind)
			}
		})
	}

	if _, resp := classify(errors.New("secret path /var/lib")); resp.Error != "internal server error" {
		t.Errorf("internal error message leaked: %q", resp.Error)
	}
}
