package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"docsign/internal/docsign"
	"docsign/internal/placement"
	"docsign/internal/viewer"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// classify maps a service error onto an HTTP status and a short kind.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var (
		validation *docsign.ValidationError
		notFound   *docsign.NotFoundError
		upload     *docsign.UploadError
		verify     *docsign.VerificationError
		composite  *docsign.CompositingError
		document   *docsign.DocumentError
	)
	switch {
	case errors.As(err, &validation):
		resp.Kind, resp.Field = "validation", validation.Field
		return http.StatusBadRequest, resp
	case errors.Is(err, placement.ErrNotLaidOut):
		resp.Kind, resp.Field = "validation", "placement"
		return http.StatusBadRequest, resp
	case errors.As(err, &notFound):
		resp.Kind = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, docsign.ErrAlreadySigned):
		resp.Kind = "already_signed"
		return http.StatusConflict, resp
	case errors.Is(err, docsign.ErrNotSigned):
		resp.Kind = "not_signed"
		return http.StatusConflict, resp
	case errors.Is(err, viewer.ErrStaleRender):
		resp.Kind = "stale_render"
		return http.StatusConflict, resp
	case errors.As(err, &document):
		resp.Kind = "document"
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &composite):
		resp.Kind = "compositing"
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &upload):
		resp.Kind = "upload"
		if upload.Reason == docsign.UploadSizeLimit {
			return http.StatusRequestEntityTooLarge, resp
		}
		return http.StatusBadGateway, resp
	case errors.As(err, &verify):
		resp.Kind = "verification"
		return http.StatusBadGateway, resp
	default:
		resp.Kind = "internal"
		resp.Error = "internal server error"
		return http.StatusInternalServerError, resp
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
