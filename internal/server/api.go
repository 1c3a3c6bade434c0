package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"docsign/internal/docsign"
	"docsign/internal/placement"
	"docsign/internal/signature"
	"docsign/internal/viewer"
)

// maxFormMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files.
const maxFormMemory = 8 << 20

// maxJSONBody bounds API request bodies. Signature data URLs are the largest.
const maxJSONBody = 4 << 20

type documentJSON struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Kind            string     `json:"kind"`
	Size            int64      `json:"size"`
	CreatedAt       time.Time  `json:"createdAt"`
	PreviewURL      string     `json:"previewUrl"`
	SignatureStatus string     `json:"signatureStatus"`
	RecipientEmail  string     `json:"recipientEmail,omitempty"`
	SignedBy        string     `json:"signedBy,omitempty"`
	SignedAt        *time.Time `json:"signedAt,omitempty"`
	SigningLink     string     `json:"signingLink"`
}

type notificationJSON struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	DocumentID   string    `json:"documentId"`
	DocumentName string    `json:"documentName"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Server) toDocumentJSON(d *docsign.Document) documentJSON {
	return documentJSON{
		ID:              d.ID,
		Name:            d.Name,
		Type:            d.Type,
		Kind:            string(d.Kind),
		Size:            d.Size,
		CreatedAt:       d.CreatedAt,
		PreviewURL:      d.PreviewURL,
		SignatureStatus: string(d.SignatureStatus),
		RecipientEmail:  d.RecipientEmail,
		SignedBy:        d.SignedBy,
		SignedAt:        d.SignedAt,
		SigningLink:     s.svc.SigningLink(d.ID),
	}
}

func toNotificationJSON(n *docsign.Notification) notificationJSON {
	return notificationJSON{
		ID:           n.ID,
		Type:         string(n.Type),
		Message:      n.Message,
		DocumentID:   n.DocumentID,
		DocumentName: n.DocumentName,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, &docsign.UploadError{Reason: docsign.UploadSizeLimit, Err: docsign.ErrObjectTooLarge})
			return
		}
		s.writeError(w, r, &docsign.ValidationError{Field: "file", Message: err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, &docsign.ValidationError{Field: "file", Message: "a file is required"})
		return
	}
	defer file.Close()

	doc, err := s.svc.AddDocument(r.Context(), docsign.NewDocument{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
		Body:      file,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toDocumentJSON(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.svc.ListDocuments()
	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, s.toDocumentJSON(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.GetDocumentByID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDocumentJSON(doc))
}

type shareRequest struct {
	Email string `json:"email"`
}

type shareResponse struct {
	Link      string `json:"link"`
	EmailSent bool   `json:"emailSent"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.ShareDocument(r.Context(), r.PathValue("id"), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{Link: res.Link, EmailSent: res.EmailSent})
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// placementJSON is a click on the rendered page, in screen pixels, or a
// request for the default corner.
type placementJSON struct {
	Page           int     `json:"page"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	RenderedWidth  float64 `json:"renderedWidth"`
	RenderedHeight float64 `json:"renderedHeight"`
	Corner         bool    `json:"corner"`
}

type signRequest struct {
	SignerName string         `json:"signerName"`
	Signature  string         `json:"signature"` // PNG data URL
	Strokes    [][]pointJSON  `json:"strokes"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Placement  *placementJSON `json:"placement"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req signRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sig, err := s.captureSignature(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var pl *docsign.Placement
	if req.Placement != nil {
		pl, err = s.resolveClick(r, id, *req.Placement, sig)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	doc, err := s.svc.SignDocument(r.Context(), id, docsign.SignRequest{Signature: sig, Placement: pl})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDocumentJSON(doc))
}

// captureSignature builds the signature from a data URL or by replaying
// recorded strokes onto a capture surface.
func (s *Server) captureSignature(req signRequest) (*docsign.SignatureData, error) {
	now := s.clock.Now()
	if req.Signature != "" {
		return signature.FromDataURL(req.Signature, req.SignerName, now)
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = s.opts.Signing.CanvasWidth
	}
	if height <= 0 {
		height = s.opts.Signing.CanvasHeight
	}
	strokes := make([][]signature.Point, 0, len(req.Strokes))
	for _, stroke := range req.Strokes {
		pts := make([]signature.Point, len(stroke))
		for i, p := range stroke {
			pts[i] = signature.Point{X: p.X, Y: p.Y}
		}
		strokes = append(strokes, pts)
	}
	surface := signature.Replay(width, height, s.opts.Signing.LineWidth, strokes)
	return surface.Confirm(req.SignerName, now)
}

// resolveClick converts a click on the rendered page into page-native
// coordinates. The page's native size comes from the document itself.
func (s *Server) resolveClick(r *http.Request, id string, in placementJSON, sig *docsign.SignatureData) (*docsign.Placement, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	if in.Corner {
		return &docsign.Placement{Page: page, Corner: true}, nil
	}

	data, doc, err := s.svc.OpenDocument(r.Context(), id)
	if err != nil {
		return nil, err
	}
	renderer, err := viewer.NewRenderer(doc.Kind, data)
	if err != nil {
		return nil, &docsign.ValidationError{Field: "type", Message: err.Error()}
	}
	if page > renderer.PageCount() {
		return nil, &docsign.ValidationError{Field: "placement", Message: fmt.Sprintf("page %d out of range", page)}
	}
	frame, err := renderer.Render(r.Context(), page, 1)
	if err != nil {
		return nil, fmt.Errorf("measuring page %d: %w", page, err)
	}

	native := placement.Size{Width: frame.NativeWidth, Height: frame.NativeHeight}
	rendered := placement.Size{Width: in.RenderedWidth, Height: in.RenderedHeight}
	obj := placement.ScaleSignature(sig.Width, sig.Height, s.opts.Signing.ReductionFactor)
	p, err := placement.ScreenToPage(placement.Point{X: in.X, Y: in.Y}, rendered, native, obj)
	if err != nil {
		return nil, err
	}
	return &docsign.Placement{Page: page, X: p.X, Y: p.Y, Width: obj.Width, Height: obj.Height}, nil
}

type pageJSON struct {
	DocumentID   string  `json:"documentId"`
	Page         int     `json:"page"`
	NumPages     int     `json:"numPages"`
	Scale        float64 `json:"scale"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	NativeWidth  float64 `json:"nativeWidth"`
	NativeHeight float64 `json:"nativeHeight"`
}

// handleRenderPage renders one page through the caller's viewer session.
// The session clamps the page and scale. Image documents can be fetched as
// PNG with format=png.
func (s *Server) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		s.writeError(w, r, &docsign.ValidationError{Field: "page", Message: "page must be a number"})
		return
	}

	session, err := s.session(r, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session.GoTo(page)
	if raw := r.URL.Query().Get("scale"); raw != "" {
		scale, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, r, &docsign.ValidationError{Field: "scale", Message: "scale must be a number"})
			return
		}
		session.SetScale(scale)
	}

	frame, err := session.Render(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "png" && frame.Image != nil {
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, frame.Image); err != nil {
			s.logger.Warn("encoding page image failed", "document", id, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, pageJSON{
		DocumentID:   frame.DocumentID,
		Page:         frame.Page,
		NumPages:     session.NumPages(),
		Scale:        frame.Scale,
		Width:        frame.Width,
		Height:       frame.Height,
		NativeWidth:  frame.NativeWidth,
		NativeHeight: frame.NativeHeight,
	})
}

// session returns the viewer session named by the view query parameter.
// The session is reloaded when it shows another document or an older copy
// of this one, such as the unsigned bytes after a signature was applied.
func (s *Server) session(r *http.Request, id string) (*viewer.Session, error) {
	name := r.URL.Query().Get("view")
	if name == "" {
		name = "default"
	}

	doc, err := s.svc.GetDocumentByID(id)
	if err != nil {
		if docsign.IsNotFound(err) {
			s.dropViews(id)
		}
		return nil, err
	}

	s.viewsMu.Lock()
	v, ok := s.views.Get(name)
	current := ok && v.session.Key().DocumentID == id && v.storageKey == doc.StorageKey
	s.viewsMu.Unlock()
	if current {
		return v.session, nil
	}

	data, doc, err := s.svc.OpenDocument(r.Context(), id)
	if err != nil {
		return nil, err
	}
	renderer, err := viewer.NewRenderer(doc.Kind, data)
	if err != nil {
		return nil, &docsign.ValidationError{Field: "type", Message: err.Error()}
	}

	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	if v, ok = s.views.Get(name); ok {
		v.session.Open(id, renderer)
		v.storageKey = doc.StorageKey
		return v.session, nil
	}
	v = &view{session: viewer.NewSession(id, renderer, s.opts.Viewer), storageKey: doc.StorageKey}
	s.views.Add(name, v)
	return v.session, nil
}

// dropViews forgets every session showing the document id.
func (s *Server) dropViews(id string) {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	for _, name := range s.views.Keys() {
		if v, ok := s.views.Peek(name); ok && v.session.Key().DocumentID == id {
			s.views.Remove(name)
		}
	}
}

type notificationsResponse struct {
	Unread        int                `json:"unread"`
	Notifications []notificationJSON `json:"notifications"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notes := s.svc.ListNotifications()
	out := notificationsResponse{Unread: s.svc.UnreadCount(), Notifications: make([]notificationJSON, 0, len(notes))}
	for _, n := range notes {
		out.Notifications = append(out.Notifications, toNotificationJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.MarkNotificationAsRead(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFile serves stored document bytes for stores whose public URLs
// point back at this server.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	info, err := s.svc.ReadObject(r.Context(), r.PathValue("key"), &buf)
	if err != nil {
		if docsign.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, r, err)
		return
	}
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &docsign.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}
