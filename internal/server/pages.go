package server

import (
	"bytes"
	"net/http"

	"docsign/internal/docsign"
)

type indexPage struct {
	Message       string
	Documents     []*docsign.Document
	Notifications []*docsign.Notification
	Unread        int
}

type signPage struct {
	Document     *docsign.Document
	CanvasWidth  int
	CanvasHeight int
	LineWidth    float64
}

type confirmationPage struct {
	Document    *docsign.Document
	DownloadURL string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", indexPage{
		Message:       r.URL.Query().Get("message"),
		Documents:     s.svc.ListDocuments(),
		Notifications: s.svc.ListNotifications(),
		Unread:        s.svc.UnreadCount(),
	})
}

// handleSignScreen shows the signing screen for a shared document. Signed
// documents go straight to their confirmation.
func (s *Server) handleSignScreen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.svc.GetDocumentByID(id)
	if err != nil {
		if docsign.IsNotFound(err) {
			redirectHome(w, r, "Document not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	if doc.IsSigned() {
		http.Redirect(w, r, "/documents/"+doc.ID+"/confirmation", http.StatusSeeOther)
		return
	}
	if err := s.svc.SetCurrentDocument(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, "sign.html", signPage{
		Document:     doc,
		CanvasWidth:  s.opts.Signing.CanvasWidth,
		CanvasHeight: s.opts.Signing.CanvasHeight,
		LineWidth:    s.opts.Signing.LineWidth,
	})
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	link, err := s.svc.DownloadURL(id)
	switch {
	case docsign.IsNotFound(err):
		redirectHome(w, r, "Document not found")
		return
	case err != nil:
		http.Redirect(w, r, "/sign/"+id, http.StatusSeeOther)
		return
	}
	doc, err := s.svc.GetDocumentByID(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, "confirmation.html", confirmationPage{Document: doc, DownloadURL: link})
}

// render executes a template into a buffer first so a template error still
// produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("rendering template failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
