package docsign

import (
	"path"
	"strings"
	"time"
)

// DocumentKind is decided once at ingestion and carried on the Document.
type DocumentKind string

const (
	KindPDF         DocumentKind = "pdf"
	KindImage       DocumentKind = "image"
	KindUnsupported DocumentKind = "unsupported"
)

// imageExtensions are the raster formats the compositor can decode.
var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// DetectKind classifies an upload from its media type, falling back to the
// file extension when the media type is empty or generic.
func DetectKind(mediaType, name string) DocumentKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt != "" && mt != "application/octet-stream":
		return KindUnsupported
	}

	ext := strings.ToLower(path.Ext(name))
	if ext == ".pdf" {
		return KindPDF
	}
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	return KindUnsupported
}

// MediaTypeFor returns the media type to record for an upload. A generic or
// missing media type is replaced with one derived from the file extension.
func MediaTypeFor(mediaType, name string) string {
	mt := strings.TrimSpace(mediaType)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == ".pdf" {
		return "application/pdf"
	}
	if t, ok := imageExtensions[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// SignatureStatus is the signing state of a Document. The only transition is
// unsigned to signed.
type SignatureStatus string

const (
	StatusUnsigned SignatureStatus = "unsigned"
	StatusSigned   SignatureStatus = "signed"
)

// NotificationType categorizes a Notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Document is an uploaded file and its signing state.
type Document struct {
	ID              string
	Name            string
	Type            string // media type, e.g. "application/pdf"
	Kind            DocumentKind
	Size            int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PreviewURL      string
	StorageKey      string
	SignatureStatus SignatureStatus
	RecipientEmail  string
	SignedBy        string
	SignedAt        *time.Time
	Revision        int64
}

// IsSigned reports whether the document reached its terminal state.
func (d *Document) IsSigned() bool {
	return d.SignatureStatus == StatusSigned
}

// Clone returns a deep copy so callers cannot mutate store-owned records.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.SignedAt != nil {
		t := *d.SignedAt
		c.SignedAt = &t
	}
	return &c
}

// Notification is a user-facing message emitted by sharing or signing.
type Notification struct {
	ID           string
	Type         NotificationType
	Message      string
	DocumentID   string
	DocumentName string
	Read         bool
	CreatedAt    time.Time
	Revision     int64
}

// Clone returns a copy of the notification.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// SignatureData is a captured signature. It is built once per signing
// attempt and not modified afterwards.
type SignatureData struct {
	Image      []byte // PNG
	Width      int    // canvas width at capture time, in pixels
	Height     int    // canvas height at capture time, in pixels
	SignerName string
	SignedAt   time.Time
}

// Placement locates a signature on a page in page-native units with the
// origin at the bottom-left. When Corner is set, X and Y are ignored and the
// compositor anchors the signature at the bottom-right corner, inset by
// Margin as a fraction of the page size.
type Placement struct {
	Page   int // 1-based
	X      float64
	Y      float64
	Width  float64
	Height float64
	Corner bool
	Margin float64
}
