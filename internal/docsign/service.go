package docsign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docsign/internal/placement"
)

var tracer = otel.Tracer("docsign/internal/docsign")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrNotSigned is returned when a download is requested for an unsigned document.
var ErrNotSigned = errors.New("document is not signed yet")

// DefaultSignerName is recorded when the signer leaves the name blank.
const DefaultSignerName = "Anonymous"

// Options tunes the service. Zero values are replaced by DefaultOptions.
type Options struct {
	BaseURL         string
	MaxUploadSize   int64
	ReductionFactor float64
	CornerMargin    float64
	Timeout         time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		BaseURL:         "http://localhost:8080",
		MaxUploadSize:   10 << 20,
		ReductionFactor: placement.DefaultReductionFactor,
		CornerMargin:    placement.DefaultCornerMargin,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = d.MaxUploadSize
	}
	if o.ReductionFactor <= 0 {
		o.ReductionFactor = d.ReductionFactor
	}
	if o.CornerMargin < 0 || o.CornerMargin >= 0.5 {
		o.CornerMargin = d.CornerMargin
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	return o
}

// NewDocument is the input to AddDocument.
type NewDocument struct {
	Name      string
	MediaType string
	Size      int64
	Body      io.Reader
}

// SignRequest is the input to SignDocument. A nil Placement anchors the
// signature at the bottom-right corner of the first page.
type SignRequest struct {
	Signature *SignatureData
	Placement *Placement
}

// ShareResult is returned by ShareDocument.
type ShareResult struct {
	Link      string
	EmailSent bool
}

// Service orchestrates the document lifecycle: upload, share, sign and
// notify. It applies local state only after the backend confirmed a write.
type Service struct {
	store       *Store
	db          Database
	objects     ObjectStore
	mailer      Mailer
	compositors CompositorSet
	logger      Logger
	clock       Clock
	idgen       IDGenerator
	opts        Options

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a Service with the provided dependencies.
func NewService(store *Store, db Database, objects ObjectStore, mailer Mailer, compositors CompositorSet, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	return &Service{
		store:       store,
		db:          db,
		objects:     objects,
		mailer:      mailer,
		compositors: compositors,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		opts:        opts.withDefaults(),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Store returns the state container backing the service.
func (s *Service) Store() *Store {
	return s.store
}

// lockDocument serializes writes to a single document.
func (s *Service) lockDocument(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Load hydrates the store from the database.
func (s *Service) Load(ctx context.Context) error {
	docs, err := s.db.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	notes, err := s.db.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("loading notifications: %w", err)
	}
	s.store.Replace(docs, notes)
	s.logger.Debug("store loaded", "documents", len(docs), "notifications", len(notes))
	return nil
}

// Run applies change-feed events to the store until ctx is done or events
// is closed.
func (s *Service) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.store.Apply(ev) {
				s.logger.Debug("change applied", "table", ev.Table, "type", string(ev.Type))
			}
		}
	}
}

// AddDocument uploads the document bytes, verifies they are retrievable,
// records the document as unsigned and makes it the current document.
func (s *Service) AddDocument(ctx context.Context, in NewDocument) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "docsign.AddDocument")
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "document name is required"}
	}
	kind := DetectKind(in.MediaType, name)
	if kind == KindUnsupported {
		return nil, &ValidationError{Field: "type", Message: "only PDF and image files are accepted"}
	}
	if in.Size <= 0 {
		return nil, &ValidationError{Field: "size", Message: "file is empty"}
	}
	if in.Size > s.opts.MaxUploadSize {
		return nil, &UploadError{Reason: UploadSizeLimit, Err: ErrObjectTooLarge}
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, in.Size+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) != in.Size {
		return nil, &ValidationError{Field: "size", Message: fmt.Sprintf("expected %d bytes, got %d", in.Size, len(data))}
	}

	compositor, err := s.compositors.ForKind(kind)
	if err != nil {
		return nil, &ValidationError{Field: "type", Message: err.Error()}
	}
	if err := compositor.Check(data); err != nil {
		return nil, &ValidationError{Field: "file", Message: err.Error()}
	}

	mediaType := MediaTypeFor(in.MediaType, name)
	id := s.idgen.New()
	key := objectKey(id, name)
	span.SetAttributes(attribute.String("document.id", id), attribute.String("document.kind", string(kind)))

	publicURL, err := s.upload(ctx, key, data, mediaType)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	doc = &Document{
		ID:              id,
		Name:            name,
		Type:            mediaType,
		Kind:            kind,
		Size:            in.Size,
		CreatedAt:       now,
		UpdatedAt:       now,
		PreviewURL:      publicURL,
		StorageKey:      key,
		SignatureStatus: StatusUnsigned,
		Revision:        1,
	}

	if err := s.db.InsertDocument(ctx, doc); err != nil {
		s.discard(key)
		return nil, fmt.Errorf("saving document: %w", err)
	}

	s.store.Apply(Event{Type: EventInsert, Table: TableDocuments, Document: doc})
	s.store.SetCurrent(id)

	s.logger.Info("document added", "id", id, "name", name, "kind", string(kind), "size", in.Size)
	return doc.Clone(), nil
}

// upload stores data with retry, resolves its public URL and checks that the
// object is retrievable. On any failure after the write, the object is removed.
func (s *Service) upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := s.retry(ctx, "upload", func(ctx context.Context) error {
		err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
		if errors.Is(err, ErrObjectTooLarge) || errors.Is(err, ErrPermissionDenied) {
			return permanent(err)
		}
		return err
	})
	if err != nil {
		return "", newUploadError(err)
	}

	publicURL, err := s.objects.PublicURL(ctx, key)
	if err != nil {
		s.discard(key)
		return "", &VerificationError{URL: key, Err: err}
	}

	info, err := s.objects.Stat(ctx, key)
	if err == nil && info.Size >= 0 && info.Size != int64(len(data)) {
		err = fmt.Errorf("stored size %d, want %d", info.Size, len(data))
	}
	if err != nil {
		s.discard(key)
		return "", &VerificationError{URL: publicURL, Err: err}
	}
	return publicURL, nil
}

// discard removes an object that no record points to. Failures are logged.
func (s *Service) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn("removing orphaned object failed", "key", key, "error", err)
	}
}

// SigningLink returns the URL that routes a recipient to the signing screen.
func (s *Service) SigningLink(id string) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + "/sign/" + url.PathEscape(id)
}

// ShareDocument records the recipient, emits an informational notification
// and emails the signing link. Re-sharing with the same recipient returns
// the same link without a second notification. Email delivery is retried;
// a final delivery failure is logged and reported through EmailSent.
func (s *Service) ShareDocument(ctx context.Context, id, email string) (res *ShareResult, err error) {
	ctx, span := tracer.Start(ctx, "docsign.ShareDocument", trace.WithAttributes(attribute.String("document.id", id)))
	defer func() { endSpan(span, err) }()

	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return nil, &ValidationError{Field: "email", Message: "please enter a valid email address"}
	}

	unlock := s.lockDocument(id)
	defer unlock()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	reshare := doc.RecipientEmail == email
	if !reshare {
		updated := doc.Clone()
		updated.RecipientEmail = email
		updated.UpdatedAt = s.clock.Now()
		updated.Revision++
		if err := s.db.UpdateDocument(ctx, updated); err != nil {
			return nil, fmt.Errorf("recording recipient: %w", err)
		}
		s.store.Apply(Event{Type: EventUpdate, Table: TableDocuments, Document: updated})
		doc = updated
	}

	// A retried share to the current recipient is not announced twice; a
	// change of recipient always is.
	message := fmt.Sprintf("Document shared with %s", email)
	var existing *Notification
	if reshare {
		existing, err = s.db.FindNotification(ctx, id, message)
		if err != nil {
			return nil, fmt.Errorf("checking existing notification: %w", err)
		}
	}
	if existing == nil {
		if err := s.notify(ctx, NotificationInfo, message, doc); err != nil {
			return nil, err
		}
	}

	link := s.SigningLink(id)
	res = &ShareResult{Link: link}

	msg := SigningEmail(doc.Name, email, link)
	sendErr := s.retry(ctx, "email", func(ctx context.Context) error {
		err := s.mailer.Send(ctx, msg)
		if isPermanent(err) {
			return permanent(err)
		}
		return err
	})
	if sendErr != nil {
		s.logger.Error("sending signing email failed", "id", id, "to", email, "error", sendErr)
	} else {
		res.EmailSent = true
	}

	s.logger.Info("document shared", "id", id, "recipient", email)
	return res, nil
}

// SignDocument composites the signature onto the document, stores the
// signed bytes and transitions the document to signed. A document that is
// already signed is left untouched and ErrAlreadySigned is returned.
func (s *Service) SignDocument(ctx context.Context, id string, req SignRequest) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "docsign.SignDocument", trace.WithAttributes(attribute.String("document.id", id)))
	defer func() { endSpan(span, err) }()

	sig := req.Signature
	if sig == nil || len(sig.Image) == 0 {
		return nil, &ValidationError{Field: "signature", Message: "please provide your signature"}
	}
	if sig.Width <= 0 || sig.Height <= 0 {
		return nil, &ValidationError{Field: "signature", Message: "signature has no dimensions"}
	}
	signer := strings.TrimSpace(sig.SignerName)
	if signer == "" {
		signer = DefaultSignerName
	}

	unlock := s.lockDocument(id)
	defer unlock()

	current, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsSigned() {
		return nil, ErrAlreadySigned
	}

	compositor, err := s.compositors.ForKind(current.Kind)
	if err != nil {
		return nil, &ValidationError{Field: "type", Message: err.Error()}
	}

	var original bytes.Buffer
	if err := s.retry(ctx, "download", func(ctx context.Context) error {
		original.Reset()
		err := s.objects.Get(ctx, current.StorageKey, &original)
		if errors.Is(err, ErrObjectNotFound) {
			return permanent(err)
		}
		return err
	}); err != nil {
		return nil, fmt.Errorf("fetching document bytes: %w", err)
	}

	pl := s.resolvePlacement(req.Placement, sig)
	signedAt := s.clock.Now()
	caption := fmt.Sprintf("%s  %s", signer, signedAt.Format("2006-01-02"))

	out, err := compositor.Composite(original.Bytes(), sig.Image, pl, caption)
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", current.Name, err)
	}

	key := objectKey(id, path.Join("signed", current.Name))
	publicURL, err := s.upload(ctx, key, out, current.Type)
	if err != nil {
		return nil, err
	}

	signed := current.Clone()
	signed.SignatureStatus = StatusSigned
	signed.SignedBy = signer
	signed.SignedAt = &signedAt
	signed.PreviewURL = publicURL
	signed.StorageKey = key
	signed.Size = int64(len(out))
	signed.UpdatedAt = signedAt
	signed.Revision++

	if err := s.db.UpdateDocument(ctx, signed); err != nil {
		s.discard(key)
		return nil, fmt.Errorf("saving signed document: %w", err)
	}
	s.store.Apply(Event{Type: EventUpdate, Table: TableDocuments, Document: signed})

	// The document is committed as signed at this point, so a failed
	// notification must not turn the call into a failure.
	message := fmt.Sprintf(`Document "%s" has been signed and is ready to download`, current.Name)
	if err := s.notify(ctx, NotificationSuccess, message, signed); err != nil {
		s.logger.Error("recording signed notification failed", "id", id, "error", err)
	}

	s.logger.Info("document signed", "id", id, "signer", signer, "page", pl.Page)
	return signed.Clone(), nil
}

// resolvePlacement fills in the signature size and the default corner.
func (s *Service) resolvePlacement(p *Placement, sig *SignatureData) Placement {
	size := placement.ScaleSignature(sig.Width, sig.Height, s.opts.ReductionFactor)
	if p == nil {
		return Placement{
			Page:   1,
			Width:  size.Width,
			Height: size.Height,
			Corner: true,
			Margin: s.opts.CornerMargin,
		}
	}
	out := *p
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Width <= 0 || out.Height <= 0 {
		out.Width, out.Height = size.Width, size.Height
	}
	if out.Corner && out.Margin <= 0 {
		out.Margin = s.opts.CornerMargin
	}
	return out
}

// MarkNotificationAsRead flips the read flag. Unknown or already read
// notifications are left alone.
func (s *Service) MarkNotificationAsRead(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "docsign.MarkNotificationAsRead", trace.WithAttributes(attribute.String("notification.id", id)))
	defer func() { endSpan(span, err) }()

	n, err := s.db.GetNotification(ctx, id)
	if err != nil {
		return fmt.Errorf("finding notification: %w", err)
	}
	if n == nil || n.Read {
		return nil
	}

	updated := n.Clone()
	updated.Read = true
	updated.Revision++
	if err := s.db.UpdateNotification(ctx, updated); err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	s.store.Apply(Event{Type: EventUpdate, Table: TableNotifications, Notification: updated})
	return nil
}

// GetDocumentByID returns the document from the local store.
func (s *Service) GetDocumentByID(id string) (*Document, error) {
	doc := s.store.Document(id)
	if doc == nil {
		return nil, &NotFoundError{Kind: "document", ID: id}
	}
	return doc, nil
}

// SetCurrentDocument designates the current document.
func (s *Service) SetCurrentDocument(id string) error {
	if s.store.Document(id) == nil {
		return &NotFoundError{Kind: "document", ID: id}
	}
	s.store.SetCurrent(id)
	return nil
}

// ListDocuments returns all documents, most recent first.
func (s *Service) ListDocuments() []*Document {
	return s.store.Documents()
}

// ListNotifications returns all notifications, most recent first.
func (s *Service) ListNotifications() []*Notification {
	return s.store.Notifications()
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount() int {
	return s.store.UnreadCount()
}

// DownloadURL returns the retrievable reference to a signed document.
func (s *Service) DownloadURL(id string) (string, error) {
	doc, err := s.GetDocumentByID(id)
	if err != nil {
		return "", err
	}
	if !doc.IsSigned() {
		return "", ErrNotSigned
	}
	return doc.PreviewURL, nil
}

// OpenDocument returns the stored bytes of a document.
func (s *Service) OpenDocument(ctx context.Context, id string) ([]byte, *Document, error) {
	doc, err := s.GetDocumentByID(id)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := s.objects.Get(ctx, doc.StorageKey, &buf); err != nil {
		return nil, nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return buf.Bytes(), doc, nil
}

// ReadObject writes the object stored under key to w. Only document
// objects are served.
func (s *Service) ReadObject(ctx context.Context, key string, w io.Writer) (*ObjectInfo, error) {
	if !strings.HasPrefix(key, "documents/") {
		return nil, &NotFoundError{Kind: "object", ID: key}
	}
	info, err := s.objects.Stat(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, &NotFoundError{Kind: "object", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	if err := s.objects.Get(ctx, key, w); err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return info, nil
}

// loadDocument reads the authoritative record and reconciles the store with it.
func (s *Service) loadDocument(ctx context.Context, id string) (*Document, error) {
	doc, err := s.db.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return nil, &NotFoundError{Kind: "document", ID: id}
	}
	s.store.Apply(Event{Type: EventUpdate, Table: TableDocuments, Document: doc})
	return doc, nil
}

// notify persists a notification about doc and applies it locally.
func (s *Service) notify(ctx context.Context, typ NotificationType, message string, doc *Document) error {
	n := &Notification{
		ID:           s.idgen.New(),
		Type:         typ,
		Message:      message,
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		CreatedAt:    s.clock.Now(),
		Revision:     1,
	}
	if err := s.db.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("saving notification: %w", err)
	}
	s.store.Apply(Event{Type: EventInsert, Table: TableNotifications, Notification: n})
	return nil
}

// objectKey builds the storage path for a document file.
func objectKey(id, name string) string {
	return path.Join("documents", id, path.Clean("/" + name)[1:])
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
