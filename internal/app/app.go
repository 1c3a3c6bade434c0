package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docsign/internal/compositor"
	"docsign/internal/config"
	"docsign/internal/database"
	"docsign/internal/docsign"
	"docsign/internal/encryption"
	"docsign/internal/mail"
	"docsign/internal/server"
	"docsign/internal/signature"
	"docsign/internal/storage"
	"docsign/internal/viewer"
)

// tracingShutdownTimeout bounds the final span flush in Close.
const tracingShutdownTimeout = 5 * time.Second

// Options tunes NewDocSignApp.
type Options struct {
	// Operation names the CLI command being run, e.g. "SignDocument".
	Operation string

	// Passphrase unlocks the private key when storage.encrypt is set.
	// Without it encrypted documents can be stored but not read back.
	Passphrase string
}

// DocSignApp is the application layer between the CLI and the document
// service. It constructs all dependencies from config, keeps the local store
// in sync with the database change feed, and releases everything on Close.
type DocSignApp struct {
	cfg     *config.Config
	db      docsign.Database
	service *docsign.Service
	logger  *slog.Logger
	logFile *os.File
	clock   docsign.Clock

	op   *Operation
	span trace.Span

	cancel          context.CancelFunc
	feedDone        chan struct{}
	shutdownTracing shutdownFunc
}

// NewDocSignApp creates a fully wired DocSignApp from the given config.
// The caller must call Close when done.
func NewDocSignApp(cfg *config.Config, opts Options) (a *DocSignApp, err error) {
	clock := docsign.RealClock{}
	runID := clock.Now().Format("20060102T150405Z")

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, logFile, err := newLogger(cfg.LogDir, runID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	// Release whatever was opened if a later step fails.
	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			logFile.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	closers = append(closers, cancel)

	shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	closers = append(closers, func() { _ = shutdownTracing(context.Background()) })

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	closers = append(closers, func() { db.Close() })

	if err := db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	timeout := cfg.Network.Timeout.Duration
	if timeout <= 0 {
		timeout = docsign.DefaultOptions().Timeout
	}
	setupCtx, setupCancel := context.WithTimeout(ctx, timeout)
	defer setupCancel()
	objects, err := newObjectStore(setupCtx, cfg, opts.Passphrase)
	if err != nil {
		return nil, err
	}

	mailer, err := mail.NewMailerFromConfig(cfg.Mailer, cfg.Network, adapter)
	if err != nil {
		return nil, fmt.Errorf("creating mailer: %w", err)
	}

	svc := docsign.NewService(docsign.NewStore(), db, objects, mailer, compositor.NewSet(),
		adapter, clock, docsign.UUIDGenerator{}, serviceOptions(cfg))

	op := NewOperation(opts.Operation, clock.Now())
	ctx, span := otel.Tracer("docsign/internal/app").Start(ctx, "docsign."+op.Name)
	closers = append(closers, func() { span.End() })

	if err := svc.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}

	a = &DocSignApp{
		cfg:             cfg,
		db:              db,
		service:         svc,
		logger:          logger,
		logFile:         logFile,
		clock:           clock,
		op:              op,
		span:            span,
		cancel:          cancel,
		feedDone:        make(chan struct{}),
		shutdownTracing: shutdownTracing,
	}

	// Subscribe before starting the consumer so no committed write is missed.
	events := db.Subscribe(ctx)
	go func() {
		defer close(a.feedDone)
		svc.Run(ctx, events)
	}()

	logger.Info("operation started", "operation", op.Name, "instance", cfg.InstanceID)
	return a, nil
}

// newObjectStore builds the configured object store, wrapped for at-rest
// encryption when storage.encrypt is set.
func newObjectStore(ctx context.Context, cfg *config.Config, passphrase string) (docsign.ObjectStore, error) {
	objects, err := storage.NewObjectStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating object store: %w", err)
	}
	if !cfg.Storage.Encrypt {
		return objects, nil
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("storage.encrypt is set but no keys exist: run `docsign keys init`")
	}
	var dec docsign.DecryptionContext
	if passphrase != "" {
		dec, err = enc.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}
	baseURL := strings.TrimRight(cfg.Server.BaseURL, "/") + "/files"
	return storage.NewEncryptedStore(objects, enc, dec, baseURL), nil
}

// serviceOptions maps config sections onto service options.
func serviceOptions(cfg *config.Config) docsign.Options {
	return docsign.Options{
		BaseURL:         cfg.Server.BaseURL,
		MaxUploadSize:   cfg.Storage.MaxObjectSize,
		ReductionFactor: cfg.Signing.ReductionFactor,
		CornerMargin:    cfg.Signing.CornerMargin,
		Timeout:         cfg.Network.Timeout.Duration,
		MaxRetries:      cfg.Network.MaxRetries,
		InitialBackoff:  cfg.Network.InitialBackoff.Duration,
	}
}

// SetupKeys generates the age key pair used for at-rest encryption.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// Service returns the document service.
func (a *DocSignApp) Service() *docsign.Service {
	return a.service
}

// track records a failed step on the operation and its span.
func (a *DocSignApp) track(err error) error {
	if err != nil {
		a.op.Fail()
		a.span.RecordError(err)
	}
	return err
}

// AddDocumentFile uploads the file at rawPath as a new document.
func (a *DocSignApp) AddDocumentFile(ctx context.Context, rawPath string) (*docsign.Document, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return nil, a.track(fmt.Errorf("opening document: %w", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, a.track(fmt.Errorf("stat document: %w", err))
	}
	doc, err := a.service.AddDocument(a.traced(ctx), docsign.NewDocument{
		Name: filepath.Base(rawPath),
		Size: info.Size(),
		Body: f,
	})
	return doc, a.track(err)
}

// ListDocuments returns all documents, most recent first.
func (a *DocSignApp) ListDocuments() []*docsign.Document {
	return a.service.ListDocuments()
}

// ShareDocument emails the signing link for id to email.
func (a *DocSignApp) ShareDocument(ctx context.Context, id, email string) (*docsign.ShareResult, error) {
	res, err := a.service.ShareDocument(a.traced(ctx), id, email)
	return res, a.track(err)
}

// SignDocumentFile signs id with the PNG signature at pngPath. A nil
// placement anchors the signature at the bottom-right of the first page.
func (a *DocSignApp) SignDocumentFile(ctx context.Context, id, signerName, pngPath string, pl *docsign.Placement) (*docsign.Document, error) {
	raw, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, a.track(fmt.Errorf("reading signature: %w", err))
	}
	sig, err := signature.FromPNG(raw, signerName, a.clock.Now())
	if err != nil {
		return nil, a.track(err)
	}
	doc, err := a.service.SignDocument(a.traced(ctx), id, docsign.SignRequest{Signature: sig, Placement: pl})
	return doc, a.track(err)
}

// ExportDocument writes the stored bytes of id to w.
func (a *DocSignApp) ExportDocument(ctx context.Context, id string, w io.Writer) (*docsign.Document, error) {
	data, doc, err := a.service.OpenDocument(a.traced(ctx), id)
	if err != nil {
		return nil, a.track(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, a.track(fmt.Errorf("writing document: %w", err))
	}
	return doc, nil
}

// ListNotifications returns all notifications and the unread count.
func (a *DocSignApp) ListNotifications() ([]*docsign.Notification, int) {
	return a.service.ListNotifications(), a.service.UnreadCount()
}

// MarkNotificationAsRead flags a notification as read.
func (a *DocSignApp) MarkNotificationAsRead(ctx context.Context, id string) error {
	return a.track(a.service.MarkNotificationAsRead(a.traced(ctx), id))
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *DocSignApp) Serve(ctx context.Context) error {
	srv, err := server.New(a.service, &slogAdapter{l: a.logger.WithGroup("http")}, a.clock, server.Options{
		Signing:       a.cfg.Signing,
		Viewer:        viewer.OptionsFromConfig(a.cfg.Viewer),
		MaxUploadSize: a.cfg.Storage.MaxObjectSize,
	})
	if err != nil {
		return a.track(err)
	}
	return a.track(srv.ListenAndServe(a.traced(ctx), a.cfg.Server))
}

// traced parents spans started under ctx on the operation span.
func (a *DocSignApp) traced(ctx context.Context) context.Context {
	return trace.ContextWithSpan(ctx, a.span)
}

// Close stops the change feed, closes the database, finishes the operation
// span and flushes traces.
func (a *DocSignApp) Close() error {
	var firstErr error

	a.cancel()
	<-a.feedDone

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(a.clock.Now()))
	if a.op.Failed() {
		a.span.SetStatus(codes.Error, a.op.Status)
	}
	a.span.End()

	ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("shutting down tracing: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
