package app

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docsign/internal/config"
	"docsign/internal/docsign"
	"docsign/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig("test-instance", dir)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Storage.Type = "memory"
	cfg.Mailer = config.MailerConfig{Type: "memory"}
	cfg.Server.BaseURL = "https://docs.example.com"
	cfg.Network.InitialBackoff = config.Duration{Duration: time.Millisecond}
	return cfg
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestNewDocSignApp_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewDocSignApp(cfg, Options{Operation: "Test"})
	if err != nil {
		t.Fatalf("NewDocSignApp() error = %v", err)
	}
	ctx := context.Background()

	doc, err := a.AddDocumentFile(ctx, writeFile(t, "contract.png", testutil.PaddedPNG(10240)))
	if err != nil {
		t.Fatalf("AddDocumentFile() error = %v", err)
	}
	if !strings.Contains(doc.Type, "image") || doc.Size != 10240 || doc.IsSigned() {
		t.Errorf("doc = %+v, want unsigned image of 10240 bytes", doc)
	}

	res, err := a.ShareDocument(ctx, doc.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("ShareDocument() error = %v", err)
	}
	if res.Link != "https://docs.example.com/sign/"+doc.ID {
		t.Errorf("Link = %q", res.Link)
	}

	sigPath := writeFile(t, "sig.png", testutil.SolidPNG(500, 150, color.Black))
	signed, err := a.SignDocumentFile(ctx, doc.ID, "Ada", sigPath, nil)
	if err != nil {
		t.Fatalf("SignDocumentFile() error = %v", err)
	}
	if !signed.IsSigned() || signed.SignedBy != "Ada" {
		t.Errorf("signed = %+v", signed)
	}

	notes, unread := a.ListNotifications()
	if len(notes) != 2 || unread != 2 {
		t.Fatalf("ListNotifications() = %d notes, %d unread, want 2 and 2", len(notes), unread)
	}
	for _, n := range notes {
		if err := a.MarkNotificationAsRead(ctx, n.ID); err != nil {
			t.Fatalf("MarkNotificationAsRead() error = %v", err)
		}
	}
	if _, unread := a.ListNotifications(); unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}

	var buf bytes.Buffer
	if _, err := a.ExportDocument(ctx, doc.ID, &buf); err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("ExportDocument() wrote nothing")
	}

	if a.op.Failed() {
		t.Error("operation marked failed after successful steps")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	logData, err := os.ReadFile(filepath.Join(cfg.LogDir, "docsign.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	for _, want := range []string{"operation started\toperation=Test", "operation finished\toperation=Test\tstatus=success"} {
		if !strings.Contains(string(logData), want) {
			t.Errorf("log does not contain %q:\n%s", want, logData)
		}
	}
}

func TestDocSignApp_TracksFailures(t *testing.T) {
	a, err := NewDocSignApp(testConfig(t), Options{Operation: "SignDocument"})
	if err != nil {
		t.Fatalf("NewDocSignApp() error = %v", err)
	}
	defer a.Close()

	sigPath := writeFile(t, "sig.png", testutil.SolidPNG(10, 10, color.Black))
	_, err = a.SignDocumentFile(context.Background(), "missing", "", sigPath, nil)
	if !docsign.IsNotFound(err) {
		t.Fatalf("SignDocumentFile() error = %v, want not found", err)
	}
	if !a.op.Failed() {
		t.Error("operation not marked failed")
	}
}

func TestNewDocSignApp_EncryptedStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Encrypt = true
	cfg.Encryption.Type = "test"

	a, err := NewDocSignApp(cfg, Options{Operation: "AddDocument", Passphrase: "secret"})
	if err != nil {
		t.Fatalf("NewDocSignApp() error = %v", err)
	}
	defer a.Close()

	data := testutil.MinimalPDF(1)
	doc, err := a.AddDocumentFile(context.Background(), writeFile(t, "lease.pdf", data))
	if err != nil {
		t.Fatalf("AddDocumentFile() error = %v", err)
	}
	if !strings.HasPrefix(doc.PreviewURL, "https://docs.example.com/files/documents/") {
		t.Errorf("PreviewURL = %q, want the app file route", doc.PreviewURL)
	}

	var buf bytes.Buffer
	if _, err := a.ExportDocument(context.Background(), doc.ID, &buf); err != nil {
		t.Fatalf("ExportDocument() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("decrypted document differs from the upload")
	}
}

func TestNewDocSignApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		want   string
	}{
		{
			name:   "bad log level",
			modify: func(c *config.Config) { c.LogLevel = "loud" },
			want:   "invalid log level",
		},
		{
			name:   "unknown database",
			modify: func(c *config.Config) { c.Database.Type = "postgres" },
			want:   "creating database",
		},
		{
			name:   "unknown storage",
			modify: func(c *config.Config) { c.Storage.Type = "tape" },
			want:   "creating object store",
		},
		{
			name: "encryption without keys",
			modify: func(c *config.Config) {
				c.Storage.Encrypt = true
				c.Encryption.Type = "age"
			},
			want: "no keys exist",
		},
		{
			name:   "resend without key",
			modify: func(c *config.Config) { c.Mailer.Type = "resend" },
			want:   "creating mailer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RESEND_API_KEY", "")
			cfg := testConfig(t)
			tt.modify(cfg)
			_, err := NewDocSignApp(cfg, Options{Operation: "Test"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewDocSignApp() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSetupKeys(t *testing.T) {
	cfg := testConfig(t)

	if err := SetupKeys(cfg, "correct horse"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if _, err := os.Stat(cfg.Encryption.PublicKeyPath); err != nil {
		t.Errorf("public key not written: %v", err)
	}
	if err := SetupKeys(cfg, "correct horse"); err == nil {
		t.Error("second SetupKeys() expected error")
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := testConfig(t)
	opts := serviceOptions(cfg)

	if opts.BaseURL != "https://docs.example.com" {
		t.Errorf("BaseURL = %q", opts.BaseURL)
	}
	if opts.MaxUploadSize != 10<<20 {
		t.Errorf("MaxUploadSize = %d, want 10 MiB", opts.MaxUploadSize)
	}
	if opts.MaxRetries != 3 || opts.Timeout != 30*time.Second {
		t.Errorf("retry options = %d/%v, want 3/30s", opts.MaxRetries, opts.Timeout)
	}
}
