package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docsign/internal/docsign"
)

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates bucket directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "objects")

		s, err := NewFileSystemStore("documents", root, "", 0)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "documents")); err != nil {
			t.Errorf("bucket directory not created: %v", err)
		}
		if s.Dir() != filepath.Join(root, "documents") {
			t.Errorf("Dir() = %q, want %q", s.Dir(), filepath.Join(root, "documents"))
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemStore("documents", t.TempDir(), "", 0); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
	})
}

func TestFileSystemStore_PutGetStat(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSystemStore("documents", t.TempDir(), "http://localhost:8080/files", 0)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	data := "%PDF-1.4 body"
	key := "documents/d1/contract.pdf"
	if err := s.Put(ctx, key, strings.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var buf bytes.Buffer
	if err := s.Get(ctx, key, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("Get() = %q, want %q", buf.String(), data)
	}

	info, err := s.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Stat().Size = %d, want %d", info.Size, len(data))
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("Stat().ContentType = %q, want application/pdf", info.ContentType)
	}

	url, err := s.PublicURL(ctx, key)
	if err != nil {
		t.Fatalf("PublicURL() error = %v", err)
	}
	if url != "http://localhost:8080/files/documents/d1/contract.pdf" {
		t.Errorf("PublicURL() = %q", url)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Get(ctx, key, &buf); !errors.Is(err, docsign.ErrObjectNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrObjectNotFound", err)
	}
}

func TestFileSystemStore_Put_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("size mismatch leaves no file", func(t *testing.T) {
		s, err := NewFileSystemStore("documents", t.TempDir(), "", 0)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if err := s.Put(ctx, "a/b.txt", strings.NewReader("hello"), 100, "text/plain"); err == nil {
			t.Fatal("Put() expected size mismatch error")
		}
		entries, _ := os.ReadDir(filepath.Join(s.Dir(), "a"))
		if len(entries) != 0 {
			t.Errorf("temp files left behind: %v", entries)
		}
	})

	t.Run("too large", func(t *testing.T) {
		s, err := NewFileSystemStore("documents", t.TempDir(), "", 4)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		err = s.Put(ctx, "big", strings.NewReader("12345"), 5, "text/plain")
		if !errors.Is(err, docsign.ErrObjectTooLarge) {
			t.Errorf("Put() error = %v, want ErrObjectTooLarge", err)
		}
	})

	t.Run("keys cannot escape the bucket", func(t *testing.T) {
		root := t.TempDir()
		s, err := NewFileSystemStore("documents", root, "", 0)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if err := s.Put(ctx, "../../outside", strings.NewReader("x"), 1, "text/plain"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "outside")); err == nil {
			t.Error("object written outside the bucket directory")
		}
		if _, err := os.Stat(filepath.Join(s.Dir(), "outside")); err != nil {
			t.Errorf("object not written inside the bucket: %v", err)
		}
	})
}
