package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"docsign/internal/docsign"
)

// FileSystemStore is a filesystem-based implementation of docsign.ObjectStore.
// Objects are stored as files under the bucket directory:
//
//	<root>/
//	  <bucket>/
//	    documents/<id>/<name>
//	    documents/<id>/signed/<name>
//
// Public URLs are formed from publicBaseURL; the HTTP server serves the
// bucket directory under that prefix.
type FileSystemStore struct {
	bucket    string
	root      string
	bucketDir string
	baseURL   string
	maxSize   int64
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
func NewFileSystemStore(bucket, root, publicBaseURL string, maxSize int64) (*FileSystemStore, error) {
	if bucket == "" {
		bucket = "documents"
	}
	bucketDir := filepath.Join(root, bucket)
	if err := os.MkdirAll(bucketDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = "file://" + filepath.ToSlash(bucketDir)
	}

	return &FileSystemStore{
		bucket:    bucket,
		root:      root,
		bucketDir: bucketDir,
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
		maxSize:   maxSize,
	}, nil
}

// Dir returns the directory holding the bucket's objects.
func (v *FileSystemStore) Dir() string {
	return v.bucketDir
}

// objectPath maps a key to a path inside the bucket directory, refusing keys
// that would escape it.
func (v *FileSystemStore) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(v.bucketDir, clean), nil
}

// Put stores the object using an atomic write, replacing any previous version.
func (v *FileSystemStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if v.maxSize > 0 && size > v.maxSize {
		return fmt.Errorf("%w: %d > %d bytes", docsign.ErrObjectTooLarge, size, v.maxSize)
	}
	destPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %v", docsign.ErrPermissionDenied, err)
		}
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	return v.writeFile(destPath, r, size)
}

// Get writes the object to w.
func (v *FileSystemStore) Get(ctx context.Context, key string, w io.Writer) error {
	srcPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", docsign.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Stat returns the object's size. The content type is derived from the
// file extension.
func (v *FileSystemStore) Stat(ctx context.Context, key string) (*docsign.ObjectInfo, error) {
	p, err := v.objectPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", docsign.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return &docsign.ObjectInfo{
		Key:         key,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(p)),
	}, nil
}

// PublicURL returns baseURL/key.
func (v *FileSystemStore) PublicURL(ctx context.Context, key string) (string, error) {
	if _, err := v.objectPath(key); err != nil {
		return "", err
	}
	return publicURL(v.baseURL, key), nil
}

// Delete removes the object. A missing object is not an error.
func (v *FileSystemStore) Delete(ctx context.Context, key string) error {
	p, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object: %w", err)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %v", docsign.ErrPermissionDenied, err)
		}
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements docsign.ObjectStore
var _ docsign.ObjectStore = (*FileSystemStore)(nil)
