package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"docsign/internal/docsign"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-memory implementation of docsign.ObjectStore.
// It is useful for tests and for running without any external storage.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	bucket  string
	baseURL string
	maxSize int64
	objects map[string]memoryObject
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty store. maxSize <= 0 means no limit.
func NewMemoryStore(bucket, baseURL string, maxSize int64) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://" + bucket
	}
	return &MemoryStore{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		objects: make(map[string]memoryObject),
	}
}

// Put stores the object, replacing any previous version.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.maxSize > 0 && size > m.maxSize {
		return fmt.Errorf("%w: %d > %d bytes", docsign.ErrObjectTooLarge, size, m.maxSize)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

// Get writes the object to w.
func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("%w: %s", docsign.ErrObjectNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Stat returns the object's size and content type.
func (m *MemoryStore) Stat(ctx context.Context, key string) (*docsign.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", docsign.ErrObjectNotFound, key)
	}
	return &docsign.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

// PublicURL returns baseURL/key.
func (m *MemoryStore) PublicURL(ctx context.Context, key string) (string, error) {
	return publicURL(m.baseURL, key), nil
}

// Delete removes the object if present.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Keys returns the stored keys. Intended for tests.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// publicURL joins a base URL and an object key, escaping each path segment.
func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// Compile-time check that MemoryStore implements docsign.ObjectStore
var _ docsign.ObjectStore = (*MemoryStore)(nil)
