package testutil

import (
	"context"
	"io"
	"sync"

	"docsign/internal/docsign"
	"docsign/internal/storage"
)

// DefaultMaxObjectSize is the object size limit of test storage (10MB).
const DefaultMaxObjectSize = 10 * 1024 * 1024

// NewTestStorage creates an in-memory object store for testing.
func NewTestStorage() *storage.MemoryStore {
	return storage.NewMemoryStore("documents", "", DefaultMaxObjectSize)
}

// FaultyStore wraps an ObjectStore and injects errors. PutFailures and
// StatFailures count down; while positive the call fails with PutErr or
// StatErr.
type FaultyStore struct {
	docsign.ObjectStore

	mu           sync.Mutex
	PutErr       error
	PutFailures  int
	StatErr      error
	StatFailures int
	puts         int
}

var _ docsign.ObjectStore = (*FaultyStore)(nil)

func NewFaultyStore(inner docsign.ObjectStore) *FaultyStore {
	return &FaultyStore{ObjectStore: inner}
}

func (f *FaultyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	f.puts++
	if f.PutFailures > 0 {
		f.PutFailures--
		f.mu.Unlock()
		return f.PutErr
	}
	f.mu.Unlock()
	return f.ObjectStore.Put(ctx, key, r, size, contentType)
}

func (f *FaultyStore) Stat(ctx context.Context, key string) (*docsign.ObjectInfo, error) {
	f.mu.Lock()
	if f.StatFailures > 0 {
		f.StatFailures--
		f.mu.Unlock()
		return nil, f.StatErr
	}
	f.mu.Unlock()
	return f.ObjectStore.Stat(ctx, key)
}

// Puts returns the number of Put calls, failed ones included.
func (f *FaultyStore) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}
