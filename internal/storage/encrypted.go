package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"docsign/internal/docsign"
)

// EncryptedStore encrypts objects before handing them to the wrapped store
// and decrypts them on Get. Public URLs point at the application's own file
// route, since the wrapped store only ever sees ciphertext.
//
// Without a DecryptionContext the store is write-only: Get fails and Stat
// reports an unknown size of -1.
type EncryptedStore struct {
	inner   docsign.ObjectStore
	enc     docsign.Encryptor
	dec     docsign.DecryptionContext
	baseURL string
}

// NewEncryptedStore wraps inner. dec may be nil.
func NewEncryptedStore(inner docsign.ObjectStore, enc docsign.Encryptor, dec docsign.DecryptionContext, baseURL string) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc, dec: dec, baseURL: baseURL}
}

// Put encrypts r and stores the ciphertext.
func (e *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	var ciphertext bytes.Buffer
	counter := &countingReader{r: r}
	if err := e.enc.Encrypt(counter, &ciphertext); err != nil {
		return fmt.Errorf("encrypting object: %w", err)
	}
	if counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}
	return e.inner.Put(ctx, key, &ciphertext, int64(ciphertext.Len()), contentType)
}

// Get fetches and decrypts the object into w.
func (e *EncryptedStore) Get(ctx context.Context, key string, w io.Writer) error {
	if e.dec == nil {
		return fmt.Errorf("encrypted store is locked: no decryption key")
	}
	var ciphertext bytes.Buffer
	if err := e.inner.Get(ctx, key, &ciphertext); err != nil {
		return err
	}
	if err := e.dec.Decrypt(&ciphertext, w); err != nil {
		return fmt.Errorf("decrypting object: %w", err)
	}
	return nil
}

// Stat reports the plaintext size when the store is unlocked.
func (e *EncryptedStore) Stat(ctx context.Context, key string) (*docsign.ObjectInfo, error) {
	info, err := e.inner.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if e.dec == nil {
		return &docsign.ObjectInfo{Key: key, Size: -1, ContentType: info.ContentType}, nil
	}
	counter := &countingWriter{}
	if err := e.Get(ctx, key, counter); err != nil {
		return nil, err
	}
	return &docsign.ObjectInfo{Key: key, Size: counter.n, ContentType: info.ContentType}, nil
}

// PublicURL points at the application's file route.
func (e *EncryptedStore) PublicURL(ctx context.Context, key string) (string, error) {
	if e.baseURL == "" {
		return e.inner.PublicURL(ctx, key)
	}
	return publicURL(e.baseURL, key), nil
}

// Delete removes the object from the wrapped store.
func (e *EncryptedStore) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

var _ docsign.ObjectStore = (*EncryptedStore)(nil)
