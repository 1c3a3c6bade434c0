package docsign

import (
	"context"
	"io"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// ObjectStore is the external object storage that holds document bytes and
// issues retrievable references to them.
type ObjectStore interface {
	// Put stores size bytes read from r under key. Storing the same key
	// again replaces the object, so a retried Put is safe. Rejections are
	// reported with ErrObjectTooLarge or ErrPermissionDenied where the
	// backend can tell.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get writes the object stored under key to w.
	// Returns ErrObjectNotFound if the key is absent.
	Get(ctx context.Context, key string, w io.Writer) error

	// Stat returns object metadata, or ErrObjectNotFound. Size is -1 when
	// the backend cannot report the stored plaintext size.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// PublicURL returns a retrievable reference for key.
	PublicURL(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
