package docsign

import "context"

// Database persists documents and notifications. Every committed write is
// also published on the change feed returned by Subscribe.
type Database interface {
	// InsertDocument stores a new document record.
	InsertDocument(ctx context.Context, doc *Document) error

	// UpdateDocument replaces a document record by id.
	// Returns a NotFoundError if no row matched.
	UpdateDocument(ctx context.Context, doc *Document) error

	// GetDocument returns the document with the given id, or nil if absent.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// ListDocuments returns all documents, most recent first.
	ListDocuments(ctx context.Context) ([]*Document, error)

	// InsertNotification stores a new notification record.
	InsertNotification(ctx context.Context, n *Notification) error

	// UpdateNotification replaces a notification record by id.
	UpdateNotification(ctx context.Context, n *Notification) error

	// GetNotification returns the notification with the given id, or nil if absent.
	GetNotification(ctx context.Context, id string) (*Notification, error)

	// FindNotification returns the first notification for documentID with
	// the given message, or nil if none exists.
	FindNotification(ctx context.Context, documentID, message string) (*Notification, error)

	// ListNotifications returns all notifications, most recent first.
	ListNotifications(ctx context.Context) ([]*Notification, error)

	// Subscribe returns a channel of change events for both tables. The
	// channel is closed when ctx is done or the database is closed.
	Subscribe(ctx context.Context) <-chan Event

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection and ends all subscriptions.
	Close() error
}
