package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsign/internal/database/migrations"
	"docsign/internal/docsign"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements docsign.Database on SQLite. Every committed
// write is published on the change feed.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	feed *feed
}

var _ docsign.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens a database at path, or an in-memory database
// for ":memory:". The schema is not applied; see Migrate.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path, feed: newFeed()}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, feed: newFeed()}
}

// OpenConnection opens a SQLite connection with foreign keys enforced on
// every pooled connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on&_busy_timeout=5000"
	} else {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Subscribe returns the change feed.
func (s *SQLiteDatabase) Subscribe(ctx context.Context) <-chan docsign.Event {
	return s.feed.subscribe(ctx)
}

// Close ends subscriptions and closes the connection.
func (s *SQLiteDatabase) Close() error {
	s.feed.close()
	return s.db.Close()
}

// Document operations

const documentColumns = `id, name, type, kind, size, created_at, updated_at, preview_url, storage_key,
	signature_status, recipient_email, signed_by, signed_at, revision`

func (s *SQLiteDatabase) InsertDocument(ctx context.Context, doc *docsign.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Type, string(doc.Kind), doc.Size,
		toUnix(doc.CreatedAt), toUnix(doc.UpdatedAt), doc.PreviewURL, doc.StorageKey,
		string(doc.SignatureStatus), doc.RecipientEmail, doc.SignedBy, nullableTime(doc.SignedAt), doc.Revision,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	s.feed.publish(docsign.Event{Type: docsign.EventInsert, Table: docsign.TableDocuments, Document: doc})
	return nil
}

func (s *SQLiteDatabase) UpdateDocument(ctx context.Context, doc *docsign.Document) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			name = ?, type = ?, kind = ?, size = ?, updated_at = ?, preview_url = ?, storage_key = ?,
			signature_status = ?, recipient_email = ?, signed_by = ?, signed_at = ?, revision = ?
		WHERE id = ?`,
		doc.Name, doc.Type, string(doc.Kind), doc.Size, toUnix(doc.UpdatedAt), doc.PreviewURL, doc.StorageKey,
		string(doc.SignatureStatus), doc.RecipientEmail, doc.SignedBy, nullableTime(doc.SignedAt), doc.Revision,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if n == 0 {
		return &docsign.NotFoundError{Kind: "document", ID: doc.ID}
	}
	s.feed.publish(docsign.Event{Type: docsign.EventUpdate, Table: docsign.TableDocuments, Document: doc})
	return nil
}

func (s *SQLiteDatabase) GetDocument(ctx context.Context, id string) (*docsign.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteDatabase) ListDocuments(ctx context.Context) ([]*docsign.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*docsign.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and, by cascade, its notifications.
// A missing document is not an error.
func (s *SQLiteDatabase) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	noteIDs, err := queryIDs(ctx, tx, `SELECT id FROM notifications WHERE document_id = ?`, id)
	if err != nil {
		return fmt.Errorf("finding notifications: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for _, nid := range noteIDs {
		s.feed.publish(docsign.Event{Type: docsign.EventDelete, Table: docsign.TableNotifications, Notification: &docsign.Notification{ID: nid}})
	}
	s.feed.publish(docsign.Event{Type: docsign.EventDelete, Table: docsign.TableDocuments, Document: &docsign.Document{ID: id}})
	return nil
}

// Notification operations

const notificationColumns = `id, type, message, document_id, document_name, read, created_at, revision`

func (s *SQLiteDatabase) InsertNotification(ctx context.Context, n *docsign.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.Message, n.DocumentID, n.DocumentName, n.Read, toUnix(n.CreatedAt), n.Revision,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	s.feed.publish(docsign.Event{Type: docsign.EventInsert, Table: docsign.TableNotifications, Notification: n})
	return nil
}

func (s *SQLiteDatabase) UpdateNotification(ctx context.Context, n *docsign.Notification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET type = ?, message = ?, document_name = ?, read = ?, revision = ? WHERE id = ?`,
		string(n.Type), n.Message, n.DocumentName, n.Read, n.Revision, n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}
	if affected == 0 {
		return &docsign.NotFoundError{Kind: "notification", ID: n.ID}
	}
	s.feed.publish(docsign.Event{Type: docsign.EventUpdate, Table: docsign.TableNotifications, Notification: n})
	return nil
}

func (s *SQLiteDatabase) GetNotification(ctx context.Context, id string) (*docsign.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) FindNotification(ctx context.Context, documentID, message string) (*docsign.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE document_id = ? AND message = ? ORDER BY created_at, rowid LIMIT 1`,
		documentID, message)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding notification: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) ListNotifications(ctx context.Context) ([]*docsign.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notes []*docsign.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return notes, nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*docsign.Document, error) {
	var (
		doc                  docsign.Document
		kind, status         string
		createdAt, updatedAt int64
		signedAt             sql.NullInt64
	)
	err := row.Scan(&doc.ID, &doc.Name, &doc.Type, &kind, &doc.Size, &createdAt, &updatedAt,
		&doc.PreviewURL, &doc.StorageKey, &status, &doc.RecipientEmail, &doc.SignedBy, &signedAt, &doc.Revision)
	if err != nil {
		return nil, err
	}
	doc.Kind = docsign.DocumentKind(kind)
	doc.SignatureStatus = docsign.SignatureStatus(status)
	doc.CreatedAt = fromUnix(createdAt)
	doc.UpdatedAt = fromUnix(updatedAt)
	if signedAt.Valid {
		t := fromUnix(signedAt.Int64)
		doc.SignedAt = &t
	}
	return &doc, nil
}

func scanNotification(row scanner) (*docsign.Notification, error) {
	var (
		n         docsign.Notification
		typ       string
		createdAt int64
	)
	if err := row.Scan(&n.ID, &typ, &n.Message, &n.DocumentID, &n.DocumentName, &n.Read, &createdAt, &n.Revision); err != nil {
		return nil, err
	}
	n.Type = docsign.NotificationType(typ)
	n.CreatedAt = fromUnix(createdAt)
	return &n, nil
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Timestamps are stored as Unix nanoseconds so that ordering in SQL matches
// ordering in Go.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}
