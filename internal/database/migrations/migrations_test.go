package migrations

import (
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"documents", "notifications", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh database should need migration
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	// Error should mention needing migration
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckDBMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// A notification must reference an existing document
	_, err := db.Exec(`
		INSERT INTO notifications (id, type, message, document_id, document_name, created_at)
		VALUES ('n-1', 'info', 'hello', 'missing-doc', 'a.pdf', 0)
	`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_DocumentChecks(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO documents (id, name, type, kind, size, created_at, updated_at, storage_key, signature_status)
		VALUES (?, 'a.pdf', 'application/pdf', ?, ?, 0, 0, 'k', ?)`

	if _, err := db.Exec(insert, "d-1", "pdf", 10, "unsigned"); err != nil {
		t.Fatalf("Failed to insert valid document: %v", err)
	}

	tests := []struct {
		name   string
		kind   string
		size   int
		status string
	}{
		{"unsupported kind", "unsupported", 10, "unsigned"},
		{"zero size", "pdf", 0, "unsigned"},
		{"unknown status", "pdf", 10, "pending"},
	}
	for i, tt := range tests {
		if _, err := db.Exec(insert, fmt.Sprintf("bad-%d", i), tt.kind, tt.size, tt.status); err == nil {
			t.Errorf("%s: expected check constraint violation", tt.name)
		}
	}
}

func TestSchema_CascadeDelete(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO documents (id, name, type, kind, size, created_at, updated_at, storage_key)
		VALUES ('d-1', 'a.pdf', 'application/pdf', 'pdf', 1, 0, 0, 'k')`); err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO notifications (id, type, message, document_id, document_name, created_at)
		VALUES ('n-1', 'info', 'hello', 'd-1', 'a.pdf', 0)`); err != nil {
		t.Fatalf("Failed to insert notification: %v", err)
	}
	if _, err := db.Exec("DELETE FROM documents WHERE id = 'd-1'"); err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&count); err != nil {
		t.Fatalf("Failed to count notifications: %v", err)
	}
	if count != 0 {
		t.Errorf("notifications after cascade = %d, want 0", count)
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	return db
}

func TestReadStatus(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	st, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Current != 0 || st.Latest != 1 {
		t.Errorf("ReadStatus() before migration = %+v, want current 0 latest 1", st)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	st, err = ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Current != st.Latest || st.Dirty {
		t.Errorf("ReadStatus() after migration = %+v", st)
	}
}
