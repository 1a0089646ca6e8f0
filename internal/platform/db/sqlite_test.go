package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestOpenSQLite_Missing(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	if err == nil {
		t.Fatal("expected error for missing database file")
	}
}

func TestOpenSQLite_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.db")
	rw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := rw.Exec(`CREATE TABLE patient (patient_id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	rw.Close()

	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO patient VALUES (1)`); err == nil {
		t.Error("expected write to a read-only database to fail")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		t.Fatalf("select: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows, got %d", n)
	}
}
