package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWithSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "porabnik.db")

	for i := 0; i < 2; i++ {
		db, err := OpenWithSchema(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n); err != nil {
			t.Fatalf("querying items: %v", err)
		}
		db.Close()
	}
}

func TestExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "porabnik.db")

	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("Exists before create = %v, %v", ok, err)
	}

	db, err := OpenWithSchema(path)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	if _, err := db.Exec("INSERT INTO offices (name) VALUES ('Main')"); err != nil {
		t.Fatalf("inserting: %v", err)
	}
	db.Close()

	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("Exists after create = %v, %v", ok, err)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, name := range append([]string{path}, prefixed(path)...) {
		if _, err := os.Stat(name); !os.IsNotExist(err) {
			t.Errorf("%s still exists", name)
		}
	}

	if err := Remove(path); err != nil {
		t.Errorf("removing a missing database: %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.Exec(`INSERT INTO users (username, password_hash, role, office_id)
		VALUES ('ghost', 'x', 'user', 999)`)
	if err == nil {
		t.Fatal("expected foreign key violation for a missing office")
	}
}

func TestFoldFunction(t *testing.T) {
	db := NewTestDB(t)

	tests := []string{"Črpalka", "ŠOBA-3", "Žarnica LED", "plain"}
	for _, in := range tests {
		var got string
		if err := db.QueryRow("SELECT fold(?)", in).Scan(&got); err != nil {
			t.Fatalf("fold(%q): %v", in, err)
		}
		if got != Fold(in) {
			t.Errorf("fold(%q) = %q, want %q", in, got, Fold(in))
		}
	}

	var null *string
	if err := db.QueryRow("SELECT fold(NULL)").Scan(&null); err != nil {
		t.Fatalf("fold(NULL): %v", err)
	}
	if null != nil {
		t.Errorf("fold(NULL) = %q, want NULL", *null)
	}
}
