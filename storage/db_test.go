package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("pool/b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("pool/a"), []byte("1"))
	batch.Put([]byte("pool/c"), []byte("3"))
	batch.Put([]byte("profile/x"), []byte("x"))
	batch.Delete([]byte("pool/b"))
	if batch.Len() != 4 {
		t.Fatalf("expected 4 batched ops, got %d", batch.Len())
	}
	if ok, _ := db.Has([]byte("pool/a")); ok {
		t.Fatalf("batch visible before write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	var keys []string
	if err := db.Iterate([]byte("pool/"), func(key, value []byte) bool {
		keys = append(keys, string(key)+"="+string(value))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "pool/a=1" || keys[1] != "pool/c=3" {
		t.Fatalf("unexpected iteration result %v", keys)
	}

	visited := 0
	_ = db.Iterate(nil, func(key, value []byte) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("iteration did not stop early, visited %d", visited)
	}

	if err := db.Delete([]byte("pool/a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := db.Has([]byte("pool/a")); err != nil || ok {
		t.Fatalf("expected key deleted, ok=%v err=%v", ok, err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)

	value := []byte("v")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'
	got, _ := db.Get([]byte("k"))
	if string(got) != "v" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}
