package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	key := []byte("engagement:1")
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := db.Has(key); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := db.Put(key, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(value, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected value %x", value)
	}
	if ok, err := db.Has(key); err != nil || !ok {
		t.Fatalf("expected key present, got ok=%v err=%v", ok, err)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := db.Put([]byte("stale"), []byte{0x09}); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte{0x0A})
	batch.Put([]byte("b"), []byte{0x0B})
	batch.Delete([]byte("stale"))
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatalf("batch visible before write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if ok, err := db.Has([]byte(k)); err != nil || !ok {
			t.Fatalf("expected %s after batch, got ok=%v err=%v", k, ok, err)
		}
	}
	if ok, _ := db.Has([]byte("stale")); ok {
		t.Fatalf("expected stale key deleted by batch")
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte{0xAA}
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 0xBB
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored[0] != 0xAA {
		t.Fatalf("stored value aliased caller slice")
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
