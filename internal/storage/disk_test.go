package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	payload := []byte("%PDF-1.7 raw bytes")
	if err := store.SaveRaw("owner-1", "doc-1", payload); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}

	got, err := store.FetchRaw("owner-1", "doc-1")
	if err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}

	if err := store.DeleteRaw("owner-1", "doc-1"); err != nil {
		t.Fatalf("DeleteRaw: %v", err)
	}
	if _, err := store.FetchRaw("owner-1", "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDiskStoreMissingObject(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if _, err := store.FetchRaw("owner-1", "never-saved"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Deleting a missing object is not an error.
	if err := store.DeleteRaw("owner-1", "never-saved"); err != nil {
		t.Fatalf("DeleteRaw: %v", err)
	}
}

func TestDiskStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	for _, bad := range []string{"../escape", "a/b", `a\b`, "..", ""} {
		if err := store.SaveRaw(bad, "doc", []byte("x")); err == nil {
			t.Errorf("SaveRaw accepted owner id %q", bad)
		}
		if err := store.SaveRaw("owner", bad, []byte("x")); err == nil {
			t.Errorf("SaveRaw accepted document id %q", bad)
		}
	}
}
