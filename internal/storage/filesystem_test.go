package storage

import (
	"context"
	"testing"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key, err := store.Write(context.Background(), "compositions/job-1/result.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "compositions/job-1/result.png" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, key := range []string{"", "../escape.png", "a/../../escape.png", "."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("key %q accepted, want rejection", key)
		}
	}
}

func TestFileStoreNormalizesLeadingSlash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key, err := store.Write(context.Background(), "/compositions/a.png", []byte("x"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "compositions/a.png" {
		t.Fatalf("key = %q", key)
	}
}
