package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return store
}

func TestWriteAndOpen(t *testing.T) {
	store := newTestStore(t)
	key, err := store.Write(context.Background(), "uploads/job-1/source.jpg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "uploads/job-1/source.jpg" {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected contents %q", data)
	}

	size, err := store.Size(key)
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if size != int64(len("jpeg-bytes")) {
		t.Fatalf("Size = %d, want %d", size, len("jpeg-bytes"))
	}
}

func TestWriteFromStreams(t *testing.T) {
	store := newTestStore(t)
	key, err := store.WriteFrom(context.Background(), "videos/job-2/out.mp4", strings.NewReader("mp4-bytes"))
	if err != nil {
		t.Fatalf("WriteFrom error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "videos/job-2/out.mp4")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if key != "videos/job-2/out.mp4" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	key, err := store.Write(context.Background(), "uploads/gone.jpg", []byte("x"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("second Remove error: %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Write(context.Background(), "../escape.txt", []byte("x")); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if url := store.PublicURL("../escape.txt"); url != "" {
		t.Fatalf("PublicURL on invalid key = %q, want empty", url)
	}
}

func TestPublicURL(t *testing.T) {
	store := newTestStore(t)
	url := store.PublicURL("/uploads/job-1/source.jpg")
	want := "http://localhost:8080/static/uploads/job-1/source.jpg"
	if url != want {
		t.Fatalf("PublicURL = %q, want %q", url, want)
	}
}
