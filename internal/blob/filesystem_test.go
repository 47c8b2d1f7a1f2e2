package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestObjectKeyConvention(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	key := ObjectKey("user-42", ts, 3)
	if key != "user-42/1700000000123-3.png" {
		t.Fatalf("unexpected key: %s", key)
	}
	if got := ObjectKey("u", ts, -1); !strings.HasSuffix(got, "-0.png") {
		t.Fatalf("negative index should clamp to 0, got %s", got)
	}
}

func TestFileStorePutWritesAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	url, err := store.Put(context.Background(), "user-1/123-0.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if url != "http://localhost:8080/static/user-1/123-0.png" {
		t.Fatalf("unexpected url: %s", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "user-1", "123-0.png"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.png", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if _, err := store.Put(context.Background(), "   ", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}

func TestFileStoreRequiresBasePath(t *testing.T) {
	if _, err := NewFileStore("", "http://localhost"); err == nil {
		t.Fatal("expected error for empty base path")
	}
}
