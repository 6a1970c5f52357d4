package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	key := "runs/2026/08/run_1.json.gz"
	if err := store.Put(ctx, key, strings.NewReader("archived run")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Failed to read blob: %v", err)
	}
	if string(data) != "archived run" {
		t.Errorf("Content mismatch: got %q", string(data))
	}
}

func TestLocalStorePutReplaces(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if err := store.Put(ctx, "doc", strings.NewReader("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "doc", strings.NewReader("second")); err != nil {
		t.Fatalf("Second put failed: %v", err)
	}

	reader, err := store.Get(ctx, "doc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "second" {
		t.Errorf("Expected replaced content, got %q", string(data))
	}
}

func TestLocalStoreList(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	for _, key := range []string{"runs/2026/08/a.gz", "runs/2026/08/b.gz", "runs/2026/07/c.gz"} {
		if err := store.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := store.List(ctx, "runs/2026/08")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys under runs/2026/08, got %v", keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "runs/2026/08/") {
			t.Errorf("Key %q outside the requested prefix", k)
		}
	}

	all, err := store.List(ctx, "runs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 keys under runs, got %v", all)
	}

	empty, err := store.List(ctx, "nothing/here")
	if err != nil {
		t.Fatalf("List of absent prefix failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no keys, got %v", empty)
	}

	// Temp files from Put must never leak into listings.
	entries, err := os.ReadDir(filepath.Join(root, "runs", "2026", "08"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 files on disk, got %d", len(entries))
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	if err := store.Put(ctx, "a", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "b", strings.NewReader("y")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "a"); err == nil {
		t.Error("Get must fail after delete")
	}
	if _, err := store.Get(ctx, "b"); err != nil {
		t.Errorf("Unrelated blob lost: %v", err)
	}

	if err := store.Delete(ctx, "a"); err == nil {
		t.Error("Deleting an absent blob must fail")
	}
}
