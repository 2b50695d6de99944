package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPutThenGetAtomic(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	key := HashKey("https://rubygems.org/gems/rake-13.0.6.gem")
	path, err := store.Put("gem-v0", "", key, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}

	data, ok := store.Get("gem-v0", "", key)
	if !ok {
		t.Fatal("expected a cache hit after Put")
	}
	if string(data) != "hello world" {
		t.Errorf("got %q", data)
	}
}

func TestNoCacheForcesMiss(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	key := HashKey("x")
	if _, err := store.Put("ruby-v0", "", key, []byte("data")); err != nil {
		t.Fatal(err)
	}

	store.NoCache = true
	if _, ok := store.Get("ruby-v0", "", key); ok {
		t.Error("expected --no-cache to force a miss even though the entry exists")
	}
}

func TestNoTempFilesLeftBehindOnSuccess(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	key := HashKey("y")
	if _, err := store.Put("ruby-v0", "", key, []byte("data")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "ruby-v0"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file (no leftover temp files), got %d", len(entries))
	}
}

func TestInvalidateThenMiss(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	key := HashKey("z")
	store.Put("gem-v0", "", key, []byte("data"))

	if err := store.Invalidate("gem-v0", "", key); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("gem-v0", "", key); ok {
		t.Error("expected a miss after invalidation")
	}
}

func TestPruneRemovesOldEntriesOnly(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	oldKey := HashKey("old")
	newKey := HashKey("new")
	oldPath, _ := store.Put("gem-v0", "", oldKey, []byte("old"))
	store.Put("gem-v0", "", newKey, []byte("new"))

	oldTime := time.Now().Add(-48 * time.Hour)
	os.Chtimes(oldPath, oldTime, oldTime)

	removed, err := Prune(dir, []string{"gem-v0"}, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := store.Get("gem-v0", "", newKey); !ok {
		t.Error("new entry should survive prune")
	}
}

func TestHashKeyIsStableSixteenHex(t *testing.T) {
	k1 := HashKey("same-input")
	k2 := HashKey("same-input")
	if k1 != k2 {
		t.Error("HashKey must be deterministic")
	}
	if len(k1) != 16 {
		t.Errorf("expected 16 hex chars, got %d (%s)", len(k1), k1)
	}
}
