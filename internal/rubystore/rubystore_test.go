package rubystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contriboss/rv/internal/cachestore"
)

func TestEnumerateAcceptsEngineVersionDirWithBinExecutable(t *testing.T) {
	root := t.TempDir()
	rubyDir := filepath.Join(root, "cruby-3.4.7")
	binDir := filepath.Join(rubyDir, "bin")
	os.MkdirAll(binDir, 0o755)
	os.WriteFile(filepath.Join(binDir, "cruby"), []byte("#!/bin/sh\n"), 0o755)

	cache, _ := cachestore.New(t.TempDir())
	store := &Store{Roots: []string{root}, Cache: cache}

	installs, err := store.Enumerate()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, inst := range installs {
		if inst.Key.Engine == "cruby" && inst.Key.Version.String() == "3.4.7" {
			found = true
			if inst.Source != ManagedByRV {
				t.Errorf("expected first root to be ManagedByRV, got %v", inst.Source)
			}
		}
	}
	if !found {
		t.Error("expected to enumerate cruby-3.4.7")
	}
}

func TestEnumerateRejectsDirWithoutBinExecutable(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "cruby-3.4.7"), 0o755)

	cache, _ := cachestore.New(t.TempDir())
	store := &Store{Roots: []string{root}, Cache: cache}

	installs, _ := store.Enumerate()
	for _, inst := range installs {
		if inst.Key.Engine == "cruby" {
			t.Error("should not enumerate a candidate missing bin/<engine>")
		}
	}
}

func TestEnumerateSkipsUnreadableRoots(t *testing.T) {
	cache, _ := cachestore.New(t.TempDir())
	store := &Store{Roots: []string{filepath.Join(t.TempDir(), "does-not-exist")}, Cache: cache}
	installs, err := store.Enumerate()
	if err != nil {
		t.Fatalf("missing roots must not be a hard error: %v", err)
	}
	_ = installs
}

func TestUninstallSucceedsWhenAlreadyAbsent(t *testing.T) {
	store := &Store{}
	err := store.Uninstall(Installation{Root: filepath.Join(t.TempDir(), "nope")})
	if err != nil {
		t.Errorf("uninstall of an absent target must succeed, got %v", err)
	}
}

func TestSourcePriorityOrdering(t *testing.T) {
	if ManagedByRV.priority() <= KnownDir.priority() {
		t.Error("managed_by_rv must outrank known_dir")
	}
	if KnownDir.priority() <= Homebrew.priority() {
		t.Error("known_dir must outrank homebrew")
	}
	if Homebrew.priority() <= SystemPath.priority() {
		t.Error("homebrew must outrank system_path")
	}
}
