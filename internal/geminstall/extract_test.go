package geminstall

import (
	"path/filepath"
	"testing"
)

func TestSafeJoinRejectsTraversal(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "gems", "widget-1.0.0")
	if _, err := safeJoin(dest, "../../etc/passwd"); err == nil {
		t.Fatal("expected traversal rejection")
	}
}

func TestSafeJoinAllowsNestedPaths(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "gems", "widget-1.0.0")
	got, err := safeJoin(dest, "lib/widget/version.rb")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	want := filepath.Join(dest, "lib", "widget", "version.rb")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSafeJoinAllowsDestinationRoot(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "gems", "widget-1.0.0")
	got, err := safeJoin(dest, ".")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	if got != filepath.Clean(dest) {
		t.Errorf("got %q, want %q", got, dest)
	}
}
