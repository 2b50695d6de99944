package commands

import (
	"os"
	"path/filepath"
	"testing"
)

// TestRunRubyPinIsIdempotent exercises the testable property from §8:
// pinning the same version twice leaves .ruby-version untouched on the
// second call.
func TestRunRubyPinIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := RunRubyPin([]string{"3.3.0"}); err != nil {
		t.Fatalf("first pin: %v", err)
	}
	path := filepath.Join(dir, ".ruby-version")
	first, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after first pin: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "3.3.0\n" {
		t.Fatalf("unexpected content %q", content)
	}

	if err := RunRubyPin([]string{"3.3.0"}); err != nil {
		t.Fatalf("second pin: %v", err)
	}
	second, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after second pin: %v", err)
	}
	if !first.ModTime().Equal(second.ModTime()) {
		t.Fatalf("second pin rewrote an unchanged .ruby-version")
	}

	if err := RunRubyPin([]string{"3.4.1"}); err != nil {
		t.Fatalf("repin to new version: %v", err)
	}
	content, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "3.4.1\n" {
		t.Fatalf("expected repin to update content, got %q", content)
	}
}

func TestRunRubyPinRequiresVersionArg(t *testing.T) {
	if err := RunRubyPin(nil); err == nil {
		t.Fatal("expected an error when no version is given")
	}
}
