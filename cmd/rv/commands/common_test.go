package commands

import (
	"flag"
	"testing"
)

func TestAddGlobalFlagsParsesShortAndLongForms(t *testing.T) {
	var g Globals
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)

	if err := fs.Parse([]string{"-q", "--format", "json", "--cache-dir", "/tmp/cache"}); err != nil {
		t.Fatal(err)
	}
	if !g.Quiet {
		t.Error("expected -q to set Quiet")
	}
	if g.Format != "json" {
		t.Errorf("expected format json, got %q", g.Format)
	}
	if g.CacheDir != "/tmp/cache" {
		t.Errorf("expected cache dir override, got %q", g.CacheDir)
	}
}

func TestLoadConfigAppliesCLIOverrides(t *testing.T) {
	g := Globals{CacheDir: "/tmp/rv-test-cache", RubyDir: "/opt/rubies", NoCache: true, Format: "json"}
	cfg, err := LoadConfig(g)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheDir != "/tmp/rv-test-cache" {
		t.Errorf("expected CLI cache dir override, got %q", cfg.CacheDir)
	}
	if !cfg.NoCache {
		t.Error("expected NoCache to propagate from Globals")
	}
	if cfg.Format != "json" {
		t.Errorf("expected format override, got %q", cfg.Format)
	}
	found := false
	for _, dir := range cfg.RubyDirs {
		if dir == "/opt/rubies" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected /opt/rubies appended to RubyDirs, got %v", cfg.RubyDirs)
	}
}
