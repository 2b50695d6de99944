package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestToMajorMinor(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"3.4.7", "3.4.0"},
		{"3.1", "3.1.0"},
		{"3", "3.0.0"},
		{"2.7.6", "2.7.0"},
		{"3.3.0", "3.3.0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToMajorMinor(tt.input)
			if result != tt.expected {
				t.Errorf("ToMajorMinor(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoadHonorsCacheDirEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RV_CACHE_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheDir != dir {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, dir)
	}
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want default %q", cfg.Format, "text")
	}
}

func TestReadMiseTomlParsesToolsTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mise.toml")
	if err := os.WriteFile(path, []byte("[tools]\nruby = \"3.4.7\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tv, err := ReadMiseToml(path)
	if err != nil {
		t.Fatalf("ReadMiseToml: %v", err)
	}
	if tv["ruby"] != "3.4.7" {
		t.Errorf("tools[ruby] = %q, want 3.4.7", tv["ruby"])
	}
}

func TestReadMiseTomlMissingFileReturnsNil(t *testing.T) {
	tv, err := ReadMiseToml(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("ReadMiseToml: %v", err)
	}
	if tv != nil {
		t.Errorf("expected nil for missing file, got %v", tv)
	}
}

func TestWriteThenReadBundleConfigPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := WriteBundleConfig("vendor/bundle"); err != nil {
		t.Fatalf("WriteBundleConfig: %v", err)
	}
	if got := ReadBundleConfigPath(); got != "vendor/bundle" {
		t.Errorf("ReadBundleConfigPath() = %q, want vendor/bundle", got)
	}
}
