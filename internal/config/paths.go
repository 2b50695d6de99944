// Package config holds the ambient configuration value threaded
// explicitly into every command entry point: cache location, the
// ordered list of Ruby install roots, cache bypass, and output format.
// Never held as a package-level global (per spec.md §9's prohibition on
// global-ish state) — callers build one Config at startup and pass it
// down.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the resolved, already-merged configuration for one rv
// invocation: environment, `.bundle/config`, and CLI flags collapsed
// into a single value.
type Config struct {
	CacheDir string
	RubyDirs []string
	NoCache  bool
	Format   string // "text" (default) or "json"
}

// Load builds a Config from the environment and `.bundle/config`,
// before CLI flags are applied on top by the caller.
func Load() (Config, error) {
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		CacheDir: cacheDir,
		Format:   "text",
	}
	if bundlePath := ReadBundleConfigPath(); bundlePath != "" {
		cfg.RubyDirs = append(cfg.RubyDirs, bundlePath)
	}
	return cfg, nil
}

// defaultCacheDir resolves the cache root: RV_CACHE_DIR env var, else
// $XDG_CACHE_HOME/rv, else ~/.cache/rv.
func defaultCacheDir() (string, error) {
	if dir := os.Getenv("RV_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "rv"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: determine user home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "rv"), nil
}

// ReadBundleConfigPath reads BUNDLE_PATH from .bundle/config, for
// honoring an existing Bundler-managed vendor directory.
func ReadBundleConfigPath() string {
	data, err := os.ReadFile(".bundle/config")
	if err != nil {
		return ""
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ""
	}

	if path, ok := raw["BUNDLE_PATH"].(string); ok {
		return path
	}
	return ""
}

// WriteBundleConfig writes a .bundle/config pinning BUNDLE_PATH, so
// Bundler and rv agree on where vendored gems live.
func WriteBundleConfig(bundlePath string) error {
	if err := os.MkdirAll(".bundle", 0o755); err != nil {
		return fmt.Errorf("config: create .bundle directory: %w", err)
	}

	raw := map[string]string{"BUNDLE_PATH": bundlePath}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config: marshal .bundle/config: %w", err)
	}
	if err := os.WriteFile(".bundle/config", data, 0o644); err != nil {
		return fmt.Errorf("config: write .bundle/config: %w", err)
	}
	return nil
}

// ToolVersions is one mise.toml-style `[tools]` table: engine name to
// pinned version string (e.g. {"ruby": "3.4.7"}).
type ToolVersions map[string]string

// ReadMiseToml parses a mise.toml's `[tools]` table. Returns a nil map,
// no error, if the file does not exist.
func ReadMiseToml(path string) (ToolVersions, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc struct {
		Tools map[string]interface{} `toml:"tools"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	out := make(ToolVersions, len(doc.Tools))
	for engine, v := range doc.Tools {
		switch val := v.(type) {
		case string:
			out[engine] = val
		case []interface{}:
			if len(val) > 0 {
				if s, ok := val[0].(string); ok {
					out[engine] = s
				}
			}
		}
	}
	return out, nil
}

// ToMajorMinor converts "3.4.7" to "3.4.0" (Bundler's BUNDLE_PATH
// convention of segregating vendored gems by ruby's major.minor).
func ToMajorMinor(version string) string {
	var parts []string
	current := ""
	for i := 0; i < len(version); i++ {
		if version[i] == '.' {
			parts = append(parts, current)
			current = ""
		} else {
			current += string(version[i])
		}
	}
	if current != "" {
		parts = append(parts, current)
	}

	switch {
	case len(parts) >= 2:
		return parts[0] + "." + parts[1] + ".0"
	case len(parts) == 1:
		return parts[0] + ".0.0"
	default:
		return version
	}
}
