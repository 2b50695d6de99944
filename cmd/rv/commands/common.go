// Package commands implements the rv CLI's command handlers: each
// RunXxx function parses its own flag.FlagSet (including the shared
// global flags) and performs one §6 external-interface operation.
package commands

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contriboss/rv/internal/activeruby"
	"github.com/contriboss/rv/internal/cachestore"
	"github.com/contriboss/rv/internal/config"
	"github.com/contriboss/rv/internal/fetch"
	"github.com/contriboss/rv/internal/logger"
	"github.com/contriboss/rv/internal/rubystore"
)

// Globals holds the shared flags every subcommand accepts (§6 "Global
// flags"), parsed alongside each subcommand's own flag set.
type Globals struct {
	NoCache  bool
	CacheDir string
	RubyDir  string
	Quiet    bool
	Verbose  bool
	Format   string
}

// AddGlobalFlags registers the shared global flags on fs, the way each
// of the teacher's subcommands independently declares "-v"/"--gemfile"
// on its own flag.FlagSet rather than through a shared parent parser.
func AddGlobalFlags(fs *flag.FlagSet, g *Globals) {
	fs.BoolVar(&g.NoCache, "no-cache", false, "Bypass the cache for this invocation")
	fs.StringVar(&g.CacheDir, "cache-dir", "", "Override the cache root directory")
	fs.StringVar(&g.RubyDir, "ruby-dir", "", "Additional Ruby install root")
	fs.BoolVar(&g.Quiet, "q", false, "Suppress non-error output")
	fs.BoolVar(&g.Quiet, "quiet", false, "Suppress non-error output")
	fs.BoolVar(&g.Verbose, "v", false, "Verbose logging")
	fs.BoolVar(&g.Verbose, "verbose", false, "Verbose logging")
	fs.StringVar(&g.Format, "format", "text", "Output format: text or json")
}

// LoadConfig merges environment/.bundle/config with g's CLI overrides.
func LoadConfig(g Globals) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if g.CacheDir != "" {
		cfg.CacheDir = g.CacheDir
	}
	if g.RubyDir != "" {
		cfg.RubyDirs = append(cfg.RubyDirs, g.RubyDir)
	}
	cfg.NoCache = g.NoCache
	if g.Format != "" {
		cfg.Format = g.Format
	}
	logger.Setup(g.Verbose, cfg.Format)
	return cfg, nil
}

// NewCacheStore builds the content-addressed cache rooted at cfg's
// CacheDir, honoring --no-cache.
func NewCacheStore(cfg config.Config) (*cachestore.Store, error) {
	store, err := cachestore.New(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}
	store.NoCache = cfg.NoCache
	return store, nil
}

// NewRubyStore builds a rubystore.Store over cfg's configured roots.
func NewRubyStore(cfg config.Config, cache *cachestore.Store) *rubystore.Store {
	return rubystore.New(cache, cfg.RubyDirs...)
}

// ResolveActiveRuby runs §4.F's precedence chain from the current
// directory, given an optional CLI override (the version argument most
// `ruby` subcommands accept). It passes an empty activeruby.Config, so
// no global default_ruby setting takes part in the chain.
func ResolveActiveRuby(cliOverride string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return activeruby.FromPrecedence(cliOverride, wd, activeruby.Config{}), nil
}

// FindProjectRoot walks upward from the working directory looking for
// a Gemfile.lock, the way `ruby pin` locates where to write
// .ruby-version (§6 "nearest project root").
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Gemfile.lock")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// NewHTTPClient builds the fetcher used by rubystore/geminstall.
func NewHTTPClient() *fetch.Client {
	return fetch.New()
}
