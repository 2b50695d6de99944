// Package activeruby implements the §4.F Active-Ruby resolver: choosing
// the Ruby a command should run against, given a deterministic
// precedence chain over CLI override, environment, project files, and
// global configuration.
package activeruby

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/contriboss/rv/internal/platform"
	"github.com/contriboss/rv/internal/rversion"
	"github.com/contriboss/rv/internal/rubystore"
)

// Request is an abstract request for a Ruby: an engine, a version
// predicate (exact version or family prefix like "3.4"), and an
// optional platform override.
type Request struct {
	Engine            string // defaults to "cruby"
	VersionPredicate  string // "3.4.7" or family "3.4" or "latest"
	Platform          *platform.Triple
	AllowPrerelease   bool
}

func (r Request) engine() string {
	if r.Engine == "" {
		return "cruby"
	}
	return r.Engine
}

// NotFoundError is returned when no installed Ruby satisfies a Request
// and the caller is a read-only command (install is triggered instead
// for commands that permit it).
type NotFoundError struct {
	Request Request
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("activeruby: no installed Ruby satisfies %s %s", e.Request.engine(), e.Request.VersionPredicate)
}

// isFamilyMatch reports whether v belongs to the version family named
// by predicate ("3.4" covers "3.4.7"): v's first len(predicate-as-version)
// segments equal the predicate's numeric segments. A v equal to the
// predicate in full also matches.
func isFamilyMatch(predicate string, v rversion.Version) bool {
	predV, err := rversion.Parse(predicate)
	if err != nil {
		return false
	}
	predSegs := predV.Segments()
	vSegs := v.Segments()
	if len(vSegs) < len(predSegs) {
		return false
	}
	for i, s := range predSegs {
		if !s.Numeric || !vSegs[i].Numeric || s.Num != vSegs[i].Num {
			return false
		}
	}
	return true
}

// Matches reports whether an installation satisfies this request: a
// non-prerelease version predicate never matches an installed
// prerelease unless that exact prerelease string was requested.
func (r Request) Matches(inst rubystore.Installation) bool {
	if inst.Key.Engine != r.engine() {
		return false
	}
	if r.Platform != nil && !r.Platform.Matches(inst.Key.Platform) {
		return false
	}

	if r.VersionPredicate == "" || r.VersionPredicate == "latest" {
		return !inst.Key.Version.Prerelease() || r.AllowPrerelease
	}

	predV, err := rversion.Parse(r.VersionPredicate)
	if err == nil && predV.Equal(inst.Key.Version) {
		// Exact match: an exact prerelease request is honored even
		// though it's a prerelease.
		return true
	}

	if inst.Key.Version.Prerelease() && !r.AllowPrerelease {
		return false
	}

	return isFamilyMatch(r.VersionPredicate, inst.Key.Version)
}

// Resolve selects the best installation satisfying req from the
// candidate set, breaking ties by version (highest wins) then by
// source priority.
func Resolve(req Request, candidates []rubystore.Installation) (rubystore.Installation, bool) {
	var best rubystore.Installation
	found := false

	for _, c := range candidates {
		if !req.Matches(c) {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		if cmp := c.Key.Version.Compare(best.Key.Version); cmp > 0 {
			best = c
		} else if cmp == 0 && sourcePriority(c.Source) > sourcePriority(best.Source) {
			best = c
		}
	}
	return best, found
}

func sourcePriority(s rubystore.Source) int {
	switch s {
	case rubystore.ManagedByRV:
		return 3
	case rubystore.KnownDir:
		return 2
	case rubystore.Homebrew:
		return 1
	default:
		return 0
	}
}

// Config is the subset of global configuration the precedence chain
// reads (default_ruby), kept distinct from internal/config.Config so
// this package stays independently testable.
type Config struct {
	DefaultRuby string
}

// FromPrecedence implements the full §4.F precedence chain:
//  1. cliOverride (--ruby flag)
//  2. RUBY_VERSION env var
//  3. .ruby-version searched upward from startDir
//  4. .tool-versions searched upward from startDir (ruby line only)
//  5. cfg.DefaultRuby
//  6. "" (caller falls back to "latest installed final")
func FromPrecedence(cliOverride string, startDir string, cfg Config) string {
	if cliOverride != "" {
		return cliOverride
	}
	if v := os.Getenv("RUBY_VERSION"); v != "" {
		return v
	}
	if v := findUpward(startDir, ".ruby-version", parseRubyVersionFile); v != "" {
		return v
	}
	if v := findUpward(startDir, ".tool-versions", parseToolVersionsFile); v != "" {
		return v
	}
	if cfg.DefaultRuby != "" {
		return cfg.DefaultRuby
	}
	return ""
}

func findUpward(startDir, filename string, parse func(string) string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, filename)
		if _, statErr := os.Stat(candidate); statErr == nil {
			if v := parse(candidate); v != "" {
				return v
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// parseRubyVersionFile reads a .ruby-version file: one line,
// "[engine-]version", accepted after trimming whitespace and a BOM.
func parseRubyVersionFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	data = []byte(strings.TrimPrefix(string(data), string([]byte{0xEF, 0xBB, 0xBF})))
	text := string(data)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func parseToolVersionsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "ruby" {
			return fields[1]
		}
	}
	return ""
}
