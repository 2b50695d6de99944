// Package rubystore implements the §4.E Ruby installation store:
// enumerate, install, validate, and uninstall Ruby distributions across
// a configured list of root directories.
package rubystore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/contriboss/rv/internal/cachestore"
	"github.com/contriboss/rv/internal/fetch"
	"github.com/contriboss/rv/internal/platform"
	"github.com/contriboss/rv/internal/rversion"
)

// Source records where an installation was discovered.
type Source int

const (
	ManagedByRV Source = iota
	KnownDir
	Homebrew
	SystemPath
)

// priority: higher wins when breaking ties (spec §4.F: managed_by_rv >
// known_dir > homebrew > system_path).
func (s Source) priority() int {
	switch s {
	case ManagedByRV:
		return 3
	case KnownDir:
		return 2
	case Homebrew:
		return 1
	default:
		return 0
	}
}

func (s Source) String() string {
	switch s {
	case ManagedByRV:
		return "managed_by_rv"
	case KnownDir:
		return "known_dir"
	case Homebrew:
		return "homebrew"
	default:
		return "system_path"
	}
}

// Key is the (engine, version, platform) triple identifying an install.
type Key struct {
	Engine   string
	Version  rversion.Version
	Platform platform.Triple
}

// Installation is a discovered or newly created Ruby distribution.
type Installation struct {
	Key    Key
	Root   string
	BinDir string
	Source Source
}

// Store enumerates, installs, validates, and uninstalls Rubies across
// an ordered list of root directories. The first root is the default
// install target (e.g. $XDG_DATA_HOME/rv/rubies).
type Store struct {
	Roots []string
	Cache *cachestore.Store
	HTTP  *fetch.Client
}

// New builds a Store with the default root list, an ORE-style
// env-override first, then conventional version-manager locations.
func New(cache *cachestore.Store, extraRoots ...string) *Store {
	roots := []string{defaultManagedRoot()}
	roots = append(roots, extraRoots...)
	roots = append(roots,
		filepath.Join(homeDir(), ".rubies"),
		"/opt/rubies",
	)
	roots = append(roots, homebrewGlobRoots()...)
	return &Store{Roots: roots, Cache: cache, HTTP: fetch.New()}
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}

func defaultManagedRoot() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "rv", "rubies")
	}
	return filepath.Join(homeDir(), ".local", "share", "rv", "rubies")
}

func homebrewGlobRoots() []string {
	var roots []string
	for _, pattern := range []string{
		"/opt/homebrew/opt/ruby*",
		"/usr/local/Cellar/ruby*",
	} {
		matches, err := filepath.Glob(pattern)
		if err == nil {
			roots = append(roots, matches...)
		}
	}
	return roots
}

func sourceForRoot(root string, index int) Source {
	switch {
	case index == 0:
		return ManagedByRV
	case strings.Contains(root, "homebrew") || strings.Contains(root, "Cellar"):
		return Homebrew
	default:
		return KnownDir
	}
}

// parseCandidateName matches "<engine>-<version>", e.g. "cruby-3.4.7".
func parseCandidateName(name string) (engine, version string, ok bool) {
	idx := strings.Index(name, "-")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// Enumerate walks each root one directory level deep; a subdirectory
// is accepted iff it parses as <engine>-<version> and contains a
// bin/<engine> executable.
func (s *Store) Enumerate() ([]Installation, error) {
	var out []Installation

	for i, root := range s.Roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue // absent/unreadable roots are silently skipped
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			engine, versionStr, ok := parseCandidateName(entry.Name())
			if !ok {
				continue
			}

			candidateRoot := filepath.Join(root, entry.Name())
			binDir := filepath.Join(candidateRoot, "bin")
			execPath := filepath.Join(binDir, engine)
			if _, err := os.Stat(execPath); err != nil {
				continue
			}

			v, err := rversion.Parse(versionStr)
			if err != nil {
				continue
			}

			out = append(out, Installation{
				Key: Key{
					Engine:   engine,
					Version:  v,
					Platform: platform.Host(hostGOOS(), hostGOARCH(), ""),
				},
				Root:   candidateRoot,
				BinDir: binDir,
				Source: sourceForRoot(root, i),
			})
		}
	}

	// also scan PATH for a loose "ruby" executable as system_path
	if p, err := exec.LookPath("ruby"); err == nil {
		out = append(out, Installation{
			Key:    Key{Engine: "cruby", Version: rversion.MustParse("0")},
			Root:   filepath.Dir(filepath.Dir(p)),
			BinDir: filepath.Dir(p),
			Source: SystemPath,
		})
	}

	return out, nil
}

// Validate executes bin/<engine> with a version probe and asserts that
// the output names the requested version.
func (s *Store) Validate(inst Installation) error {
	probe := exec.Command(filepath.Join(inst.BinDir, inst.Key.Engine), "-e", "puts RUBY_DESCRIPTION")
	out, err := probe.Output()
	if err != nil {
		return &ValidationError{Request: inst.Key.Version.String(), Err: err}
	}
	if !strings.Contains(string(out), inst.Key.Version.String()) {
		return &ValidationError{Request: inst.Key.Version.String(), ProbeOutput: string(out)}
	}
	return nil
}

// ValidationError is returned when a just-installed Ruby's probe output
// doesn't name the requested version.
type ValidationError struct {
	Request     string
	ProbeOutput string
	Err         error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rubystore: validation probe failed for %s: %v", e.Request, e.Err)
	}
	return fmt.Sprintf("rubystore: validation failed for %s: probe said %q", e.Request, e.ProbeOutput)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Uninstall deletes the installation directory tree. Succeeds if the
// target was already absent.
func (s *Store) Uninstall(inst Installation) error {
	if err := os.RemoveAll(inst.Root); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rubystore: uninstall %s: %w", inst.Root, err)
	}
	return nil
}

// ReleaseIndexURL is the well-known upstream release-index endpoint.
// Install does not read it.
var ReleaseIndexURL = "https://api.github.com/repos/rv-lang/ruby-builds/releases/latest"

// TarballNamer composes the platform-specific tarball filename for a
// resolved (engine, version, platform) — exposed as a variable so tests
// can stub the release-channel-specific naming convention.
var TarballNamer = func(engine, version string, t platform.Triple) string {
	return fmt.Sprintf("%s-%s.%s.tar.gz", engine, version, t.String())
}

// Install fetches the tarball for engine and version through the cache,
// extracts it atomically into the first configured root (Roots[0]),
// and validates it. version is used as given: a family ("3.4") or
// "latest" is not resolved to a concrete release. An existing install
// is an error unless force is set, in which case it is replaced.
func (s *Store) Install(ctx context.Context, engine, version string, force bool) (Installation, error) {
	if len(s.Roots) == 0 {
		return Installation{}, fmt.Errorf("rubystore: no install roots configured")
	}
	installRoot := s.Roots[0]
	if err := os.MkdirAll(installRoot, 0o755); err != nil {
		return Installation{}, fmt.Errorf("rubystore: prepare install root: %w", err)
	}

	host := platform.Host(hostGOOS(), hostGOARCH(), "")
	tarballName := TarballNamer(engine, version, host)
	canonicalURL := fmt.Sprintf("%s/%s", releaseBaseURL(), tarballName)
	hashKey := cachestore.HashKey(canonicalURL)

	final := filepath.Join(installRoot, fmt.Sprintf("%s-%s", engine, version))
	if _, err := os.Stat(final); err == nil && !force {
		return Installation{}, fmt.Errorf("rubystore: %s already installed (use --force)", final)
	}

	tarPath, cached := s.Cache.Open("ruby-v0", "", hashKey)
	if !cached {
		dest := s.Cache.Path("ruby-v0", "", hashKey)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return Installation{}, err
		}
		if _, err := s.HTTP.Get(ctx, canonicalURL, nil, dest); err != nil {
			return Installation{}, fmt.Errorf("rubystore: fetch %s: %w", canonicalURL, err)
		}
		f, err := os.Open(dest)
		if err != nil {
			return Installation{}, err
		}
		tarPath = f
	}
	defer tarPath.Close()

	tmpDir, err := os.MkdirTemp(installRoot, ".rv-install-*")
	if err != nil {
		return Installation{}, fmt.Errorf("rubystore: create temp extraction dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractTarGz(tarPath, tmpDir); err != nil {
		_ = s.Cache.Invalidate("ruby-v0", "", hashKey)
		return Installation{}, fmt.Errorf("rubystore: extract %s: %w", tarballName, err)
	}

	if force {
		if err := os.RemoveAll(final); err != nil {
			return Installation{}, fmt.Errorf("rubystore: remove previous install: %w", err)
		}
	}
	if err := os.Rename(tmpDir, final); err != nil {
		return Installation{}, fmt.Errorf("rubystore: finalize install: %w", err)
	}

	v, err := rversion.Parse(version)
	if err != nil {
		return Installation{}, err
	}
	inst := Installation{
		Key:    Key{Engine: engine, Version: v, Platform: host},
		Root:   final,
		BinDir: filepath.Join(final, "bin"),
		Source: ManagedByRV,
	}

	if err := s.Validate(inst); err != nil {
		_ = s.Uninstall(inst)
		return Installation{}, err
	}
	return inst, nil
}

func releaseBaseURL() string {
	return "https://github.com/rv-lang/ruby-builds/releases/latest/download"
}

func hostGOOS() string   { return currentGOOS() }
func hostGOARCH() string { return currentGOARCH() }
