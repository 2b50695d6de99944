// Package geminstall implements the §4.K gem installer: resolving one
// lockfile spec's artifact location, fetching/caching it, opening and
// verifying it, extracting into a Ruby's gem home, compiling native
// extensions, and generating binstubs. One Installer serves the whole
// of a clean-install run and satisfies internal/scheduler.Installer.
package geminstall

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/contriboss/rv/internal/cachestore"
	"github.com/contriboss/rv/internal/fetch"
	"github.com/contriboss/rv/internal/gempkg"
	"github.com/contriboss/rv/internal/gemspec"
	"github.com/contriboss/rv/internal/lockfile"
	"github.com/contriboss/rv/internal/platform"
)

// ChecksumMismatch is returned when a lockfile's declared CHECKSUMS
// entry for a full_name disagrees with the fetched artifact.
type ChecksumMismatch struct {
	FullName string
	Algo     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("geminstall: checksum mismatch for %s (%s): expected %s, got %s", e.FullName, e.Algo, e.Expected, e.Actual)
}

// CompileFailed is returned when an extension's build step exits
// non-zero.
type CompileFailed struct {
	FullName string
	ExitCode int
	Tail     string
}

func (e *CompileFailed) Error() string {
	return fmt.Sprintf("geminstall: %s: extension build failed (exit %d): %s", e.FullName, e.ExitCode, e.Tail)
}

// Installer installs lockfile specs into one Ruby's gem home. It is
// safe for concurrent use by internal/scheduler's worker pool: per-key
// advisory file locks (see acquireLock) serialize concurrent installs of
// the same full_name.
type Installer struct {
	Lockfile *lockfile.Lockfile
	Cache    *cachestore.Store
	HTTP     *fetch.Client

	GemHome  string // e.g. <ruby root>/lib/ruby/gems/3.4.0
	RubyBin  string // path to the interpreter used for extconf.rb/subprocess builds
	Platform platform.Triple
	ABI      string // e.g. "3.4.0", used to segregate compiled extensions

	Force bool // bypass the idempotence check
	Log   *slog.Logger
}

func (in *Installer) logger() *slog.Logger {
	if in.Log != nil {
		return in.Log
	}
	return slog.Default()
}

// HasExtension reports whether spec's gemspec lists native extensions,
// for the ready queue's extension-first ordering (§4.J). It reads only a
// gemspec already extracted into the gem home, so it returns false for a
// gem that is not yet installed.
func (in *Installer) HasExtension(spec lockfile.LockSpec) bool {
	full, ok := in.specGemspec(spec)
	if !ok {
		return false
	}
	return len(full.Extensions) > 0
}

// specGemspec loads spec's already-extracted gemspec if present, used
// only to answer HasExtension cheaply before a real Install call.
func (in *Installer) specGemspec(spec lockfile.LockSpec) (*gemspec.Spec, bool) {
	path := filepath.Join(in.GemHome, "specifications", spec.FullName()+".gemspec")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	s, err := gemspec.Parse(data)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Install performs the full §4.K sequence for one spec: resolve
// artifact location, fetch/cache, open and verify, extract, compile
// extensions, generate binstubs. Idempotent unless Force is set.
func (in *Installer) Install(ctx context.Context, spec lockfile.LockSpec) error {
	fullName := spec.FullName()
	gemspecPath := filepath.Join(in.GemHome, "specifications", fullName+".gemspec")

	if !in.Force {
		if data, err := os.ReadFile(gemspecPath); err == nil {
			if _, err := gemspec.Parse(data); err == nil {
				in.logger().Debug("geminstall: already installed, skipping", "full_name", fullName)
				return nil
			}
		}
	}

	lock, err := in.acquireLock(fullName)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	// Re-check idempotence under the lock: another worker may have
	// finished installing the same full_name while we waited.
	if !in.Force {
		if data, err := os.ReadFile(gemspecPath); err == nil {
			if _, err := gemspec.Parse(data); err == nil {
				return nil
			}
		}
	}

	source := in.sourceFor(spec)

	artifact, sourceRef, cleanup, err := resolveArtifact(ctx, source, spec)
	if err != nil {
		return fmt.Errorf("geminstall: resolve artifact for %s: %w", fullName, err)
	}
	defer cleanup()

	cachePath, err := in.fetchToCache(ctx, fullName, sourceRef, artifact)
	if err != nil {
		return fmt.Errorf("geminstall: fetch %s: %w", fullName, err)
	}

	if err := in.verifyChecksum(fullName, cachePath); err != nil {
		in.Cache.Invalidate("gem-v0", "", cachestore.HashKey(fullName+"|"+sourceRef))
		return err
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return fmt.Errorf("geminstall: open cached artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	gem, err := gempkg.Open(f, info.Size())
	if err != nil {
		in.Cache.Invalidate("gem-v0", "", cachestore.HashKey(fullName+"|"+sourceRef))
		return fmt.Errorf("geminstall: open gem: %w", err)
	}
	if err := gem.Verify(); err != nil {
		in.Cache.Invalidate("gem-v0", "", cachestore.HashKey(fullName+"|"+sourceRef))
		return err
	}

	rawSpec, err := gem.RawSpecBytes()
	if err != nil {
		return err
	}
	sp, err := gemspec.Parse(rawSpec)
	if err != nil {
		return fmt.Errorf("geminstall: parse gemspec for %s: %w", fullName, err)
	}

	gemDir := filepath.Join(in.GemHome, "gems", fullName)
	if err := extractData(gem, gemDir); err != nil {
		return fmt.Errorf("geminstall: extract %s: %w", fullName, err)
	}

	specsDir := filepath.Join(in.GemHome, "specifications")
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		return err
	}
	marshaled, err := sp.Marshal()
	if err != nil {
		return fmt.Errorf("geminstall: marshal gemspec for %s: %w", fullName, err)
	}
	if err := writeAtomic(gemspecPath, marshaled, 0o644); err != nil {
		return err
	}

	if len(sp.Extensions) > 0 {
		if err := in.buildExtensions(ctx, fullName, gemDir, sp); err != nil {
			return err
		}
	}

	if len(sp.Executables) > 0 {
		if err := in.generateBinstubs(fullName, gemDir, sp); err != nil {
			return err
		}
	}

	return nil
}

func (in *Installer) sourceFor(spec lockfile.LockSpec) lockfile.Source {
	if in.Lockfile == nil || spec.SourceRef < 0 || spec.SourceRef >= len(in.Lockfile.Sources) {
		return lockfile.Source{Kind: lockfile.SourceGem}
	}
	return in.Lockfile.Sources[spec.SourceRef]
}

// fetchToCache fetches artifact (if not an in-memory virtual gem
// already materialized by resolveArtifact) into the content-addressed
// cache keyed by hash(full_name, source_ref), returning the on-disk
// cache path.
func (in *Installer) fetchToCache(ctx context.Context, fullName, sourceRef string, artifact *resolvedArtifact) (string, error) {
	key := cachestore.HashKey(fullName + "|" + sourceRef)

	if artifact.localPath != "" {
		// GIT/PATH sources already materialized a local .gem file;
		// adopt it into the cache store so later reads go through the
		// same atomic-rename path as a network fetch.
		f, err := os.Open(artifact.localPath)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return in.Cache.PutFromReader("gem-v0", "", key, f)
	}

	if cached, ok := in.Cache.Get("gem-v0", "", key); ok {
		_ = cached
		return in.Cache.Path("gem-v0", "", key), nil
	}

	dest := in.Cache.Path("gem-v0", "", key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if _, err := in.HTTP.Get(ctx, artifact.url, nil, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (in *Installer) verifyChecksum(fullName, cachePath string) error {
	if in.Lockfile == nil || in.Lockfile.Checksums == nil {
		return nil
	}
	algos, ok := in.Lockfile.Checksums[fullName]
	if !ok {
		return nil
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return err
	}
	for algo, expected := range algos {
		actual, err := hashFile(algo, data)
		if err != nil {
			continue // unknown algo in lockfile: skip rather than hard-fail
		}
		if actual != expected {
			return &ChecksumMismatch{FullName: fullName, Algo: algo, Expected: expected, Actual: actual}
		}
	}
	return nil
}

// acquireLock takes the per-full_name advisory lock guarding concurrent
// installs of the same gem (§5 "Shared resources").
func (in *Installer) acquireLock(fullName string) (*flock.Flock, error) {
	lockDir := filepath.Join(in.GemHome, ".locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(lockDir, fullName+".lock"))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("geminstall: acquire lock for %s: %w", fullName, err)
	}
	if !locked {
		return nil, fmt.Errorf("geminstall: timed out acquiring lock for %s", fullName)
	}
	return fl, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func copyFile(dst, src string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
