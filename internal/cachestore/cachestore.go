// Package cachestore implements the content-addressed cache of §4.C: a
// root directory containing version-named buckets, entries keyed by a
// stable 64-bit hash, written atomically via temp-file-then-rename.
package cachestore

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store is a content-addressed cache rooted at Dir. NoCache disables
// reads (every Get misses) but writes still happen unless DisableWrites
// is also set, per spec's --no-cache semantics.
type Store struct {
	Dir            string
	NoCache        bool
	DisableWrites  bool
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create root %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

// HashKey derives the stable 64-bit non-cryptographic hash key for a
// canonicalized tuple, rendered as 16 hex characters. FNV-1a is used
// for a seed-independent, deterministic key across processes (unlike
// hash/maphash, which is randomly seeded per process).
func HashKey(canonical string) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, canonical)
	return fmt.Sprintf("%016x", h.Sum64())
}

// bucketDir returns (and ensures) the directory for a versioned bucket,
// e.g. "ruby-v0" or "gem-v0".
func (s *Store) bucketDir(bucket string) (string, error) {
	dir := filepath.Join(s.Dir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cachestore: create bucket %s: %w", bucket, err)
	}
	return dir, nil
}

// Path returns the final on-disk path for (bucket, relativePath,
// hashKey) without touching the filesystem.
func (s *Store) Path(bucket, relativePath, hashKey string) string {
	name := hashKey
	if relativePath != "" {
		name = filepath.Join(relativePath, hashKey)
	}
	return filepath.Join(s.Dir, bucket, name)
}

// Get returns the entry's bytes if present, or (nil, false) on a miss.
// With NoCache set, every call is a forced miss.
func (s *Store) Get(bucket, relativePath, hashKey string) ([]byte, bool) {
	if s.NoCache {
		return nil, false
	}
	data, err := os.ReadFile(s.Path(bucket, relativePath, hashKey))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Open returns a reader for the cached entry, for streaming callers
// that don't want to buffer the whole file (large Ruby tarballs).
func (s *Store) Open(bucket, relativePath, hashKey string) (*os.File, bool) {
	if s.NoCache {
		return nil, false
	}
	f, err := os.Open(s.Path(bucket, relativePath, hashKey))
	if err != nil {
		return nil, false
	}
	return f, true
}

// Put writes data to the entry, atomically: a temp file in the same
// bucket directory, then rename onto the final name. Concurrent writers
// of the same key race but converge, since both produce identical
// bytes and renames are atomic on POSIX and Windows.
func (s *Store) Put(bucket, relativePath, hashKey string, data []byte) (string, error) {
	if s.DisableWrites {
		return s.Path(bucket, relativePath, hashKey), nil
	}
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	if relativePath != "" {
		dir = filepath.Join(dir, relativePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("cachestore: create relative dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+hashKey+"-*")
	if err != nil {
		return "", fmt.Errorf("cachestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: close temp file: %w", err)
	}

	final := filepath.Join(dir, hashKey)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: rename into place: %w", err)
	}
	return final, nil
}

// PutFromReader streams src into the cache entry, for large payloads
// (Ruby tarballs, gem data) that should not be buffered in memory.
func (s *Store) PutFromReader(bucket, relativePath, hashKey string, src io.Reader) (string, error) {
	if s.DisableWrites {
		return s.Path(bucket, relativePath, hashKey), nil
	}
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	if relativePath != "" {
		dir = filepath.Join(dir, relativePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("cachestore: create relative dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+hashKey+"-*")
	if err != nil {
		return "", fmt.Errorf("cachestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: stream into temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: close temp file: %w", err)
	}

	final := filepath.Join(dir, hashKey)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cachestore: rename into place: %w", err)
	}
	return final, nil
}

// Invalidate removes a cache entry, used when an extraction or build
// from a cached artifact fails so the next attempt re-downloads.
func (s *Store) Invalidate(bucket, relativePath, hashKey string) error {
	err := os.Remove(s.Path(bucket, relativePath, hashKey))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cachestore: invalidate %s/%s: %w", bucket, hashKey, err)
	}
	return nil
}

// Stats summarizes a cache directory's disk usage.
type Stats struct {
	Files     int
	TotalSize int64
}

// CollectStats walks the whole store (or a single bucket if non-empty).
func (s *Store) CollectStats(bucket string) (Stats, error) {
	root := s.Dir
	if bucket != "" {
		root = filepath.Join(s.Dir, bucket)
	}

	var stats Stats
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Files++
		stats.TotalSize += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return stats, nil
	}
	return stats, err
}

// HumanBytes renders a byte count as KiB/MiB/GiB/etc.
func HumanBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// Prune deletes files in the selected buckets older than maxAge. An
// empty buckets list prunes the whole store.
func Prune(dir string, buckets []string, maxAge time.Duration) (removed int, err error) {
	roots := buckets
	if len(roots) == 0 {
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				return 0, nil
			}
			return 0, fmt.Errorf("cachestore: read root: %w", readErr)
		}
		for _, e := range entries {
			if e.IsDir() {
				roots = append(roots, e.Name())
			}
		}
	}

	cutoff := time.Now().Add(-maxAge)
	for _, bucket := range roots {
		bucketPath := filepath.Join(dir, bucket)
		walkErr := filepath.WalkDir(bucketPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().Before(cutoff) {
				if rmErr := os.Remove(path); rmErr == nil {
					removed++
				}
			}
			return nil
		})
		if walkErr != nil && !os.IsNotExist(walkErr) {
			return removed, fmt.Errorf("cachestore: prune bucket %s: %w", bucket, walkErr)
		}
	}
	return removed, nil
}
