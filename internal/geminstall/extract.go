package geminstall

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/contriboss/rv/internal/gempkg"
)

// extractData streams a gem's data.tar.gz entries onto disk under
// destDir, the gem home's gems/<full_name>/ directory.
func extractData(gem *gempkg.Gem, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	next, err := gem.Data()
	if err != nil {
		return err
	}

	for {
		entry, r, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("geminstall: reading gem payload: %w", err)
		}

		target, err := safeJoin(destDir, entry.Path)
		if err != nil {
			return err
		}

		switch entry.Type {
		case '5': // tar.TypeDir
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case '2': // tar.TypeSymlink
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(entry.Link, target); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := fs.FileMode(entry.Mode)
			if mode == 0 {
				mode = 0o644
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, r); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

// safeJoin joins destDir and rel, rejecting any path that escapes
// destDir (a gem payload containing "../" entries).
func safeJoin(destDir, rel string) (string, error) {
	clean := filepath.Clean("/" + rel)
	target := filepath.Join(destDir, strings.TrimPrefix(clean, "/"))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(filepath.Separator)) && target != filepath.Clean(destDir) {
		return "", fmt.Errorf("geminstall: gem entry %q escapes destination", rel)
	}
	return target, nil
}
