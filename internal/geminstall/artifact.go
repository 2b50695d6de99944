package geminstall

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/contriboss/gemfile-go/gemfile"

	"github.com/contriboss/rv/internal/gemspec"
	"github.com/contriboss/rv/internal/lockfile"
	"github.com/contriboss/rv/internal/rversion"
)

// resolvedArtifact is what step 1 (§4.K) hands to the fetch/cache step:
// either a remote URL (GEM source) or a local .gem file already
// materialized on disk (PATH/GIT sources, packaged in-memory then
// spilled to a temp file so the cache-adoption path is uniform).
type resolvedArtifact struct {
	url       string
	localPath string
}

// resolveArtifact implements K step 1: locate the bytes for spec's
// artifact according to its source kind, returning a sourceRef string
// used alongside full_name in the cache key (so distinct revisions of
// the same gem name/version from GIT don't collide).
func resolveArtifact(ctx context.Context, source lockfile.Source, spec lockfile.LockSpec) (*resolvedArtifact, string, func(), error) {
	switch source.Kind {
	case lockfile.SourceGem:
		remote := "https://rubygems.org"
		if len(source.Remotes) > 0 {
			remote = strings.TrimSuffix(source.Remotes[0], "/")
		}
		url := fmt.Sprintf("%s/gems/%s.gem", remote, spec.FullName())
		return &resolvedArtifact{url: url}, remote, func() {}, nil

	case lockfile.SourcePath:
		path, err := filepath.Abs(source.Remote)
		if err != nil {
			return nil, "", func() {}, fmt.Errorf("resolve path source: %w", err)
		}
		tmp, cleanup, err := packageDirectory(path, spec)
		if err != nil {
			return nil, "", func() {}, err
		}
		return &resolvedArtifact{localPath: tmp}, "path:" + path, cleanup, nil

	case lockfile.SourceGit:
		dir, cleanup, err := checkoutGit(ctx, source)
		if err != nil {
			return nil, "", func() {}, err
		}
		defer cleanup()
		tmp, cleanup2, err := packageDirectory(dir, spec)
		if err != nil {
			return nil, "", func() {}, err
		}
		ref := source.Revision
		if ref == "" {
			ref = source.Ref
		}
		return &resolvedArtifact{localPath: tmp}, "git:" + source.Remote + "@" + ref, cleanup2, nil

	default:
		return nil, "", func() {}, &lockfile.ParseError{
			Kind:    lockfile.ErrUnresolvedDependency,
			Message: fmt.Sprintf("unsupported source kind for %s", spec.FullName()),
		}
	}
}

// checkoutGit makes a full clone (never a shallow one; with
// --recurse-submodules when source.Submodules is set) of the
// repository at source.Remote and checks out its locked revision,
// returning a temp directory holding the checkout. Adapted from the
// resolver package's git-gem resolution: git clone/fetch/checkout via
// subprocess, git archive to export without the .git directory.
func checkoutGit(ctx context.Context, source lockfile.Source) (string, func(), error) {
	repoDir, err := os.MkdirTemp("", "rv-git-repo-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanupRepo := func() { os.RemoveAll(repoDir) }

	cloneArgs := []string{"clone", "--quiet"}
	if source.Submodules {
		// Open question (submodule recursion depth): default to full
		// recursive checkout, not a shallow/partial one.
		cloneArgs = append(cloneArgs, "--recurse-submodules")
	}
	cloneArgs = append(cloneArgs, source.Remote, repoDir)

	if out, err := exec.CommandContext(ctx, "git", cloneArgs...).CombinedOutput(); err != nil {
		cleanupRepo()
		return "", func() {}, fmt.Errorf("geminstall: git clone %s: %w\n%s", source.Remote, err, out)
	}

	ref := source.Revision
	if ref == "" {
		ref = source.Tag
	}
	if ref == "" {
		ref = source.Branch
	}
	if ref == "" {
		ref = source.Ref
	}
	if ref != "" {
		if out, err := exec.CommandContext(ctx, "git", "-C", repoDir, "checkout", "--quiet", ref).CombinedOutput(); err != nil {
			cleanupRepo()
			return "", func() {}, fmt.Errorf("geminstall: git checkout %s: %w\n%s", ref, err, out)
		}
	}

	destDir, err := os.MkdirTemp("", "rv-git-checkout-*")
	if err != nil {
		cleanupRepo()
		return "", func() {}, err
	}

	archiveCmd := exec.CommandContext(ctx, "git", "-C", repoDir, "archive", "HEAD")
	archiveData, err := archiveCmd.Output()
	if err != nil {
		cleanupRepo()
		os.RemoveAll(destDir)
		return "", func() {}, fmt.Errorf("geminstall: git archive: %w", err)
	}

	tarCmd := exec.CommandContext(ctx, "tar", "-x", "-C", destDir)
	tarCmd.Stdin = bytes.NewReader(archiveData)
	if out, err := tarCmd.CombinedOutput(); err != nil {
		cleanupRepo()
		os.RemoveAll(destDir)
		return "", func() {}, fmt.Errorf("geminstall: tar extraction: %w\n%s", err, out)
	}

	return destDir, func() { cleanupRepo(); os.RemoveAll(destDir) }, nil
}

// gemspecExecRe, gemspecExtRe scrape a .gemspec DSL file's
// executables/extensions assignments directly: gemfile-go's
// GemspecParser (used below only for the version field) models neither —
// its GemspecFile carries Name/Version/Summary/Authors/Homepage/
// License/dependencies/RequiredRubyVersion/Files/Metadata only, no
// executables or extensions. Local PATH/GIT gems aren't prebuilt, so
// this is the only place that information can come from.
var (
	gemspecExecRe = regexp.MustCompile(`\.executables\s*=\s*\[([^\]]*)\]`)
	gemspecExtRe  = regexp.MustCompile(`\.extensions\s*=\s*\[([^\]]*)\]`)
	quotedItemRe  = regexp.MustCompile(`["']([^"']+)["']`)
)

// scrapeGemspecDSL parses path's version (and any other metadata a
// future caller wants) via gemfile-go's GemspecParser — tree-sitter
// first, falling back to a `ruby -e` eval and then its own regex scrape
// internally, so this still returns a usable version even where no
// Ruby interpreter is available — and fills in executables/extensions
// with the regexes above, which the parser doesn't cover.
func scrapeGemspecDSL(path string, data []byte) (version string, executables, extensions []string) {
	if parsed, err := gemfile.NewGemspecParser(path).Parse(); err == nil {
		version = parsed.Version
	}
	if m := gemspecExecRe.FindSubmatch(data); m != nil {
		for _, q := range quotedItemRe.FindAllSubmatch(m[1], -1) {
			executables = append(executables, string(q[1]))
		}
	}
	if m := gemspecExtRe.FindSubmatch(data); m != nil {
		for _, q := range quotedItemRe.FindAllSubmatch(m[1], -1) {
			extensions = append(extensions, string(q[1]))
		}
	}
	return version, executables, extensions
}

// packageDirectory builds a virtual .gem (tar of metadata.gz,
// data.tar.gz, checksums.yaml.gz) from a PATH or checked-out GIT
// directory and spills it to a temp file, so the rest of the pipeline
// (cache, gempkg.Open) treats it identically to a network-fetched gem.
func packageDirectory(dir string, spec lockfile.LockSpec) (string, func(), error) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.gemspec"))
	version := spec.Version
	var executables, extensions []string
	if len(matches) > 0 {
		if data, err := os.ReadFile(matches[0]); err == nil {
			if v, execs, exts := scrapeGemspecDSL(matches[0], data); v != "" {
				version = v
				executables = execs
				extensions = exts
			}
		}
	}

	parsedVersion, err := rversion.Parse(version)
	if err != nil {
		parsedVersion = rversion.MustParse("0")
	}

	sp := &gemspec.Spec{
		Name:         spec.Name,
		Version:      parsedVersion,
		Platform:     "ruby",
		Executables:  executables,
		Extensions:   extensions,
		RequirePaths: []string{"lib"},
	}
	metaYAML, err := sp.Marshal()
	if err != nil {
		return "", func() {}, fmt.Errorf("geminstall: marshal synthetic gemspec: %w", err)
	}

	dataTarGz, err := tarGzDir(dir)
	if err != nil {
		return "", func() {}, err
	}

	metadataGz, err := gzipBytes(metaYAML)
	if err != nil {
		return "", func() {}, err
	}

	checksumsYAML := []byte(fmt.Sprintf("SHA256:\n  metadata.gz: %x\n  data.tar.gz: %x\n", sha256sum(metadataGz), sha256sum(dataTarGz)))
	checksumsGz, err := gzipBytes(checksumsYAML)
	if err != nil {
		return "", func() {}, err
	}

	tmp, err := os.CreateTemp("", "rv-virtual-gem-*.gem")
	if err != nil {
		return "", func() {}, err
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	tw := tar.NewWriter(tmp)
	for _, m := range []struct {
		name string
		data []byte
	}{
		{"metadata.gz", metadataGz},
		{"data.tar.gz", dataTarGz},
		{"checksums.yaml.gz", checksumsGz},
	} {
		hdr := &tar.Header{Name: m.name, Size: int64(len(m.data)), Mode: 0o644, ModTime: time.Unix(0, 0)}
		if err := tw.WriteHeader(hdr); err != nil {
			tmp.Close()
			cleanup()
			return "", func() {}, err
		}
		if _, err := tw.Write(m.data); err != nil {
			tmp.Close()
			cleanup()
			return "", func() {}, err
		}
	}
	if err := tw.Close(); err != nil {
		tmp.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}

	return tmpPath, cleanup, nil
}

func tarGzDir(root string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sha256sum(data []byte) []byte {
	h, err := hashFile("sha256", data)
	if err != nil {
		return nil
	}
	b, _ := decodeHex(h)
	return b
}

func decodeHex(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}
