package geminstall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contriboss/rv/internal/lockfile"
)

func TestScrapeGemspecDSL(t *testing.T) {
	src := []byte(`Gem::Specification.new do |spec|
  spec.name = "widget"
  spec.version = "1.2.3"
  spec.executables = ["widget", "widget-cli"]
  spec.extensions = ["ext/widget/extconf.rb"]
end
`)
	path := filepath.Join(t.TempDir(), "widget.gemspec")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatal(err)
	}

	version, execs, exts := scrapeGemspecDSL(path, src)
	if version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", version)
	}
	if len(execs) != 2 || execs[0] != "widget" || execs[1] != "widget-cli" {
		t.Errorf("executables = %v", execs)
	}
	if len(exts) != 1 || exts[0] != "ext/widget/extconf.rb" {
		t.Errorf("extensions = %v", exts)
	}
}

func TestScrapeGemspecDSLMissingFieldsReturnEmpty(t *testing.T) {
	src := []byte(`Gem::Specification.new do |spec|
  spec.name = "bare"
end
`)
	path := filepath.Join(t.TempDir(), "bare.gemspec")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		t.Fatal(err)
	}

	version, execs, exts := scrapeGemspecDSL(path, src)
	if version != "" || execs != nil || exts != nil {
		t.Errorf("expected all-empty result, got version=%q execs=%v exts=%v", version, execs, exts)
	}
}

func TestPackageDirectoryProducesValidGemTar(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "widget.gemspec"), []byte(`Gem::Specification.new do |spec|
  spec.name = "widget"
  spec.version = "1.0.0"
end
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "widget.rb"), []byte("module Widget\nend\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	spec := lockfile.LockSpec{Name: "widget", Version: "0.0.0", Platform: "ruby"}
	tmpPath, cleanup, err := packageDirectory(dir, spec)
	defer cleanup()
	if err != nil {
		t.Fatalf("packageDirectory: %v", err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		t.Fatalf("expected gem file at %s: %v", tmpPath, err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty virtual gem file")
	}
}

func TestResolveArtifactGemSourceBuildsRubyGemsURL(t *testing.T) {
	spec := lockfile.LockSpec{Name: "rake", Version: "13.0.6", Platform: "ruby"}
	artifact, ref, cleanup, err := resolveArtifact(nil, lockfile.Source{Kind: lockfile.SourceGem}, spec)
	defer cleanup()
	if err != nil {
		t.Fatalf("resolveArtifact: %v", err)
	}
	want := "https://rubygems.org/gems/rake-13.0.6.gem"
	if artifact.url != want {
		t.Errorf("url = %q, want %q", artifact.url, want)
	}
	if ref != "https://rubygems.org" {
		t.Errorf("sourceRef = %q", ref)
	}
}

func TestResolveArtifactGemSourceHonorsCustomRemote(t *testing.T) {
	spec := lockfile.LockSpec{Name: "rake", Version: "13.0.6", Platform: "ruby"}
	source := lockfile.Source{Kind: lockfile.SourceGem, Remotes: []string{"https://gems.example.com/"}}
	artifact, _, cleanup, err := resolveArtifact(nil, source, spec)
	defer cleanup()
	if err != nil {
		t.Fatalf("resolveArtifact: %v", err)
	}
	want := "https://gems.example.com/gems/rake-13.0.6.gem"
	if artifact.url != want {
		t.Errorf("url = %q, want %q", artifact.url, want)
	}
}
