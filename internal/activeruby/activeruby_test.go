package activeruby

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/contriboss/rv/internal/rversion"
	"github.com/contriboss/rv/internal/rubystore"
)

func inst(engine, version string, source rubystore.Source) rubystore.Installation {
	return rubystore.Installation{
		Key:    rubystore.Key{Engine: engine, Version: rversion.MustParse(version)},
		Source: source,
	}
}

func TestFamilyPredicateMatchesAnyPatchInFamily(t *testing.T) {
	req := Request{VersionPredicate: "3.4"}
	if !req.Matches(inst("cruby", "3.4.7", rubystore.ManagedByRV)) {
		t.Error("3.4 should match 3.4.7")
	}
	if req.Matches(inst("cruby", "3.5.0", rubystore.ManagedByRV)) {
		t.Error("3.4 should not match 3.5.0")
	}
}

func TestNonPrereleasePredicateExcludesPrereleases(t *testing.T) {
	req := Request{VersionPredicate: "3.4"}
	if req.Matches(inst("cruby", "3.4.0.preview1", rubystore.ManagedByRV)) {
		t.Error("a family predicate should not match a prerelease within that family")
	}
}

func TestExactPrereleaseRequestMatches(t *testing.T) {
	req := Request{VersionPredicate: "3.4.0.preview1"}
	if !req.Matches(inst("cruby", "3.4.0.preview1", rubystore.ManagedByRV)) {
		t.Error("requesting the exact prerelease string should match it")
	}
}

func TestResolveTieBreaksByVersionThenSource(t *testing.T) {
	candidates := []rubystore.Installation{
		inst("cruby", "3.4.7", rubystore.SystemPath),
		inst("cruby", "3.4.7", rubystore.ManagedByRV),
		inst("cruby", "3.3.0", rubystore.ManagedByRV),
	}
	req := Request{VersionPredicate: "3.4"}
	best, ok := Resolve(req, candidates)
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Source != rubystore.ManagedByRV {
		t.Errorf("expected managed_by_rv to win the tie, got %v", best.Source)
	}
}

func TestFromPrecedenceCLIOverrideWins(t *testing.T) {
	t.Setenv("RUBY_VERSION", "3.2.0")
	got := FromPrecedence("3.4.7", t.TempDir(), Config{DefaultRuby: "3.0.0"})
	if got != "3.4.7" {
		t.Errorf("got %q", got)
	}
}

func TestFromPrecedenceRubyVersionFileSearchedUpward(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, ".ruby-version"), []byte("3.4.7\n"), 0o644)
	sub := filepath.Join(root, "a", "b")
	os.MkdirAll(sub, 0o755)

	got := FromPrecedence("", sub, Config{})
	if got != "3.4.7" {
		t.Errorf("got %q", got)
	}
}

func TestFromPrecedenceWhitespaceAndBOMTrimmed(t *testing.T) {
	root := t.TempDir()
	bom := []byte{0xEF, 0xBB, 0xBF}
	content := append(bom, []byte("  3.4.7  \n")...)
	os.WriteFile(filepath.Join(root, ".ruby-version"), content, 0o644)
	got := FromPrecedence("", root, Config{})
	if got != "3.4.7" {
		t.Errorf("got %q", got)
	}
}
