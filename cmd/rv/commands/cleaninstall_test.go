package commands

import (
	"testing"

	"github.com/contriboss/rv/internal/lockfile"
	"github.com/contriboss/rv/internal/platform"
)

func TestHostPlatformSpecsFiltersToMatchingTriple(t *testing.T) {
	lock := &lockfile.Lockfile{
		Specs: map[lockfile.SpecKey]lockfile.LockSpec{
			{Name: "nokogiri", Version: "1.16.0", Platform: "x86_64-linux-gnu"}: {
				Name: "nokogiri", Version: "1.16.0", Platform: "x86_64-linux-gnu",
			},
			{Name: "nokogiri", Version: "1.16.0", Platform: "arm64-darwin-23"}: {
				Name: "nokogiri", Version: "1.16.0", Platform: "arm64-darwin-23",
			},
			{Name: "rake", Version: "13.2.1", Platform: ""}: {
				Name: "rake", Version: "13.2.1", Platform: "",
			},
		},
	}

	host := platform.Parse("x86_64-linux-gnu")
	got := hostPlatformSpecs(lock, host)

	if len(got) != 2 {
		t.Fatalf("expected 2 installable specs for %v, got %d: %+v", host, len(got), got)
	}
	var sawNokogiri, sawRake bool
	for _, spec := range got {
		switch spec.Name {
		case "nokogiri":
			sawNokogiri = true
			if spec.Platform != "x86_64-linux-gnu" {
				t.Errorf("expected the linux nokogiri variant, got platform %q", spec.Platform)
			}
		case "rake":
			sawRake = true
		}
	}
	if !sawNokogiri || !sawRake {
		t.Fatalf("expected both the matching platform-specific gem and the pure-Ruby gem, got %+v", got)
	}
}

func TestHostPlatformSpecsExcludesForeignPlatformOnly(t *testing.T) {
	lock := &lockfile.Lockfile{
		Specs: map[lockfile.SpecKey]lockfile.LockSpec{
			{Name: "sorbet-static", Version: "0.5.0", Platform: "x86_64-linux-gnu"}: {
				Name: "sorbet-static", Version: "0.5.0", Platform: "x86_64-linux-gnu",
			},
		},
	}

	host := platform.Parse("arm64-darwin-23")
	got := hostPlatformSpecs(lock, host)
	if len(got) != 0 {
		t.Fatalf("expected no installable specs on a foreign platform, got %+v", got)
	}
}
