package rversion

import "testing"

func TestEmptyRequirementIsGreaterEqualZero(t *testing.T) {
	r, err := ParseRequirement("")
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != ">= 0" {
		t.Errorf("empty requirement rendered as %q", r.String())
	}
	if !r.Satisfies(MustParse("999.0.0"), false) {
		t.Error("empty requirement should match any final version")
	}
}

func TestPessimisticOperator(t *testing.T) {
	r, err := ParseRequirement("~> 1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Satisfies(MustParse("1.2.3"), false) {
		t.Error("~> 1.2.3 should satisfy 1.2.3")
	}
	if !r.Satisfies(MustParse("1.2.9"), false) {
		t.Error("~> 1.2.3 should satisfy 1.2.9")
	}
	if r.Satisfies(MustParse("1.3.0"), false) {
		t.Error("~> 1.2.3 should not satisfy 1.3.0")
	}
	if r.Satisfies(MustParse("1.2.2"), false) {
		t.Error("~> 1.2.3 should not satisfy 1.2.2")
	}
}

func TestPrereleasePolicy(t *testing.T) {
	r, err := ParseRequirement(">= 1.0")
	if err != nil {
		t.Fatal(err)
	}
	if r.Satisfies(MustParse("1.1.0.beta1"), false) {
		t.Error("a non-prerelease-referencing requirement should not match prereleases by default")
	}
	if !r.Satisfies(MustParse("1.1.0.beta1"), true) {
		t.Error("allowPrerelease should let a prerelease match")
	}

	pr, err := ParseRequirement(">= 1.0.0.beta1")
	if err != nil {
		t.Fatal(err)
	}
	if !pr.Satisfies(MustParse("1.0.0.beta2"), false) {
		t.Error("a requirement referencing a prerelease should match other prereleases without opt-in")
	}
}

func TestANDConjunction(t *testing.T) {
	r, err := ParseRequirement(">= 1.0, < 2.0")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Satisfies(MustParse("1.5.0"), false) {
		t.Error("1.5.0 should satisfy >= 1.0, < 2.0")
	}
	if r.Satisfies(MustParse("2.0.0"), false) {
		t.Error("2.0.0 should not satisfy >= 1.0, < 2.0")
	}
}
