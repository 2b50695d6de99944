// Package lockfile implements the §4.G Bundler-compatible lockfile
// parser: a line-oriented state machine over the 2/4/6-space
// indentation hierarchy Bundler uses for Gemfile.lock.
package lockfile

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SourceKind discriminates the Source sum type.
type SourceKind int

const (
	SourceGit SourceKind = iota
	SourceGem
	SourcePath
	SourcePlugin
)

// Source is one `sources:` entry: a GIT, GEM, PATH, or PLUGIN SOURCE block.
type Source struct {
	Kind SourceKind

	// GIT
	Remote     string
	Revision   string
	Branch     string
	Tag        string
	Ref        string
	Submodules bool
	Glob       string

	// GEM
	Remotes []string

	// PATH uses Remote as the local path, Glob as above.

	// PLUGIN SOURCE
	Type    string
	Options map[string]string
}

// DepRef is one dependency reference inside a spec: a gem name and its
// requirement string exactly as written (e.g. ">= 1.2.3", "~> 2.0").
type DepRef struct {
	Name        string
	Requirement string
}

// SpecKey identifies one LockSpec by (name, version, platform).
type SpecKey struct {
	Name     string
	Version  string
	Platform string
}

// LockSpec is one resolved gem entry under a source's `specs:` block.
type LockSpec struct {
	Name      string
	Version   string
	Platform  string
	Deps      []DepRef
	SourceRef int // index into Lockfile.Sources
}

// FullName renders name-version[-platform], platform suffix omitted
// for the pure-Ruby sentinel.
func (s LockSpec) FullName() string {
	if s.Platform == "" || s.Platform == "ruby" {
		return fmt.Sprintf("%s-%s", s.Name, s.Version)
	}
	return fmt.Sprintf("%s-%s-%s", s.Name, s.Version, s.Platform)
}

// SemVer parses Version with Masterminds/semver, for callers that only
// need dotted-numeric comparison (most lockfile specs are plain
// releases); Ruby-specific segment algebra lives in internal/rversion.
func (s LockSpec) SemVer() (*semver.Version, error) {
	return semver.NewVersion(s.Version)
}

// RequestedDep is one `dependencies:` entry: the top-level gems the
// Gemfile names directly.
type RequestedDep struct {
	Name        string
	Requirement string
	SourceRef   int
	Pinned      bool // trailing "!" — must come from the named source
}

// Lockfile is the fully parsed, immutable representation of a
// Gemfile.lock.
type Lockfile struct {
	Sources      []Source
	Specs        map[SpecKey]LockSpec
	Dependencies map[string]RequestedDep
	Platforms    []string
	RubyVersion  string
	BundledWith  string
	Checksums    map[string]map[string]string // full_name -> algo -> digest
}

// FindSpec looks up a spec by name. An empty platform matches a spec of
// any platform; otherwise only a spec of that platform or a spec with no
// platform (pure Ruby) matches.
func (l *Lockfile) FindSpec(name, platform string) (LockSpec, bool) {
	for k, v := range l.Specs {
		if k.Name == name && (platform == "" || k.Platform == platform || k.Platform == "") {
			return v, true
		}
	}
	return LockSpec{}, false
}

// ErrorKind enumerates the parser's structured error kinds.
type ErrorKind string

const (
	ErrInvalidIndentation  ErrorKind = "InvalidIndentation"
	ErrMergeConflict       ErrorKind = "MergeConflict"
	ErrInvalidVersion      ErrorKind = "InvalidVersion"
	ErrUnknownSection      ErrorKind = "UnknownSection"
	ErrUnknownKey          ErrorKind = "UnknownKey"
	ErrMissingRequired     ErrorKind = "MissingRequired"
	ErrUnresolvedDependency ErrorKind = "UnresolvedDependency"
)

// ParseError is the structured error the parser fails with.
type ParseError struct {
	Kind    ErrorKind
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lockfile:%d:%d: %s: %s", e.Line, e.Column, e.Kind, e.Message)
}
