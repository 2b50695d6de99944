package lockfile

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// gemSpecRegex matches a `specs:` entry line: "    name (version)" or
// "    name (version-platform)".
var gemSpecRegex = regexp.MustCompile(`^(\S+) \(([^)]+)\)$`)

// depRegex matches a dependency reference line inside a specs block:
// "      name" or "      name (constraint, constraint)".
var depRegex = regexp.MustCompile(`^(\S+)(?:\s+\(([^)]+)\))?$`)

// checksumRegex matches one CHECKSUMS line:
// "  name (version[-platform]) sha256=digest".
var checksumRegex = regexp.MustCompile(`^(\S+) \(([^)]+)\) (\w+)=([0-9a-fA-F]+)$`)

var mergeConflictMarkers = []string{"<<<<<<<", "=======", ">>>>>>>"}

// Options controls parser strictness. In strict mode, any UnknownKey or
// UnknownSection is a hard failure; in lenient mode, unrecognized lines
// are skipped so a newer Bundler's lockfile doesn't break older rv.
type Options struct {
	Strict bool
}

type parser struct {
	opts Options
	lf   *Lockfile

	sourceIdx    int // index of the in-progress Source in lf.Sources, or -1
	inSpecsBlock bool
	curSpec      *LockSpec
	curSpecKey   SpecKey

	section string // GEM | GIT | PATH | PLUGIN SOURCE | PLATFORMS | DEPENDENCIES | CHECKSUMS | RUBY VERSION | BUNDLED WITH | ""
}

// Parse reads a Gemfile.lock body and returns the structured Lockfile,
// or a *ParseError on the first malformed line (strict mode) or
// unrecoverable structural problem (either mode).
func Parse(text string, opts Options) (*Lockfile, error) {
	p := &parser{
		opts:      opts,
		sourceIdx: -1,
		lf: &Lockfile{
			Specs:        map[SpecKey]LockSpec{},
			Dependencies: map[string]RequestedDep{},
			Checksums:    map[string]map[string]string{},
		},
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		for _, marker := range mergeConflictMarkers {
			if strings.HasPrefix(strings.TrimSpace(raw), marker) {
				return nil, &ParseError{Kind: ErrMergeConflict, Line: lineNo, Column: 1,
					Message: "unresolved merge conflict marker in lockfile"}
			}
		}

		if strings.TrimSpace(raw) == "" {
			continue
		}

		if err := p.handleLine(raw, lineNo); err != nil {
			if !p.opts.Strict {
				if pe, ok := err.(*ParseError); ok && (pe.Kind == ErrUnknownKey || pe.Kind == ErrUnknownSection) {
					continue
				}
			}
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	return p.lf, nil
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}

func (p *parser) handleLine(raw string, lineNo int) error {
	indent := indentOf(raw)
	trimmed := strings.TrimRight(raw, " ")
	content := strings.TrimSpace(raw)

	// Top-level section header.
	if indent == 0 {
		return p.startSection(content, lineNo)
	}

	switch p.section {
	case "GIT", "PATH", "GEM", "PLUGIN SOURCE":
		return p.handleSourceBodyLine(indent, content, trimmed, lineNo)
	case "PLATFORMS":
		if indent != 2 {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "PLATFORMS entries must be indented 2 spaces"}
		}
		p.lf.Platforms = append(p.lf.Platforms, content)
		return nil
	case "DEPENDENCIES":
		if indent != 2 {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "DEPENDENCIES entries must be indented 2 spaces"}
		}
		return p.handleDependencyLine(content, lineNo)
	case "CHECKSUMS":
		if indent != 2 {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "CHECKSUMS entries must be indented 2 spaces"}
		}
		return p.handleChecksumLine(content, lineNo)
	case "RUBY VERSION":
		if indent != 2 {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "RUBY VERSION entry must be indented 2 spaces"}
		}
		p.lf.RubyVersion = strings.TrimPrefix(content, "ruby ")
		return nil
	case "BUNDLED WITH":
		if indent != 3 {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "BUNDLED WITH version must be indented 3 spaces"}
		}
		p.lf.BundledWith = content
		return nil
	default:
		return &ParseError{Kind: ErrUnknownSection, Line: lineNo, Column: 1,
			Message: "line indented under no recognized section"}
	}
}

func (p *parser) startSection(content string, lineNo int) error {
	switch content {
	case "GIT", "PATH", "GEM":
		p.section = content
		p.lf.Sources = append(p.lf.Sources, Source{Kind: sourceKindFor(content)})
		p.sourceIdx = len(p.lf.Sources) - 1
		p.inSpecsBlock = false
		return nil
	case "PLUGIN SOURCE":
		p.section = content
		p.lf.Sources = append(p.lf.Sources, Source{Kind: SourcePlugin, Options: map[string]string{}})
		p.sourceIdx = len(p.lf.Sources) - 1
		p.inSpecsBlock = false
		return nil
	case "PLATFORMS", "DEPENDENCIES", "CHECKSUMS", "RUBY VERSION", "BUNDLED WITH":
		p.section = content
		p.sourceIdx = -1
		return nil
	default:
		if p.opts.Strict {
			return &ParseError{Kind: ErrUnknownSection, Line: lineNo, Column: 1,
				Message: "unrecognized top-level section: " + content}
		}
		p.section = ""
		return nil
	}
}

func sourceKindFor(header string) SourceKind {
	switch header {
	case "GIT":
		return SourceGit
	case "PATH":
		return SourcePath
	default:
		return SourceGem
	}
}

func (p *parser) currentSource() *Source {
	if p.sourceIdx < 0 || p.sourceIdx >= len(p.lf.Sources) {
		return nil
	}
	return &p.lf.Sources[p.sourceIdx]
}

func (p *parser) handleSourceBodyLine(indent int, content, trimmed string, lineNo int) error {
	src := p.currentSource()
	if src == nil {
		return &ParseError{Kind: ErrUnknownSection, Line: lineNo, Column: 1, Message: "source body line outside a source block"}
	}

	if indent == 2 {
		p.inSpecsBlock = false
		switch {
		case content == "specs:":
			p.inSpecsBlock = true
		case strings.HasPrefix(content, "remote:"):
			v := strings.TrimSpace(strings.TrimPrefix(content, "remote:"))
			if src.Kind == SourceGem {
				src.Remotes = append(src.Remotes, v)
			} else {
				src.Remote = v
			}
		case strings.HasPrefix(content, "revision:"):
			src.Revision = strings.TrimSpace(strings.TrimPrefix(content, "revision:"))
		case strings.HasPrefix(content, "branch:"):
			src.Branch = strings.TrimSpace(strings.TrimPrefix(content, "branch:"))
		case strings.HasPrefix(content, "tag:"):
			src.Tag = strings.TrimSpace(strings.TrimPrefix(content, "tag:"))
		case strings.HasPrefix(content, "ref:"):
			src.Ref = strings.TrimSpace(strings.TrimPrefix(content, "ref:"))
		case strings.HasPrefix(content, "glob:"):
			src.Glob = strings.TrimSpace(strings.TrimPrefix(content, "glob:"))
		case content == "submodules: true":
			src.Submodules = true
		case strings.HasPrefix(content, "type:"):
			src.Type = strings.TrimSpace(strings.TrimPrefix(content, "type:"))
		case strings.Contains(content, ":"):
			if p.opts.Strict && src.Kind != SourcePlugin {
				return &ParseError{Kind: ErrUnknownKey, Line: lineNo, Column: indent + 1,
					Message: "unrecognized source attribute: " + content}
			}
			kv := strings.SplitN(content, ":", 2)
			if src.Options == nil {
				src.Options = map[string]string{}
			}
			src.Options[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		default:
			if p.opts.Strict {
				return &ParseError{Kind: ErrUnknownKey, Line: lineNo, Column: indent + 1,
					Message: "unrecognized source attribute: " + content}
			}
		}
		return nil
	}

	if indent == 4 {
		if !p.inSpecsBlock {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "gem line outside a specs: block"}
		}
		m := gemSpecRegex.FindStringSubmatch(content)
		if m == nil {
			return &ParseError{Kind: ErrInvalidVersion, Line: lineNo, Column: indent + 1,
				Message: "malformed gem spec line: " + content}
		}
		name := m[1]
		version, platform := splitVersionPlatform(m[2])
		key := SpecKey{Name: name, Version: version, Platform: platform}
		spec := LockSpec{Name: name, Version: version, Platform: platform, SourceRef: p.sourceIdx}
		p.lf.Specs[key] = spec
		p.curSpecKey = key
		return nil
	}

	if indent == 6 {
		if !p.inSpecsBlock {
			return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
				Message: "dependency line outside a specs: block"}
		}
		m := depRegex.FindStringSubmatch(content)
		if m == nil {
			return &ParseError{Kind: ErrUnknownKey, Line: lineNo, Column: indent + 1,
				Message: "malformed dependency line: " + content}
		}
		spec, ok := p.lf.Specs[p.curSpecKey]
		if !ok {
			return &ParseError{Kind: ErrUnknownKey, Line: lineNo, Column: indent + 1,
				Message: "dependency line with no preceding gem spec"}
		}
		spec.Deps = append(spec.Deps, DepRef{Name: m[1], Requirement: m[2]})
		p.lf.Specs[p.curSpecKey] = spec
		return nil
	}

	return &ParseError{Kind: ErrInvalidIndentation, Line: lineNo, Column: indent + 1,
		Message: "unexpected indentation inside source block: " + strconv.Itoa(indent) + " spaces"}
}

func splitVersionPlatform(inner string) (version, platform string) {
	parts := strings.SplitN(inner, "-", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return inner, ""
}

func (p *parser) handleDependencyLine(content string, lineNo int) error {
	name := content
	constraintStr := ""
	if idx := strings.Index(content, " ("); idx >= 0 && strings.HasSuffix(content, ")") {
		name = content[:idx]
		constraintStr = content[idx+2 : len(content)-1]
	}

	pinned := strings.HasSuffix(name, "!")
	name = strings.TrimSuffix(name, "!")

	dep := RequestedDep{Name: name, Requirement: constraintStr, SourceRef: -1, Pinned: pinned}
	if pinned {
		// The pinned source is whichever GIT/PATH/PLUGIN source block
		// defined a spec for this gem name, looked up here among the specs
		// parsed so far; validate() rejects a pin left without a source.
		for i, src := range p.lf.Sources {
			if src.Kind == SourceGit || src.Kind == SourcePath || src.Kind == SourcePlugin {
				for k, spec := range p.lf.Specs {
					if k.Name == name && spec.SourceRef == i {
						dep.SourceRef = i
					}
				}
			}
		}
	}
	p.lf.Dependencies[name] = dep
	return nil
}

func (p *parser) handleChecksumLine(content string, lineNo int) error {
	m := checksumRegex.FindStringSubmatch(content)
	if m == nil {
		return &ParseError{Kind: ErrUnknownKey, Line: lineNo, Column: 3,
			Message: "malformed CHECKSUMS line: " + content}
	}
	name, inner, algo, digest := m[1], m[2], m[3], m[4]
	version, platform := splitVersionPlatform(inner)
	full := name + "-" + version
	if platform != "" {
		full += "-" + platform
	}
	if p.lf.Checksums[full] == nil {
		p.lf.Checksums[full] = map[string]string{}
	}
	p.lf.Checksums[full][algo] = digest
	return nil
}

// validate enforces these lockfile invariants: every DEPENDENCIES entry
// resolves to at least one spec, a pinned ("!") dependency with no
// identifiable source is an UnresolvedDependency, and (strict mode only)
// every GIT source names a revision. The dependencies listed under each
// spec are not checked against the specs.
func (p *parser) validate() error {
	for name, dep := range p.lf.Dependencies {
		if dep.Pinned && dep.SourceRef < 0 {
			return &ParseError{Kind: ErrUnresolvedDependency, Line: 0, Column: 0,
				Message: "pinned dependency " + name + "! has no matching GIT/PATH/PLUGIN SOURCE spec"}
		}
		if _, ok := p.lf.FindSpec(name, ""); !ok {
			return &ParseError{Kind: ErrUnresolvedDependency, Line: 0, Column: 0,
				Message: "dependency " + name + " does not resolve to any spec"}
		}
	}
	if p.opts.Strict {
		for _, src := range p.lf.Sources {
			if src.Kind == SourceGit && src.Revision == "" {
				return &ParseError{Kind: ErrMissingRequired, Line: 0, Column: 0,
					Message: "GIT source " + src.Remote + " has no revision"}
			}
		}
	}
	return nil
}
