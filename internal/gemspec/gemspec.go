// Package gemspec implements the §4.I gem metadata parser: a strict
// reader for the tagged YAML document RubyGems serializes a
// Gem::Specification as. Unlike a plain struct-tag unmarshal (which
// silently tolerates shape drift), this walks the yaml.Node tree and
// validates the expected "!ruby/object:Gem::..." tag at each nesting
// level, reporting mismatches with source offsets.
package gemspec

import (
	"fmt"

	"github.com/contriboss/rv/internal/rversion"
	"gopkg.in/yaml.v3"
)

// ErrorKind enumerates the parser's structured error kinds.
type ErrorKind string

const (
	ErrUnsupportedFoldedScalar ErrorKind = "UnsupportedFoldedScalar"
	ErrUnsupportedAnchor       ErrorKind = "UnsupportedAnchor"
	ErrUnsupportedLegacyClass  ErrorKind = "UnsupportedLegacyClass"
	ErrTagMismatch             ErrorKind = "TagMismatch"
)

// ParseError is returned for any document the parser can't confidently
// interpret, with the source line/column of the offending node.
type ParseError struct {
	Kind    ErrorKind
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gemspec:%d:%d: %s: %s", e.Line, e.Column, e.Kind, e.Message)
}

// DependencyType discriminates a Dependency's type tag.
type DependencyType string

const (
	Runtime     DependencyType = "runtime"
	Development DependencyType = "development"
)

// Dependency is one `dependencies:` entry of a spec.
type Dependency struct {
	Name        string
	Requirement rversion.Requirement
	Type        DependencyType
}

// Spec is the decoded Gem::Specification.
type Spec struct {
	Name                string
	Version             rversion.Version
	Platform            string
	Dependencies        []Dependency
	RequiredRuby        *rversion.Requirement
	RequiredRubygems    *rversion.Requirement
	Executables         []string
	Extensions          []string
	Authors             []string
	Licenses            []string
	RequirePaths        []string
	Metadata            OrderedMap
	Email               []string
	Homepage            string
	Summary             string
	Description          string
}

// OrderedMap preserves the insertion order of the `metadata:` scalar
// map, per spec's requirement that re-emission stay byte-compatible
// modulo insertion-ordered map serialization.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// Set appends (or overwrites in place) a key.
func (m *OrderedMap) Set(k, v string) {
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Keys returns keys in insertion order.
func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get looks up a key.
func (m *OrderedMap) Get(k string) (string, bool) {
	v, ok := m.values[k]
	return v, ok
}

// expectTag validates that node carries the expected "!ruby/object:"
// tag; a plain "!!map" mapping is accepted too, and expected == ""
// skips the check. It returns a *ParseError with source position on
// mismatch.
func expectTag(node *yaml.Node, expected string) error {
	if expected == "" {
		return nil
	}
	want := "!ruby/object:" + expected
	if node.Tag != want && node.Tag != "!!map" {
		return &ParseError{
			Kind:    ErrTagMismatch,
			Line:    node.Line,
			Column:  node.Column,
			Message: fmt.Sprintf("expected tag %q, got %q", want, node.Tag),
		}
	}
	return nil
}

func fieldNode(mapNode *yaml.Node, key string) *yaml.Node {
	if mapNode.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapNode.Content); i += 2 {
		if mapNode.Content[i].Value == key {
			return mapNode.Content[i+1]
		}
	}
	return nil
}

func scalarString(n *yaml.Node, def string) string {
	if n == nil {
		return def
	}
	if n.Style&yaml.FoldedStyle != 0 {
		return def
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return def
	}
	return s
}

func checkUnsupported(n *yaml.Node) error {
	if n == nil {
		return nil
	}
	if n.Anchor != "" || n.Alias != nil {
		return &ParseError{Kind: ErrUnsupportedAnchor, Line: n.Line, Column: n.Column, Message: "YAML anchors/aliases across sibling objects are not supported"}
	}
	if n.Style&yaml.FoldedStyle != 0 {
		return &ParseError{Kind: ErrUnsupportedFoldedScalar, Line: n.Line, Column: n.Column, Message: "folded-scalar descriptions are not supported"}
	}
	if n.Tag == "!ruby/object:Gem::Version::Requirement" {
		return &ParseError{Kind: ErrUnsupportedLegacyClass, Line: n.Line, Column: n.Column, Message: "legacy Gem::Version::Requirement class is not supported"}
	}
	for _, c := range n.Content {
		if err := checkUnsupported(c); err != nil {
			return err
		}
	}
	return nil
}

func parseVersionNode(n *yaml.Node) (rversion.Version, error) {
	if n == nil {
		return rversion.MustParse("0"), nil
	}
	if err := expectTag(n, "Gem::Version"); err != nil {
		return rversion.Version{}, err
	}
	inner := fieldNode(n, "version")
	s := scalarString(inner, "0")
	return rversion.Parse(s)
}

func parseRequirementNode(n *yaml.Node) (rversion.Requirement, error) {
	if n == nil {
		return rversion.ParseRequirement("")
	}
	// legacy alias: `version_requirements` carries the same shape as
	// `requirement` but under Gem::Requirement in older gems.
	if n.Tag != "" && n.Tag != "!ruby/object:Gem::Requirement" && n.Tag != "!!map" {
		return rversion.Requirement{}, &ParseError{
			Kind: ErrTagMismatch, Line: n.Line, Column: n.Column,
			Message: fmt.Sprintf("expected Gem::Requirement, got %q", n.Tag),
		}
	}
	reqsNode := fieldNode(n, "requirements")
	if reqsNode == nil || len(reqsNode.Content) == 0 {
		return rversion.ParseRequirement("")
	}
	var clauses []string
	for _, pair := range reqsNode.Content {
		// each entry is a 2-element sequence: [op, Gem::Version]
		if pair.Kind != yaml.SequenceNode || len(pair.Content) != 2 {
			continue
		}
		op := scalarString(pair.Content[0], "=")
		v, err := parseVersionNode(pair.Content[1])
		if err != nil {
			return rversion.Requirement{}, err
		}
		clauses = append(clauses, op+" "+v.String())
	}
	combined := ""
	for i, c := range clauses {
		if i > 0 {
			combined += ", "
		}
		combined += c
	}
	return rversion.ParseRequirement(combined)
}

func parseDependencyNode(n *yaml.Node) (Dependency, error) {
	if err := expectTag(n, "Gem::Dependency"); err != nil {
		return Dependency{}, err
	}
	name := scalarString(fieldNode(n, "name"), "")
	typeStr := scalarString(fieldNode(n, "type"), ":runtime")
	depType := Runtime
	if typeStr == ":development" {
		depType = Development
	}

	// legacy key: `version_requirements` accepted alongside current
	// `requirement`, in the same structural position.
	reqNode := fieldNode(n, "requirement")
	if reqNode == nil {
		reqNode = fieldNode(n, "version_requirements")
	}
	req, err := parseRequirementNode(reqNode)
	if err != nil {
		return Dependency{}, err
	}
	return Dependency{Name: name, Requirement: req, Type: depType}, nil
}

func stringSlice(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		if c.Value == "" && c.Tag == "!!null" {
			out = append(out, "")
			continue
		}
		var s string
		if err := c.Decode(&s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// stringOrSlice accepts either a scalar ("author@example.com") or a
// sequence (["a@x.com", "b@x.com"]) — gem metadata predates a
// consistent shape for author/email fields across RubyGems versions.
func stringOrSlice(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.SequenceNode {
		return stringSlice(n)
	}
	s := scalarString(n, "")
	if s == "" {
		return nil
	}
	return []string{s}
}

func parseMetadata(n *yaml.Node) OrderedMap {
	var m OrderedMap
	if n == nil || n.Kind != yaml.MappingNode {
		return m
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		m.Set(n.Content[i].Value, n.Content[i+1].Value)
	}
	return m
}

// Parse strictly decodes a single gem specification document.
// Unsupported patterns (folded scalars, cross-object anchors, the
// legacy Gem::Version::Requirement class) fail with a specific
// ErrorKind rather than silently degrading.
func Parse(data []byte) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gemspec: invalid YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("gemspec: empty document")
	}
	root := doc.Content[0]

	if err := checkUnsupported(root); err != nil {
		return nil, err
	}
	if err := expectTag(root, "Gem::Specification"); err != nil {
		return nil, err
	}

	version, err := parseVersionNode(fieldNode(root, "version"))
	if err != nil {
		return nil, err
	}

	var requiredRuby, requiredRubygems *rversion.Requirement
	if n := fieldNode(root, "required_ruby_version"); n != nil {
		r, err := parseRequirementNode(n)
		if err != nil {
			return nil, err
		}
		requiredRuby = &r
	}
	if n := fieldNode(root, "required_rubygems_version"); n != nil {
		r, err := parseRequirementNode(n)
		if err != nil {
			return nil, err
		}
		requiredRubygems = &r
	}

	var deps []Dependency
	if depsNode := fieldNode(root, "dependencies"); depsNode != nil && depsNode.Kind == yaml.SequenceNode {
		for _, d := range depsNode.Content {
			dep, err := parseDependencyNode(d)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dep)
		}
	}

	requirePaths := stringSlice(fieldNode(root, "require_paths"))
	if len(requirePaths) == 0 {
		// tolerated variation: absent require_paths defaults to ["lib"]
		requirePaths = []string{"lib"}
	}

	platform := scalarString(fieldNode(root, "platform"), "ruby")
	if platform == "" {
		platform = "ruby"
	}

	spec := &Spec{
		Name:             scalarString(fieldNode(root, "name"), ""),
		Version:          version,
		Platform:         platform,
		Dependencies:     deps,
		RequiredRuby:     requiredRuby,
		RequiredRubygems: requiredRubygems,
		Executables:      stringSlice(fieldNode(root, "executables")),
		Extensions:       stringSlice(fieldNode(root, "extensions")),
		Authors:          stringOrSlice(fieldNode(root, "authors")),
		Licenses:         stringSlice(fieldNode(root, "licenses")),
		RequirePaths:     requirePaths,
		Metadata:         parseMetadata(fieldNode(root, "metadata")),
		Email:            stringOrSlice(fieldNode(root, "email")),
		Homepage:         scalarString(fieldNode(root, "homepage"), ""),
		Summary:          scalarString(fieldNode(root, "summary"), ""),
		Description:      scalarString(fieldNode(root, "description"), ""),
	}
	return spec, nil
}

// FullName renders name-version[-platform], platform suffix omitted
// for the pure-Ruby sentinel.
func (s *Spec) FullName() string {
	if s.Platform == "" || s.Platform == "ruby" {
		return fmt.Sprintf("%s-%s", s.Name, s.Version)
	}
	return fmt.Sprintf("%s-%s-%s", s.Name, s.Version, s.Platform)
}

// Marshal re-emits the specification as a tagged YAML document in the
// same shape Parse consumes. Map-valued fields (Metadata) preserve
// insertion order; this is the "canonical serializer" §4.I requires
// round-tripping against.
func (s *Spec) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!ruby/object:Gem::Specification"}
	put := func(key string, value *yaml.Node) {
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
	}
	scalar := func(v string) *yaml.Node { return &yaml.Node{Kind: yaml.ScalarNode, Value: v} }
	seq := func(vs []string) *yaml.Node {
		n := &yaml.Node{Kind: yaml.SequenceNode}
		for _, v := range vs {
			n.Content = append(n.Content, scalar(v))
		}
		return n
	}

	put("name", scalar(s.Name))
	put("version", &yaml.Node{
		Kind: yaml.MappingNode, Tag: "!ruby/object:Gem::Version",
		Content: []*yaml.Node{scalar("version"), scalar(s.Version.String())},
	})
	put("platform", scalar(s.Platform))
	put("authors", seq(s.Authors))
	put("email", seq(s.Email))
	put("homepage", scalar(s.Homepage))
	put("summary", scalar(s.Summary))
	put("description", scalar(s.Description))
	put("licenses", seq(s.Licenses))
	put("require_paths", seq(s.RequirePaths))
	put("executables", seq(s.Executables))
	put("extensions", seq(s.Extensions))

	depsNode := &yaml.Node{Kind: yaml.SequenceNode}
	for _, d := range s.Dependencies {
		depsNode.Content = append(depsNode.Content, marshalDependency(d))
	}
	put("dependencies", depsNode)

	if s.RequiredRuby != nil {
		put("required_ruby_version", marshalRequirement(*s.RequiredRuby))
	}
	if s.RequiredRubygems != nil {
		put("required_rubygems_version", marshalRequirement(*s.RequiredRubygems))
	}

	metaNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range s.Metadata.Keys() {
		v, _ := s.Metadata.Get(k)
		metaNode.Content = append(metaNode.Content, scalar(k), scalar(v))
	}
	put("metadata", metaNode)

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func marshalDependency(d Dependency) *yaml.Node {
	typeStr := ":runtime"
	if d.Type == Development {
		typeStr = ":development"
	}
	return &yaml.Node{
		Kind: yaml.MappingNode, Tag: "!ruby/object:Gem::Dependency",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "name"}, {Kind: yaml.ScalarNode, Value: d.Name},
			{Kind: yaml.ScalarNode, Value: "requirement"}, marshalRequirement(d.Requirement),
			{Kind: yaml.ScalarNode, Value: "type"}, {Kind: yaml.ScalarNode, Value: typeStr},
		},
	}
}

func marshalRequirement(r rversion.Requirement) *yaml.Node {
	reqsNode := &yaml.Node{Kind: yaml.SequenceNode}
	for _, c := range r.Constraints() {
		pair := &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: string(c.Op)},
			{
				Kind: yaml.MappingNode, Tag: "!ruby/object:Gem::Version",
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Value: "version"},
					{Kind: yaml.ScalarNode, Value: c.Version.String()},
				},
			},
		}}
		reqsNode.Content = append(reqsNode.Content, pair)
	}
	return &yaml.Node{
		Kind: yaml.MappingNode, Tag: "!ruby/object:Gem::Requirement",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "requirements"}, reqsNode,
		},
	}
}
