package rversion

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a requirement comparison operator.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpPessimistic  Op = "~>"
)

// Constraint is one (op, version) clause of a Requirement.
type Constraint struct {
	Op      Op
	Version Version
}

// Requirement is an AND-conjunction of constraints. An empty
// Requirement is equivalent to ">= 0" (matches anything final).
type Requirement struct {
	constraints []Constraint
	original    string
}

var clauseRegexp = regexp.MustCompile(`^(>=|<=|>|<|!=|==|=|~>)?\s*(.+?)\s*$`)

// ParseRequirement parses a comma-separated list of constraints, e.g.
// "~> 1.2, >= 1.2.3". An empty or all-whitespace string is the trivial
// ">= 0" requirement.
func ParseRequirement(s string) (Requirement, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == ">= 0" {
		return Requirement{original: s}, nil
	}

	var constraints []Constraint
	for _, part := range strings.Split(trimmed, ",") {
		clause := strings.TrimSpace(part)
		if clause == "" {
			continue
		}

		if strings.HasPrefix(clause, "~>") {
			verStr := strings.TrimSpace(clause[2:])
			if verStr == "" {
				return Requirement{}, fmt.Errorf("rversion: invalid constraint %q", clause)
			}
			lower, err := Parse(verStr)
			if err != nil {
				return Requirement{}, fmt.Errorf("rversion: invalid ~> constraint %q: %w", clause, err)
			}
			constraints = append(constraints,
				Constraint{Op: OpGreaterEqual, Version: lower},
				Constraint{Op: OpLess, Version: lower.Bump()},
			)
			continue
		}

		m := clauseRegexp.FindStringSubmatch(clause)
		if m == nil {
			return Requirement{}, fmt.Errorf("rversion: invalid constraint %q", clause)
		}
		op := normalizeOp(m[1])
		verStr := strings.TrimSpace(m[2])
		if verStr == "" {
			return Requirement{}, fmt.Errorf("rversion: invalid constraint %q", clause)
		}
		ver, err := Parse(verStr)
		if err != nil {
			return Requirement{}, fmt.Errorf("rversion: invalid version %q in constraint %q: %w", verStr, clause, err)
		}
		constraints = append(constraints, Constraint{Op: op, Version: ver})
	}

	return Requirement{constraints: constraints, original: s}, nil
}

func normalizeOp(s string) Op {
	switch s {
	case "", "==":
		return OpEqual
	default:
		return Op(s)
	}
}

// String renders the original requirement text, or ">= 0" if empty.
func (r Requirement) String() string {
	if strings.TrimSpace(r.original) == "" {
		return ">= 0"
	}
	return r.original
}

// Constraints exposes the parsed clauses.
func (r Requirement) Constraints() []Constraint {
	out := make([]Constraint, len(r.constraints))
	copy(out, r.constraints)
	return out
}

// referencesPrerelease reports whether any constraint's version is
// itself a prerelease — per spec, only then may this requirement match
// prerelease versions without the caller opting in.
func (r Requirement) referencesPrerelease() bool {
	for _, c := range r.constraints {
		if c.Version.Prerelease() {
			return true
		}
	}
	return false
}

// Satisfies reports whether v satisfies every constraint, honoring the
// prerelease policy: a prerelease version matches only if the
// requirement itself references a prerelease, unless allowPrerelease
// is set.
func (r Requirement) Satisfies(v Version, allowPrerelease bool) bool {
	if v.Prerelease() && !allowPrerelease && !r.referencesPrerelease() {
		return false
	}
	for _, c := range r.constraints {
		if !satisfiesConstraint(v, c) {
			return false
		}
	}
	return true
}

func satisfiesConstraint(v Version, c Constraint) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	default:
		return true
	}
}
