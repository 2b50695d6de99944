// Package rversion implements Ruby/RubyGems-style version ordering and
// requirement matching: a version is a list of Number|String segments,
// compared lexicographically, with prerelease detection and the
// pessimistic (~>) operator.
package rversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one component of a version: either a numeric or a string
// value. Exactly one of the two is meaningful, discriminated by Numeric.
type Segment struct {
	Numeric bool
	Num     uint64
	Str     string
}

func (s Segment) equal(other Segment) bool {
	if s.Numeric != other.Numeric {
		return false
	}
	if s.Numeric {
		return s.Num == other.Num
	}
	return s.Str == other.Str
}

func (s Segment) String() string {
	if s.Numeric {
		return strconv.FormatUint(s.Num, 10)
	}
	return s.Str
}

// Version is a parsed Ruby/gem version: an ordered list of segments.
type Version struct {
	original string
	segments []Segment
}

// Parse parses a version string into its segment sequence. "-" and "_"
// are treated as segment separators alongside ".", matching RubyGems'
// own normalization of prerelease suffixes like "1.0.0-beta1" and
// "1.0.0_beta1".
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		trimmed = "0"
	}

	normalized := strings.NewReplacer("-", ".", "_", ".").Replace(trimmed)
	parts := strings.Split(normalized, ".")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Version{}, fmt.Errorf("rversion: invalid version %q: empty segment", s)
		}
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			segments = append(segments, Segment{Numeric: true, Num: n})
			continue
		}
		segments = append(segments, Segment{Str: strings.ToLower(part)})
	}

	return Version{original: trimmed, segments: trimTrailingNumericZeros(segments)}, nil
}

// MustParse is Parse but panics on error; for use with literal constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// trailing numeric zeros are stripped for canonical comparison; a
// trailing string segment is never stripped, so scanning stops the
// moment a non-zero-numeric segment (string or nonzero number) is seen.
func trimTrailingNumericZeros(segments []Segment) []Segment {
	i := len(segments) - 1
	for i > 0 && segments[i].Numeric && segments[i].Num == 0 {
		i--
	}
	if i == 0 && segments[0].Numeric && segments[0].Num == 0 {
		return []Segment{{Numeric: true, Num: 0}}
	}
	return segments[:i+1]
}

// String renders the version in its canonical (trailing-zero-trimmed) form.
func (v Version) String() string {
	if len(v.segments) == 0 {
		return "0"
	}
	parts := make([]string, len(v.segments))
	for i, s := range v.segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Segments exposes the parsed segment slice (read-only use).
func (v Version) Segments() []Segment {
	out := make([]Segment, len(v.segments))
	copy(out, v.segments)
	return out
}

// Prerelease reports whether any segment is a string, per spec: a
// version is prerelease iff any segment is a string (e.g. 1.0.0.beta1).
func (v Version) Prerelease() bool {
	for _, s := range v.segments {
		if !s.Numeric {
			return true
		}
	}
	return false
}

func segmentAt(segments []Segment, i int) Segment {
	if i >= 0 && i < len(segments) {
		return segments[i]
	}
	return Segment{Numeric: true, Num: 0}
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other. Segments compare lexicographically; when one side is
// numeric and the other a string at the same position, the numeric
// segment sorts greater (final releases sort after prereleases).
func (v Version) Compare(other Version) int {
	max := len(v.segments)
	if len(other.segments) > max {
		max = len(other.segments)
	}
	for i := 0; i < max; i++ {
		l := segmentAt(v.segments, i)
		r := segmentAt(other.segments, i)
		if l.equal(r) {
			continue
		}
		switch {
		case l.Numeric && r.Numeric:
			if l.Num < r.Num {
				return -1
			}
			return 1
		case l.Numeric:
			return 1
		case r.Numeric:
			return -1
		default:
			if l.Str < r.Str {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether v < other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v == other (by comparison, not original text).
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// Bump drops trailing string segments, then (if two or more numeric
// segments remain) drops the last one and increments the new last one.
// Used to compute the exclusive upper bound of a ~> constraint.
func (v Version) Bump() Version {
	segments := make([]Segment, len(v.segments))
	copy(segments, v.segments)

	i := len(segments)
	for i > 0 && !segments[i-1].Numeric {
		i--
	}
	segments = segments[:i]

	if len(segments) == 0 {
		segments = []Segment{{Numeric: true, Num: 0}}
	}

	if len(segments) >= 2 {
		segments = segments[:len(segments)-1]
	}
	last := len(segments) - 1
	segments[last] = Segment{Numeric: true, Num: segments[last].Num + 1}

	return Version{original: "", segments: segments}
}
