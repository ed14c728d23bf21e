// Package name implements parsing and path mapping for grove's dotted
// hierarchical resource names.
//
// A name like "prototypes.awesome-project" addresses a node in the naming
// tree. Each dot-separated segment is one level; the full segment sequence
// is a unique path from the implicit root. Names map deterministically to
// nested directory paths and two distinct names never map to the same path.
package name

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Name errors
var (
	ErrInvalidName = errors.New("invalid name")
)

// Limits enforced uniformly on all parsed names.
const (
	MaxDepth  = 16
	MaxLength = 255
)

// Name is a parsed, validated dotted identifier.
// The zero value is invalid; obtain one through Parse.
type Name struct {
	segments []string
}

// Parse validates raw against the naming grammar and returns the parsed Name.
//
// Grammar: segment = [A-Za-z0-9_-]+ ; name = segment ('.' segment)* ;
// case-sensitive. Empty names, leading/trailing/double dots, names deeper
// than MaxDepth, and names longer than MaxLength are rejected.
func Parse(raw string) (Name, error) {
	if raw == "" {
		return Name{}, fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(raw) > MaxLength {
		return Name{}, fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, raw, MaxLength)
	}

	segments := strings.Split(raw, ".")
	if len(segments) > MaxDepth {
		return Name{}, fmt.Errorf("%w: %q exceeds %d segments", ErrInvalidName, raw, MaxDepth)
	}
	for _, seg := range segments {
		if !ValidSegment(seg) {
			return Name{}, fmt.Errorf("%w: %q has invalid segment %q", ErrInvalidName, raw, seg)
		}
	}

	return Name{segments: segments}, nil
}

// MustParse parses raw and panics on failure. For tests and constants only.
func MustParse(raw string) Name {
	n, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// ValidSegment reports whether s is a valid single name segment
// (non-empty, only ASCII letters, digits, underscore, and hyphen).
// Link aliases share this grammar since they become directory entries.
func ValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// String returns the dotted form, satisfying fmt.Stringer.
func (n Name) String() string {
	return strings.Join(n.segments, ".")
}

// Segments returns a copy of the name's segments in order.
func (n Name) Segments() []string {
	out := make([]string, len(n.segments))
	copy(out, n.segments)
	return out
}

// Depth returns the number of segments.
func (n Name) Depth() int {
	return len(n.segments)
}

// IsZero reports whether this is an uninitialized zero-value Name.
func (n Name) IsZero() bool {
	return len(n.segments) == 0
}

// Equal reports whether two names address the same node.
func (n Name) Equal(other Name) bool {
	return n.String() == other.String()
}

// HasPrefix reports whether prefix addresses n itself or one of its
// ancestors in the naming tree. Every name has the zero-value Name
// (the implicit root) as a prefix.
func (n Name) HasPrefix(prefix Name) bool {
	if len(prefix.segments) > len(n.segments) {
		return false
	}
	for i, seg := range prefix.segments {
		if n.segments[i] != seg {
			return false
		}
	}
	return true
}

// Path returns the relative filesystem path for the name. Every non-final
// segment becomes a directory component prefixed with an underscore; the
// final segment is used verbatim. The mapping is injective over valid
// names: "a.b.c" maps to "_a/_b/c" and no other valid name maps there.
func (n Name) Path() string {
	if n.IsZero() {
		return ""
	}
	parts := make([]string, len(n.segments))
	for i, seg := range n.segments[:len(n.segments)-1] {
		parts[i] = "_" + seg
	}
	parts[len(parts)-1] = n.segments[len(n.segments)-1]
	return filepath.Join(parts...)
}

// MarshalText implements encoding.TextMarshaler as the dotted form.
func (n Name) MarshalText() ([]byte, error) {
	if n.IsZero() {
		return nil, fmt.Errorf("cannot marshal zero-value Name")
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
