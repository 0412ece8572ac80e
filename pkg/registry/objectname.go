package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidObjectName is returned when a string is not a valid object name.
var ErrInvalidObjectName = errors.New("invalid object name")

// Property is a single key=value pair of an ObjectName.
type Property struct {
	Key   string
	Value string
}

// ObjectName identifies a managed object: a domain plus an unordered set of
// key properties, written "domain:key=value[,key=value...]".
//
// An ObjectName may be a pattern:
//   - the domain may contain '*' (any run) and '?' (any single character)
//   - a property value may contain the same wildcards
//   - a trailing "*" entry in the property list ("domain:type=Foo,*")
//     matches names carrying additional properties
//
// Two names are equal when their canonical forms are equal; the canonical
// form lists properties sorted by key.
type ObjectName struct {
	domain          string
	properties      []Property // sorted by key
	propertyPattern bool
}

// ParseObjectName parses s.
func ParseObjectName(s string) (ObjectName, error) {
	domain, list, ok := strings.Cut(s, ":")
	if !ok {
		return ObjectName{}, fmt.Errorf("%w: %q: missing ':'", ErrInvalidObjectName, s)
	}
	if domain == "" {
		return ObjectName{}, fmt.Errorf("%w: %q: empty domain", ErrInvalidObjectName, s)
	}
	if list == "" {
		return ObjectName{}, fmt.Errorf("%w: %q: empty key property list", ErrInvalidObjectName, s)
	}

	name := ObjectName{domain: domain}
	seen := make(map[string]bool)

	for _, entry := range strings.Split(list, ",") {
		if entry == "*" {
			if name.propertyPattern {
				return ObjectName{}, fmt.Errorf("%w: %q: repeated '*'", ErrInvalidObjectName, s)
			}
			name.propertyPattern = true
			continue
		}

		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" || value == "" {
			return ObjectName{}, fmt.Errorf("%w: %q: bad property %q", ErrInvalidObjectName, s, entry)
		}
		if strings.ContainsAny(key, "*?=:") {
			return ObjectName{}, fmt.Errorf("%w: %q: bad key %q", ErrInvalidObjectName, s, key)
		}
		if seen[key] {
			return ObjectName{}, fmt.Errorf("%w: %q: duplicate key %q", ErrInvalidObjectName, s, key)
		}
		seen[key] = true
		name.properties = append(name.properties, Property{Key: key, Value: value})
	}

	sort.Slice(name.properties, func(i, j int) bool {
		return name.properties[i].Key < name.properties[j].Key
	})

	return name, nil
}

// MustParseObjectName is like ParseObjectName but panics on error.
// Intended for constants and tests.
func MustParseObjectName(s string) ObjectName {
	name, err := ParseObjectName(s)
	if err != nil {
		panic(err)
	}
	return name
}

// Domain returns the domain part.
func (n ObjectName) Domain() string {
	return n.domain
}

// Property returns the value of key, or "" if absent.
func (n ObjectName) Property(key string) string {
	for _, p := range n.properties {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Properties returns the key properties sorted by key.
func (n ObjectName) Properties() []Property {
	out := make([]Property, len(n.properties))
	copy(out, n.properties)
	return out
}

// IsZero reports whether n is the zero ObjectName.
func (n ObjectName) IsZero() bool {
	return n.domain == "" && len(n.properties) == 0 && !n.propertyPattern
}

// IsPattern reports whether n contains any wildcard.
func (n ObjectName) IsPattern() bool {
	if n.propertyPattern || strings.ContainsAny(n.domain, "*?") {
		return true
	}
	for _, p := range n.properties {
		if strings.ContainsAny(p.Value, "*?") {
			return true
		}
	}
	return false
}

// String returns the canonical form.
func (n ObjectName) String() string {
	if n.IsZero() {
		return ""
	}

	var b strings.Builder
	b.WriteString(n.domain)
	b.WriteByte(':')
	for i, p := range n.properties {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	if n.propertyPattern {
		if len(n.properties) > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('*')
	}
	return b.String()
}

// Matches reports whether the concrete name target matches pattern n.
// A non-pattern n matches only an equal name.
func (n ObjectName) Matches(target ObjectName) bool {
	if !wildcardMatch(n.domain, target.domain) {
		return false
	}
	if !n.propertyPattern && len(n.properties) != len(target.properties) {
		return false
	}

	for _, p := range n.properties {
		value, ok := target.lookup(p.Key)
		if !ok || !wildcardMatch(p.Value, value) {
			return false
		}
	}
	return true
}

func (n ObjectName) lookup(key string) (string, bool) {
	for _, p := range n.properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// wildcardMatch matches s against pattern where '*' matches any run of
// characters and '?' matches exactly one.
func wildcardMatch(pattern, s string) bool {
	p := []rune(pattern)
	str := []rune(s)

	// Classic two-pointer glob with single-star backtracking.
	pi, si := 0, 0
	starP, starS := -1, 0
	for si < len(str) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == str[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			starP = pi
			starS = si
			pi++
		case starP >= 0:
			starS++
			si = starS
			pi = starP + 1
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
