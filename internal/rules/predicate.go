package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Params is the per-request parameter map: form body, query string and path
// placeholders, merged in that order.
type Params map[string]string

// Lookup returns the value of key and whether it is present.
func (p Params) Lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Params) Merge(other map[string]string) {
	for k, v := range other {
		p[k] = v
	}
}

// String renders the map with sorted keys, for diagnostics.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", k, p[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Mode selects how a Predicate compares the request value.
type Mode int

const (
	// Exact matches when the value is present and equal.
	Exact Mode = iota
	// Inverse matches when the value is present and different.
	Inverse
	// OptionalAbsentOrMatch matches when the value is absent or equal.
	OptionalAbsentOrMatch
)

func (m Mode) String() string {
	switch m {
	case Exact:
		return "exact"
	case Inverse:
		return "inverse"
	case OptionalAbsentOrMatch:
		return "optional"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Predicate is one v_<key> condition of a response.
type Predicate struct {
	Key      string
	Expected string
	Mode     Mode
}

// ParsePredicate builds a predicate from a raw definition value. A leading
// '!' selects Inverse, a leading '~' selects OptionalAbsentOrMatch.
func ParsePredicate(key, raw string) Predicate {
	switch {
	case strings.HasPrefix(raw, "!"):
		return Predicate{Key: key, Expected: raw[1:], Mode: Inverse}
	case strings.HasPrefix(raw, "~"):
		return Predicate{Key: key, Expected: raw[1:], Mode: OptionalAbsentOrMatch}
	default:
		return Predicate{Key: key, Expected: raw, Mode: Exact}
	}
}

// Matches reports whether actual satisfies the predicate. present is false
// when the request did not carry the key at all.
func (p Predicate) Matches(actual string, present bool) bool {
	switch p.Mode {
	case Inverse:
		return present && actual != p.Expected
	case OptionalAbsentOrMatch:
		return !present || actual == p.Expected
	default:
		return present && actual == p.Expected
	}
}

// Eval looks the predicate's key up in params and matches it.
func (p Predicate) Eval(params Params) bool {
	actual, present := params.Lookup(p.Key)
	return p.Matches(actual, present)
}
