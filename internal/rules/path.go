package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderToken = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_.]*)`)

const placeholderCapture = `([A-Za-z0-9@_.]+)`

// PathPattern is a compiled call path. Every $name token of the declared path
// is a capture group; names are kept in capture order.
type PathPattern struct {
	source string
	re     *regexp.Regexp
	names  []string
}

// CompilePath compiles a declared call path. Leading and trailing slashes are
// ignored, the rest of the path is a regular expression that must match the
// whole request path.
func CompilePath(path string) (*PathPattern, error) {
	source := strings.Trim(path, "/")

	var names []string
	expr := placeholderToken.ReplaceAllStringFunc(source, func(token string) string {
		names = append(names, token[1:])
		return placeholderCapture
	})

	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	if re.NumSubexp() != len(names) {
		return nil, fmt.Errorf("invalid path %q: %d capture groups for %d placeholders", path, re.NumSubexp(), len(names))
	}

	return &PathPattern{source: source, re: re, names: names}, nil
}

// Match matches a request path (already stripped of surrounding slashes) and
// returns the placeholder values by name.
func (p *PathPattern) Match(path string) (map[string]string, bool) {
	groups := p.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}

	values := make(map[string]string, len(p.names))
	for i, name := range p.names {
		values[name] = groups[i+1]
	}
	return values, true
}

// Names returns the placeholder names in capture order.
func (p *PathPattern) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *PathPattern) String() string {
	return p.source
}
