package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const defaultSection = "DEFAULT"

// section is an ordered set of key/value pairs.
type section struct {
	name   string
	keys   []string
	values map[string]string
}

func newSection(name string) *section {
	return &section{name: name, values: make(map[string]string)}
}

func (s *section) set(key, value string) {
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// document is a parsed definition file. Lookups fall back to the DEFAULT
// section.
type document struct {
	sections map[string]*section
	defaults *section
}

func newDocument() *document {
	return &document{
		sections: make(map[string]*section),
		defaults: newSection(defaultSection),
	}
}

func (d *document) section(name string) *section {
	if name == defaultSection {
		return d.defaults
	}
	sec, ok := d.sections[name]
	if !ok {
		sec = newSection(name)
		d.sections[name] = sec
	}
	return sec
}

func (d *document) hasSection(name string) bool {
	_, ok := d.sections[name]
	return ok
}

// get returns the value of key in the named section, or the DEFAULT value.
func (d *document) get(name, key string) (string, bool) {
	if sec, ok := d.sections[name]; ok {
		if v, ok := sec.values[key]; ok {
			return v, true
		}
	}
	v, ok := d.defaults.values[key]
	return v, ok
}

// items returns the keys of the named section in file order, followed by
// DEFAULT keys the section does not override.
func (d *document) items(name string) []string {
	var keys []string
	sec, ok := d.sections[name]
	if ok {
		keys = append(keys, sec.keys...)
	}
	for _, k := range d.defaults.keys {
		if ok {
			if _, overridden := sec.values[k]; overridden {
				continue
			}
		}
		keys = append(keys, k)
	}
	return keys
}

var iniOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	PreserveSurroundedQuote:    true,
	KeyValueDelimiters:         "=:",
}

// parseINI reads a ConfigParser style file.
func parseINI(data []byte) (*document, error) {
	f, err := ini.LoadSources(iniOptions, data)
	if err != nil {
		return nil, fmt.Errorf("error parsing INI: %w", err)
	}

	doc := newDocument()
	for _, sec := range f.Sections() {
		if sec.Name() == defaultSection && len(sec.Keys()) == 0 {
			continue
		}
		target := doc.section(sec.Name())
		for _, key := range sec.Keys() {
			target.set(key.Name(), trimContinuation(key.Value()))
		}
	}
	return doc, nil
}

// trimContinuation strips every line of a multi-line value, as ConfigParser
// does with continuation lines.
func trimContinuation(value string) string {
	if !strings.Contains(value, "\n") {
		return value
	}
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimRightFunc(strings.Join(lines, "\n"), unicode.IsSpace)
}

// parseYAML reads a definition written as a YAML mapping of sections. Section
// values are scalars; a sequence of scalars is joined with commas, so
// responses may be written as a list.
func parseYAML(data []byte) (*document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("error parsing YAML: empty document")
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("error parsing YAML: line %d: expected a mapping of sections", top.Line)
	}

	doc := newDocument()
	for i := 0; i+1 < len(top.Content); i += 2 {
		name, body := top.Content[i], top.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("error parsing YAML: line %d: section %q is not a mapping", body.Line, name.Value)
		}

		target := doc.section(name.Value)
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, value := body.Content[j], body.Content[j+1]
			text, err := scalarText(value)
			if err != nil {
				return nil, fmt.Errorf("error parsing YAML: line %d: key %q: %w", value.Line, key.Value, err)
			}
			target.set(key.Value, text)
		}
	}
	return doc, nil
}

func scalarText(n *yaml.Node) (string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("nested values are not supported")
			}
			parts = append(parts, item.Value)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("expected a scalar or a list of scalars")
	}
}

// readDocument parses path according to its extension.
func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading definition file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseINI(data)
	}
}
