package notetemplate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/litlink/internal/models"
)

// ZoteroKeyField is the reserved front-matter key linking a note to its item.
const ZoteroKeyField = "zotero-key"

// FieldMapping says how one item field lands in the front-matter: copied
// under its own name, or fanned out under a set of aliases. The zero value
// is invalid.
type FieldMapping struct {
	copy    bool
	aliases []string
}

// CopyField maps a field onto itself.
func CopyField() FieldMapping { return FieldMapping{copy: true} }

// AliasField maps a field onto each alias. Duplicates collapse.
func AliasField(aliases ...string) FieldMapping {
	m, _ := newAliasMapping(aliases)
	return m
}

func newAliasMapping(aliases []string) (FieldMapping, error) {
	seen := make(map[string]struct{}, len(aliases))
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a == "" {
			return FieldMapping{}, errors.New("alias names must be non-empty")
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	if len(out) == 0 {
		return FieldMapping{}, errors.New("alias list must not be empty")
	}
	return FieldMapping{aliases: out}, nil
}

// IsCopy reports whether the field is copied under its own name.
func (m FieldMapping) IsCopy() bool { return m.copy }

// Aliases returns the alias names, nil for copy mappings.
func (m FieldMapping) Aliases() []string { return append([]string(nil), m.aliases...) }

func (m FieldMapping) valid() bool { return m.copy || len(m.aliases) > 0 }

// MarshalJSON encodes the mapping as true or an alias list.
func (m FieldMapping) MarshalJSON() ([]byte, error) {
	if m.copy {
		return []byte("true"), nil
	}
	return json.Marshal(m.aliases)
}

// UnmarshalJSON accepts true or a non-empty list of alias names.
func (m *FieldMapping) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("true")) {
		*m = CopyField()
		return nil
	}
	var aliases []string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return fmt.Errorf("frontmatter: mapping must be true or a list of alias names, got %s", data)
	}
	parsed, err := newAliasMapping(aliases)
	if err != nil {
		return fmt.Errorf("frontmatter: %w", err)
	}
	*m = parsed
	return nil
}

// UnmarshalYAML accepts true or a non-empty sequence of alias names.
func (m *FieldMapping) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err == nil && b {
			*m = CopyField()
			return nil
		}
	case yaml.SequenceNode:
		var aliases []string
		if err := node.Decode(&aliases); err != nil {
			return fmt.Errorf("frontmatter: line %d: %w", node.Line, err)
		}
		parsed, err := newAliasMapping(aliases)
		if err != nil {
			return fmt.Errorf("frontmatter: line %d: %w", node.Line, err)
		}
		*m = parsed
		return nil
	}
	return fmt.Errorf("frontmatter: line %d: mapping must be true or a list of alias names", node.Line)
}

// FieldsInFrontmatter maps item field names to their front-matter mapping.
type FieldsInFrontmatter map[string]FieldMapping

// DefaultFrontmatter returns the built-in field mapping.
func DefaultFrontmatter() FieldsInFrontmatter {
	return FieldsInFrontmatter{
		"title":   CopyField(),
		"citekey": CopyField(),
		"DOI":     AliasField("doi"),
	}
}

// Validate rejects empty field names and invalid mappings.
func (f FieldsInFrontmatter) Validate() error {
	for name, m := range f {
		if name == "" {
			return errors.New("frontmatter: field name must not be empty")
		}
		if !m.valid() {
			return fmt.Errorf("frontmatter: field %q: mapping must be true or a list of alias names", name)
		}
	}
	return nil
}

func (f FieldsInFrontmatter) clone() FieldsInFrontmatter {
	out := make(FieldsInFrontmatter, len(f))
	for k, v := range f {
		out[k] = FieldMapping{copy: v.copy, aliases: v.Aliases()}
	}
	return out
}

func (f FieldsInFrontmatter) names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Frontmatter is an insertion-ordered set of metadata fields.
type Frontmatter struct {
	keys   []string
	values map[string]any
}

func newFrontmatter() *Frontmatter {
	return &Frontmatter{values: make(map[string]any)}
}

// Set assigns key, keeping its first insertion position.
func (f *Frontmatter) Set(key string, value any) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value stored under key.
func (f *Frontmatter) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (f *Frontmatter) Keys() []string { return append([]string(nil), f.keys...) }

// MarshalYAML emits the fields as a mapping in insertion order.
func (f *Frontmatter) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range f.keys {
		var val yaml.Node
		if err := val.Encode(f.values[k]); err != nil {
			return nil, fmt.Errorf("frontmatter: encode %q: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	return node, nil
}

// DeriveFrontmatter builds the metadata header for item. It reports false
// when no configured field applied beyond the reserved key.
func DeriveFrontmatter(item models.RegularItem, fields FieldsInFrontmatter) (*Frontmatter, bool) {
	fm := newFrontmatter()
	fm.Set(ZoteroKeyField, item.KeyGroupID())

	notEmpty := false
	for _, name := range fields.names() {
		value, ok := item[name]
		if !ok {
			continue
		}
		m := fields[name]
		if m.copy {
			fm.Set(name, value)
		} else {
			for _, alias := range m.aliases {
				fm.Set(alias, value)
			}
		}
		notEmpty = true
	}
	return fm, notEmpty
}

// Stringify prepends fm to body as a YAML front-matter block.
func Stringify(body string, fm *Frontmatter) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	matter := strings.TrimSpace(buf.String())
	return "---\n" + matter + "\n---\n" + ensureNewline(body), nil
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
