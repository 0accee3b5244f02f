package lookup

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/reelquery/reelquery/internal/entity"
)

//go:embed overrides.yaml
var defaultOverrides []byte

// OverrideTable maps normalized names to fixed ids. Entries win over the
// cache and the search API, so regional aliases and ambiguous names resolve
// the same way everywhere.
type OverrideTable struct {
	Version string
	entries map[entity.Kind]map[string]int
}

type overrideFile struct {
	Version string                    `yaml:"version"`
	Entries map[string]map[string]int `yaml:"entries"`
}

// ParseOverrides reads a YAML override table.
func ParseOverrides(data []byte) (*OverrideTable, error) {
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing override table: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("override table has no version")
	}

	t := &OverrideTable{Version: f.Version, entries: make(map[entity.Kind]map[string]int)}
	for kind, names := range f.Entries {
		k := entity.Kind(kind)
		switch k {
		case entity.KindPerson, entity.KindGenre, entity.KindCompany, entity.KindNetwork, entity.KindKeyword:
		default:
			return nil, fmt.Errorf("override table: unknown kind %q", kind)
		}
		m := make(map[string]int, len(names))
		for name, id := range names {
			if id <= 0 {
				return nil, fmt.Errorf("override table: %s %q has invalid id %d", kind, name, id)
			}
			m[Normalize(name)] = id
		}
		t.entries[k] = m
	}
	return t, nil
}

// DefaultOverrides returns the built-in table.
func DefaultOverrides() *OverrideTable {
	t, err := ParseOverrides(defaultOverrides)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadOverrides reads a table from path. An empty path yields the built-in
// table.
func LoadOverrides(path string) (*OverrideTable, error) {
	if path == "" {
		return DefaultOverrides(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading override table: %w", err)
	}
	return ParseOverrides(data)
}

// Lookup returns the fixed id of name, if any.
func (t *OverrideTable) Lookup(kind entity.Kind, name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	id, ok := t.entries[kind][Normalize(name)]
	return id, ok
}

// Len returns the number of entries.
func (t *OverrideTable) Len() int {
	n := 0
	for _, m := range t.entries {
		n += len(m)
	}
	return n
}

// Normalize folds a name for lookup: lower case, "&" read as "and",
// punctuation dropped and whitespace collapsed.
func Normalize(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "&", " and ")
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '.':
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
