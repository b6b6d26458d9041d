package rules

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/fileflow-cli/internal/utils"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a rule table.
type File struct {
	Source  string  `yaml:"source,omitempty"`
	Columns []Entry `yaml:"columns"`
}

// Entry addresses a column by header name or 0-based index. When Index is
// set it wins and Column is informational.
type Entry struct {
	Column  string `yaml:"column"`
	Index   *int   `yaml:"index,omitempty"`
	RuleSet `yaml:",inline"`
}

// LoadFile reads a YAML rule file and resolves it against headers.
func LoadFile(path string, headers []string) (*Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	r := New(headers)
	for n, e := range f.Columns {
		var idx ColumnIndex
		if e.Index != nil {
			idx, err = r.Index(*e.Index)
		} else {
			idx, err = r.Lookup(e.Column)
		}
		if err != nil {
			return nil, fmt.Errorf("rules entry %d: %w", n+1, err)
		}
		r.Set(idx, e.RuleSet)
	}
	return r, nil
}

// ToFile lists every column so the result doubles as an editable template.
// Columns whose header does not resolve back to them, such as duplicates or
// empty names, also carry their index.
func (r *Rules) ToFile(source string) File {
	f := File{Source: source, Columns: make([]Entry, 0, len(r.headers))}
	for i, h := range r.headers {
		e := Entry{Column: h, RuleSet: r.sets[i]}
		if idx, err := r.Lookup(h); err != nil || idx.i != i {
			n := i
			e.Index = &n
		}
		f.Columns = append(f.Columns, e)
	}
	return f
}

// SaveFile writes the rule table as YAML, replacing path atomically.
func (r *Rules) SaveFile(path, source string) error {
	b, err := yaml.Marshal(r.ToFile(source))
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	return utils.SafeWriteFile(path, b)
}
