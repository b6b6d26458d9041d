package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrColumnRange   = errors.New("column index out of range")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownKind   = errors.New("unknown rule")
	ErrInvalidRule   = errors.New("invalid rule")
)

// FilterOption decides whether a column or a row is dropped.
type FilterOption struct {
	IgnoreColumn     bool   `yaml:"ignore_column,omitempty" json:"ignore_column"`
	IgnoreRowIfEmpty bool   `yaml:"ignore_row_if_empty,omitempty" json:"ignore_row_if_empty"`
	IgnoreRowIf      bool   `yaml:"ignore_row_if,omitempty" json:"ignore_row_if"`
	IgnoreRowIfText  string `yaml:"ignore_row_if_text,omitempty" json:"ignore_row_if_text"`
}

// ProcessOption rewrites the values of a kept column.
type ProcessOption struct {
	Trim                bool   `yaml:"trim,omitempty" json:"trim"`
	ReplaceIfEmpty      bool   `yaml:"replace_if_empty,omitempty" json:"replace_if_empty"`
	ReplaceIfEmptyValue string `yaml:"replace_if_empty_value,omitempty" json:"replace_if_empty_value"`
	ReplaceWith         bool   `yaml:"replace_with,omitempty" json:"replace_with"`
	ReplaceWithValue    string `yaml:"replace_with_value,omitempty" json:"replace_with_value"`
	ReplaceIf           bool   `yaml:"replace_if,omitempty" json:"replace_if"`
	ReplaceIfValue      string `yaml:"replace_if_value,omitempty" json:"replace_if_value"`
	ReplaceThenValue    string `yaml:"replace_then_value,omitempty" json:"replace_then_value"`
}

// RuleSet is the filter and process configuration of one column.
type RuleSet struct {
	Filter  FilterOption  `yaml:"filter,omitempty" json:"filter"`
	Process ProcessOption `yaml:"process,omitempty" json:"process"`
}

// IsDirty reports whether any field differs from its zero value.
func (r RuleSet) IsDirty() bool {
	return r != RuleSet{}
}

// ColumnIndex is a column position validated against a header list.
type ColumnIndex struct{ i int }

func (c ColumnIndex) Int() int { return c.i }

// Rules holds one RuleSet per source column.
type Rules struct {
	headers []string
	sets    []RuleSet
}

// New returns an empty rule table for the given headers.
func New(headers []string) *Rules {
	h := make([]string, len(headers))
	copy(h, headers)
	return &Rules{headers: h, sets: make([]RuleSet, len(headers))}
}

func (r *Rules) Len() int { return len(r.headers) }

func (r *Rules) Headers() []string {
	out := make([]string, len(r.headers))
	copy(out, r.headers)
	return out
}

func (r *Rules) Header(c ColumnIndex) string { return r.headers[c.i] }

// Index validates a 0-based position.
func (r *Rules) Index(i int) (ColumnIndex, error) {
	if i < 0 || i >= len(r.headers) {
		return ColumnIndex{}, fmt.Errorf("%w: %d (have %d columns)", ErrColumnRange, i, len(r.headers))
	}
	return ColumnIndex{i}, nil
}

// Lookup resolves a header name or, failing that, a 0-based position
// written as digits. An exact header match wins over a case-insensitive one.
func (r *Rules) Lookup(name string) (ColumnIndex, error) {
	key := strings.TrimSpace(name)
	fold := -1
	for i, h := range r.headers {
		h = strings.TrimSpace(h)
		if h == key {
			return ColumnIndex{i}, nil
		}
		if fold < 0 && strings.EqualFold(h, key) {
			fold = i
		}
	}
	if fold >= 0 {
		return ColumnIndex{fold}, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		return r.Index(n)
	}
	return ColumnIndex{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

func (r *Rules) Get(c ColumnIndex) RuleSet { return r.sets[c.i] }

func (r *Rules) Set(c ColumnIndex, rs RuleSet) { r.sets[c.i] = rs }

// Apply mutates one field of a column's RuleSet.
func (r *Rules) Apply(c ColumnIndex, opt Option) error {
	if opt.Kind <= KindNone || int(opt.Kind) >= len(setters) {
		return fmt.Errorf("%w: %d", ErrUnknownKind, opt.Kind)
	}
	setters[opt.Kind](&r.sets[c.i], opt)
	return nil
}

// Dirty reports whether any column carries a rule.
func (r *Rules) Dirty() bool {
	for _, s := range r.sets {
		if s.IsDirty() {
			return true
		}
	}
	return false
}

// Kind names a single rule that can be switched on a column.
type Kind int

const (
	KindNone Kind = iota
	KindIgnoreColumn
	KindIgnoreIfEmpty
	KindIgnoreIf
	KindTrim
	KindReplaceIfEmpty
	KindReplaceWith
	KindReplaceIf
)

var kindNames = [...]string{
	KindNone:           "none",
	KindIgnoreColumn:   "ignore-column",
	KindIgnoreIfEmpty:  "ignore-if-empty",
	KindIgnoreIf:       "ignore-if",
	KindTrim:           "trim",
	KindReplaceIfEmpty: "replace-if-empty",
	KindReplaceWith:    "replace-with",
	KindReplaceIf:      "replace-if",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind accepts the dashed names used on the command line.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := KindIgnoreColumn; int(k) < len(kindNames); k++ {
		if kindNames[k] == s || strings.ReplaceAll(kindNames[k], "-", "_") == s {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Option is one rule toggle. Value carries the text argument and Then the
// replacement used by KindReplaceIf.
type Option struct {
	Kind    Kind
	Enabled bool
	Value   string
	Then    string
}

var setters = [...]func(*RuleSet, Option){
	KindNone: func(*RuleSet, Option) {},
	KindIgnoreColumn: func(rs *RuleSet, o Option) {
		rs.Filter.IgnoreColumn = o.Enabled
	},
	KindIgnoreIfEmpty: func(rs *RuleSet, o Option) {
		rs.Filter.IgnoreRowIfEmpty = o.Enabled
	},
	KindIgnoreIf: func(rs *RuleSet, o Option) {
		rs.Filter.IgnoreRowIf = o.Enabled
		rs.Filter.IgnoreRowIfText = o.Value
	},
	KindTrim: func(rs *RuleSet, o Option) {
		rs.Process.Trim = o.Enabled
	},
	KindReplaceIfEmpty: func(rs *RuleSet, o Option) {
		rs.Process.ReplaceIfEmpty = o.Enabled
		rs.Process.ReplaceIfEmptyValue = o.Value
	},
	KindReplaceWith: func(rs *RuleSet, o Option) {
		rs.Process.ReplaceWith = o.Enabled
		rs.Process.ReplaceWithValue = o.Value
	},
	KindReplaceIf: func(rs *RuleSet, o Option) {
		rs.Process.ReplaceIf = o.Enabled
		rs.Process.ReplaceIfValue = o.Value
		rs.Process.ReplaceThenValue = o.Then
	},
}

// ParseAssignment reads "<column>:<rule>[=<value>]". The replace-if rule
// takes "<match>=><replacement>" as its value. A leading "no-" on the rule
// switches it off.
func ParseAssignment(s string) (column string, opt Option, err error) {
	col, rest, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(col) == "" {
		return "", Option{}, fmt.Errorf("%w %q (want <column>:<rule>[=value])", ErrInvalidRule, s)
	}
	name, value, hasValue := strings.Cut(rest, "=")
	opt.Enabled = true
	if n, found := strings.CutPrefix(strings.TrimSpace(name), "no-"); found {
		name = n
		opt.Enabled = false
	}
	kind, err := ParseKind(name)
	if err != nil {
		return "", Option{}, err
	}
	opt.Kind = kind
	switch kind {
	case KindIgnoreIf, KindReplaceIfEmpty, KindReplaceWith:
		if !hasValue && opt.Enabled {
			return "", Option{}, fmt.Errorf("%w: %s needs a value: %q", ErrInvalidRule, kind, s)
		}
		opt.Value = value
	case KindReplaceIf:
		if opt.Enabled {
			match, then, ok := strings.Cut(value, "=>")
			if !hasValue || !ok {
				return "", Option{}, fmt.Errorf("%w: %s needs <match>=><replacement>: %q", ErrInvalidRule, kind, s)
			}
			opt.Value, opt.Then = match, then
		}
	default:
		if hasValue {
			return "", Option{}, fmt.Errorf("%w: %s takes no value: %q", ErrInvalidRule, kind, s)
		}
	}
	return strings.TrimSpace(col), opt, nil
}

// ApplyAssignments parses and applies each assignment in order.
func (r *Rules) ApplyAssignments(assignments []string) error {
	for _, a := range assignments {
		col, opt, err := ParseAssignment(a)
		if err != nil {
			return err
		}
		idx, err := r.Lookup(col)
		if err != nil {
			return err
		}
		if err := r.Apply(idx, opt); err != nil {
			return err
		}
	}
	return nil
}
