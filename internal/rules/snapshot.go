package rules

import "strings"

// Replacement is a replace-if rule: values equal to Match become Then.
type Replacement struct {
	Match string
	Then  string
}

// Snapshot is the per-run projection of a Rules table. It is built once and
// only read afterwards, so one Snapshot may serve concurrent readers.
type Snapshot struct {
	// Headers lists the output headers, source order, ignored columns removed.
	Headers []string

	width          int
	keep           []int
	ignoreIfEmpty  []int
	ignoreIfEquals map[int]string
	trim           map[int]bool
	replaceIfEmpty map[int]string
	replaceWith    map[int]string
	replaceIf      map[int]Replacement
}

// Snapshot derives the lookup tables for one transform run.
func (r *Rules) Snapshot() *Snapshot {
	s := &Snapshot{
		width:          len(r.headers),
		ignoreIfEquals: map[int]string{},
		trim:           map[int]bool{},
		replaceIfEmpty: map[int]string{},
		replaceWith:    map[int]string{},
		replaceIf:      map[int]Replacement{},
	}
	for i, rs := range r.sets {
		f, p := rs.Filter, rs.Process
		if !f.IgnoreColumn {
			s.keep = append(s.keep, i)
			s.Headers = append(s.Headers, r.headers[i])
		}
		if f.IgnoreRowIfEmpty {
			s.ignoreIfEmpty = append(s.ignoreIfEmpty, i)
		}
		if f.IgnoreRowIf {
			s.ignoreIfEquals[i] = f.IgnoreRowIfText
		}
		if p.Trim {
			s.trim[i] = true
		}
		if p.ReplaceIfEmpty {
			s.replaceIfEmpty[i] = p.ReplaceIfEmptyValue
		}
		if p.ReplaceWith {
			s.replaceWith[i] = p.ReplaceWithValue
		}
		if p.ReplaceIf {
			s.replaceIf[i] = Replacement{Match: p.ReplaceIfValue, Then: p.ReplaceThenValue}
		}
	}
	return s
}

// Width is the number of source columns the snapshot was built for.
func (s *Snapshot) Width() int { return s.width }

// Skip evaluates the row filters against the untransformed row.
func (s *Snapshot) Skip(row []string) bool {
	for _, i := range s.ignoreIfEmpty {
		if i < len(row) && row[i] == "" {
			return true
		}
	}
	for i, text := range s.ignoreIfEquals {
		if i < len(row) && row[i] == text {
			return true
		}
	}
	return false
}

// Transform removes ignored columns and applies trim, replace-if-empty,
// replace-with and replace-if, in that order, to each kept value. The
// returned slice always has len(s.Headers) entries.
func (s *Snapshot) Transform(row []string) []string {
	out := make([]string, len(s.keep))
	for j, i := range s.keep {
		var v string
		if i < len(row) {
			v = row[i]
		}
		if s.trim[i] {
			v = strings.TrimSpace(v)
		}
		if repl, ok := s.replaceIfEmpty[i]; ok && v == "" {
			v = repl
		}
		if repl, ok := s.replaceWith[i]; ok {
			v = repl
		}
		if r, ok := s.replaceIf[i]; ok && v == r.Match {
			v = r.Then
		}
		out[j] = v
	}
	return out
}

// Process is Skip followed by Transform. The bool is false for dropped rows.
func (s *Snapshot) Process(row []string) ([]string, bool) {
	if s.Skip(row) {
		return nil, false
	}
	return s.Transform(row), true
}
