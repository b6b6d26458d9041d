package cmd

import (
	"fmt"

	cfgpkg "github.com/KaramelBytes/fileflow-cli/internal/config"
	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/rules"
	"github.com/KaramelBytes/fileflow-cli/internal/transform"
)

// settings returns the loaded configuration, or the defaults when loading
// was skipped.
func settings() *cfgpkg.Global {
	if cfg == nil {
		cfg = cfgpkg.Default()
	}
	return cfg
}

func sourceOptions() (dataset.Options, error) {
	c := settings()
	delim, err := c.DelimiterRune()
	if err != nil {
		return dataset.Options{}, err
	}
	policy, err := dataset.ParseMalformedPolicy(c.OnMalformed)
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Delimiter:  delim,
		SheetName:  flagSheetName,
		SheetIndex: flagSheetIndex,
		Malformed:  policy,
	}, nil
}

func openSource(path string) (*dataset.File, error) {
	opt, err := sourceOptions()
	if err != nil {
		return nil, err
	}
	return dataset.Open(path, opt)
}

// loadRules builds the rule table from an optional YAML file, then applies
// the inline assignments on top.
func loadRules(src *dataset.File, file string, assignments []string) (*rules.Rules, error) {
	r := rules.New(src.Headers())
	if file != "" {
		loaded, err := rules.LoadFile(file, src.Headers())
		if err != nil {
			return nil, err
		}
		r = loaded
	}
	if err := r.ApplyAssignments(assignments); err != nil {
		return nil, fmt.Errorf("apply --rule: %w", err)
	}
	return r, nil
}

func transformOptions() transform.Options {
	c := settings()
	return transform.Options{
		PreviewRows: c.PreviewRows,
		BatchSize:   c.BatchSize,
		TempDir:     c.TempDir,
	}
}

func correlationPolicies(ties, missing string) (correlation.Options, correlation.MissingPolicy, error) {
	c := settings()
	if ties == "" {
		ties = c.SpearmanTies
	}
	if missing == "" {
		missing = c.MissingNumeric
	}
	tp, err := correlation.ParseTiePolicy(ties)
	if err != nil {
		return correlation.Options{}, 0, err
	}
	mp, err := correlation.ParseMissingPolicy(missing)
	if err != nil {
		return correlation.Options{}, 0, err
	}
	return correlation.Options{Ties: tp}, mp, nil
}

// columnIndexes resolves header names or 0-based positions.
func columnIndexes(src *dataset.File, refs []string) ([]int, error) {
	r := rules.New(src.Headers())
	out := make([]int, 0, len(refs))
	for _, ref := range refs {
		idx, err := r.Lookup(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, idx.Int())
	}
	return out, nil
}
