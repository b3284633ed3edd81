package rules

import (
	"fmt"
	"regexp"

	"github.com/joss/bidsmap/internal/series"
)

// Export builds a config template from extracted descriptors: one rule
// per unique series, matching the exact series description, filled with
// the heuristic suggestion so the user edits instead of writing from
// scratch.
func Export(descriptors []*series.Descriptor, dataset Dataset) *Config {
	cfg := Default()
	if dataset.Name != "" {
		cfg.Dataset = dataset
	}

	seen := map[string]bool{}
	for _, d := range descriptors {
		key := d.GroupKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		rule := Rule{
			Name: fmt.Sprintf("series-%03d", len(cfg.Rules)+1),
			Match: map[string]string{
				"series_description": ".*" + regexp.QuoteMeta(d.SeriesDescription) + ".*",
			},
		}
		s := Suggest(d)
		switch {
		case s.Exclude:
			rule.Exclude = true
		case s.Datatype != "":
			rule.Datatype = s.Datatype
			rule.Suffix = s.Suffix
			rule.Entities = s.Entities
		default:
			// No guess; leave an assignment stub the user must fill.
			rule.Datatype = ""
			rule.Suffix = ""
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg
}
