package rules

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/joss/bidsmap/internal/series"
)

// Outcome kinds, in the order a record can carry them.
const (
	OutcomeAssigned  = "assigned"
	OutcomeExcluded  = "excluded"
	OutcomeUnmatched = "unmatched"
)

// Outcome is the matcher's verdict for one descriptor.
type Outcome struct {
	Kind     string
	RuleName string
	Datatype string
	Suffix   string
	Entities map[string]string
}

type compiledRule struct {
	name     string
	clauses  []clause
	exclude  bool
	datatype string
	suffix   string
	entities map[string]string
}

type clause struct {
	attr    string
	pattern *regexp.Regexp
}

// Matcher evaluates an ordered rule list with first-match-wins
// semantics. Identical descriptor and rule list always produce the
// identical outcome; rule order is the only disambiguator.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the config's rules, preserving their order.
func NewMatcher(cfg *Config) (*Matcher, error) {
	m := &Matcher{rules: make([]compiledRule, 0, len(cfg.Rules))}
	for i, r := range cfg.Rules {
		cr := compiledRule{
			name:     r.Name,
			exclude:  r.Exclude,
			datatype: r.Datatype,
			suffix:   r.Suffix,
			entities: r.Entities,
		}
		if cr.name == "" {
			cr.name = fmt.Sprintf("rule-%d", i+1)
		}
		attrs := make([]string, 0, len(r.Match))
		for attr := range r.Match {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			re, err := regexp.Compile(r.Match[attr])
			if err != nil {
				return nil, fmt.Errorf("rule %s: pattern for %s: %w", cr.name, attr, err)
			}
			cr.clauses = append(cr.clauses, clause{attr: attr, pattern: re})
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// Match returns the first matching rule's outcome, or an unmatched
// verdict when no rule applies. A clause referencing an attribute the
// descriptor does not define fails the whole rule.
func (m *Matcher) Match(d *series.Descriptor) Outcome {
	for _, r := range m.rules {
		if !r.matches(d) {
			continue
		}
		if r.exclude {
			return Outcome{Kind: OutcomeExcluded, RuleName: r.name}
		}
		entities := make(map[string]string, len(r.entities))
		for k, v := range r.entities {
			entities[k] = v
		}
		return Outcome{
			Kind:     OutcomeAssigned,
			RuleName: r.name,
			Datatype: r.datatype,
			Suffix:   r.suffix,
			Entities: entities,
		}
	}
	return Outcome{Kind: OutcomeUnmatched}
}

func (r *compiledRule) matches(d *series.Descriptor) bool {
	for _, c := range r.clauses {
		value, ok := d.Attribute(c.attr)
		if !ok || !c.pattern.MatchString(value) {
			return false
		}
	}
	return true
}
