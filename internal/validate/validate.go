// Package validate checks tentative assignments against the BIDS
// schema and turns violations into findings instead of aborting the
// run.
package validate

import (
	"fmt"
	"sort"

	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/schema"
)

// Validator evaluates records against an injected schema provider.
// Validation is deterministic and idempotent: the same record always
// yields the same finding set.
type Validator struct {
	schema schema.Provider
}

func New(provider schema.Provider) *Validator {
	return &Validator{schema: provider}
}

// ValidateRecord produces the full finding set for one record.
// Excluded records validate to nothing; unmatched records carry a
// single warning so they stay visible in review. Invalid datatype,
// suffix or entity keys are errors since they signal a rule authoring
// mistake; a missing required entity is only a warning because review
// can still supply it.
func (v *Validator) ValidateRecord(r *mapping.Record) []mapping.Finding {
	switch r.Status {
	case mapping.StatusExcluded:
		return nil
	case mapping.StatusUnmatched:
		return []mapping.Finding{mapping.NewFinding(
			mapping.SeverityWarning,
			mapping.CodeNoRuleMatched,
			fmt.Sprintf("no rule matched series %q", r.Series.SeriesDescription),
			r.Series.ID,
		)}
	}
	if r.Assignment == nil {
		return nil
	}

	a := r.Assignment
	id := r.Series.ID

	if !v.datatypeValid(a.Datatype) {
		return []mapping.Finding{mapping.NewFinding(
			mapping.SeverityError,
			mapping.CodeInvalidDatatype,
			fmt.Sprintf("datatype %q is not a valid BIDS datatype", a.Datatype),
			id,
		)}
	}
	if !v.suffixValid(a.Datatype, a.Suffix) {
		return []mapping.Finding{mapping.NewFinding(
			mapping.SeverityError,
			mapping.CodeInvalidSuffix,
			fmt.Sprintf("suffix %q is not valid for datatype %s", a.Suffix, a.Datatype),
			id,
		)}
	}

	var findings []mapping.Finding
	for _, entity := range v.schema.EntityOrder() {
		value, ok := a.Entities[entity]
		if !ok {
			continue
		}
		if value == "" {
			findings = append(findings, mapping.NewFinding(
				mapping.SeverityError,
				mapping.CodeInvalidEntity,
				fmt.Sprintf("entity %s has an empty value", entity),
				id,
			))
			continue
		}
		if !v.schema.IsEntityValid(a.Datatype, a.Suffix, entity) {
			findings = append(findings, mapping.NewFinding(
				mapping.SeverityError,
				mapping.CodeInvalidEntity,
				fmt.Sprintf("entity %s is not valid for %s/%s", entity, a.Datatype, a.Suffix),
				id,
			))
		}
	}
	// Entities outside the schema vocabulary entirely.
	known := make(map[string]bool)
	for _, e := range v.schema.EntityOrder() {
		known[e] = true
	}
	for _, entity := range sortedKeys(a.Entities) {
		if !known[entity] {
			findings = append(findings, mapping.NewFinding(
				mapping.SeverityError,
				mapping.CodeInvalidEntity,
				fmt.Sprintf("unknown entity %q", entity),
				id,
			))
		}
	}

	for _, required := range v.schema.RequiredEntities(a.Datatype, a.Suffix) {
		if a.Entities[required] == "" {
			findings = append(findings, mapping.NewFinding(
				mapping.SeverityWarning,
				mapping.CodeMissingRequiredEntity,
				fmt.Sprintf("required entity %s is missing for %s/%s", required, a.Datatype, a.Suffix),
				id,
			))
		}
	}
	return findings
}

// ValidateAll re-validates every record in place.
func (v *Validator) ValidateAll(records []*mapping.Record) {
	for _, r := range records {
		r.Findings = v.ValidateRecord(r)
	}
}

func (v *Validator) datatypeValid(datatype string) bool {
	for _, dt := range v.schema.Datatypes() {
		if dt == datatype {
			return true
		}
	}
	return false
}

func (v *Validator) suffixValid(datatype, suffix string) bool {
	for _, s := range v.schema.Suffixes(datatype) {
		if s == suffix {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
