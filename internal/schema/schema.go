// Package schema provides read-only access to the BIDS schema: canonical
// entity ordering, valid datatype/suffix combinations, and entity
// requirements. The schema is an external input; nothing here guesses.
package schema

import (
	"errors"
	"sort"
)

// ErrSchemaUnavailable signals that no usable schema could be loaded.
// This is fatal for the whole run.
var ErrSchemaUnavailable = errors.New("bids schema unavailable")

// Provider is the lookup surface the rest of the system depends on.
// All methods are deterministic for a given schema version and safe for
// concurrent reads.
type Provider interface {
	// BIDSVersion returns the BIDS specification version of the schema.
	BIDSVersion() string
	// Datatypes returns all valid datatype names, sorted.
	Datatypes() []string
	// Suffixes returns all valid suffixes for a datatype, sorted.
	Suffixes(datatype string) []string
	// RequiredEntities returns the required entity names for a
	// datatype/suffix combination in canonical order, excluding
	// subject and session (those come from dataset layout, not rules).
	RequiredEntities(datatype, suffix string) []string
	// EntityOrder returns the canonical filename ordering over all
	// entity names.
	EntityOrder() []string
	// EntityKey maps an entity name to its filename key
	// (e.g. "subject" -> "sub").
	EntityKey(name string) string
	// IsEntityValid reports whether an entity may appear in a filename
	// for the given datatype/suffix.
	IsEntityValid(datatype, suffix, entity string) bool
	// Extensions returns the allowed file extensions for a
	// datatype/suffix combination.
	Extensions(datatype, suffix string) []string
}

// Entity describes one entry of the canonical entity vocabulary.
type Entity struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Format string `json:"format"` // "label" or "index"
}

// FileRule defines one valid suffix/entity combination within a datatype.
type FileRule struct {
	Suffixes   []string          `json:"suffixes"`
	Extensions []string          `json:"extensions"`
	Entities   map[string]string `json:"entities"` // name -> "required" | "optional"
}

// Datatype groups the file rules of one BIDS datatype.
type Datatype struct {
	Rules []FileRule `json:"rules"`
}

// Document is the on-disk shape of a compiled schema.
type Document struct {
	BIDSVersion   string              `json:"bids_version"`
	SchemaVersion string              `json:"schema_version"`
	Entities      []Entity            `json:"entities"`
	Datatypes     map[string]Datatype `json:"datatypes"`
}

type provider struct {
	doc       *Document
	datatypes []string
	order     []string
	keys      map[string]string
}

func newProvider(doc *Document) *provider {
	p := &provider{
		doc:  doc,
		keys: make(map[string]string, len(doc.Entities)),
	}
	for _, e := range doc.Entities {
		p.order = append(p.order, e.Name)
		p.keys[e.Name] = e.Key
	}
	for dt := range doc.Datatypes {
		p.datatypes = append(p.datatypes, dt)
	}
	sort.Strings(p.datatypes)
	return p
}

func (p *provider) BIDSVersion() string { return p.doc.BIDSVersion }

func (p *provider) Datatypes() []string {
	out := make([]string, len(p.datatypes))
	copy(out, p.datatypes)
	return out
}

func (p *provider) Suffixes(datatype string) []string {
	dt, ok := p.doc.Datatypes[datatype]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, rule := range dt.Rules {
		for _, s := range rule.Suffixes {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// rule returns the first file rule covering a suffix, or nil.
func (p *provider) rule(datatype, suffix string) *FileRule {
	dt, ok := p.doc.Datatypes[datatype]
	if !ok {
		return nil
	}
	for i := range dt.Rules {
		for _, s := range dt.Rules[i].Suffixes {
			if s == suffix {
				return &dt.Rules[i]
			}
		}
	}
	return nil
}

func (p *provider) RequiredEntities(datatype, suffix string) []string {
	rule := p.rule(datatype, suffix)
	if rule == nil {
		return nil
	}
	var out []string
	for _, name := range p.order {
		if name == "subject" || name == "session" {
			continue
		}
		if rule.Entities[name] == "required" {
			out = append(out, name)
		}
	}
	return out
}

func (p *provider) EntityOrder() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (p *provider) EntityKey(name string) string {
	if key, ok := p.keys[name]; ok {
		return key
	}
	return name
}

func (p *provider) IsEntityValid(datatype, suffix, entity string) bool {
	if entity == "subject" || entity == "session" {
		return true
	}
	rule := p.rule(datatype, suffix)
	if rule == nil {
		return false
	}
	_, ok := rule.Entities[entity]
	return ok
}

func (p *provider) Extensions(datatype, suffix string) []string {
	rule := p.rule(datatype, suffix)
	if rule == nil {
		return nil
	}
	out := make([]string, len(rule.Extensions))
	copy(out, rule.Extensions)
	return out
}
