package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed data/schema.json
var embedded []byte

// Load returns a Provider backed by the schema at path, or the embedded
// schema when path is empty. A missing or malformed schema is reported
// through ErrSchemaUnavailable.
func Load(path string) (Provider, error) {
	raw := embedded
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrSchemaUnavailable, path, err)
		}
		raw = data
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrSchemaUnavailable, err)
	}
	if err := validate(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	return newProvider(&doc), nil
}

func validate(doc *Document) error {
	if doc.BIDSVersion == "" {
		return fmt.Errorf("missing bids_version")
	}
	if len(doc.Entities) == 0 {
		return fmt.Errorf("no entities defined")
	}
	if len(doc.Datatypes) == 0 {
		return fmt.Errorf("no datatypes defined")
	}
	names := make(map[string]bool, len(doc.Entities))
	for _, e := range doc.Entities {
		if e.Name == "" || e.Key == "" {
			return fmt.Errorf("entity with empty name or key")
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		names[e.Name] = true
	}
	for dt, d := range doc.Datatypes {
		for i, rule := range d.Rules {
			if len(rule.Suffixes) == 0 {
				return fmt.Errorf("datatype %s rule %d has no suffixes", dt, i)
			}
			for name := range rule.Entities {
				if !names[name] {
					return fmt.Errorf("datatype %s references unknown entity %q", dt, name)
				}
			}
		}
	}
	return nil
}
