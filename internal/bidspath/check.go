package bidspath

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joss/bidsmap/internal/schema"
)

// Problem is one issue found while checking an existing BIDS tree.
type Problem struct {
	Severity string // error | warning
	Path     string
	Message  string
}

// Checker verifies that a materialized dataset follows the naming
// grammar the synthesizer emits. It is a structural check, not a full
// BIDS validator.
type Checker struct {
	schema schema.Provider
}

func NewChecker(provider schema.Provider) *Checker {
	return &Checker{schema: provider}
}

// Check walks a dataset directory and reports every structural
// problem. An empty result means the tree passes.
func (c *Checker) Check(root string) ([]Problem, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("dataset dir: %w", err)
	}

	var problems []Problem
	problems = append(problems, c.checkDescription(root)...)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	sawSubject := false
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "sub-") {
			continue
		}
		sawSubject = true
		problems = append(problems, c.checkSubject(root, e.Name())...)
	}
	if !sawSubject {
		problems = append(problems, Problem{
			Severity: "error",
			Path:     root,
			Message:  "no sub-* directories found",
		})
	}
	return problems, nil
}

func (c *Checker) checkDescription(root string) []Problem {
	path := filepath.Join(root, "dataset_description.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return []Problem{{Severity: "error", Path: path, Message: "dataset_description.json missing"}}
	}
	var desc map[string]any
	if err := json.Unmarshal(raw, &desc); err != nil {
		return []Problem{{Severity: "error", Path: path, Message: "dataset_description.json is not valid JSON"}}
	}
	var problems []Problem
	if name, _ := desc["Name"].(string); name == "" {
		problems = append(problems, Problem{Severity: "error", Path: path, Message: "missing Name"})
	}
	if v, _ := desc["BIDSVersion"].(string); v == "" {
		problems = append(problems, Problem{Severity: "error", Path: path, Message: "missing BIDSVersion"})
	}
	return problems
}

func (c *Checker) checkSubject(root, subDir string) []Problem {
	var problems []Problem
	base := filepath.Join(root, subDir)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		problems = append(problems, c.checkFile(rel)...)
		return nil
	})
	if err != nil {
		problems = append(problems, Problem{Severity: "error", Path: base, Message: err.Error()})
	}
	return problems
}

// checkFile validates one data file path of the form
// sub-X[/ses-Y]/<datatype>/<entities>_<suffix>.<ext>.
func (c *Checker) checkFile(rel string) []Problem {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return []Problem{{Severity: "warning", Path: rel, Message: "file outside a datatype directory"}}
	}
	subject := strings.TrimPrefix(parts[0], "sub-")
	session := ""
	datatypeIdx := 1
	if strings.HasPrefix(parts[1], "ses-") {
		session = strings.TrimPrefix(parts[1], "ses-")
		datatypeIdx = 2
	}
	if len(parts) != datatypeIdx+2 {
		return []Problem{{Severity: "warning", Path: rel, Message: "unexpected directory nesting"}}
	}
	datatype := parts[datatypeIdx]
	name := parts[datatypeIdx+1]

	if !c.datatypeKnown(datatype) {
		return []Problem{{Severity: "error", Path: rel,
			Message: fmt.Sprintf("unknown datatype directory %q", datatype)}}
	}

	stem := strings.TrimSuffix(name, Extension(name))
	tokens := strings.Split(stem, "_")
	if len(tokens) < 2 {
		return []Problem{{Severity: "error", Path: rel, Message: "filename has no suffix"}}
	}
	suffix := tokens[len(tokens)-1]
	entityTokens := tokens[:len(tokens)-1]

	var problems []Problem
	suffixOK := c.suffixKnown(datatype, suffix)
	if !suffixOK {
		problems = append(problems, Problem{Severity: "error", Path: rel,
			Message: fmt.Sprintf("suffix %q is not valid for %s", suffix, datatype)})
	}

	entities := map[string]string{}
	lastIdx := -1
	order, names := c.keyIndex()
	for _, token := range entityTokens {
		key, value, found := strings.Cut(token, "-")
		if !found || value == "" {
			problems = append(problems, Problem{Severity: "error", Path: rel,
				Message: fmt.Sprintf("malformed entity token %q", token)})
			continue
		}
		idx, known := order[key]
		if !known {
			problems = append(problems, Problem{Severity: "error", Path: rel,
				Message: fmt.Sprintf("unknown entity key %q", key)})
			continue
		}
		if idx <= lastIdx {
			problems = append(problems, Problem{Severity: "error", Path: rel,
				Message: fmt.Sprintf("entity %s out of canonical order", key)})
		}
		lastIdx = idx
		entities[key] = value

		name := names[key]
		if suffixOK && !c.schema.IsEntityValid(datatype, suffix, name) {
			problems = append(problems, Problem{Severity: "error", Path: rel,
				Message: fmt.Sprintf("entity %s is not valid for %s/%s", key, datatype, suffix)})
		}
	}

	if entities["sub"] != subject {
		problems = append(problems, Problem{Severity: "error", Path: rel,
			Message: "sub- entity does not match subject directory"})
	}
	if session != "" && entities["ses"] != session {
		problems = append(problems, Problem{Severity: "error", Path: rel,
			Message: "ses- entity does not match session directory"})
	}

	for _, required := range c.schema.RequiredEntities(datatype, suffix) {
		key := c.schema.EntityKey(required)
		if entities[key] == "" {
			problems = append(problems, Problem{Severity: "warning", Path: rel,
				Message: fmt.Sprintf("required entity %s missing", key)})
		}
	}
	return problems
}

func (c *Checker) datatypeKnown(datatype string) bool {
	for _, dt := range c.schema.Datatypes() {
		if dt == datatype {
			return true
		}
	}
	return false
}

func (c *Checker) suffixKnown(datatype, suffix string) bool {
	for _, s := range c.schema.Suffixes(datatype) {
		if s == suffix {
			return true
		}
	}
	return false
}

func (c *Checker) keyIndex() (map[string]int, map[string]string) {
	order := map[string]int{}
	names := map[string]string{}
	for i, entity := range c.schema.EntityOrder() {
		key := c.schema.EntityKey(entity)
		order[key] = i
		names[key] = entity
	}
	return order, names
}
