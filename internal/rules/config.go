// Package rules loads the user mapping configuration and evaluates its
// ordered match rules against series descriptors.
package rules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const ConfigVersion = "1.0"

// Link modes for materializing output files.
const (
	LinkHardlink = "hardlink"
	LinkSymlink  = "symlink"
	LinkCopy     = "copy"
)

// Rule is one user-authored mapping rule. Rules are evaluated in the
// order they appear in the config; the first rule whose every match
// clause succeeds decides the outcome. A rule either excludes the
// series or assigns datatype/suffix/entities.
type Rule struct {
	Name     string            `yaml:"name,omitempty"`
	Match    map[string]string `yaml:"match"`
	Exclude  bool              `yaml:"exclude,omitempty"`
	Datatype string            `yaml:"datatype,omitempty"`
	Suffix   string            `yaml:"suffix,omitempty"`
	Entities map[string]string `yaml:"entities,omitempty"`
}

// Dataset carries the dataset-level metadata written into
// dataset_description.json.
type Dataset struct {
	Name        string   `yaml:"name"`
	BIDSVersion string   `yaml:"bids_version,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
	License     string   `yaml:"license,omitempty"`
}

// Output controls how apply materializes files.
type Output struct {
	LinkMode string `yaml:"link_mode"`
	Validate bool   `yaml:"validate"`
}

// Config is the full mapping configuration document.
type Config struct {
	Version string  `yaml:"version"`
	Dataset Dataset `yaml:"dataset"`
	Rules   []Rule  `yaml:"rules"`
	Output  Output  `yaml:"output"`
}

// Default returns the configuration used when no config file is given:
// no rules, hardlink output, validation on.
func Default() *Config {
	return &Config{
		Version: ConfigVersion,
		Dataset: Dataset{Name: "Untitled", BIDSVersion: "1.9.0"},
		Output:  Output{LinkMode: LinkHardlink, Validate: true},
	}
}

// Load reads and validates a configuration file. Rule order in the
// returned config is exactly the order in the document.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	cfg.Rules = nil
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks structural consistency: every rule needs at least one
// match clause with a compilable pattern, and must either exclude or
// assign a datatype/suffix pair.
func (c *Config) Validate() error {
	switch c.Output.LinkMode {
	case "", LinkHardlink, LinkSymlink, LinkCopy:
	default:
		return fmt.Errorf("unknown link_mode %q", c.Output.LinkMode)
	}
	for i, r := range c.Rules {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if len(r.Match) == 0 {
			return fmt.Errorf("rule %s: no match clauses", label)
		}
		for attr, pattern := range r.Match {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("rule %s: bad pattern for %s: %v", label, attr, err)
			}
		}
		if r.Exclude {
			if r.Datatype != "" || r.Suffix != "" {
				return fmt.Errorf("rule %s: exclude rules cannot assign datatype/suffix", label)
			}
			continue
		}
		if r.Datatype == "" || r.Suffix == "" {
			return fmt.Errorf("rule %s: needs datatype and suffix (or exclude: true)", label)
		}
	}
	return nil
}
