package patterns

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Rule modes.
const (
	ModePrefix   = "prefix"
	ModeContains = "contains"
)

// RuleSpec is one user-defined rule as written in a patterns file:
//
//	rules:
//	  - anchor: "PM from "
//	    mode: prefix
//	    direction: incoming
//	  - anchor: " privately says"
//	    mode: contains
//	    direction: in
type RuleSpec struct {
	Anchor    string    `yaml:"anchor"`
	Mode      string    `yaml:"mode"`
	Direction Direction `yaml:"direction"`
	// Offset overrides where the correspondent name starts for prefix rules.
	Offset *int `yaml:"offset"`
}

// RuleFile is the top-level layout of a patterns file.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// Matcher converts the rule into one of the closed matcher variants.
func (r RuleSpec) Matcher() (Matcher, error) {
	if r.Anchor == "" {
		return nil, fmt.Errorf("anchor must not be empty")
	}
	switch r.Mode {
	case ModePrefix, "":
		m := NewPrefix(r.Anchor, r.Direction)
		if r.Offset != nil {
			if *r.Offset < 0 {
				return nil, fmt.Errorf("offset must not be negative, got %d", *r.Offset)
			}
			m.Offset = *r.Offset
		}
		return m, nil
	case ModeContains:
		if r.Offset != nil {
			return nil, fmt.Errorf("offset is only valid for prefix rules")
		}
		return NewSubstring(r.Anchor, r.Direction), nil
	default:
		return nil, fmt.Errorf("mode must be %q or %q, got %q", ModePrefix, ModeContains, r.Mode)
	}
}

// ParseRules decodes a patterns document. Every invalid rule is reported.
func ParseRules(data []byte) ([]Matcher, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse patterns: %w", err)
	}

	var result error
	matchers := make([]Matcher, 0, len(file.Rules))
	for i, spec := range file.Rules {
		m, err := spec.Matcher()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("rule %d (%q): %w", i+1, spec.Anchor, err))
			continue
		}
		matchers = append(matchers, m)
	}
	if result != nil {
		return nil, result
	}
	return matchers, nil
}

// LoadRules reads and parses a patterns file.
func LoadRules(path string) ([]Matcher, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied patterns path
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}
	return ParseRules(data)
}
