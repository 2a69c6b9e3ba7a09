package traceverdict

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Severity is the ordered level attached to a rule
type Severity int

const (
	SeverityInformational Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInformational:
		return "informational"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// NewSeverity resolves a rule-file level name
func NewSeverity(level string) (Severity, error) {
	switch strings.ToLower(level) {
	case "informational":
		return SeverityInformational, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityInformational, ErrMissingLevel{Level: level}
}

// SeverityWeights maps rule levels to score contributions. Values are
// calibration constants, the ordering must be preserved.
type SeverityWeights [SeverityCritical + 1]int

// DefaultSeverityWeights returns the stock weight table
func DefaultSeverityWeights() SeverityWeights {
	return SeverityWeights{
		SeverityInformational: 5,
		SeverityLow:           10,
		SeverityMedium:        25,
		SeverityHigh:          50,
		SeverityCritical:      75,
	}
}

// Weight looks up the contribution of one severity level
func (w SeverityWeights) Weight(s Severity) int {
	if s < SeverityInformational || s > SeverityCritical {
		return 0
	}
	return w[s]
}

func (w SeverityWeights) validate() error {
	for s := SeverityLow; s <= SeverityCritical; s++ {
		if w[s] < w[s-1] {
			return fmt.Errorf("severity weight for %s lower than %s, ordering must be preserved", s, s-1)
		}
	}
	return nil
}

// Tags contains a metadata list for tying positive matches together with
// other threat intel sources and for classifying a firing rule for the
// behavioral analyzer. For example, MITRE ATT&CK technique identifiers or
// behavior vocabulary tags.
type Tags []string

// Has reports whether an exact tag is present
func (t Tags) Has(tag string) bool {
	for _, candidate := range t {
		if candidate == tag {
			return true
		}
	}
	return false
}

// WithPrefix returns all tags under a prefix, used for extracting
// parameterized vocabulary tags such as persistence mechanisms
func (t Tags) WithPrefix(prefix string) []string {
	out := make([]string, 0, len(t))
	for _, candidate := range t {
		if strings.HasPrefix(candidate, prefix) {
			out = append(out, candidate)
		}
	}
	return out
}

// Condition is the raw recursive detection node as authored in YAML.
// Exactly one of All, Any, Not or a field test may be set per node.
type Condition struct {
	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Condition  `yaml:"not,omitempty" json:"not,omitempty"`

	Field         string   `yaml:"field,omitempty" json:"field,omitempty"`
	Op            string   `yaml:"op,omitempty" json:"op,omitempty"`
	Value         string   `yaml:"value,omitempty" json:"value,omitempty"`
	Values        []string `yaml:"values,omitempty" json:"values,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
}

// Rule defines a raw detection rule as authored in a rule file,
// only meant for decoding YAML
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Author      string   `yaml:"author" json:"author"`
	Level       string   `yaml:"level" json:"level"`
	References  []string `yaml:"references" json:"references"`

	Tags      Tags       `yaml:"tags" json:"tags"`
	Detection *Condition `yaml:"detection" json:"detection"`
}

// RuleHandle is a meta object holding all fields from raw yaml, enhanced with
// loader context such as the source file path
type RuleHandle struct {
	Rule

	Path string `json:"path"`
}

// NewRuleList reads a list of rule file paths and decodes them to raw rule
// objects. With skip set, files that fail to decode are collected into
// ErrBulkParseYaml while valid rules still load.
func NewRuleList(files []string, skip bool) ([]RuleHandle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("missing rule file list")
	}
	errs := make([]ErrParseYaml, 0)
	rules := make([]RuleHandle, 0, len(files))
loop:
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var r Rule
		if err := yaml.Unmarshal(data, &r); err != nil {
			if skip {
				errs = append(errs, ErrParseYaml{Path: path, Err: err})
				continue loop
			}
			return nil, ErrParseYaml{Path: path, Err: err}
		}
		rules = append(rules, RuleHandle{Rule: r, Path: path})
	}
	if len(errs) > 0 {
		return rules, ErrBulkParseYaml{Errs: errs}
	}
	return rules, nil
}

// NewRuleFileList finds all yaml files from defined root directories
// Subtree is scanned recursively
// No file validation, other than suffix matching
func NewRuleFileList(dirs []string) ([]string, error) {
	out := make([]string, 0)
	for _, dir := range dirs {
		if err := filepath.Walk(dir, func(
			path string,
			info os.FileInfo,
			err error,
		) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && (strings.HasSuffix(path, "yml") || strings.HasSuffix(path, "yaml")) {
				out = append(out, path)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Result is an object returned on a positive rule match
type Result struct {
	Tags Tags

	ID, Title string
	Severity  Severity

	// MatchedField and MatchedValue name the first field test satisfied by
	// the event, as evidence for reporting
	MatchedField, MatchedValue string
}

// Results should be returned when a single event matches multiple rules
type Results []Result
