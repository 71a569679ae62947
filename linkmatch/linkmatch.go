// Package linkmatch classifies link targets via glob rules.
package linkmatch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Built-in classes used when no rule matches.
const (
	ClassExternal = "external"
	ClassInternal = "internal"
)

// Rule names a link class and the target patterns that belong to it.
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// RulesConfig is the on-disk shape of a rules file.
type RulesConfig struct {
	Links []Rule `yaml:"links"`
}

// Matcher assigns link classes to targets. The zero value and a nil
// *Matcher only apply the built-in external/internal split.
type Matcher struct {
	rules []Rule
}

// NewMatcher creates a matcher from a list of rules.
func NewMatcher(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// LoadRules loads rules from a YAML file.
func LoadRules(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading link rules: %w", err)
	}
	return parseRules(data)
}

// LoadRulesOrEmpty loads rules from file, or returns an empty matcher if
// the file doesn't exist.
func LoadRulesOrEmpty(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, fmt.Errorf("reading link rules: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Matcher, error) {
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing link rules: %w", err)
	}
	for _, r := range cfg.Links {
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("link rule %q: invalid pattern %q", r.Name, p)
			}
		}
	}
	return &Matcher{rules: cfg.Links}, nil
}

// Classify returns the class of target: the first rule with a matching
// pattern wins, otherwise http(s) targets are external and everything
// else internal.
func (m *Matcher) Classify(target string) string {
	if names := m.Match(target); len(names) > 0 {
		return names[0]
	}
	return Builtin(target)
}

// Builtin applies only the external/internal split.
func Builtin(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return ClassExternal
	}
	return ClassInternal
}

// Match returns the names of rules that match target, in rule order.
func (m *Matcher) Match(target string) []string {
	if m == nil {
		return nil
	}
	var matched []string
	for _, r := range m.rules {
		for _, pattern := range r.Patterns {
			ok, err := doublestar.Match(pattern, target)
			if err != nil {
				continue
			}
			if ok {
				matched = append(matched, r.Name)
				break
			}
		}
	}
	return matched
}

// Rules returns a copy of the rules in evaluation order.
func (m *Matcher) Rules() []Rule {
	if m == nil {
		return nil
	}
	return slices.Clone(m.rules)
}

func (m *Matcher) index(name string) int {
	if m == nil {
		return -1
	}
	return slices.IndexFunc(m.rules, func(r Rule) bool { return r.Name == name })
}

// Rule looks up a rule by class name.
func (m *Matcher) Rule(name string) (Rule, bool) {
	if i := m.index(name); i >= 0 {
		return m.rules[i], true
	}
	return Rule{}, false
}

// AddRule replaces the patterns of an existing class in place, keeping its
// priority, or appends a new class with the lowest priority.
func (m *Matcher) AddRule(name string, patterns []string) {
	if i := m.index(name); i >= 0 {
		m.rules[i].Patterns = patterns
		return
	}
	m.rules = append(m.rules, Rule{Name: name, Patterns: patterns})
}

// RemoveRule drops a class and reports whether it existed.
func (m *Matcher) RemoveRule(name string) bool {
	i := m.index(name)
	if i < 0 {
		return false
	}
	m.rules = slices.Delete(m.rules, i, i+1)
	return true
}

// SaveRules writes the rules to a YAML file, creating its directory.
func (m *Matcher) SaveRules(path string) error {
	data, err := yaml.Marshal(&RulesConfig{Links: m.rules})
	if err != nil {
		return fmt.Errorf("marshaling link rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing link rules: %w", err)
	}
	return nil
}
