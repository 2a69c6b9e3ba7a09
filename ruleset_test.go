package traceverdict

import (
	"os"
	"path/filepath"
	"testing"
)

var goodRuleYaml = `
id: cred-ssh-key-read
title: Private SSH key access
level: high
tags:
  - behavior/v1/credential_access
  - behavior/v1/sensitive_read
  - attack.t1552.004
detection:
  field: command
  op: contains
  values:
    - .ssh/id_rsa
    - .ssh/id_ed25519
`

var brokenYamlRule = `
id: [this is not
  valid yaml {{
`

var brokenRegexRule = `
id: broken-regex
title: Broken regex rule
level: low
detection:
  field: command
  op: regex
  value: "[unclosed"
`

func writeRuleDir(t *testing.T, rules map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range rules {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewRulesetPartialLoad(t *testing.T) {
	dir := writeRuleDir(t, map[string]string{
		"good.yml":   goodRuleYaml,
		"broken.yml": brokenYamlRule,
	})
	ruleset, err := NewRuleset(Config{Directories: []string{dir}})
	if err != nil {
		t.Fatalf("partial load should not fail the whole ruleset: %s", err)
	}
	if ruleset.Ok != 1 {
		t.Fatalf("expected 1 loaded rule, got %d", ruleset.Ok)
	}
	if ruleset.Failed != 1 || len(ruleset.Problems) != 1 {
		t.Fatalf("expected exactly 1 load error, got %d", len(ruleset.Problems))
	}

	results, match := ruleset.EvalAll(Event{SessionID: "s", Sequence: 1, Command: "cat ~/.ssh/id_rsa"})
	if !match || len(results) != 1 {
		t.Fatalf("expected single match, got %+v", results)
	}
	if results[0].ID != "cred-ssh-key-read" {
		t.Fatalf("unexpected rule match %s", results[0].ID)
	}
}

func TestNewRulesetBadPatternIsPerRule(t *testing.T) {
	dir := writeRuleDir(t, map[string]string{
		"good.yml":  goodRuleYaml,
		"regex.yml": brokenRegexRule,
	})
	ruleset, err := NewRuleset(Config{Directories: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if ruleset.Ok != 1 || ruleset.Failed != 1 {
		t.Fatalf("broken regex should only fail its own rule: ok=%d failed=%d",
			ruleset.Ok, ruleset.Failed)
	}
}

func TestNewRulesetDuplicateID(t *testing.T) {
	dir := writeRuleDir(t, map[string]string{
		"one.yml": goodRuleYaml,
		"two.yml": goodRuleYaml,
	})
	ruleset, err := NewRuleset(Config{Directories: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if ruleset.Ok != 1 {
		t.Fatalf("duplicate id should keep first occurrence only, got %d", ruleset.Ok)
	}
}

func TestNewRulesetTagFilter(t *testing.T) {
	dir := writeRuleDir(t, map[string]string{"good.yml": goodRuleYaml})
	ruleset, err := NewRuleset(Config{
		Directories: []string{dir},
		TagFilters:  []string{"attack.t1098*"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ruleset.Ok != 0 || ruleset.Filtered != 1 {
		t.Fatalf("tag filter should have excluded the rule: ok=%d filtered=%d",
			ruleset.Ok, ruleset.Filtered)
	}
}

func TestNewRulesetMissingDir(t *testing.T) {
	if _, err := NewRuleset(Config{Directories: []string{"/does/not/exist"}}); err == nil {
		t.Fatal("missing rule directory should fail")
	}
	if _, err := NewRuleset(Config{}); err == nil {
		t.Fatal("empty config should fail")
	}
}
