package traceverdict

import (
	"fmt"
	"os"

	"github.com/ryanuber/go-glob"
	"github.com/sirupsen/logrus"
)

// Config is used as argument to creating a new ruleset
type Config struct {
	// root directories for recursive rule search
	// rules must be readable yaml files
	Directories []string
	// by default, a rule parse failure simply increments Ruleset.Failed and
	// is collected into Ruleset.Problems
	// these parameters cause an early error return instead
	FailOnRuleParse, FailOnYamlParse bool
	// optional glob expressions matched against rule tags
	// when set, only rules carrying at least one matching tag are loaded
	TagFilters []string
	// optional logger for load and evaluation warnings,
	// logrus standard logger when unset
	Logger *logrus.Logger
}

func (c Config) validate() error {
	if len(c.Directories) == 0 {
		return fmt.Errorf("missing root directory for detection rules")
	}
	for _, dir := range c.Directories {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// Ruleset is a collection of compiled rules. It is immutable once built and
// safe to share between concurrently evaluated sessions.
type Ruleset struct {
	Rules []*Tree
	root  []string
	log   *logrus.Logger

	// Problems collects per-rule load failures for reporting
	Problems []error

	Total, Ok, Failed, Filtered int
}

// NewRuleset loads and compiles all rules from configured directories.
// Individual broken rules are reported and skipped rather than aborting
// the load.
func NewRuleset(c Config) (*Ruleset, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	files, err := NewRuleFileList(c.Directories)
	if err != nil {
		return nil, err
	}
	problems := make([]error, 0)
	rules, err := NewRuleList(files, !c.FailOnYamlParse)
	if err != nil {
		switch e := err.(type) {
		case ErrBulkParseYaml:
			for _, item := range e.Errs {
				problems = append(problems, item)
			}
		default:
			return nil, err
		}
	}
	set := make([]*Tree, 0, len(rules))
	seen := make(map[string]string, len(rules))
	var filtered int
loop:
	for _, raw := range rules {
		if !tagFilterMatch(raw.Tags, c.TagFilters) {
			filtered++
			continue loop
		}
		tree, err := NewTree(raw)
		if err != nil {
			if c.FailOnRuleParse {
				return nil, fmt.Errorf("rule %s in %s: %w", raw.ID, raw.Path, err)
			}
			problems = append(problems, fmt.Errorf("rule %s in %s: %w", raw.ID, raw.Path, err))
			continue loop
		}
		if prev, ok := seen[raw.ID]; ok {
			problems = append(problems, ErrDuplicateRule{ID: raw.ID, Path: raw.Path})
			logger.WithFields(logrus.Fields{
				"rule": raw.ID,
				"path": raw.Path,
				"prev": prev,
			}).Warn("duplicate rule id, keeping first occurrence")
			continue loop
		}
		seen[raw.ID] = raw.Path
		set = append(set, tree)
	}
	for _, problem := range problems {
		logger.Warnf("rule load: %s", problem)
	}
	return &Ruleset{
		root:     c.Directories,
		log:      logger,
		Rules:    set,
		Problems: problems,
		Total:    len(files),
		Ok:       len(set),
		Failed:   len(problems),
		Filtered: filtered,
	}, nil
}

// EvalAll evaluates every loaded rule against one event. A failure inside a
// single rule evaluation is logged and treated as no-match so one bad rule
// cannot blind the rest of the engine.
func (r *Ruleset) EvalAll(e Event) (Results, bool) {
	results := make(Results, 0)
	for _, rule := range r.Rules {
		if res, match := r.evalOne(rule, e); match {
			results = append(results, *res)
		}
	}
	if len(results) > 0 {
		return results, true
	}
	return nil, false
}

func (r *Ruleset) evalOne(rule *Tree, e Event) (res *Result, match bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"rule":     rule.Rule.ID,
				"sequence": e.Sequence,
			}).Warnf("rule evaluation panicked, treating as no match: %v", rec)
			res, match = nil, false
		}
	}()
	return rule.Eval(e)
}

func tagFilterMatch(tags Tags, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, tag := range tags {
			if glob.Glob(f, tag) {
				return true
			}
		}
	}
	return false
}
