package traceverdict

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Op is a field test operator supported by rule conditions
type Op int

const (
	OpNone Op = iota
	OpEquals
	OpContains
	OpStartsWith
	OpEndsWith
	OpRegex
	OpGlob
	OpOneOf
)

func (o Op) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "startswith"
	case OpEndsWith:
		return "endswith"
	case OpRegex:
		return "regex"
	case OpGlob:
		return "glob"
	case OpOneOf:
		return "oneof"
	}
	return "none"
}

// NewOp resolves a rule-file operator name
func NewOp(name, field string) (Op, error) {
	switch name {
	case "equals", "":
		return OpEquals, nil
	case "contains":
		return OpContains, nil
	case "startswith":
		return OpStartsWith, nil
	case "endswith":
		return OpEndsWith, nil
	case "regex":
		return OpRegex, nil
	case "glob":
		return OpGlob, nil
	case "oneof":
		return OpOneOf, nil
	}
	return OpNone, ErrUnknownOp{Op: name, Field: field}
}

// StringMatcher is an atomic pattern that could implement literal, glob or
// regex matchers. Patterns are compiled once at rule load, evaluation is pure.
type StringMatcher interface {
	// StringMatch implements StringMatcher
	StringMatch(string) bool
}

// NewStringMatcher compiles one field test into an atomic matcher, or a
// disjunction when multiple patterns are given. Compile failures surface at
// load time so broken rules never reach the match path.
func NewStringMatcher(op Op, caseSensitive bool, patterns ...string) (StringMatcher, error) {
	if len(patterns) == 0 {
		return nil, ErrEmptyCondition{Msg: "field test needs at least one value"}
	}
	lower := !caseSensitive
	matcher := make(StringMatchers, 0, len(patterns))
	for _, p := range patterns {
		switch op {
		case OpRegex:
			re, err := compileRegex(p, lower)
			if err != nil {
				return nil, ErrInvalidRegex{Pattern: p, Err: err}
			}
			matcher = append(matcher, RegexPattern{Re: re})
		case OpGlob:
			g, err := glob.Compile(lowerCaseIfNeeded(p, lower))
			if err != nil {
				return nil, ErrInvalidGlob{Pattern: p, Err: err}
			}
			matcher = append(matcher, GlobPattern{Glob: g, Lowercase: lower})
		case OpContains:
			matcher = append(matcher, SimplePattern{Token: p, Lowercase: lower})
		case OpStartsWith:
			matcher = append(matcher, PrefixPattern{Token: p, Lowercase: lower})
		case OpEndsWith:
			matcher = append(matcher, SuffixPattern{Token: p, Lowercase: lower})
		case OpEquals, OpOneOf:
			matcher = append(matcher, ContentPattern{Token: p, Lowercase: lower})
		default:
			return nil, ErrUnknownOp{Op: op.String()}
		}
	}
	if len(matcher) == 1 {
		return matcher[0], nil
	}
	return matcher.Optimize(), nil
}

func compileRegex(expr string, lower bool) (*regexp.Regexp, error) {
	if lower && !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// StringMatchers holds multiple atomic matchers joined with logical
// disjunction, the natural semantics for a list of expected values
type StringMatchers []StringMatcher

// StringMatch implements StringMatcher
func (s StringMatchers) StringMatch(msg string) bool {
	for _, m := range s {
		if m.StringMatch(msg) {
			return true
		}
	}
	return false
}

// Optimize returns a new StringMatchers slice ordered by matcher type.
// First match wins, so fast literal patterns are executed before globs and
// finally slow regular expressions.
func (s StringMatchers) Optimize() StringMatchers {
	literals := make(StringMatchers, 0, len(s))
	globs := make(StringMatchers, 0)
	re := make(StringMatchers, 0)
	for _, pat := range s {
		switch pat.(type) {
		case GlobPattern:
			globs = append(globs, pat)
		case RegexPattern:
			re = append(re, pat)
		default:
			literals = append(literals, pat)
		}
	}
	return append(literals, append(globs, re...)...)
}

// ContentPattern is a token for exact content matching
type ContentPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c ContentPattern) StringMatch(msg string) bool {
	return lowerCaseIfNeeded(msg, c.Lowercase) == lowerCaseIfNeeded(c.Token, c.Lowercase)
}

// SimplePattern matches a token anywhere in the message
type SimplePattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (s SimplePattern) StringMatch(msg string) bool {
	return strings.Contains(
		lowerCaseIfNeeded(msg, s.Lowercase),
		lowerCaseIfNeeded(s.Token, s.Lowercase),
	)
}

// PrefixPattern is a token for literal prefix matching
type PrefixPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c PrefixPattern) StringMatch(msg string) bool {
	return strings.HasPrefix(
		lowerCaseIfNeeded(msg, c.Lowercase),
		lowerCaseIfNeeded(c.Token, c.Lowercase),
	)
}

// SuffixPattern is a token for literal suffix matching
type SuffixPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c SuffixPattern) StringMatch(msg string) bool {
	return strings.HasSuffix(
		lowerCaseIfNeeded(msg, c.Lowercase),
		lowerCaseIfNeeded(c.Token, c.Lowercase),
	)
}

// RegexPattern is for matching messages with regular expressions
type RegexPattern struct {
	Re *regexp.Regexp
}

// StringMatch implements StringMatcher
func (r RegexPattern) StringMatch(msg string) bool {
	return r.Re.MatchString(msg)
}

// GlobPattern is similar to ContentPattern but allows for wildcards
type GlobPattern struct {
	Glob      glob.Glob
	Lowercase bool
}

// StringMatch implements StringMatcher
func (g GlobPattern) StringMatch(msg string) bool {
	return g.Glob.Match(lowerCaseIfNeeded(msg, g.Lowercase))
}

func lowerCaseIfNeeded(str string, lower bool) string {
	if lower {
		return strings.ToLower(str)
	}
	return str
}

// NumMatcher is an atomic pattern for a numeric item or list of items,
// used for exit code tests
type NumMatcher interface {
	// NumMatch implements NumMatcher
	NumMatch(int) bool
}

// NumMatchers holds multiple numeric matchers joined with disjunction
type NumMatchers []NumMatcher

// NumMatch implements NumMatcher
func (n NumMatchers) NumMatch(val int) bool {
	for _, v := range n {
		if v.NumMatch(val) {
			return true
		}
	}
	return false
}

// NewNumMatcher parses expected values as integers for exit code equality
func NewNumMatcher(patterns ...string) (NumMatcher, error) {
	if len(patterns) == 0 {
		return nil, ErrEmptyCondition{Msg: "numeric test needs at least one value"}
	}
	matcher := make(NumMatchers, 0, len(patterns))
	for _, p := range patterns {
		val, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		matcher = append(matcher, NumPattern{Val: val})
	}
	if len(matcher) == 1 {
		return matcher[0], nil
	}
	return matcher, nil
}

// NumPattern matches on numeric value
type NumPattern struct {
	Val int
}

// NumMatch implements NumMatcher
func (n NumPattern) NumMatch(val int) bool {
	return n.Val == val
}
