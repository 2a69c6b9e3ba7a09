package traceverdict

import (
	"fmt"
)

// Tree represents the full AST for one detection rule
type Tree struct {
	Root     Branch
	Rule     *RuleHandle
	Severity Severity
}

// Match implements Matcher
func (t Tree) Match(e Selector) bool {
	return t.Root.Match(e)
}

// Eval returns a Result on positive match, annotated with the first matching
// field test as evidence
func (t Tree) Eval(e Selector) (*Result, bool) {
	if !t.Match(e) {
		return nil, false
	}
	res := &Result{
		ID:       t.Rule.ID,
		Title:    t.Rule.Title,
		Tags:     t.Rule.Tags,
		Severity: t.Severity,
	}
	if field, val, ok := evidence(t.Root, e); ok {
		res.MatchedField = field.String()
		res.MatchedValue = val
	}
	return res, true
}

// evidence walks a matched tree for the first positive leaf, returning the
// field and event value that satisfied it. Negated branches carry no
// positive evidence and are skipped.
func evidence(b Branch, e Selector) (Field, string, bool) {
	switch n := b.(type) {
	case FieldPattern:
		if val, ok := e.Select(n.Field); ok && n.S.StringMatch(val) {
			return n.Field, val, true
		}
	case NumFieldPattern:
		if n.Match(e) {
			val, _ := e.Select(n.Field)
			return n.Field, val, true
		}
	case NodeAnd:
		if field, val, ok := evidence(n.L, e); ok {
			return field, val, ok
		}
		return evidence(n.R, e)
	case NodeOr:
		if field, val, ok := evidence(n.L, e); ok {
			return field, val, ok
		}
		return evidence(n.R, e)
	case NodeSimpleAnd:
		for _, child := range n {
			if field, val, ok := evidence(child, e); ok {
				return field, val, ok
			}
		}
	case NodeSimpleOr:
		for _, child := range n {
			if field, val, ok := evidence(child, e); ok {
				return field, val, ok
			}
		}
	}
	return FieldNone, "", false
}

// NewTree compiles a raw rule into an abstract syntax tree, validating fields,
// operators and patterns so a broken rule can never reach the matcher
func NewTree(r RuleHandle) (*Tree, error) {
	if r.ID == "" || r.Title == "" {
		return nil, fmt.Errorf("rule in %s is missing id or title", r.Path)
	}
	if r.Detection == nil {
		return nil, ErrMissingDetection{}
	}
	severity, err := NewSeverity(r.Level)
	if err != nil {
		return nil, err
	}
	root, err := newBranch(*r.Detection)
	if err != nil {
		return nil, err
	}
	return &Tree{
		Root:     root,
		Rule:     &r,
		Severity: severity,
	}, nil
}

// newBranch recursively builds the AST from a raw condition node
func newBranch(c Condition) (Branch, error) {
	kinds := 0
	if len(c.All) > 0 {
		kinds++
	}
	if len(c.Any) > 0 {
		kinds++
	}
	if c.Not != nil {
		kinds++
	}
	if c.Field != "" {
		kinds++
	}
	if kinds == 0 {
		return nil, ErrEmptyCondition{Msg: "expected all, any, not or a field test"}
	}
	if kinds > 1 {
		return nil, ErrMixedCondition{}
	}

	switch {
	case len(c.All) > 0:
		and := make(NodeSimpleAnd, 0, len(c.All))
		for _, child := range c.All {
			b, err := newBranch(child)
			if err != nil {
				return nil, err
			}
			and = append(and, b)
		}
		return and.Reduce(), nil
	case len(c.Any) > 0:
		or := make(NodeSimpleOr, 0, len(c.Any))
		for _, child := range c.Any {
			b, err := newBranch(child)
			if err != nil {
				return nil, err
			}
			or = append(or, b)
		}
		return or.Reduce(), nil
	case c.Not != nil:
		b, err := newBranch(*c.Not)
		if err != nil {
			return nil, err
		}
		return NodeNot{B: b}, nil
	default:
		return newFieldBranch(c)
	}
}

// newFieldBranch compiles one leaf field test
func newFieldBranch(c Condition) (Branch, error) {
	field, err := NewField(c.Field)
	if err != nil {
		return nil, err
	}
	op, err := NewOp(c.Op, c.Field)
	if err != nil {
		return nil, err
	}
	values := c.Values
	if len(values) == 0 && c.Value != "" {
		values = []string{c.Value}
	}
	if len(values) == 0 {
		return nil, ErrEmptyCondition{Msg: fmt.Sprintf("field test on %q has no expected values", c.Field)}
	}
	// exit code equality gets a numeric matcher, everything else is a string test
	if field == FieldExitCode && (op == OpEquals || op == OpOneOf) {
		num, err := NewNumMatcher(values...)
		if err != nil {
			return nil, err
		}
		return NumFieldPattern{Field: field, N: num}, nil
	}
	matcher, err := NewStringMatcher(op, c.CaseSensitive, values...)
	if err != nil {
		return nil, err
	}
	return FieldPattern{Field: field, S: matcher}, nil
}
