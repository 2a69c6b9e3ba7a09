package traceverdict

import "strconv"

// NodeSimpleAnd is a list of matchers connected with logical conjunction
type NodeSimpleAnd []Branch

// Match implements Matcher
func (n NodeSimpleAnd) Match(e Selector) bool {
	for _, b := range n {
		if !b.Match(e) {
			return false
		}
	}
	return true
}

// Reduce cleans up unneeded slices
// Static structures can be used if node only holds one or two elements
// Avoids pointless runtime loops
func (n NodeSimpleAnd) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return NodeAnd{L: n[0], R: n[1]}
	}
	return n
}

// NodeSimpleOr is a list of matchers connected with logical disjunction
type NodeSimpleOr []Branch

// Match implements Matcher
func (n NodeSimpleOr) Match(e Selector) bool {
	for _, b := range n {
		if b.Match(e) {
			return true
		}
	}
	return false
}

// Reduce cleans up unneeded slices
// Static structures can be used if node only holds one or two elements
// Avoids pointless runtime loops
func (n NodeSimpleOr) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return NodeOr{L: n[0], R: n[1]}
	}
	return n
}

// NodeNot negates a branch. A field test wrapped in NOT holds for events
// that lack the field entirely.
type NodeNot struct {
	B Branch
}

// Match implements Matcher
func (n NodeNot) Match(e Selector) bool {
	return !n.B.Match(e)
}

// NodeAnd is a two element node of a binary tree with Left and Right branches
// connected via logical conjunction. Right branch is not evaluated when Left
// already fails.
type NodeAnd struct {
	L, R Branch
}

// Match implements Matcher
func (n NodeAnd) Match(e Selector) bool {
	return n.L.Match(e) && n.R.Match(e)
}

// NodeOr is a two element node of a binary tree with Left and Right branches
// connected via logical disjunction. Right branch is not evaluated when Left
// already holds.
type NodeOr struct {
	L, R Branch
}

// Match implements Matcher
func (n NodeOr) Match(e Selector) bool {
	return n.L.Match(e) || n.R.Match(e)
}

// FieldPattern is a leaf performing one string test against one event field.
// An absent or empty field never satisfies a positive test.
type FieldPattern struct {
	Field Field
	S     StringMatcher
}

// Match implements Matcher
func (f FieldPattern) Match(e Selector) bool {
	val, ok := e.Select(f.Field)
	if !ok {
		return false
	}
	return f.S.StringMatch(val)
}

// NumFieldPattern is a leaf performing a numeric equality test against one
// event field, used for exit codes
type NumFieldPattern struct {
	Field Field
	N     NumMatcher
}

// Match implements Matcher
func (f NumFieldPattern) Match(e Selector) bool {
	val, ok := e.Select(f.Field)
	if !ok {
		return false
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return false
	}
	return f.N.NumMatch(num)
}
