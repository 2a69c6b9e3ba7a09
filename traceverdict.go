// Package traceverdict classifies shell command traces produced by autonomous
// agents as benign or malicious. Declarative rules handle single-event
// detections while a stateful behavioral analyzer correlates multi-step
// patterns across one session.
package traceverdict

// Selector extracts a named field from an event for rule matching
// Should return false when the event cannot provide the field
type Selector interface {
	// Select implements Selector
	Select(Field) (string, bool)
}

// Matcher is used for implementing the abstract syntax tree of a rule condition
type Matcher interface {
	// Match implements Matcher
	Match(Selector) bool
}

// Branch implements Matcher with room for additional methods for walking and
// debugging the tree
type Branch interface {
	Matcher
}
