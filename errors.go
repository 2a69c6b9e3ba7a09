package traceverdict

import (
	"fmt"
)

// ErrInvalidRegex contextualizes broken regular expressions presented by the user
type ErrInvalidRegex struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidRegex) Error() string {
	return fmt.Sprintf("/%s/ %s", e.Pattern, e.Err)
}

// ErrInvalidGlob contextualizes broken glob expressions presented by the user
type ErrInvalidGlob struct {
	Pattern string
	Err     error
}

// Error implements error
func (e ErrInvalidGlob) Error() string {
	return fmt.Sprintf("glob |%s| %s", e.Pattern, e.Err)
}

// ErrUnknownField indicates a condition referencing an event field outside
// the supported set; rejected at rule load, never at evaluation
type ErrUnknownField struct {
	Name string
}

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("condition references unknown event field %q", e.Name)
}

// ErrUnknownOp indicates an unsupported field test operator in a rule file
type ErrUnknownOp struct {
	Op    string
	Field string
}

func (e ErrUnknownOp) Error() string {
	return fmt.Sprintf("unsupported operator %q on field %q", e.Op, e.Field)
}

// ErrMissingDetection indicates a rule without a detection condition tree
type ErrMissingDetection struct{}

func (e ErrMissingDetection) Error() string { return "rule is missing detection condition" }

// ErrMissingLevel indicates a rule with an absent or unknown severity level
type ErrMissingLevel struct {
	Level string
}

func (e ErrMissingLevel) Error() string {
	return fmt.Sprintf("rule severity level %q is not one of informational, low, medium, high, critical", e.Level)
}

// ErrEmptyCondition indicates a combinator node with no children or a field
// test with no expected values
type ErrEmptyCondition struct {
	Msg string
}

func (e ErrEmptyCondition) Error() string {
	return fmt.Sprintf("empty condition node, %s", e.Msg)
}

// ErrMixedCondition indicates a condition node that defines more than one of
// all / any / not / field test, making the intended logic ambiguous
type ErrMixedCondition struct{}

func (e ErrMixedCondition) Error() string {
	return "condition node must be exactly one of: all, any, not, field test"
}

// ErrParseYaml indicates a rule file that could not be decoded
type ErrParseYaml struct {
	Path string
	Err  error
}

func (e ErrParseYaml) Error() string {
	return fmt.Sprintf("file: %s; err: %s", e.Path, e.Err)
}

// ErrBulkParseYaml collects per-rule load failures. Some rules are bound to
// fail, no reason to exit the entire application. The caller decides if the
// collected errors warrant a full exit or just a report.
type ErrBulkParseYaml struct {
	Errs []ErrParseYaml
}

func (e ErrBulkParseYaml) Error() string {
	return fmt.Sprintf("got %d broken rule files", len(e.Errs))
}

// ErrDuplicateRule indicates two loaded rules sharing an identifier
type ErrDuplicateRule struct {
	ID   string
	Path string
}

func (e ErrDuplicateRule) Error() string {
	return fmt.Sprintf("duplicate rule id %s in %s", e.ID, e.Path)
}

// ErrSessionFinalized indicates an event offered to a session that has
// already produced its terminal result
type ErrSessionFinalized struct {
	SessionID string
}

func (e ErrSessionFinalized) Error() string {
	return fmt.Sprintf("session %s is finalized, no further events accepted", e.SessionID)
}

// ErrForeignSession indicates an event whose session id does not belong to
// the session state it was offered to
type ErrForeignSession struct {
	Want, Got string
}

func (e ErrForeignSession) Error() string {
	return fmt.Sprintf("event belongs to session %s, evaluator owns %s", e.Got, e.Want)
}

// ErrOutOfOrder indicates an event sequence number that does not advance the
// session; the source must present sequences in increasing order
type ErrOutOfOrder struct {
	SessionID  string
	Last, Next int
}

func (e ErrOutOfOrder) Error() string {
	return fmt.Sprintf("session %s got sequence %d after %d", e.SessionID, e.Next, e.Last)
}
