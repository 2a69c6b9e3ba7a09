package traceverdict

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field enumerates event attributes a rule condition may reference.
// Conditions referencing anything outside this set are rejected at load time.
type Field int

const (
	FieldNone Field = iota
	FieldCommand
	FieldWorkingDir
	FieldExitCode
	FieldStdout
	FieldStderr
	FieldFullContext
	// FieldArg0 through FieldArg9 map to shell-split argv positions,
	// arg0 being the executable basename
	FieldArg0
	FieldArg1
	FieldArg2
	FieldArg3
	FieldArg4
	FieldArg5
	FieldArg6
	FieldArg7
	FieldArg8
	FieldArg9
)

// MaxArgFields is the number of argv positions exposed to rule conditions
const MaxArgFields = 10

func (f Field) String() string {
	switch f {
	case FieldCommand:
		return "command"
	case FieldWorkingDir:
		return "working_dir"
	case FieldExitCode:
		return "exit_code"
	case FieldStdout:
		return "stdout"
	case FieldStderr:
		return "stderr"
	case FieldFullContext:
		return "full_context"
	}
	if f >= FieldArg0 && f <= FieldArg9 {
		return "a" + strconv.Itoa(int(f-FieldArg0))
	}
	return "unknown"
}

// NewField resolves a rule-file field name to a known Field
func NewField(name string) (Field, error) {
	switch name {
	case "command":
		return FieldCommand, nil
	case "working_dir":
		return FieldWorkingDir, nil
	case "exit_code":
		return FieldExitCode, nil
	case "stdout":
		return FieldStdout, nil
	case "stderr":
		return FieldStderr, nil
	case "full_context":
		return FieldFullContext, nil
	}
	if len(name) == 2 && name[0] == 'a' && name[1] >= '0' && name[1] <= '9' {
		return FieldArg0 + Field(name[1]-'0'), nil
	}
	return FieldNone, ErrUnknownField{Name: name}
}

// Event is one normalized command execution from an agent trace.
// Instances are immutable once produced by the normalizer.
type Event struct {
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence_num"`
	Timestamp time.Time `json:"timestamp"`

	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`

	// Args holds the shell-split command vector, Args[0] reduced to the
	// executable basename. Populated by the normalizer.
	Args []string `json:"args,omitempty"`
}

// Select implements Selector
func (e Event) Select(f Field) (string, bool) {
	switch f {
	case FieldCommand:
		return nonEmpty(e.Command)
	case FieldWorkingDir:
		return nonEmpty(e.WorkingDir)
	case FieldExitCode:
		return strconv.Itoa(e.ExitCode), true
	case FieldStdout:
		return nonEmpty(e.Stdout)
	case FieldStderr:
		return nonEmpty(e.Stderr)
	case FieldFullContext:
		return nonEmpty(strings.TrimSpace(e.Command + " " + e.Stdout + " " + e.Stderr))
	}
	if f >= FieldArg0 && f <= FieldArg9 {
		idx := int(f - FieldArg0)
		if idx < len(e.Args) {
			return nonEmpty(e.Args[idx])
		}
	}
	return "", false
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%d %s", e.SessionID, e.Sequence, e.Command)
}

func nonEmpty(val string) (string, bool) {
	if val == "" {
		return "", false
	}
	return val, true
}
