// Package trace supplies the detection engine with normalized events decoded
// from JSONL agent trace files, either as a finite batch or as a live tail.
package trace

import (
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/velasec/traceverdict"
	"mvdan.cc/sh/v3/shell"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one raw trace line as written by the agent harness
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Sequence   int       `json:"sequence_num"`
	Command    string    `json:"command"`
	WorkingDir string    `json:"working_dir"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	User       string    `json:"user"`
}

// Normalize converts a raw record into the canonical event shape the engine
// consumes, deriving argv fields through shell-aware word splitting
func Normalize(r Record) traceverdict.Event {
	return traceverdict.Event{
		SessionID:  r.SessionID,
		Sequence:   r.Sequence,
		Timestamp:  r.Timestamp,
		Command:    r.Command,
		WorkingDir: r.WorkingDir,
		ExitCode:   r.ExitCode,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		Args:       splitArgs(r.Command),
	}
}

// splitArgs derives the argv fields a0..aN from the command text. Proper
// shell word splitting handles quoting, compound commands that the shell
// parser rejects fall back to whitespace fields. a0 is reduced to the
// executable basename, mirroring auditd EXECVE records.
func splitArgs(command string) []string {
	args, err := shell.Fields(command, func(string) string { return "" })
	if err != nil || len(args) == 0 {
		args = strings.Fields(command)
	}
	if len(args) == 0 {
		return nil
	}
	if len(args) > traceverdict.MaxArgFields {
		args = args[:traceverdict.MaxArgFields]
	}
	out := make([]string, len(args))
	copy(out, args)
	out[0] = filepath.Base(out[0])
	return out
}

// decodeLine parses one JSONL line into a normalized event
func decodeLine(line []byte) (traceverdict.Event, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return traceverdict.Event{}, err
	}
	return Normalize(r), nil
}
