// Package sink formats evaluation results for consumers: JSON report files
// and an optional AMQP queue for live verdict updates.
package sink

import (
	"os"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/velasec/traceverdict"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Report is the machine-readable rendering of one evaluation
type Report struct {
	Verdict         string    `json:"verdict"`
	Confidence      float64   `json:"confidence"`
	SuspicionScore  int       `json:"suspicion_score"`
	NormalizedScore int       `json:"normalized_score"`
	SessionID       string    `json:"session_id"`
	TotalCommands   int       `json:"total_commands"`
	FlagsCount      int       `json:"flags_count"`
	Flags           []Flag    `json:"flags"`
	Final           bool      `json:"final"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
	TraceFile       string    `json:"trace_file,omitempty"`
}

// Flag is one finding in report form
type Flag struct {
	RuleID       string               `json:"rule_id"`
	Kind         string               `json:"kind"`
	Severity     int                  `json:"severity"`
	Description  string               `json:"description"`
	Sequence     int                  `json:"sequence_num"`
	Related      []int                `json:"related_sequences,omitempty"`
	Command      string               `json:"command,omitempty"`
	MatchedField string               `json:"matched_field,omitempty"`
	MatchedValue string               `json:"matched_value,omitempty"`
	Tags         traceverdict.Tags    `json:"tags,omitempty"`
}

// NewReport shapes an evaluation for output, findings ordered by weight so
// the strongest evidence reads first
func NewReport(eval *traceverdict.Evaluation, traceFile string) *Report {
	flags := make([]Flag, 0, len(eval.Findings))
	for _, f := range eval.Findings {
		flags = append(flags, Flag{
			RuleID:       f.ID,
			Kind:         f.Kind.String(),
			Severity:     f.Weight,
			Description:  f.Description,
			Sequence:     f.Sequence,
			Related:      f.Related,
			Command:      f.Command,
			MatchedField: f.MatchedField,
			MatchedValue: f.MatchedValue,
			Tags:         f.Tags,
		})
	}
	sort.SliceStable(flags, func(i, j int) bool {
		return flags[i].Severity > flags[j].Severity
	})
	return &Report{
		Verdict:         eval.Verdict.String(),
		Confidence:      eval.Confidence,
		SuspicionScore:  eval.Cumulative,
		NormalizedScore: eval.Normalized,
		SessionID:       eval.SessionID,
		TotalCommands:   eval.Events,
		FlagsCount:      len(flags),
		Flags:           flags,
		Final:           eval.Final,
		AnalyzedAt:      eval.AnalyzedAt,
		TraceFile:       traceFile,
	}
}

// Encode renders the report as indented JSON
func (r *Report) Encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile saves the JSON report
func (r *Report) WriteFile(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
