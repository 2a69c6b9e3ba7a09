package traceverdict

// NormalizedCap bounds the score reported for display, the cumulative score
// itself is never capped
const NormalizedCap = 100

// Verdict thresholds on the cumulative score, highest qualifying wins
const (
	ThresholdMalicious             = 70
	ThresholdSuspicious            = 40
	ThresholdPotentiallySuspicious = 20
)

// FindingKind separates single-event rule findings from behavioral ones
type FindingKind int

const (
	FindingRule FindingKind = iota
	FindingBehavior
)

func (k FindingKind) String() string {
	if k == FindingBehavior {
		return "behavior"
	}
	return "rule"
}

// Finding is the evidence emitted when a rule or behavioral detector fires
type Finding struct {
	// ID is the rule or detector identifier
	ID   string      `json:"id"`
	Kind FindingKind `json:"-"`

	Description string `json:"description"`
	Weight      int    `json:"severity"`

	// Sequence is the event that triggered the finding, Related carries
	// every involved sequence number for multi-event findings
	Sequence int   `json:"sequence_num"`
	Related  []int `json:"related_sequences,omitempty"`

	// Command and the matched field/value pair contextualize rule findings
	Command      string `json:"command,omitempty"`
	MatchedField string `json:"matched_field,omitempty"`
	MatchedValue string `json:"matched_value,omitempty"`

	Tags Tags `json:"tags,omitempty"`
}

// Verdict is the categorical judgment over a session
type Verdict int

const (
	VerdictBenign Verdict = iota
	VerdictPotentiallySuspicious
	VerdictSuspicious
	VerdictMalicious
)

func (v Verdict) String() string {
	switch v {
	case VerdictMalicious:
		return "MALICIOUS"
	case VerdictSuspicious:
		return "SUSPICIOUS"
	case VerdictPotentiallySuspicious:
		return "POTENTIALLY_SUSPICIOUS"
	}
	return "BENIGN"
}

// CalculateVerdict maps a cumulative score to a verdict and confidence.
// Pure function, re-deriving from the same score always yields the same pair.
func CalculateVerdict(score int) (Verdict, float64) {
	switch {
	case score >= ThresholdMalicious:
		return VerdictMalicious, 0.95
	case score >= ThresholdSuspicious:
		return VerdictSuspicious, 0.75
	case score >= ThresholdPotentiallySuspicious:
		return VerdictPotentiallySuspicious, 0.50
	default:
		return VerdictBenign, 0.85
	}
}

// Scoreboard accumulates finding weights into the running session score.
// The cumulative score only ever grows, findings are append-only and kept in
// emission order.
type Scoreboard struct {
	weights    SeverityWeights
	cumulative int
	findings   []Finding
}

// NewScoreboard creates an empty scoreboard with the given weight table
func NewScoreboard(weights SeverityWeights) (*Scoreboard, error) {
	if err := weights.validate(); err != nil {
		return nil, err
	}
	return &Scoreboard{
		weights:  weights,
		findings: make([]Finding, 0),
	}, nil
}

// AddRuleResult converts a positive rule match into a finding and scores it
func (s *Scoreboard) AddRuleResult(e Event, res Result) Finding {
	f := Finding{
		ID:           res.ID,
		Kind:         FindingRule,
		Description:  res.Title,
		Weight:       s.weights.Weight(res.Severity),
		Sequence:     e.Sequence,
		Command:      e.Command,
		MatchedField: res.MatchedField,
		MatchedValue: res.MatchedValue,
		Tags:         res.Tags,
	}
	s.Add(f)
	return f
}

// Add appends findings and grows the cumulative score by their weights
func (s *Scoreboard) Add(findings ...Finding) {
	for _, f := range findings {
		s.cumulative += f.Weight
		s.findings = append(s.findings, f)
	}
}

// Cumulative returns the uncapped running score
func (s *Scoreboard) Cumulative() int { return s.cumulative }

// Normalized returns the display score capped at NormalizedCap
func (s *Scoreboard) Normalized() int {
	if s.cumulative > NormalizedCap {
		return NormalizedCap
	}
	return s.cumulative
}

// Findings returns a copy of the ordered evidence list
func (s *Scoreboard) Findings() []Finding {
	out := make([]Finding, len(s.findings))
	copy(out, s.findings)
	return out
}
