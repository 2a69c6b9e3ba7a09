package traceverdict

import (
	"testing"
)

func TestCalculateVerdict(t *testing.T) {
	cases := []struct {
		score      int
		verdict    Verdict
		confidence float64
	}{
		{0, VerdictBenign, 0.85},
		{19, VerdictBenign, 0.85},
		{20, VerdictPotentiallySuspicious, 0.50},
		{39, VerdictPotentiallySuspicious, 0.50},
		{40, VerdictSuspicious, 0.75},
		{69, VerdictSuspicious, 0.75},
		{70, VerdictMalicious, 0.95},
		{305, VerdictMalicious, 0.95},
	}
	for _, c := range cases {
		// a pure function: re-derive twice and expect identical pairs
		for i := 0; i < 2; i++ {
			verdict, confidence := CalculateVerdict(c.score)
			if verdict != c.verdict || confidence != c.confidence {
				t.Fatalf("score %d: got %s/%.2f, want %s/%.2f",
					c.score, verdict, confidence, c.verdict, c.confidence)
			}
		}
	}
}

func TestSeverityWeights(t *testing.T) {
	w := DefaultSeverityWeights()
	expected := map[Severity]int{
		SeverityInformational: 5,
		SeverityLow:           10,
		SeverityMedium:        25,
		SeverityHigh:          50,
		SeverityCritical:      75,
	}
	for level, weight := range expected {
		if got := w.Weight(level); got != weight {
			t.Fatalf("weight for %s: got %d, want %d", level, got, weight)
		}
	}
	if err := w.validate(); err != nil {
		t.Fatal(err)
	}
	broken := SeverityWeights{5, 10, 25, 20, 75}
	if err := broken.validate(); err == nil {
		t.Fatal("descending weight table should be rejected")
	}
}

func TestScoreboardMonotonicity(t *testing.T) {
	board, err := NewScoreboard(DefaultSeverityWeights())
	if err != nil {
		t.Fatal(err)
	}
	weights := []int{50, 0, 25, 75, 10, 0, 40}
	var prev int
	for i, w := range weights {
		board.Add(Finding{ID: "f", Weight: w, Sequence: i + 1})
		if board.Cumulative() < prev {
			t.Fatalf("cumulative score decreased: %d after %d", board.Cumulative(), prev)
		}
		prev = board.Cumulative()
	}
	if board.Cumulative() != 200 {
		t.Fatalf("expected cumulative 200, got %d", board.Cumulative())
	}
	if board.Normalized() != NormalizedCap {
		t.Fatalf("expected normalized score capped at %d, got %d", NormalizedCap, board.Normalized())
	}
	if len(board.Findings()) != len(weights) {
		t.Fatal("findings are append-only, none may be dropped")
	}
}

func TestScoreboardRuleResult(t *testing.T) {
	board, err := NewScoreboard(DefaultSeverityWeights())
	if err != nil {
		t.Fatal(err)
	}
	e := Event{SessionID: "s", Sequence: 7, Command: "cat /etc/passwd"}
	f := board.AddRuleResult(e, Result{
		ID:           "cred-passwd-read",
		Title:        "System password file read",
		Severity:     SeverityCritical,
		MatchedField: "command",
		MatchedValue: "cat /etc/passwd",
	})
	if f.Weight != 75 || f.Sequence != 7 || f.Kind != FindingRule {
		t.Fatalf("unexpected finding %+v", f)
	}
	if board.Cumulative() != 75 {
		t.Fatalf("expected score 75, got %d", board.Cumulative())
	}
}
