package traceverdict

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Evaluation is the running or final result of one session
type Evaluation struct {
	SessionID string `json:"session_id"`

	// Events is the number of valid events consumed so far
	Events       int `json:"total_commands"`
	LastSequence int `json:"last_sequence"`

	// Cumulative is the uncapped running score, Normalized caps it for
	// display so a hot session can still show e.g. 305/100
	Cumulative int `json:"suspicion_score"`
	Normalized int `json:"normalized_score"`

	Findings []Finding `json:"flags"`

	Verdict    Verdict `json:"-"`
	Confidence float64 `json:"confidence"`

	// Final marks the terminal result of a finalized session
	Final      bool      `json:"final"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

type sessionPhase int

const (
	phaseIdle sessionPhase = iota
	phaseActive
	phaseFinalized
)

// SessionConfig carries the collaborators and tunables for one session
type SessionConfig struct {
	// Ruleset is the immutable compiled rule collection, shared freely
	// between sessions
	Ruleset *Ruleset
	// Behavior holds detector thresholds, zero value means defaults
	Behavior BehaviorConfig
	// Weights is the severity weight table, zero value means defaults
	Weights SeverityWeights
	// Logger for skipped-event warnings, logrus standard logger when unset
	Logger *logrus.Logger
}

// Session drives the per-event pipeline for one session id:
// match all rules, behavioral observe, aggregate, verdict.
// Phases move idle -> active -> finalized, never backwards. One event's full
// pipeline is atomic relative to the session.
type Session struct {
	mu sync.Mutex

	id      string
	phase   sessionPhase
	lastSeq int
	events  int

	ruleset  *Ruleset
	analyzer *Analyzer
	board    *Scoreboard
	log      *logrus.Logger
}

// NewSession creates an idle session. An empty id adopts the session id of
// the first consumed event.
func NewSession(id string, cfg SessionConfig) (*Session, error) {
	if cfg.Ruleset == nil {
		return nil, ErrEmptyCondition{Msg: "session needs a ruleset"}
	}
	weights := cfg.Weights
	if weights == (SeverityWeights{}) {
		weights = DefaultSeverityWeights()
	}
	board, err := NewScoreboard(weights)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		id:       id,
		ruleset:  cfg.Ruleset,
		analyzer: NewAnalyzer(cfg.Behavior),
		board:    board,
		log:      logger,
	}, nil
}

// ID returns the session identifier, empty until the first event arrives on
// a session created without one
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Consume runs the full pipeline for one event and returns the updated
// running evaluation. Events from foreign sessions, events with
// non-increasing sequence numbers and events after finalization are rejected
// without touching session state.
func (s *Session) Consume(e Event) (*Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phaseFinalized {
		return nil, ErrSessionFinalized{SessionID: s.id}
	}
	if s.id == "" {
		s.id = e.SessionID
	}
	if e.SessionID != s.id {
		return nil, ErrForeignSession{Want: s.id, Got: e.SessionID}
	}
	if e.Sequence <= s.lastSeq {
		return nil, ErrOutOfOrder{SessionID: s.id, Last: s.lastSeq, Next: e.Sequence}
	}

	s.phase = phaseActive
	s.lastSeq = e.Sequence
	s.events++

	results, _ := s.ruleset.EvalAll(e)
	for _, res := range results {
		s.board.AddRuleResult(e, res)
	}
	s.board.Add(s.analyzer.Observe(e, results)...)

	return s.snapshot(false), nil
}

// Finalize moves the session to its terminal phase and returns the last
// known evaluation. Safe to call repeatedly, later calls return the same
// result. A session with zero valid events finalizes BENIGN with score 0.
func (s *Session) Finalize() *Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseFinalized
	return s.snapshot(true)
}

func (s *Session) snapshot(final bool) *Evaluation {
	score := s.board.Cumulative()
	verdict, confidence := CalculateVerdict(score)
	return &Evaluation{
		SessionID:    s.id,
		Events:       s.events,
		LastSequence: s.lastSeq,
		Cumulative:   score,
		Normalized:   s.board.Normalized(),
		Findings:     s.board.Findings(),
		Verdict:      verdict,
		Confidence:   confidence,
		Final:        final,
		AnalyzedAt:   time.Now(),
	}
}

// Evaluate consumes a finite ordered event batch for one session and returns
// the final evaluation. Invalid events are skipped with a warning, they never
// advance session state.
func Evaluate(cfg SessionConfig, events []Event) (*Evaluation, error) {
	session, err := NewSession("", cfg)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if _, err := session.Consume(e); err != nil {
			session.log.WithField("sequence", e.Sequence).Warnf("skipping event: %s", err)
		}
	}
	return session.Finalize(), nil
}

// Stream consumes events as they arrive from an unbounded source and pushes
// one updated evaluation per event into results. It blocks only between
// events, never mid-pipeline. The stream finalizes gracefully when the
// source closes or the context is cancelled, returning the best known
// evaluation rather than discarding in-flight state. The results channel is
// closed on return.
func Stream(ctx context.Context, cfg SessionConfig, events <-chan Event, results chan<- *Evaluation) (*Evaluation, error) {
	session, err := NewSession("", cfg)
	if err != nil {
		return nil, err
	}
	if results != nil {
		defer close(results)
	}
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case e, ok := <-events:
			if !ok {
				break loop
			}
			eval, err := session.Consume(e)
			if err != nil {
				session.log.WithField("sequence", e.Sequence).Warnf("skipping event: %s", err)
				continue loop
			}
			if results != nil {
				select {
				case results <- eval:
				case <-ctx.Done():
					break loop
				}
			}
		}
	}
	return session.Finalize(), nil
}
