package traceverdict

import (
	"fmt"
	"sort"
)

// Behavior tag vocabulary. Rules classify themselves for the behavioral
// analyzer by carrying these tags, the analyzer never re-parses commands.
// The vocabulary is versioned, a rule authored against a different version
// is simply invisible to the analyzer.
const (
	TagVocabularyVersion = "behavior/v1"

	TagSensitiveRead    = TagVocabularyVersion + "/sensitive_read"
	TagCredentialAccess = TagVocabularyVersion + "/credential_access"
	TagEncode           = TagVocabularyVersion + "/encode"
	TagNetworkUpload    = TagVocabularyVersion + "/network_upload"
	TagAntiForensics    = TagVocabularyVersion + "/anti_forensics"

	// TagPersistencePrefix marks persistence mechanisms, the suffix names
	// the mechanism, e.g. behavior/v1/persistence/cron
	TagPersistencePrefix = TagVocabularyVersion + "/persistence/"
)

// Behavioral detector identifiers as they appear on findings
const (
	DetectorCredentialEnumeration = "behavior:credential_enumeration"
	DetectorExfiltrationChain     = "behavior:exfiltration_chain"
	DetectorPersistence           = "behavior:persistence_accumulation"
	DetectorAntiForensics         = "behavior:anti_forensics"
)

// BehaviorConfig holds detector thresholds and weights. All values are
// calibration constants, not derived from a formal model, so they are
// deliberately configurable.
type BehaviorConfig struct {
	// CredentialThreshold is the number of credential-access events that
	// trips the enumeration detector
	CredentialThreshold int
	// ChainWindow is the number of subsequent events a sensitive read is
	// kept pending for an encode or upload to complete the chain
	ChainWindow int
	// PersistenceThreshold is the number of distinct persistence
	// mechanisms that trips the persistence detector
	PersistenceThreshold int

	WeightEnumeration   int
	WeightChain         int
	WeightPersistence   int
	WeightAntiForensics int
}

// DefaultBehaviorConfig returns the stock thresholds
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		CredentialThreshold:  3,
		ChainWindow:          5,
		PersistenceThreshold: 2,
		WeightEnumeration:    20,
		WeightChain:          40,
		WeightPersistence:    30,
		WeightAntiForensics:  25,
	}
}

// Analyzer detects multi-step patterns that no single-event rule can express.
// One instance owns the state of exactly one session and must not be shared
// between sessions. All counters and flags are monotone, a detector never
// un-fires, so a verdict reached cannot silently downgrade.
type Analyzer struct {
	cfg BehaviorConfig

	credentialAccesses int
	credentialFired    bool

	lastReadSeq     int
	lastReadChained bool

	persistence      map[string]struct{}
	persistenceFired bool

	antiForensicsFired bool
}

// NewAnalyzer creates a per-session behavioral analyzer. Unset thresholds
// and weights take their stock values, so the zero config means defaults.
func NewAnalyzer(cfg BehaviorConfig) *Analyzer {
	stock := DefaultBehaviorConfig()
	if cfg.ChainWindow <= 0 {
		cfg.ChainWindow = stock.ChainWindow
	}
	if cfg.CredentialThreshold <= 0 {
		cfg.CredentialThreshold = stock.CredentialThreshold
	}
	if cfg.PersistenceThreshold <= 0 {
		cfg.PersistenceThreshold = stock.PersistenceThreshold
	}
	if cfg.WeightEnumeration <= 0 {
		cfg.WeightEnumeration = stock.WeightEnumeration
	}
	if cfg.WeightChain <= 0 {
		cfg.WeightChain = stock.WeightChain
	}
	if cfg.WeightPersistence <= 0 {
		cfg.WeightPersistence = stock.WeightPersistence
	}
	if cfg.WeightAntiForensics <= 0 {
		cfg.WeightAntiForensics = stock.WeightAntiForensics
	}
	return &Analyzer{
		cfg:         cfg,
		persistence: make(map[string]struct{}),
	}
}

// Observe updates session state with one event and the rule results it fired,
// returning any behavioral findings the event completed. Called exactly once
// per event, after single-event rule matching.
func (a *Analyzer) Observe(e Event, results Results) []Finding {
	findings := make([]Finding, 0)

	if f, ok := a.observeChain(e, results); ok {
		findings = append(findings, f)
	}
	if f, ok := a.observeCredentials(e, results); ok {
		findings = append(findings, f)
	}
	if f, ok := a.observePersistence(e, results); ok {
		findings = append(findings, f)
	}
	if f, ok := a.observeAntiForensics(e, results); ok {
		findings = append(findings, f)
	}
	return findings
}

// observeChain checks a pending sensitive read against encode or upload
// classifications before recording this event's own read, so a command that
// both reads and encodes chains with an earlier read rather than itself
func (a *Analyzer) observeChain(e Event, results Results) (Finding, bool) {
	var out Finding
	var emitted bool
	if a.lastReadSeq > 0 && !a.lastReadChained &&
		(hasResultTag(results, TagEncode) || hasResultTag(results, TagNetworkUpload)) {
		if gap := e.Sequence - a.lastReadSeq; gap <= a.cfg.ChainWindow {
			action := "encode"
			if hasResultTag(results, TagNetworkUpload) {
				action = "network upload"
			}
			out = Finding{
				ID:       DetectorExfiltrationChain,
				Kind:     FindingBehavior,
				Weight:   a.cfg.WeightChain,
				Sequence: e.Sequence,
				Related:  []int{a.lastReadSeq, e.Sequence},
				Description: fmt.Sprintf(
					"exfiltration chain: sensitive read at #%d followed by %s at #%d",
					a.lastReadSeq, action, e.Sequence),
			}
			a.lastReadChained = true
			emitted = true
		}
	}
	if hasResultTag(results, TagSensitiveRead) {
		a.lastReadSeq = e.Sequence
		a.lastReadChained = false
	}
	return out, emitted
}

func (a *Analyzer) observeCredentials(e Event, results Results) (Finding, bool) {
	if !hasResultTag(results, TagCredentialAccess) {
		return Finding{}, false
	}
	a.credentialAccesses++
	if a.credentialFired || a.credentialAccesses < a.cfg.CredentialThreshold {
		return Finding{}, false
	}
	a.credentialFired = true
	return Finding{
		ID:       DetectorCredentialEnumeration,
		Kind:     FindingBehavior,
		Weight:   a.cfg.WeightEnumeration,
		Sequence: e.Sequence,
		Description: fmt.Sprintf("credential enumeration: %d credential file accesses",
			a.credentialAccesses),
	}, true
}

func (a *Analyzer) observePersistence(e Event, results Results) (Finding, bool) {
	for _, res := range results {
		for _, mech := range res.Tags.WithPrefix(TagPersistencePrefix) {
			a.persistence[mech] = struct{}{}
		}
	}
	if a.persistenceFired || len(a.persistence) < a.cfg.PersistenceThreshold {
		return Finding{}, false
	}
	a.persistenceFired = true
	mechs := make([]string, 0, len(a.persistence))
	for mech := range a.persistence {
		mechs = append(mechs, mech[len(TagPersistencePrefix):])
	}
	sort.Strings(mechs)
	return Finding{
		ID:       DetectorPersistence,
		Kind:     FindingBehavior,
		Weight:   a.cfg.WeightPersistence,
		Sequence: e.Sequence,
		Description: fmt.Sprintf("persistence via %d distinct mechanisms: %v",
			len(mechs), mechs),
	}, true
}

func (a *Analyzer) observeAntiForensics(e Event, results Results) (Finding, bool) {
	if a.antiForensicsFired || !hasResultTag(results, TagAntiForensics) {
		return Finding{}, false
	}
	a.antiForensicsFired = true
	return Finding{
		ID:          DetectorAntiForensics,
		Kind:        FindingBehavior,
		Weight:      a.cfg.WeightAntiForensics,
		Sequence:    e.Sequence,
		Description: "anti-forensics: history or log clearing observed",
	}, true
}

func hasResultTag(results Results, tag string) bool {
	for _, res := range results {
		if res.Tags.Has(tag) {
			return true
		}
	}
	return false
}
