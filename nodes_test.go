package traceverdict

import (
	"testing"
)

// probeBranch records whether it was evaluated and returns a fixed answer
type probeBranch struct {
	answer    bool
	evaluated *bool
}

func (p probeBranch) Match(Selector) bool {
	if p.evaluated != nil {
		*p.evaluated = true
	}
	return p.answer
}

func TestShortCircuit(t *testing.T) {
	e := Event{Command: "ls"}

	var rightSeen bool
	and := NodeAnd{
		L: probeBranch{answer: false},
		R: probeBranch{answer: true, evaluated: &rightSeen},
	}
	if and.Match(e) {
		t.Fatal("AND with false left child matched")
	}
	if rightSeen {
		t.Fatal("AND evaluated right child after false left child")
	}

	rightSeen = false
	or := NodeOr{
		L: probeBranch{answer: true},
		R: probeBranch{answer: false, evaluated: &rightSeen},
	}
	if !or.Match(e) {
		t.Fatal("OR with true left child did not match")
	}
	if rightSeen {
		t.Fatal("OR evaluated right child after true left child")
	}

	rightSeen = false
	simple := NodeSimpleAnd{
		probeBranch{answer: false},
		probeBranch{answer: true, evaluated: &rightSeen},
		probeBranch{answer: true, evaluated: &rightSeen},
	}
	if simple.Match(e) || rightSeen {
		t.Fatal("NodeSimpleAnd did not stop at first false child")
	}
}

func TestReduce(t *testing.T) {
	single := NodeSimpleAnd{probeBranch{answer: true}}
	if _, ok := single.Reduce().(probeBranch); !ok {
		t.Fatal("single element slice should reduce to the element")
	}
	pair := NodeSimpleOr{probeBranch{answer: false}, probeBranch{answer: true}}
	if _, ok := pair.Reduce().(NodeOr); !ok {
		t.Fatal("two element slice should reduce to a binary node")
	}
}

func TestAbsentFieldSemantics(t *testing.T) {
	// event carries no stdout
	e := Event{SessionID: "s", Sequence: 1, Command: "ls"}

	m, err := NewStringMatcher(OpContains, false, "secret")
	if err != nil {
		t.Fatal(err)
	}
	leaf := FieldPattern{Field: FieldStdout, S: m}
	if leaf.Match(e) {
		t.Fatal("absent field satisfied a positive test")
	}
	if !(NodeNot{B: leaf}).Match(e) {
		t.Fatal("absent field did not satisfy NOT over a positive test")
	}
}
