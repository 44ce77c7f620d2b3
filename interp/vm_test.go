package interp

import (
	"testing"
	"time"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/compiler"
	"github.com/coregx/regexvm/program"
)

func build(t *testing.T, tree compiler.Node, opts program.Options) (*program.Program, *Interpreter) {
	t.Helper()
	prog, err := compiler.Compile(tree, opts, "<test>")
	if err != nil {
		t.Fatalf("compiler.Compile: %v", err)
	}
	it := New(prog, charclass.Table(prog.Classes))
	return prog, it
}

func run(t *testing.T, it *Interpreter, text []rune, startPos int) (bool, error) {
	t.Helper()
	it.Reset(text, 0, len(text), startPos, time.Time{}, false, 0)
	return it.Run()
}

func TestRunMatchesLiteralConcat(t *testing.T) {
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Literal{Rune: 'a'},
		compiler.Literal{Rune: 'b'},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("ab"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match", ok, err)
	}
	if it.Record().MatchLength(0) != 2 {
		t.Errorf("group 0 length = %d, want 2", it.Record().MatchLength(0))
	}
}

func TestRunFailsOnMismatch(t *testing.T) {
	tree := compiler.Literal{Rune: 'a'}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("b"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok {
		t.Errorf("Run() = true, want false for a mismatched literal")
	}
}

func TestResetClearsStateBetweenRuns(t *testing.T) {
	tree := compiler.Capture{Group: 1, Body: compiler.Repeat{Body: compiler.Literal{Rune: 'a'}, Min: 0, Max: -1}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("aaa"), 0)
	if err != nil || !ok {
		t.Fatalf("first Run() = (%v, %v), want a match", ok, err)
	}
	if it.Record().MatchLength(1) != 3 {
		t.Fatalf("first run group 1 length = %d, want 3", it.Record().MatchLength(1))
	}

	ok, err = run(t, it, []rune(""), 0)
	if err != nil || !ok {
		t.Fatalf("second Run() = (%v, %v), want a zero-width match", ok, err)
	}
	if it.Record().MatchLength(1) != 0 {
		t.Errorf("second run group 1 length = %d, want 0 (stale state from the first run leaked)", it.Record().MatchLength(1))
	}
}

func TestGreedyLoopBacktracksPastOverconsumption(t *testing.T) {
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Repeat{Body: compiler.Literal{Rune: 'a'}, Min: 0, Max: -1},
		compiler.Literal{Rune: 'a'},
		compiler.Literal{Rune: 'b'},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("aaab"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match (greedy a* must give back one 'a')", ok, err)
	}
	if it.Record().MatchLength(0) != 4 {
		t.Errorf("whole match length = %d, want 4", it.Record().MatchLength(0))
	}
}

func TestGeneralBodyLoopOverCaptureGroup(t *testing.T) {
	// A Repeat whose body is itself a Capture cannot use the single-atom
	// Oneloop family, forcing the Nullcount/Branchcount path.
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Repeat{
			Min: 1, Max: -1,
			Body: compiler.Capture{Group: 1, Body: compiler.Literal{Rune: 'a'}},
		},
		compiler.Assertion{Kind: compiler.AssertEnd},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("aaa"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match", ok, err)
	}
	if it.Record().MatchIndex(1) != 2 || it.Record().MatchLength(1) != 1 {
		t.Errorf("group 1 should hold the last iteration's span [2,3), got [%d,%d)",
			it.Record().MatchIndex(1), it.Record().MatchIndex(1)+it.Record().MatchLength(1))
	}
}

func TestGeneralBodyLoopRejectsZeroWidthInfiniteLoop(t *testing.T) {
	// A Repeat over an always-zero-width body (a bare assertion) must
	// terminate instead of looping forever.
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Repeat{
			Min: 0, Max: -1,
			Body: compiler.Capture{Group: 1, Body: compiler.Assertion{Kind: compiler.AssertBol}},
		},
		compiler.Literal{Rune: 'x'},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("x"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ok {
		t.Fatalf("Run() = false, want a match (the zero-width loop body must not spin forever)")
	}
}

func TestAtomicGroupDiscardsInternalBacktracking(t *testing.T) {
	// (?>a*)a never matches, since the atomic group consumes every 'a'
	// greedily and cannot give any back to let the trailing literal match.
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Atomic{Body: compiler.Repeat{Body: compiler.Literal{Rune: 'a'}, Min: 0, Max: -1}},
		compiler.Literal{Rune: 'a'},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("aaa"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok {
		t.Errorf("Run() = true, want false: an atomic group must not backtrack internally")
	}
}

func TestNegativeLookaroundRejectsMatchingBody(t *testing.T) {
	// a(?!b) must match "ac" but not "ab".
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Literal{Rune: 'a'},
		compiler.Lookaround{Negative: true, Body: compiler.Literal{Rune: 'b'}},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("ac"), 0)
	if err != nil || !ok {
		t.Fatalf("Run(%q) = (%v, %v), want a match", "ac", ok, err)
	}

	ok, err = run(t, it, []rune("ab"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok {
		t.Errorf("Run(%q) = true, want false: negative lookahead body matched", "ab")
	}
}

func TestPositiveLookbehindRequiresPrecedingText(t *testing.T) {
	// (?<=a)b matches the b in "ab" but not a standalone "b".
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Lookaround{Behind: true, Body: compiler.Literal{Rune: 'a'}},
		compiler.Literal{Rune: 'b'},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("ab"), 1)
	if err != nil || !ok {
		t.Fatalf("Run() at pos 1 of %q = (%v, %v), want a match", "ab", ok, err)
	}

	ok, err = run(t, it, []rune("b"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok {
		t.Errorf("Run() = true, want false: no preceding 'a' to satisfy the lookbehind")
	}
}

func TestBackreferenceRequiresExactCapturedText(t *testing.T) {
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Capture{Group: 1, Body: compiler.Repeat{Body: compiler.Literal{Rune: 'a'}, Min: 1, Max: -1}},
		compiler.Literal{Rune: '-'},
		compiler.Backreference{Group: 1},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("aa-aa"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match", ok, err)
	}

	ok, err = run(t, it, []rune("aa-a"), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ok {
		t.Errorf("Run() = true, want false: backreference text does not match")
	}
}

func TestBalancedGroupUnwindsCapturesOnUndo(t *testing.T) {
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Assertion{Kind: compiler.AssertBeginning},
		compiler.Repeat{
			Min: 1, Max: -1,
			Body: compiler.Alternate{Nodes: []compiler.Node{
				compiler.Capture{Group: 1, Name: "o", Body: compiler.Literal{Rune: '('}},
				compiler.Balanced{Group: -1, PriorGroup: 1, Body: compiler.Literal{Rune: ')'}},
			}},
		},
		compiler.Assertion{Kind: compiler.AssertEnd},
	}}
	prog, it := build(t, tree, program.DefaultOptions())

	ok, err := run(t, it, []rune("(())"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match for balanced parens", ok, err)
	}
	slot, _ := prog.DenseSlot(1)
	if it.Record().IsMatched(slot) {
		t.Errorf("group \"o\" should have no open captures left once every paren is closed")
	}

	// No `(?(o)(?!))` tail enforces full closure, so a dangling open paren
	// still matches: "o" resolves to its innermost still-open capture.
	ok, err = run(t, it, []rune("(()"), 0)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v), want a match even with one paren left open", ok, err)
	}
	if !it.Record().IsMatched(slot) {
		t.Errorf("group \"o\" should still be matched: one paren was never closed")
	}
}

func TestRunTimesOutOnPathologicalBacktracking(t *testing.T) {
	tree := compiler.Concat{Nodes: []compiler.Node{
		compiler.Repeat{
			Min: 1, Max: -1,
			Body: compiler.Capture{Group: 1, Body: compiler.Repeat{Body: compiler.Literal{Rune: 'a'}, Min: 1, Max: -1}},
		},
		compiler.Assertion{Kind: compiler.AssertEnd},
	}}
	_, it := build(t, tree, program.DefaultOptions())

	input := make([]rune, 0, 31)
	for i := 0; i < 30; i++ {
		input = append(input, 'a')
	}
	input = append(input, '!')

	deadline := time.Now().Add(20 * time.Millisecond)
	it.Reset(input, 0, len(input), 0, deadline, true, 20*time.Millisecond)
	_, err := it.Run()
	if err == nil {
		t.Fatalf("expected a timeout error, got none")
	}
}
