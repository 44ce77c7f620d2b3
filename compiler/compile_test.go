package compiler

import (
	"testing"

	"github.com/coregx/regexvm/program"
)

func TestCompileLiteralWrapsWholeMatchCapture(t *testing.T) {
	prog, err := Compile(Literal{Rune: 'a'}, program.DefaultOptions(), "a")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Setmark, One(a), Capturemark(0,-1), Stop.
	if got, want := program.Opcode(prog.Codes[0]).Base(), program.Setmark; got != want {
		t.Errorf("Codes[0] base = %v, want %v", got, want)
	}
	oneAt := 1
	if got, want := program.Opcode(prog.Codes[oneAt]).Base(), program.One; got != want {
		t.Errorf("Codes[%d] base = %v, want %v", oneAt, got, want)
	}
	if got, want := int32(prog.Codes[oneAt+1]), int32('a'); got != want {
		t.Errorf("One operand = %d, want %d", got, want)
	}
	capAt := oneAt + 2
	if got, want := program.Opcode(prog.Codes[capAt]).Base(), program.Capturemark; got != want {
		t.Errorf("Codes[%d] base = %v, want %v", capAt, got, want)
	}
	last := len(prog.Codes) - 1
	if got, want := program.Opcode(prog.Codes[last]).Base(), program.Stop; got != want {
		t.Errorf("last instruction base = %v, want %v", got, want)
	}
}

func TestCompileAssignsGroupZeroAndDenseSlots(t *testing.T) {
	tree := Concat{Nodes: []Node{
		Capture{Group: 1, Body: Literal{Rune: 'a'}},
		Capture{Group: 2, Body: Literal{Rune: 'b'}},
	}}
	prog, err := Compile(tree, program.DefaultOptions(), "(a)(b)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if slot, ok := prog.DenseSlot(0); !ok || slot != 0 {
		t.Errorf("group 0 slot = (%d, %v), want (0, true)", slot, ok)
	}
	s1, ok1 := prog.DenseSlot(1)
	s2, ok2 := prog.DenseSlot(2)
	if !ok1 || !ok2 || s1 == s2 || s1 == 0 || s2 == 0 {
		t.Errorf("group slots = (%d,%v) (%d,%v), want distinct nonzero slots", s1, ok1, s2, ok2)
	}
	if prog.CapSize != 3 {
		t.Errorf("CapSize = %d, want 3", prog.CapSize)
	}
}

func TestCompileNamedGroupRecordsCapName(t *testing.T) {
	tree := Capture{Group: 1, Name: "word", Body: Literal{Rune: 'a'}}
	prog, err := Compile(tree, program.DefaultOptions(), "(?<word>a)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got, ok := prog.CapNames["word"]; !ok || got != 1 {
		t.Errorf("CapNames[\"word\"] = (%d, %v), want (1, true)", got, ok)
	}
}

func TestCompileSingleAtomRepeatUsesLoopFamily(t *testing.T) {
	tree := Repeat{Body: Literal{Rune: 'a'}, Min: 0, Max: -1}
	prog, err := Compile(tree, program.DefaultOptions(), "a*")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Setmark, Oneloop, Capturemark, Stop: no Branchcount/Nullcount appears
	// for a single-atom body.
	foundLoop := false
	for _, raw := range prog.Codes {
		if program.Opcode(raw).Base() == program.Oneloop {
			foundLoop = true
		}
		if program.Opcode(raw).Base() == program.Branchcount {
			t.Errorf("single-atom repeat lowered through the general Branchcount path")
		}
	}
	if !foundLoop {
		t.Errorf("expected an Oneloop instruction for a single-atom greedy repeat")
	}
}

func TestCompileGeneralRepeatUsesBranchcountFamily(t *testing.T) {
	tree := Repeat{Body: Capture{Group: 1, Body: Literal{Rune: 'a'}}, Min: 1, Max: -1}
	prog, err := Compile(tree, program.DefaultOptions(), "(a)+")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	foundBranchcount := false
	for _, raw := range prog.Codes {
		if program.Opcode(raw).Base() == program.Branchcount {
			foundBranchcount = true
		}
	}
	if !foundBranchcount {
		t.Errorf("expected a Branchcount instruction for a multi-instruction repeat body")
	}
}

func TestCompileLazyRepeatUsesLazybranchcount(t *testing.T) {
	tree := Repeat{Body: Capture{Group: 1, Body: Literal{Rune: 'a'}}, Min: 0, Max: -1, Lazy: true}
	prog, err := Compile(tree, program.DefaultOptions(), "(a)*?")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, raw := range prog.Codes {
		if program.Opcode(raw).Base() == program.Lazybranchcount {
			return
		}
	}
	t.Errorf("expected a Lazybranchcount instruction for a lazy multi-instruction repeat")
}

func TestCompileAlternateEmitsLazybranchAndGoto(t *testing.T) {
	tree := Alternate{Nodes: []Node{Literal{Rune: 'a'}, Literal{Rune: 'b'}}}
	prog, err := Compile(tree, program.DefaultOptions(), "a|b")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	foundBranch, foundGoto := false, false
	for _, raw := range prog.Codes {
		base := program.Opcode(raw).Base()
		if base == program.Lazybranch {
			foundBranch = true
		}
		if base == program.Goto {
			foundGoto = true
		}
	}
	if !foundBranch || !foundGoto {
		t.Errorf("expected both Lazybranch and Goto in a two-way alternation, got branch=%v goto=%v", foundBranch, foundGoto)
	}
}

func TestCompileRightToLeftReversesConcatChildren(t *testing.T) {
	ltr, err := Compile(Concat{Nodes: []Node{Literal{Rune: 'f'}, Literal{Rune: 'o'}, Literal{Rune: 'o'}}}, program.DefaultOptions(), "foo")
	if err != nil {
		t.Fatalf("Compile (ltr): %v", err)
	}
	opts := program.DefaultOptions()
	opts.RightToLeft = true
	rtl, err := Compile(Concat{Nodes: []Node{Literal{Rune: 'f'}, Literal{Rune: 'o'}, Literal{Rune: 'o'}}}, opts, "foo")
	if err != nil {
		t.Fatalf("Compile (rtl): %v", err)
	}

	literalOperand := func(p *program.Program, oneIndex int) rune {
		pos := -1
		seen := 0
		for i := 0; i < len(p.Codes); {
			op := program.Opcode(p.Codes[i])
			if op.Base() == program.One {
				if seen == oneIndex {
					pos = i
					break
				}
				seen++
			}
			i += op.Size()
		}
		if pos < 0 {
			return 0
		}
		return rune(int32(p.Codes[pos+1]))
	}

	if got, want := literalOperand(ltr, 0), 'f'; got != want {
		t.Errorf("ltr first One operand = %q, want %q", got, want)
	}
	if got, want := literalOperand(rtl, 0), 'o'; got != want {
		t.Errorf("rtl first One operand = %q, want %q (children must reverse under RightToLeft)", got, want)
	}
}

func TestCompileBackreferenceToUndeclaredGroupErrors(t *testing.T) {
	_, err := Compile(Backreference{Group: 1}, program.DefaultOptions(), `\1`)
	if err == nil {
		t.Fatalf("expected an error for a backreference to an undeclared group")
	}
}

func TestCompileConditionalOnUndeclaredGroupErrors(t *testing.T) {
	_, err := Compile(Conditional{Group: 1, Yes: Literal{Rune: 'a'}}, program.DefaultOptions(), "(?(1)a)")
	if err == nil {
		t.Fatalf("expected an error for a conditional on an undeclared group")
	}
}

func TestCompileConditionalWithoutNoBranchPatchesTestrefToHere(t *testing.T) {
	tree := Concat{Nodes: []Node{
		Capture{Group: 1, Body: Literal{Rune: 'a'}},
		Conditional{Group: 1, Yes: Literal{Rune: 'b'}},
	}}
	prog, err := Compile(tree, program.DefaultOptions(), "(a)(?(1)b)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for i := 0; i < len(prog.Codes); {
		op := program.Opcode(prog.Codes[i])
		if op.Base() == program.Testref {
			noTarget := int(int32(prog.Codes[i+2]))
			if noTarget < i || noTarget > len(prog.Codes) {
				t.Errorf("Testref no-branch target %d out of range", noTarget)
			}
			return
		}
		i += op.Size()
	}
	t.Fatalf("no Testref instruction found")
}
