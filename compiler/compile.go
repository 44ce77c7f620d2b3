package compiler

import (
	"fmt"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/internal/conv"
	"github.com/coregx/regexvm/program"
	"github.com/coregx/regexvm/rxerr"
)

// maxUnboundedIterations bounds Branchcount's "unbounded" case so every
// compiled loop carries a finite, generous ceiling rather than a sentinel
// the interpreter must special-case.
const maxUnboundedIterations = 1 << 24

// builder accumulates a program.Program's code stream while lowering a
// Node tree, mirroring the teacher's nfa/builder.go role: the interpreter
// is the only consumer of its output, so correctness of emitted byte
// sequences matters far more than optimizing them.
type builder struct {
	codes    []uint32
	strs     []string
	strIndex map[string]int
	classes  charclass.Table

	caps     program.CapsMap
	capNames map[string]int
	nextSlot int

	opts program.Options
}

// Compile lowers tree into an executable Program under opts. Group 0 is
// always the whole match and is assigned dense slot 0 automatically; other
// groups get dense slots in the order tree first declares them.
func Compile(tree Node, opts program.Options, pattern string) (*program.Program, error) {
	b := &builder{
		strIndex: make(map[string]int),
		caps:     make(program.CapsMap),
		capNames: make(map[string]int),
		opts:     opts,
	}
	b.caps[0] = 0
	b.nextSlot = 1

	b.emitOpcode(program.Setmark, 0)
	if err := b.emitNode(tree); err != nil {
		return nil, err
	}
	b.emit2(program.Capturemark, 0, -1)
	b.emitOpcode(program.Stop, 0)

	prog := &program.Program{
		Codes:       b.codes,
		Strings:     b.strs,
		Classes:     b.classes,
		TrackCount:  estimateTrackCount(tree),
		RightToLeft: opts.RightToLeft,
		Caps:        b.caps,
		CapSize:     b.nextSlot,
		CapNames:    b.capNames,
		Pattern:     pattern,
		Options:     opts,
	}
	return prog, nil
}

// --- code emission helpers ---

func (b *builder) here() int { return len(b.codes) }

func (b *builder) emitOpcode(op program.Opcode, flags program.Opcode) int {
	pos := b.here()
	b.codes = append(b.codes, uint32(op|flags))
	return pos
}

func (b *builder) emit1(op program.Opcode, a int) int {
	pos := b.emitOpcode(op, b.dirCi())
	b.codes = append(b.codes, uint32(conv.IntToInt32(a)))
	return pos
}

func (b *builder) emit2(op program.Opcode, a, c int) int {
	pos := b.emitOpcode(op, b.dirCi())
	b.codes = append(b.codes, uint32(conv.IntToInt32(a)), uint32(conv.IntToInt32(c)))
	return pos
}

func (b *builder) emit3(op program.Opcode, a, c, d int) int {
	pos := b.emitOpcode(op, b.dirCi())
	b.codes = append(b.codes, uint32(conv.IntToInt32(a)), uint32(conv.IntToInt32(c)), uint32(conv.IntToInt32(d)))
	return pos
}

// patch overwrites the operand at codes[pos+1+slot] with an absolute code
// position, used to resolve forward jump targets after the target is
// known.
func (b *builder) patch(pos, slot, target int) {
	b.codes[pos+1+slot] = uint32(conv.IntToInt32(target))
}

func (b *builder) dirCi() program.Opcode {
	var f program.Opcode
	if b.opts.RightToLeft {
		f |= program.Rtl
	}
	if b.opts.IgnoreCase {
		f |= program.Ci
	}
	return f
}

func (b *builder) intern(s string) int {
	if i, ok := b.strIndex[s]; ok {
		return i
	}
	i := len(b.strs)
	b.strs = append(b.strs, s)
	b.strIndex[s] = i
	return i
}

func (b *builder) internClass(c CharClass) int {
	i := len(b.classes)
	cc := charclass.Class{Negate: c.Negate}
	for _, r := range c.Ranges {
		cc.Ranges = append(cc.Ranges, charclass.RuneRange{Lo: r.Lo, Hi: r.Hi})
	}
	cc.Categories = append(cc.Categories, c.Categories...)
	b.classes = append(b.classes, cc)
	return i
}

func (b *builder) denseSlot(group int) int {
	if slot, ok := b.caps[group]; ok {
		return slot
	}
	slot := b.nextSlot
	b.caps[group] = slot
	b.nextSlot++
	return slot
}

// --- node lowering ---

func (b *builder) emitNode(n Node) error {
	switch v := n.(type) {
	case Literal:
		b.emit1(program.One, int(v.Rune))
		return nil
	case AnyChar:
		cls := CharClass{Negate: true}
		if !b.opts.Singleline {
			cls.Ranges = []RuneRange{{Lo: '\n', Hi: '\n'}}
		}
		id := b.internClass(cls)
		b.emit1(program.Set, id)
		return nil
	case CharClass:
		id := b.internClass(v)
		b.emit1(program.Set, id)
		return nil
	case Concat:
		nodes := v.Nodes
		if b.opts.RightToLeft {
			// A right-to-left program scans text backward, so a
			// concatenation's children must be attempted in reverse order
			// too: the last child is tested against the rightmost
			// characters first, mirroring how .NET's RegexWriter reverses
			// concatenation lists under RightToLeft.
			nodes = make([]Node, len(v.Nodes))
			for i, c := range v.Nodes {
				nodes[len(v.Nodes)-1-i] = c
			}
		}
		for _, c := range nodes {
			if err := b.emitNode(c); err != nil {
				return err
			}
		}
		return nil
	case Alternate:
		return b.emitAlternate(v)
	case Repeat:
		return b.emitRepeat(v)
	case Capture:
		return b.emitCapture(v)
	case Balanced:
		return b.emitBalanced(v)
	case Backreference:
		slot, ok := b.caps[v.Group]
		if !ok {
			return &rxerr.InvariantError{Message: fmt.Sprintf("backreference to undeclared group %d", v.Group)}
		}
		b.emit1(program.Ref, slot)
		return nil
	case Assertion:
		b.emitOpcode(assertionOpcode(v.Kind), 0)
		return nil
	case Lookaround:
		return b.emitLookaround(v)
	case Atomic:
		return b.emitAtomic(v)
	case Conditional:
		return b.emitConditional(v)
	}
	return &rxerr.InvariantError{Message: fmt.Sprintf("unsupported node type %T", n)}
}

func assertionOpcode(k AssertionKind) program.Opcode {
	switch k {
	case AssertBeginning:
		return program.Beginning
	case AssertStart:
		return program.Start
	case AssertEnd:
		return program.End
	case AssertEndZ:
		return program.EndZ
	case AssertBol:
		return program.Bol
	case AssertEol:
		return program.Eol
	case AssertBoundary:
		return program.Boundary
	case AssertNonboundary:
		return program.Nonboundary
	case AssertECMABoundary:
		return program.ECMABoundary
	case AssertNonECMABoundary:
		return program.NonECMABoundary
	}
	return program.Nothing
}

func (b *builder) emitAlternate(v Alternate) error {
	var ends []int
	for i, alt := range v.Nodes {
		last := i == len(v.Nodes)-1
		var branchPos int
		if !last {
			branchPos = b.emit1(program.Lazybranch, 0)
		}
		if err := b.emitNode(alt); err != nil {
			return err
		}
		if !last {
			ends = append(ends, b.emit1(program.Goto, 0))
			b.patch(branchPos, 0, b.here())
		}
	}
	for _, g := range ends {
		b.patch(g, 0, b.here())
	}
	return nil
}

// singleAtom reports whether n can be matched by a single One/Notone/Set
// instruction, letting Repeat use the fast dedicated loop opcodes instead
// of the general Branchmark construct.
func singleAtom(n Node) (op program.Opcode, operand int, isAtom bool) {
	switch v := n.(type) {
	case Literal:
		return program.One, int(v.Rune), true
	case CharClass:
		return program.Set, -1, true // class id filled by caller
	case AnyChar:
		return program.Set, -1, true
	}
	return 0, 0, false
}

func (b *builder) emitRepeat(v Repeat) error {
	if op, _, ok := singleAtom(v.Body); ok {
		var operand int
		switch body := v.Body.(type) {
		case Literal:
			operand = int(body.Rune)
		case CharClass:
			operand = b.internClass(body)
		case AnyChar:
			cls := CharClass{Negate: true}
			if !b.opts.Singleline {
				cls.Ranges = []RuneRange{{Lo: '\n', Hi: '\n'}}
			}
			operand = b.internClass(cls)
		}
		return b.emitSingleAtomRepeat(op, operand, v.Min, v.Max, v.Lazy)
	}
	return b.emitGeneralRepeat(v)
}

func (b *builder) emitSingleAtomRepeat(op program.Opcode, operand, min, max int, lazy bool) error {
	if min > 0 {
		b.emit2(repOpcode(op), operand, min)
	}
	remaining := -1
	if max >= 0 {
		remaining = max - min
		if remaining < 0 {
			remaining = 0
		}
	}
	if remaining == 0 {
		return nil
	}
	loopOp := loopOpcode(op)
	if lazy {
		loopOp = lazyOpcode(op)
	}
	cap := remaining
	if cap < 0 {
		cap = maxUnboundedIterations
	}
	b.emit2(loopOp, operand, cap)
	return nil
}

func repOpcode(op program.Opcode) program.Opcode {
	switch op {
	case program.One:
		return program.Onerep
	case program.Notone:
		return program.Notonerep
	case program.Set:
		return program.Setrep
	}
	return op
}

func loopOpcode(op program.Opcode) program.Opcode {
	switch op {
	case program.One:
		return program.Oneloop
	case program.Notone:
		return program.Notoneloop
	case program.Set:
		return program.Setloop
	}
	return op
}

func lazyOpcode(op program.Opcode) program.Opcode {
	switch op {
	case program.One:
		return program.Onelazy
	case program.Notone:
		return program.Notonelazy
	case program.Set:
		return program.Setlazy
	}
	return op
}

// emitGeneralRepeat lowers a quantifier over an arbitrary (multi-
// instruction) body using the Nullcount/Branchcount family: see
// DESIGN.md for the derivation of this mechanism, which generalizes
// Oneloop's min/max split to bodies of any shape while staying immune to
// zero-width infinite loops via the mark comparison Branchcount performs
// each visit.
func (b *builder) emitGeneralRepeat(v Repeat) error {
	max := v.Max
	if max < 0 {
		max = maxUnboundedIterations
	}
	fallback := b.emit1(program.Nullcount, 0)
	loopPos := b.here()
	branchOp := program.Branchcount
	if v.Lazy {
		branchOp = program.Lazybranchcount
	}
	branchPos := b.emit3(branchOp, 0, v.Min, max)
	exitGoto := b.emit1(program.Goto, 0)

	bodyPos := b.here()
	if err := b.emitNode(v.Body); err != nil {
		return err
	}
	b.emit1(program.Goto, loopPos)
	after := b.here()
	b.patch(fallback, 0, after)
	b.patch(exitGoto, 0, after)
	b.patch(branchPos, 0, bodyPos)
	return nil
}

func (b *builder) emitCapture(v Capture) error {
	slot := b.denseSlot(v.Group)
	if v.Name != "" {
		b.capNames[v.Name] = v.Group
	}
	b.emitOpcode(program.Setmark, 0)
	if err := b.emitNode(v.Body); err != nil {
		return err
	}
	b.emit2(program.Capturemark, slot, -1)
	return nil
}

func (b *builder) emitBalanced(v Balanced) error {
	priorSlot := b.denseSlot(v.PriorGroup)
	group := -1
	if v.Group >= 0 {
		group = b.denseSlot(v.Group)
	}
	b.emitOpcode(program.Setmark, 0)
	if err := b.emitNode(v.Body); err != nil {
		return err
	}
	b.emit2(program.Capturemark, group, priorSlot)
	return nil
}

func (b *builder) emitLookaround(v Lookaround) error {
	savedRtl := b.opts.RightToLeft
	if v.Behind {
		b.opts.RightToLeft = !b.opts.RightToLeft
	}
	defer func() { b.opts.RightToLeft = savedRtl }()

	if v.Negative {
		setjumpPos := b.emit1(program.Setjump, 0)
		if err := b.emitNode(v.Body); err != nil {
			return err
		}
		b.emitOpcode(program.Backjump, 0)
		after := b.here()
		b.patch(setjumpPos, 0, after)
		return nil
	}
	setjumpPos := b.emit1(program.Setjump, -1)
	if err := b.emitNode(v.Body); err != nil {
		return err
	}
	b.emitOpcode(program.Forejump, 0)
	_ = setjumpPos
	return nil
}

func (b *builder) emitAtomic(v Atomic) error {
	b.emit1(program.Setjump, -1)
	if err := b.emitNode(v.Body); err != nil {
		return err
	}
	b.emitOpcode(program.Forejump, program.Atomic)
	return nil
}

func (b *builder) emitConditional(v Conditional) error {
	slot, ok := b.caps[v.Group]
	if !ok {
		return &rxerr.InvariantError{Message: fmt.Sprintf("conditional on undeclared group %d", v.Group)}
	}
	testPos := b.emit2(program.Testref, slot, 0)
	if err := b.emitNode(v.Yes); err != nil {
		return err
	}
	if v.No == nil {
		b.patch(testPos, 1, b.here())
		return nil
	}
	endGoto := b.emit1(program.Goto, 0)
	b.patch(testPos, 1, b.here())
	if err := b.emitNode(v.No); err != nil {
		return err
	}
	b.patch(endGoto, 0, b.here())
	return nil
}

// estimateTrackCount gives the track-stack preallocation a rough starting
// capacity: a fixed per-node budget is generous enough that geometric
// growth rarely triggers for typical patterns.
func estimateTrackCount(n Node) int {
	count := 4
	var walk func(Node)
	walk = func(n Node) {
		count += 2
		switch v := n.(type) {
		case Concat:
			for _, c := range v.Nodes {
				walk(c)
			}
		case Alternate:
			for _, c := range v.Nodes {
				walk(c)
			}
		case Repeat:
			walk(v.Body)
		case Capture:
			walk(v.Body)
		case Balanced:
			walk(v.Body)
		case Lookaround:
			walk(v.Body)
		case Atomic:
			walk(v.Body)
		case Conditional:
			walk(v.Yes)
			if v.No != nil {
				walk(v.No)
			}
		}
	}
	walk(n)
	return count
}
