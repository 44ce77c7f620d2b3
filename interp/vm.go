// Package interp implements the backtracking Interpreter: the opcode
// dispatch loop that walks a compiled program.Program against a text
// buffer, driving a match.Record to completion via three parallel int
// stacks (track, group, crawl). See §3 and §4.3 of the core specification.
package interp

import (
	"time"
	"unicode"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/match"
	"github.com/coregx/regexvm/program"
	"github.com/coregx/regexvm/rxerr"
)

// timeoutCheckMask bounds how often Run checks the wall clock against its
// deadline: one check every 1024 dispatched instructions, per §4.3's "on
// the order of one check per thousand iterations" guidance.
const timeoutCheckMask = 1023

// Interpreter executes a single compiled program against a single text
// buffer. It is not safe for concurrent use; callers needing concurrency
// obtain one Interpreter per goroutine from the runner package's cache.
type Interpreter struct {
	prog   *program.Program
	oracle charclass.Oracle

	text          []rune
	textBeg       int
	textEnd       int
	startPos      int
	textPos       int
	rightToLeft   bool

	rec *match.Record

	track *intStack
	group *intStack
	crawl *intStack

	codePos  int
	operator program.Opcode

	deadline    time.Time
	hasDeadline bool
	timeout     time.Duration
	iterations  uint64

	lastErr error
}

// New allocates an Interpreter bound to prog. oracle resolves CharClass
// membership and word-boundary queries; pass charclass.Table(prog.Classes)
// to use the program's own class table as the default oracle.
func New(prog *program.Program, oracle charclass.Oracle) *Interpreter {
	trackCap := prog.TrackCount * 4
	if trackCap < 32 {
		trackCap = 32
	}
	return &Interpreter{
		prog:   prog,
		oracle: oracle,
		track:  newIntStack(trackCap),
		group:  newIntStack(16),
		crawl:  newIntStack(16),
		rec:    match.NewRecord(prog.CapSize),
	}
}

// Reset rebinds the Interpreter to a fresh scan attempt at startPos within
// text, clearing all three stacks and the match record. text is shared,
// not copied; the caller must not mutate it while a scan is in flight.
func (it *Interpreter) Reset(text []rune, textBeg, textEnd, startPos int, deadline time.Time, hasDeadline bool, timeout time.Duration) {
	it.text = text
	it.textBeg = textBeg
	it.textEnd = textEnd
	it.startPos = startPos
	it.textPos = startPos
	it.rightToLeft = it.prog.RightToLeft
	if it.rec.Success() {
		it.rec = match.NewRecord(it.prog.CapSize)
	} else {
		it.rec.Reset(it.prog.CapSize)
	}
	it.track.reset()
	it.group.reset()
	it.crawl.reset()
	it.codePos = 0
	it.deadline = deadline
	it.hasDeadline = hasDeadline
	it.timeout = timeout
	it.iterations = 0
}

// Record returns the match record the most recent Run populated.
func (it *Interpreter) Record() *match.Record { return it.rec }

// TextPos returns the interpreter's current scan cursor, meaningful after
// Run returns a failed scan too (the Scanner uses it to decide FindFirstChar
// fallback behavior in some engines; here it's mostly diagnostic).
func (it *Interpreter) TextPos() int { return it.textPos }

// Run executes the program from its current reset state to either success
// (Stop reached with group 0 captured), failure (track stack exhausted), or
// a timeout error.
func (it *Interpreter) Run() (bool, error) {
	for {
		it.iterations++
		if it.hasDeadline && it.iterations&timeoutCheckMask == 0 && time.Now().After(it.deadline) {
			return false, &rxerr.TimeoutError{
				Pattern:     it.prog.Pattern,
				InputPrefix: it.inputPrefix(),
				Timeout:     it.timeout,
			}
		}

		raw := it.prog.Codes[it.codePos]
		it.operator = program.Opcode(raw)

		ok, err := it.step()
		if err != nil {
			return false, err
		}
		if !ok {
			if !it.backtrack() {
				if it.lastErr != nil {
					return false, it.lastErr
				}
				return false, nil
			}
			continue
		}
		if it.operator.Base() == program.Stop {
			it.rec.Tidy()
			return it.rec.Success(), nil
		}
	}
}

// pushBack records a Back re-entry at codePos: popped as a positive value
// (raw = codePos+1) so zero is never ambiguous with "no frame".
func (it *Interpreter) pushBack(codePos int) { it.track.push(codePos + 1) }

// pushBack2 records a Back2 re-entry at codePos via the negated encoding.
func (it *Interpreter) pushBack2(codePos int) { it.track.push(-(codePos + 1)) }

// backtrack pops the most recent track frame and re-enters its instruction
// in the appropriate Back/Back2 mode. It returns false when the track stack
// is empty, meaning the overall scan has exhausted every alternative.
func (it *Interpreter) backtrack() bool {
	if it.track.len() == 0 {
		return false
	}
	raw := it.track.pop()
	base := it.prog.Codes[abs(raw)-1]
	if raw > 0 {
		it.codePos = raw - 1
		it.operator = program.Opcode(base) | program.Back
	} else {
		it.codePos = -raw - 1
		it.operator = program.Opcode(base) | program.Back2
	}
	ok, err := it.step()
	if err != nil {
		// Surfaced on the next Run loop iteration via the returned error
		// path; step() only returns an error for internal invariant
		// violations, which backtrack() cannot recover from.
		it.lastErr = err
		return false
	}
	if !ok {
		return it.backtrack()
	}
	return true
}

// inputPrefix renders a short, bounded snippet of the text being scanned
// for a TimeoutError's diagnostic message.
func (it *Interpreter) inputPrefix() string {
	const maxLen = 40
	end := it.textEnd
	if end-it.textBeg > maxLen {
		end = it.textBeg + maxLen
	}
	return string(it.text[it.textBeg:end])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// step decodes and executes the instruction at it.codePos/it.operator,
// returning ok=false when the instruction's precondition fails (triggering
// a backtrack) and an error only for a malformed program.
func (it *Interpreter) step() (bool, error) {
	base := it.operator.Base()
	switch base {
	case program.Stop:
		return true, nil
	case program.Nothing:
		it.codePos += it.operator.Size()
		return true, nil
	case program.Goto:
		it.codePos = it.operand(0)
		return true, nil

	case program.One, program.Notone, program.Set:
		return it.stepSingle(base)
	case program.Onerep, program.Notonerep, program.Setrep:
		return it.stepRep(base)
	case program.Oneloop, program.Notoneloop, program.Setloop:
		return it.stepLoop(base)
	case program.Onelazy, program.Notonelazy, program.Setlazy:
		return it.stepLazy(base)

	case program.Multi:
		return it.stepMulti()
	case program.Ref:
		return it.stepRef()

	case program.Lazybranch:
		return it.stepLazybranch()
	case program.Branchmark:
		return it.stepBranchmark()
	case program.Lazybranchmark:
		return it.stepLazybranchmark()
	case program.Branchcount:
		return it.stepBranchcount()
	case program.Lazybranchcount:
		return it.stepLazybranchcount()

	case program.Setjump:
		return it.stepSetjump()
	case program.Backjump:
		return it.stepBackjump()
	case program.Forejump:
		return it.stepForejump()

	case program.Setmark:
		return it.stepSetmark()
	case program.Nullmark:
		return it.stepNullmark()
	case program.Setcount:
		return it.stepSetcount()
	case program.Nullcount:
		return it.stepNullcount()
	case program.Getmark:
		it.codePos += it.operator.Size()
		return true, nil

	case program.Capturemark:
		return it.stepCapturemark()
	case program.Testref:
		return it.stepTestref()

	case program.Bol, program.Eol, program.Boundary, program.Nonboundary,
		program.ECMABoundary, program.NonECMABoundary,
		program.Beginning, program.Start, program.End, program.EndZ:
		return it.stepAssertion(base)
	}
	return false, &rxerr.InvariantError{Message: "unrecognized opcode " + base.String(), CodePos: it.codePos}
}

func (it *Interpreter) operand(i int) int {
	return int(int32(it.prog.Codes[it.codePos+1+i]))
}

func (it *Interpreter) dir() int {
	if it.operator.IsRtl() {
		return -1
	}
	return 1
}

func (it *Interpreter) inBounds(pos int) bool {
	return pos >= it.textBeg && pos < it.textEnd
}

func runeEqual(a, b rune, ci bool) bool {
	if ci {
		return unicode.ToLower(a) == unicode.ToLower(b)
	}
	return a == b
}

// charMatches reports whether the character ch matches the class/char test for base (One/Notone/Set family),
// given the instruction's decoded operand0.
func (it *Interpreter) charMatches(base program.Opcode, ch rune, operand0 int) bool {
	ci := it.operator.IsCi()
	switch base {
	case program.One, program.Onerep, program.Oneloop, program.Onelazy:
		return runeEqual(ch, rune(operand0), ci)
	case program.Notone, program.Notonerep, program.Notoneloop, program.Notonelazy:
		return !runeEqual(ch, rune(operand0), ci)
	case program.Set, program.Setrep, program.Setloop, program.Setlazy:
		if ci {
			if it.oracle.InClass(ch, operand0) {
				return true
			}
			return it.oracle.InClass(unicode.ToUpper(ch), operand0) || it.oracle.InClass(unicode.ToLower(ch), operand0)
		}
		return it.oracle.InClass(ch, operand0)
	}
	return false
}

// --- One / Notone / Set: deterministic single-character test, no backtrack frame ---

func (it *Interpreter) stepSingle(base program.Opcode) (bool, error) {
	dir := it.dir()
	pos := it.textPos
	if dir < 0 {
		pos--
	}
	if !it.inBounds(pos) {
		return false, nil
	}
	if !it.charMatches(base, it.text[pos], it.operand(0)) {
		return false, nil
	}
	it.textPos += dir
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Onerep / Notonerep / Setrep: deterministic exact-count consumption ---

func (it *Interpreter) stepRep(base program.Opcode) (bool, error) {
	dir := it.dir()
	count := it.operand(1)
	pos := it.textPos
	for i := 0; i < count; i++ {
		cp := pos
		if dir < 0 {
			cp--
		}
		if !it.inBounds(cp) {
			return false, nil
		}
		if !it.charMatches(repToLoopBase(base), it.text[cp], it.operand(0)) {
			return false, nil
		}
		pos += dir
	}
	it.textPos = pos
	it.codePos += it.operator.Size()
	return true, nil
}

func repToLoopBase(base program.Opcode) program.Opcode {
	switch base {
	case program.Onerep:
		return program.One
	case program.Notonerep:
		return program.Notone
	case program.Setrep:
		return program.Set
	case program.Oneloop:
		return program.One
	case program.Notoneloop:
		return program.Notone
	case program.Setloop:
		return program.Set
	case program.Onelazy:
		return program.One
	case program.Notonelazy:
		return program.Notone
	case program.Setlazy:
		return program.Set
	}
	return base
}

// --- Oneloop / Notoneloop / Setloop: greedy bounded loop over a single atom ---

func (it *Interpreter) stepLoop(base program.Opcode) (bool, error) {
	if it.operator.IsBack() {
		return it.backLoop(base)
	}
	dir := it.dir()
	max := it.operand(1)
	start := it.textPos
	pos := start
	matched := 0
	for matched < max {
		cp := pos
		if dir < 0 {
			cp--
		}
		if !it.inBounds(cp) || !it.charMatches(base, it.text[cp], it.operand(0)) {
			break
		}
		pos += dir
		matched++
	}
	it.textPos = pos
	it.track.push(start)
	it.track.push(matched)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) backLoop(base program.Opcode) (bool, error) {
	matched := it.track.pop()
	start := it.track.pop()
	if matched == 0 {
		return false, nil
	}
	dir := it.dir()
	newMatched := matched - 1
	it.textPos = start + newMatched*dir
	it.track.push(start)
	it.track.push(newMatched)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Onelazy / Notonelazy / Setlazy: lazy bounded loop over a single atom ---

func (it *Interpreter) stepLazy(base program.Opcode) (bool, error) {
	if it.operator.IsBack() {
		return it.backLazy(base)
	}
	start := it.textPos
	it.track.push(start)
	it.track.push(0)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) backLazy(base program.Opcode) (bool, error) {
	matched := it.track.pop()
	start := it.track.pop()
	max := it.operand(1)
	if matched >= max {
		return false, nil
	}
	dir := it.dir()
	cp := start + matched*dir
	if dir < 0 {
		cp--
	} else {
		// cp already points at the next unconsumed char for dir>0 when
		// computed as start+matched*dir (since matched chars occupy
		// [start, start+matched) in the forward direction).
	}
	if !it.inBounds(cp) || !it.charMatches(base, it.text[cp], it.operand(0)) {
		return false, nil
	}
	newMatched := matched + 1
	it.textPos = start + newMatched*dir
	it.track.push(start)
	it.track.push(newMatched)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Multi: literal string, deterministic ---

func (it *Interpreter) stepMulti() (bool, error) {
	s := []rune(it.prog.Strings[it.operand(0)])
	ci := it.operator.IsCi()
	n := len(s)
	if it.operator.IsRtl() {
		pos := it.textPos
		for i := 0; i < n; i++ {
			cp := pos - 1 - i
			if !it.inBounds(cp) || !runeEqual(it.text[cp], s[n-1-i], ci) {
				return false, nil
			}
		}
		it.textPos = pos - n
	} else {
		pos := it.textPos
		for i := 0; i < n; i++ {
			cp := pos + i
			if !it.inBounds(cp) || !runeEqual(it.text[cp], s[i], ci) {
				return false, nil
			}
		}
		it.textPos = pos + n
	}
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Ref: backreference to a previously captured (dense-slot) group ---

func (it *Interpreter) stepRef() (bool, error) {
	slot := it.operand(0)
	if !it.rec.IsMatched(slot) {
		if it.prog.Options.ECMAScript {
			it.codePos += it.operator.Size()
			return true, nil
		}
		return false, nil
	}
	start := it.rec.MatchIndex(slot)
	length := it.rec.MatchLength(slot)
	ci := it.operator.IsCi()
	if it.operator.IsRtl() {
		pos := it.textPos
		for i := 0; i < length; i++ {
			cp := pos - 1 - i
			sp := start + length - 1 - i
			if !it.inBounds(cp) || !runeEqual(it.text[cp], it.text[sp], ci) {
				return false, nil
			}
		}
		it.textPos = pos - length
	} else {
		pos := it.textPos
		for i := 0; i < length; i++ {
			cp := pos + i
			sp := start + i
			if !it.inBounds(cp) || !runeEqual(it.text[cp], it.text[sp], ci) {
				return false, nil
			}
		}
		it.textPos = pos + length
	}
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Lazybranch: single-shot optional branch, prefers skipping ---

func (it *Interpreter) stepLazybranch() (bool, error) {
	if it.operator.IsBack() {
		it.codePos = it.operand(0)
		return true, nil
	}
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Branchmark / Lazybranchmark: general-body unbounded greedy/lazy loop ---
//
// Both cooperate with a preceding Nullmark (entry gate, pushes a -1
// sentinel mark) and rely on the loop body re-entering this same
// instruction via a compiled Goto. See DESIGN.md for the full derivation:
// the mark on the group stack records the text position immediately
// before the most recent iteration, so a zero-width iteration (text_pos
// unchanged) stops the loop instead of spinning forever.

func (it *Interpreter) stepBranchmark() (bool, error) {
	if it.operator.IsBack() {
		mark := it.track.pop()
		it.group.push(mark)
		it.codePos += it.operator.Size()
		return true, nil
	}
	mark := it.group.pop()
	if mark >= 0 && mark == it.textPos {
		it.group.push(mark)
		it.codePos += it.operator.Size()
		return true, nil
	}
	it.track.push(mark)
	it.pushBack(it.codePos)
	it.group.push(it.textPos)
	it.codePos = it.operand(0)
	return true, nil
}

func (it *Interpreter) stepLazybranchmark() (bool, error) {
	if it.operator.IsBack() {
		mark := it.track.pop()
		if mark >= 0 && mark == it.textPos {
			it.group.push(mark)
			return false, nil
		}
		it.group.push(it.textPos)
		it.codePos = it.operand(0)
		return true, nil
	}
	mark := it.group.pop()
	it.track.push(mark)
	it.pushBack(it.codePos)
	it.group.push(mark)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Branchcount / Lazybranchcount: general-body bounded {min,max} loop ---

func (it *Interpreter) stepBranchcount() (bool, error) {
	min, max := it.operand(1), it.operand(2)
	if it.operator.IsBack() || it.operator.IsBack2() {
		count := it.track.pop()
		mark := it.track.pop()
		if it.operator.IsBack() {
			it.group.pop()
			it.textPos = it.group.pop()
		}
		if it.operator.IsBack2() || count < min {
			it.group.push(mark)
			it.group.push(count)
			return false, nil
		}
		it.track.push(mark)
		it.track.push(count)
		it.pushBack2(it.codePos)
		it.codePos += it.operator.Size()
		return true, nil
	}
	count := it.group.pop()
	mark := it.group.pop()
	zeroWidth := mark >= 0 && mark == it.textPos
	if count >= max || (zeroWidth && count >= min) {
		it.track.push(mark)
		it.track.push(count)
		it.pushBack2(it.codePos)
		it.codePos += it.operator.Size()
		return true, nil
	}
	it.track.push(mark)
	it.track.push(count)
	it.pushBack(it.codePos)
	it.group.push(it.textPos)
	it.group.push(count + 1)
	it.codePos = it.operand(0)
	return true, nil
}

func (it *Interpreter) stepLazybranchcount() (bool, error) {
	min, _ := it.operand(1), it.operand(2)
	if it.operator.IsBack() {
		count := it.track.pop()
		mark := it.track.pop()
		zeroWidth := mark >= 0 && mark == it.textPos
		if zeroWidth && count >= min {
			it.group.push(mark)
			it.group.push(count)
			return false, nil
		}
		it.group.push(it.textPos)
		it.group.push(count + 1)
		it.codePos = it.operand(0)
		return true, nil
	}
	count := it.group.pop()
	mark := it.group.pop()
	it.track.push(mark)
	it.track.push(count)
	it.pushBack(it.codePos)
	if count < min {
		it.group.push(it.textPos)
		it.group.push(count + 1)
		it.codePos = it.operand(0)
		return true, nil
	}
	it.group.push(mark)
	it.group.push(count)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Setjump / Backjump / Forejump: atomic groups and lookaround gates ---

func (it *Interpreter) stepSetjump() (bool, error) {
	if it.operator.IsBack() {
		savedText := it.group.pop()
		savedCrawl := it.group.pop()
		savedTrack := it.group.pop()
		after := it.operand(0)
		if after < 0 {
			_ = savedTrack
			_ = savedCrawl
			return false, nil
		}
		it.textPos = savedText
		it.codePos = after
		return true, nil
	}
	it.group.push(it.track.len())
	it.group.push(it.crawl.len())
	it.group.push(it.textPos)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) stepBackjump() (bool, error) {
	savedText := it.group.pop()
	savedCrawl := it.group.pop()
	savedTrack := it.group.pop()
	for it.crawl.len() > savedCrawl {
		g := it.crawl.pop()
		it.rec.Uncapture(g)
	}
	it.track.truncateTo(savedTrack)
	_ = savedText
	return false, nil
}

func (it *Interpreter) stepForejump() (bool, error) {
	savedText := it.group.pop()
	_ = it.group.pop() // savedCrawl: captures inside the scope are kept
	savedTrack := it.group.pop()
	it.track.truncateTo(savedTrack)
	if !it.operator.IsAtomic() {
		it.textPos = savedText
	}
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Setmark / Nullmark / Setcount / Nullcount / Getmark: mark bookkeeping ---

func (it *Interpreter) stepSetmark() (bool, error) {
	if it.operator.IsBack() {
		it.group.pop()
		return false, nil
	}
	it.group.push(it.textPos)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) stepNullmark() (bool, error) {
	if it.operator.IsBack() {
		it.group.pop()
		it.codePos = it.operand(0)
		return true, nil
	}
	it.group.push(-1)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) stepSetcount() (bool, error) {
	if it.operator.IsBack() {
		it.group.pop()
		it.group.pop()
		return false, nil
	}
	it.group.push(it.textPos)
	it.group.push(it.operand(0))
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) stepNullcount() (bool, error) {
	if it.operator.IsBack() {
		it.group.pop()
		it.group.pop()
		return false, nil
	}
	it.group.push(-1)
	it.group.push(0)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

// --- Capturemark: closes a capture, optionally transferring a balance ---

func (it *Interpreter) stepCapturemark() (bool, error) {
	if it.operator.IsBack() {
		g := it.operand(0)
		if g >= 0 {
			it.rec.Uncapture(g)
		}
		uncap := it.operand(1)
		if uncap >= 0 {
			it.rec.Uncapture(uncap)
		}
		it.crawl.pop()
		it.group.push(it.track.pop())
		return false, nil
	}
	g := it.operand(0)
	uncap := it.operand(1)
	// Commit consumes the start position the enclosing Setmark pushed and
	// saves it in this instruction's track frame; Back puts it back on the
	// group stack so Setmark's own Back finds it there to pop.
	start := it.group.pop()
	it.track.push(start)
	if uncap >= 0 {
		it.rec.TransferCapture(boolToGroup(g), uncap, start, it.textPos)
	} else {
		it.rec.Capture(g, start, it.textPos)
	}
	it.crawl.push(g)
	it.pushBack(it.codePos)
	it.codePos += it.operator.Size()
	return true, nil
}

func boolToGroup(g int) int {
	if g < 0 {
		return -1
	}
	return g
}

// --- Testref: conditional branch on whether a group has captured ---

func (it *Interpreter) stepTestref() (bool, error) {
	slot := it.operand(0)
	if it.rec.IsMatched(slot) {
		it.codePos += it.operator.Size()
	} else {
		it.codePos = it.operand(1)
	}
	return true, nil
}

// --- Zero-width assertions ---

func (it *Interpreter) stepAssertion(base program.Opcode) (bool, error) {
	pos := it.textPos
	ok := false
	switch base {
	case program.Beginning:
		ok = pos == it.textBeg
	case program.Start:
		ok = pos == it.startPos
	case program.End:
		ok = pos == it.textEnd
	case program.EndZ:
		ok = pos == it.textEnd || (pos == it.textEnd-1 && it.text[pos] == '\n')
	case program.Bol:
		ok = pos == it.textBeg || (pos > it.textBeg && it.text[pos-1] == '\n')
	case program.Eol:
		ok = pos == it.textEnd || it.text[pos] == '\n'
	case program.Boundary:
		ok = it.isWordBoundary(pos, charclass.IsWordChar)
	case program.Nonboundary:
		ok = !it.isWordBoundary(pos, charclass.IsWordChar)
	case program.ECMABoundary:
		ok = it.isWordBoundary(pos, charclass.IsWordCharECMA)
	case program.NonECMABoundary:
		ok = !it.isWordBoundary(pos, charclass.IsWordCharECMA)
	}
	if !ok {
		return false, nil
	}
	it.codePos += it.operator.Size()
	return true, nil
}

func (it *Interpreter) isWordBoundary(pos int, isWord func(rune) bool) bool {
	before := pos > it.textBeg && isWord(it.text[pos-1])
	after := pos < it.textEnd && isWord(it.text[pos])
	return before != after
}
