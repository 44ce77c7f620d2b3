// Package program defines the Code program: the immutable, shareable
// compiled representation a Scanner/Interpreter pair executes. See §3 of
// the core specification for the data model this mirrors.
package program

import "github.com/coregx/regexvm/charclass"

// AnchorSet is a bit-set over the four anchor kinds FindFirstChar consults.
type AnchorSet uint8

const (
	// AnchorBeginning requires the match to start at the very beginning of
	// the searched text (\A).
	AnchorBeginning AnchorSet = 1 << iota
	// AnchorStart requires the match to start at the original start_pos
	// passed to Scan (\G).
	AnchorStart
	// AnchorEnd requires the match to start at text_end (\z).
	AnchorEnd
	// AnchorEndZ requires the match to start at text_end or text_end-1,
	// permitting a trailing newline (\Z).
	AnchorEndZ
)

// Has reports whether the given anchor bit is set.
func (a AnchorSet) Has(bit AnchorSet) bool { return a&bit != 0 }

// FirstCharPrefix describes the set of characters a match may legally start
// with, derived by the FirstChar/Anchor analyzer (§4.2) at build time.
type FirstCharPrefix struct {
	// ClassID indexes into Program.Classes.
	ClassID int
	// IgnoreCase indicates the class membership test should fold case.
	IgnoreCase bool
}

// BMPrefix is a Boyer-Moore automaton over a fixed literal prefix, used by
// FindFirstChar to skip candidate positions that cannot possibly match.
type BMPrefix struct {
	// Pattern is the literal prefix in scan order (already reversed for
	// RightToLeft programs, so the automaton always scans Pattern
	// left-to-right over the *searched* direction).
	Pattern []rune
	// CaseInsensitivePattern mirrors Pattern lower-cased, used only when
	// IgnoreCase is set.
	CaseInsensitivePattern []rune
	IgnoreCase             bool
	RightToLeft            bool

	// badChar maps a rune (or its lower-cased form, when IgnoreCase) to the
	// distance it may safely skip when that rune lies under the pattern's
	// last position in the current window -- the Horspool form of the
	// bad-character table.
	badChar map[rune]int
}

// NewBMPrefix builds the bad-character table for pattern and returns a ready
// to use prefix matcher. RightToLeft programs must pass the prefix already
// reversed into scan order.
func NewBMPrefix(pattern []rune, ignoreCase, rtl bool) *BMPrefix {
	bm := &BMPrefix{
		Pattern:     pattern,
		IgnoreCase:  ignoreCase,
		RightToLeft: rtl,
		badChar:     make(map[rune]int, len(pattern)),
	}
	if ignoreCase {
		lower := make([]rune, len(pattern))
		for i, r := range pattern {
			lower[i] = foldRune(r)
		}
		bm.CaseInsensitivePattern = lower
	}
	n := len(pattern)
	for i, r := range pattern {
		key := r
		if ignoreCase {
			key = foldRune(r)
		}
		// Distance from this occurrence to the end of the pattern; later
		// occurrences overwrite earlier ones, matching the standard rule
		// (closest-to-the-end occurrence wins).
		bm.badChar[key] = n - 1 - i
	}
	return bm
}

func foldRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// Match searches text for the prefix, using the bad-character rule to decide,
// on a mismatch, how far to move before retrying. Left to right, it finds
// the first occurrence starting at or after pos and returns its start index;
// right to left, it finds the first occurrence ending at or before pos and
// returns its end index. On a miss ok is false and next is len(text) (LTR)
// or -1 (RTL).
func (bm *BMPrefix) Match(text []rune, pos int) (next int, ok bool) {
	n := len(bm.Pattern)
	if n == 0 {
		return pos, true
	}
	if bm.RightToLeft {
		return bm.matchRtl(text, pos)
	}
	return bm.matchLtr(text, pos)
}

func (bm *BMPrefix) matchLtr(text []rune, pos int) (int, bool) {
	for pos+n(bm) <= len(text) {
		i := n(bm) - 1
		for i >= 0 && bm.runeEq(text[pos+i], bm.Pattern[i]) {
			i--
		}
		if i < 0 {
			return pos, true
		}
		aligned := text[pos+n(bm)-1]
		key := aligned
		if bm.IgnoreCase {
			key = foldRune(aligned)
		}
		shift := bm.badChar[key]
		if shift <= 0 {
			shift = 1
		}
		pos += shift
	}
	return len(text), false
}

func (bm *BMPrefix) matchRtl(text []rune, pos int) (int, bool) {
	for pos-n(bm) >= 0 {
		i := n(bm) - 1
		for i >= 0 && bm.runeEq(text[pos-1-i], bm.Pattern[i]) {
			i--
		}
		if i < 0 {
			return pos, true
		}
		aligned := text[pos-n(bm)]
		key := aligned
		if bm.IgnoreCase {
			key = foldRune(aligned)
		}
		shift := bm.badChar[key]
		if shift <= 0 {
			shift = 1
		}
		pos -= shift
	}
	return -1, false
}

func n(bm *BMPrefix) int { return len(bm.Pattern) }

func (bm *BMPrefix) runeEq(a, b rune) bool {
	if bm.IgnoreCase {
		return foldRune(a) == foldRune(b)
	}
	return a == b
}

// CapsMap maps a declared (possibly sparse) group number to a dense slot
// index in the Match record's per-group arrays.
type CapsMap map[int]int

// Program is the immutable, freely-shareable compiled pattern: the output
// of the (external) code writer and the sole input to the Scanner and
// Interpreter. See §3.
type Program struct {
	Codes   []uint32
	Strings []string
	Classes charclass.Table

	TrackCount int

	Anchors   AnchorSet
	FirstChar *FirstCharPrefix
	BM        *BMPrefix

	RightToLeft bool

	Caps    CapsMap
	CapSize int

	// CapNames maps a named group's name to its declared group number, for
	// callers that need to resolve names after a match (not consulted by
	// the interpreter itself).
	CapNames map[string]int

	// Pattern is the source text, used for diagnostics (String() and
	// timeout error context). Options records what the program was built
	// with; the interpreter consults Options.ECMAScript for backreferences
	// to unmatched groups.
	Pattern string
	Options Options
}

// Options mirrors the recognized Code program options of §6. Parsing
// (IgnorePatternWhitespace) and JIT selection (Compiled) are not consulted
// by anything in this module; they are retained purely so a Program records
// what it was built with.
type Options struct {
	IgnoreCase              bool
	Multiline                bool
	Singleline               bool
	ExplicitCapture          bool
	Compiled                 bool
	IgnorePatternWhitespace  bool
	RightToLeft              bool
	ECMAScript               bool
	CultureInvariant         bool
}

// DefaultOptions returns the zero-value option set: case-sensitive,
// single-line semantics for ^/$, LTR, non-ECMAScript.
func DefaultOptions() Options { return Options{} }

// DenseSlot resolves a declared group number to its dense slot index,
// reporting ok=false if the group was never declared by this program.
func (p *Program) DenseSlot(group int) (int, bool) {
	slot, ok := p.Caps[group]
	return slot, ok
}
