// Package scanner implements the outer Scan loop of §4: it walks candidate
// start positions across a text buffer, uses FindFirstChar to skip
// positions the compiled program's anchors/prefix/first-char analysis rule
// out, and hands each surviving candidate to an Interpreter.
package scanner

import (
	"time"
	"unicode"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/interp"
	"github.com/coregx/regexvm/match"
	"github.com/coregx/regexvm/program"
)

// Scanner drives repeated match attempts of a single program against a
// single text buffer.
type Scanner struct {
	prog *program.Program
	it   *interp.Interpreter
}

// New builds a Scanner over prog, using oracle for CharClass queries.
func New(prog *program.Program, oracle charclass.Oracle) *Scanner {
	return &Scanner{prog: prog, it: interp.New(prog, oracle)}
}

// Options configures a single Scan call.
type Options struct {
	// Timeout bounds the wall-clock duration of the whole Scan call
	// (spanning every candidate position it probes), not a single
	// Interpreter.Run. Zero means no timeout.
	Timeout time.Duration
}

// Scan searches text[textBeg:textEnd] for the first match starting at or
// after startPos (or at or before it, for a right-to-left program),
// returning the populated match.Record on success. ok is false both when
// no match exists and when the Program reports RightToLeft scanning found
// nothing before textBeg.
func (s *Scanner) Scan(text []rune, textBeg, textEnd, startPos int, opts Options) (*match.Record, bool, error) {
	var deadline time.Time
	hasDeadline := opts.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(opts.Timeout)
	}

	pos := startPos
	for {
		next, ok := s.findFirstChar(text, textBeg, textEnd, pos)
		if !ok {
			return nil, false, nil
		}
		pos = next
		if s.prog.Anchors.Has(program.AnchorStart) && pos != startPos {
			return nil, false, nil
		}

		s.it.Reset(text, textBeg, textEnd, pos, deadline, hasDeadline, opts.Timeout)
		matched, err := s.it.Run()
		if err != nil {
			return nil, false, err
		}
		if matched {
			return s.it.Record(), true, nil
		}

		if s.prog.RightToLeft {
			pos--
			if pos < textBeg {
				return nil, false, nil
			}
		} else {
			pos++
			if pos > textEnd {
				return nil, false, nil
			}
		}
	}
}

// findFirstChar advances pos to the next candidate position that the
// program's anchor set, Boyer-Moore prefix, and first-char class do not
// immediately rule out. It returns ok=false once no further candidate can
// possibly succeed. The right-to-left walk consults only the Boyer-Moore
// prefix and the first-char class, not the anchor set.
func (s *Scanner) findFirstChar(text []rune, textBeg, textEnd, pos int) (int, bool) {
	if s.prog.RightToLeft {
		return s.findFirstCharRtl(text, textBeg, textEnd, pos)
	}
	return s.findFirstCharLtr(text, textBeg, textEnd, pos)
}

func (s *Scanner) findFirstCharLtr(text []rune, textBeg, textEnd, pos int) (int, bool) {
	if s.prog.Anchors.Has(program.AnchorBeginning) {
		if pos > textBeg {
			return 0, false
		}
		pos = textBeg
	}
	for {
		if pos > textEnd {
			return 0, false
		}
		if !s.satisfiesAnchors(pos, textBeg, textEnd, pos) {
			pos++
			continue
		}
		if s.prog.BM != nil {
			next, ok := s.prog.BM.Match(text, pos)
			if !ok {
				return 0, false
			}
			if next != pos {
				pos = next
				continue
			}
		}
		if s.prog.FirstChar != nil {
			if pos >= textEnd {
				return 0, false
			}
			ch := text[pos]
			ci := s.prog.FirstChar.IgnoreCase
			if !s.classMatches(ch, s.prog.FirstChar.ClassID, ci) {
				pos++
				continue
			}
		}
		return pos, true
	}
}

func (s *Scanner) findFirstCharRtl(text []rune, textBeg, textEnd, pos int) (int, bool) {
	for {
		if pos < textBeg {
			return 0, false
		}
		if s.prog.BM != nil {
			next, ok := s.prog.BM.Match(text, pos)
			if !ok {
				return 0, false
			}
			if next != pos {
				pos = next
				continue
			}
		}
		if s.prog.FirstChar != nil {
			if pos <= textBeg {
				return 0, false
			}
			ch := text[pos-1]
			ci := s.prog.FirstChar.IgnoreCase
			if !s.classMatches(ch, s.prog.FirstChar.ClassID, ci) {
				pos--
				continue
			}
		}
		return pos, true
	}
}

func (s *Scanner) classMatches(ch rune, classID int, ci bool) bool {
	if s.prog.Classes == nil || classID < 0 || classID >= len(s.prog.Classes) {
		return true
	}
	if ci {
		return s.prog.Classes.InClass(ch, classID) ||
			s.prog.Classes.InClass(unicode.ToLower(ch), classID) ||
			s.prog.Classes.InClass(unicode.ToUpper(ch), classID)
	}
	return s.prog.Classes.InClass(ch, classID)
}

// satisfiesAnchors reports whether startPos as a candidate origin is
// consistent with the program's declared anchor requirements.
func (s *Scanner) satisfiesAnchors(candidate, textBeg, textEnd, scanStart int) bool {
	a := s.prog.Anchors
	if a.Has(program.AnchorBeginning) && candidate != textBeg {
		return false
	}
	if a.Has(program.AnchorEnd) && candidate != textEnd {
		return false
	}
	if a.Has(program.AnchorEndZ) {
		if candidate != textEnd && candidate != textEnd-1 {
			return false
		}
	}
	return true
}
