// Package regexvm ties the compiler, interpreter, scanner, and replacement
// packages into the small convenience surface named in §6: Compile,
// IsMatch, FindString, FindAllString, ReplaceAll, and Split sit atop the
// core the way regex.go sits atop meta.Engine in the teacher repo, with a
// runner.Cache giving every Regex cheap repeated use without forcing
// callers to manage Scanner lifetimes themselves.
package regexvm

import (
	"slices"
	"time"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/compiler"
	"github.com/coregx/regexvm/match"
	"github.com/coregx/regexvm/prefilter"
	"github.com/coregx/regexvm/program"
	"github.com/coregx/regexvm/replace"
	"github.com/coregx/regexvm/runner"
	"github.com/coregx/regexvm/scanner"
)

// Regex is a compiled pattern ready for repeated matching. The zero value
// is not usable; obtain one via Compile.
//
// Timeout, if set, bounds every scan this Regex performs (see
// scanner.Options); it is exported directly rather than threaded through
// every method's signature, matching how .NET hangs a per-instance
// MatchTimeout off Regex rather than passing it per call.
type Regex struct {
	prog  *program.Program
	cache *runner.Cache

	Timeout time.Duration
}

// Compile lowers tree under opts into a Regex. pattern is retained only
// for diagnostics (timeout error messages, String()).
func Compile(tree compiler.Node, opts program.Options, pattern string) (*Regex, error) {
	prog, err := compiler.Compile(tree, opts, pattern)
	if err != nil {
		return nil, err
	}

	res := prefilter.Analyze(tree, opts.RightToLeft)
	prog.Anchors = res.Anchors
	if res.FirstClass != nil {
		id := len(prog.Classes)
		cc := charclass.Class{Negate: res.FirstClass.Negate}
		for _, r := range res.FirstClass.Ranges {
			cc.Ranges = append(cc.Ranges, charclass.RuneRange{Lo: r.Lo, Hi: r.Hi})
		}
		cc.Categories = append(cc.Categories, res.FirstClass.Categories...)
		prog.Classes = append(prog.Classes, cc)
		prog.FirstChar = &program.FirstCharPrefix{ClassID: id, IgnoreCase: opts.IgnoreCase}
	}
	if res.HasLiteral {
		// Analyze reports a right-to-left prefix in scan order; BuildBM
		// takes it in text order and does the reversal itself.
		lit := []rune(res.LiteralPrefix)
		if opts.RightToLeft {
			slices.Reverse(lit)
		}
		prog.BM = prefilter.BuildBM(string(lit), opts.IgnoreCase, opts.RightToLeft)
	}

	return &Regex{
		prog:  prog,
		cache: runner.New(prog, charclass.Table(prog.Classes)),
	}, nil
}

// MustCompile is like Compile but panics on error, for use with patterns
// known valid at init time.
func MustCompile(tree compiler.Node, opts program.Options, pattern string) *Regex {
	re, err := Compile(tree, opts, pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// String returns the source pattern text this Regex was compiled from.
func (re *Regex) String() string { return re.prog.Pattern }

// FindRecord runs a single scan starting at or after startPos and returns
// the populated match.Record. Most callers want the string-returning
// helpers below instead.
func (re *Regex) FindRecord(input []rune, startPos int) (*match.Record, bool, error) {
	s := re.cache.Acquire()
	defer re.cache.Release(s)
	textBeg, textEnd := 0, len(input)
	return s.Scan(input, textBeg, textEnd, startPos, scanner.Options{Timeout: re.Timeout})
}

// IsMatch reports whether pattern matches anywhere in s.
func (re *Regex) IsMatch(s string) (bool, error) {
	_, ok, err := re.FindRecord([]rune(s), startAnchor(re, len([]rune(s))))
	return ok, err
}

func startAnchor(re *Regex, textLen int) int {
	if re.prog.RightToLeft {
		return textLen
	}
	return 0
}

// FindString returns the leftmost (or rightmost, for RightToLeft
// programs) match in s, and whether one was found.
func (re *Regex) FindString(s string) (string, bool, error) {
	input := []rune(s)
	rec, ok, err := re.FindRecord(input, startAnchor(re, len(input)))
	if err != nil || !ok {
		return "", false, err
	}
	return string(input[rec.Index : rec.Index+rec.Length]), true, nil
}

// FindStringIndex is like FindString but returns the rune offsets of
// the match instead of its text.
func (re *Regex) FindStringIndex(s string) ([2]int, bool, error) {
	input := []rune(s)
	rec, ok, err := re.FindRecord(input, startAnchor(re, len(input)))
	if err != nil || !ok {
		return [2]int{}, false, err
	}
	return [2]int{rec.Index, rec.Index + rec.Length}, true, nil
}

// FindAllString returns every non-overlapping match in s, in left-to-right
// order. Its search positions advance left to right; a RightToLeft program
// searches leftward from each of those positions, so this does not
// enumerate a RightToLeft program's matches.
func (re *Regex) FindAllString(s string) ([]string, error) {
	input := []rune(s)
	var out []string
	pos := 0
	for pos <= len(input) {
		rec, ok, err := re.FindRecord(input, pos)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, string(input[rec.Index:rec.Index+rec.Length]))
		if rec.Length == 0 {
			pos = rec.Index + 1
		} else {
			pos = rec.Index + rec.Length
		}
	}
	return out, nil
}

// ReplaceAll replaces every non-overlapping match of re in s with the
// rendering of tmpl against that match.
func (re *Regex) ReplaceAll(s string, tmpl *replace.Template) (string, error) {
	input := []rune(s)
	var out []rune
	pos := 0
	last := 0
	for pos <= len(input) {
		rec, ok, err := re.FindRecord(input, pos)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		out = append(out, input[last:rec.Index]...)
		out = append(out, []rune(tmpl.Eval(input, rec))...)
		last = rec.Index + rec.Length
		if rec.Length == 0 {
			pos = rec.Index + 1
		} else {
			pos = rec.Index + rec.Length
		}
	}
	out = append(out, input[last:]...)
	return string(out), nil
}

// Split divides s around every non-overlapping match of re.
func (re *Regex) Split(s string) ([]string, error) {
	input := []rune(s)
	var out []string
	pos := 0
	last := 0
	for pos <= len(input) {
		rec, ok, err := re.FindRecord(input, pos)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, string(input[last:rec.Index]))
		last = rec.Index + rec.Length
		if rec.Length == 0 {
			pos = rec.Index + 1
		} else {
			pos = rec.Index + rec.Length
		}
	}
	out = append(out, string(input[last:]))
	return out, nil
}
