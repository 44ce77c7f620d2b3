// Package replace implements the replacement mini-language of §6: a
// replacement template is compiled once into a sequence of literal and
// substitution tokens, then evaluated against a match.Record plus the
// original input to produce the replacement text for one match.
package replace

import (
	"strconv"
	"strings"

	"github.com/coregx/regexvm/match"
)

// Sentinel group references, matching the encoding named in §6: negative
// indices below -Specials (exclusive) denote a numbered group rather than
// one of these fixed spans.
const (
	LeftPortion  = -1
	RightPortion = -2
	LastGroup    = -3
	WholeString  = -4
	EntireInput  = -5

	// Specials is the count of fixed sentinel spans above; a token's group
	// field g in [-Specials-1-r] for r>=0 denotes numbered group r.
	Specials = 5
)

// encodeGroupRef packs a capture-group dense slot into the token encoding
// reserved for numbered-group references, one slot below the fixed
// sentinels.
func encodeGroupRef(slot int) int { return -Specials - 1 - slot }

func decodeGroupRef(v int) (slot int, ok bool) {
	if v > -Specials-1 {
		return 0, false
	}
	return -Specials - 1 - v, true
}

// token is one piece of a compiled replacement template: either a literal
// run of text (held in literal) or a group reference
// (ref, one of the sentinels above or an encoded numbered-group slot).
type token struct {
	literal string
	ref     int
	isRef   bool
}

// Template is a compiled replacement string, ready to evaluate repeatedly
// against different match.Records from the same program (dense slots are
// resolved once, at Compile time).
type Template struct {
	tokens []token
	rtl    bool
}

// Compile parses a .NET-style replacement pattern ("$1", "${name}", "$$",
// "$&", "$`", "$'", "$+", "$_") into a Template. resolveName maps a named
// group to its declared number; pass nil if the pattern has no named
// groups. declaredToSlot maps a declared group number to its dense
// capture slot.
func Compile(pattern string, resolveName func(name string) (int, bool), declaredToSlot func(group int) (int, bool), rtl bool) *Template {
	t := &Template{rtl: rtl}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.tokens = append(t.tokens, token{literal: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '$' || i == len(runes)-1 {
			lit.WriteRune(c)
			continue
		}
		next := runes[i+1]
		switch {
		case next == '$':
			lit.WriteRune('$')
			i++
		case next == '&':
			flush()
			t.tokens = append(t.tokens, token{ref: WholeString, isRef: true})
			i++
		case next == '`':
			flush()
			t.tokens = append(t.tokens, token{ref: LeftPortion, isRef: true})
			i++
		case next == '\'':
			flush()
			t.tokens = append(t.tokens, token{ref: RightPortion, isRef: true})
			i++
		case next == '+':
			flush()
			t.tokens = append(t.tokens, token{ref: LastGroup, isRef: true})
			i++
		case next == '_':
			flush()
			t.tokens = append(t.tokens, token{ref: EntireInput, isRef: true})
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			num, _ := strconv.Atoi(string(runes[i+1 : j]))
			if slot, ok := declaredToSlot(num); ok {
				flush()
				t.tokens = append(t.tokens, token{ref: encodeGroupRef(slot), isRef: true})
			} else {
				lit.WriteRune('$')
				lit.WriteString(string(runes[i+1 : j]))
			}
			i = j - 1
		case next == '{':
			j := i + 2
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			if j < len(runes) {
				name := string(runes[i+2 : j])
				if resolveName != nil {
					if group, ok := resolveName(name); ok {
						if slot, ok := declaredToSlot(group); ok {
							flush()
							t.tokens = append(t.tokens, token{ref: encodeGroupRef(slot), isRef: true})
							i = j
							continue
						}
					}
				}
			}
			lit.WriteRune('$')
		default:
			lit.WriteRune('$')
		}
	}
	flush()
	return t
}

// Eval renders the template for one match of rec against input, writing
// into a fresh string.
func (t *Template) Eval(input []rune, rec *match.Record) string {
	var out strings.Builder
	for _, tk := range t.tokens {
		if !tk.isRef {
			out.WriteString(tk.literal)
			continue
		}
		switch tk.ref {
		case EntireInput:
			out.WriteString(string(input))
		case WholeString:
			out.WriteString(string(input[rec.Index : rec.Index+rec.Length]))
		case LeftPortion:
			out.WriteString(string(input[:rec.Index]))
		case RightPortion:
			out.WriteString(string(input[rec.Index+rec.Length:]))
		case LastGroup:
			slot := lastMatchedSlot(rec)
			if slot >= 0 {
				writeGroup(&out, input, rec, slot)
			}
		default:
			if slot, ok := decodeGroupRef(tk.ref); ok {
				writeGroup(&out, input, rec, slot)
			}
		}
	}
	return out.String()
}

func writeGroup(out *strings.Builder, input []rune, rec *match.Record, slot int) {
	if !rec.IsMatched(slot) {
		return
	}
	start := rec.MatchIndex(slot)
	length := rec.MatchLength(slot)
	out.WriteString(string(input[start : start+length]))
}

func lastMatchedSlot(rec *match.Record) int {
	for slot := rec.CapSize() - 1; slot >= 1; slot-- {
		if rec.IsMatched(slot) {
			return slot
		}
	}
	return -1
}
