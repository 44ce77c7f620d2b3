// Package prefilter implements the FirstChar/Anchor analyzer of §4.2: a
// build-time walk of the pattern tree that derives the anchor bit-set, an
// optional first-character class, and an optional Boyer-Moore literal
// prefix a Scanner can use to skip candidate positions cheaply.
package prefilter

import (
	"github.com/coregx/regexvm/compiler"
	"github.com/coregx/regexvm/program"
)

// Analyze inspects tree (in the same shape Compile consumes) and returns
// the anchor set, first-char class (if any; classID is filled in by the
// caller once the class table is final, so Analyze returns a
// compiler.CharClass instead of an already-interned id), and a literal
// prefix string when the pattern necessarily begins with one.
type Result struct {
	Anchors      program.AnchorSet
	FirstClass   *compiler.CharClass
	LiteralPrefix string
	HasLiteral   bool
}

// Analyze walks the leading edge of tree: the sequence of nodes that must
// be tried at the very start of every match attempt, stopping at the
// first node that isn't a deterministic single-position test (a
// quantifier other than a fixed count, alternation, or anything optional
// breaks the chain, since a later alternative might start differently).
func Analyze(tree Node, rtl bool) Result {
	var res Result
	leading := firstSequence(tree, rtl)

	var litBuf []rune
	for _, n := range leading {
		switch v := n.(type) {
		case assertionLike:
			// An anchor after a literal constrains where the match ends,
			// not where it starts, so the walk stops there.
			if len(litBuf) > 0 {
				break
			}
			switch v.kind {
			case kindBeginning:
				res.Anchors |= program.AnchorBeginning
			case kindStart:
				res.Anchors |= program.AnchorStart
			case kindEnd:
				res.Anchors |= program.AnchorEnd
			case kindEndZ:
				res.Anchors |= program.AnchorEndZ
			}
			continue
		case literalLike:
			litBuf = append(litBuf, v.r)
			continue
		case classLike:
			if len(litBuf) == 0 && res.FirstClass == nil {
				cls := v.cls
				res.FirstClass = &cls
			}
		}
		break
	}
	if len(litBuf) > 0 {
		res.HasLiteral = true
		res.LiteralPrefix = string(litBuf)
	}
	return res
}

// Node is an alias of compiler.Node; callers pass compiler nodes directly.
type Node = compiler.Node

type assertionKind int

const (
	kindBeginning assertionKind = iota
	kindStart
	kindEnd
	kindEndZ
)

type assertionLike struct{ kind assertionKind }
type literalLike struct{ r rune }
type classLike struct{ cls compiler.CharClass }

// firstSequence flattens the deterministic leading edge of tree into the
// small internal node set Analyze switches on.
func firstSequence(n Node, rtl bool) []any {
	switch v := n.(type) {
	case compiler.Concat:
		nodes := v.Nodes
		if rtl {
			nodes = reversed(nodes)
		}
		var out []any
		for _, c := range nodes {
			seq := firstSequence(c, rtl)
			out = append(out, seq...)
			if !isDeterministicSingle(c) {
				break
			}
		}
		return out
	case compiler.Capture:
		return firstSequence(v.Body, rtl)
	case compiler.Repeat:
		if isDeterministicSingle(v) {
			one := firstSequence(v.Body, rtl)
			var out []any
			for i := 0; i < v.Min; i++ {
				out = append(out, one...)
			}
			return out
		}
	case compiler.Literal:
		return []any{literalLike{r: v.Rune}}
	case compiler.CharClass:
		return []any{classLike{cls: v}}
	case compiler.Assertion:
		switch v.Kind {
		case compiler.AssertBeginning:
			return []any{assertionLike{kind: kindBeginning}}
		case compiler.AssertStart:
			return []any{assertionLike{kind: kindStart}}
		case compiler.AssertEnd:
			return []any{assertionLike{kind: kindEnd}}
		case compiler.AssertEndZ:
			return []any{assertionLike{kind: kindEndZ}}
		}
	}
	return nil
}

// isDeterministicSingle reports whether n always executes exactly once,
// consuming exactly what it says, with no alternative path (so the
// analyzer may safely continue accumulating past it).
func isDeterministicSingle(n Node) bool {
	switch v := n.(type) {
	case compiler.Literal, compiler.Assertion:
		return true
	case compiler.CharClass:
		return true
	case compiler.Capture:
		return isDeterministicSingle(v.Body)
	case compiler.Repeat:
		return v.Min > 0 && v.Min == v.Max && isDeterministicSingle(v.Body)
	}
	return false
}

func reversed(nodes []compiler.Node) []compiler.Node {
	out := make([]compiler.Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

// BuildBM constructs a program.BMPrefix from a literal prefix string when
// it is long enough to be worth the bad-character table (single-rune
// prefixes gain nothing over the FirstChar class check alone).
func BuildBM(lit string, ignoreCase, rtl bool) *program.BMPrefix {
	runes := []rune(lit)
	if len(runes) < 2 {
		return nil
	}
	if rtl {
		runes = reverseRunes(runes)
	}
	return program.NewBMPrefix(runes, ignoreCase, rtl)
}

func reverseRunes(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		out[len(r)-1-i] = c
	}
	return out
}
