// Package compiler lowers a parsed pattern tree into a program.Program the
// interpreter can execute. Parsing itself (turning source text into this
// tree) is out of scope per the core specification's Non-goals; this
// package is the minimal producer needed to exercise the interpreter end
// to end, in the spirit of the teacher's nfa/compile.go sitting downstream
// of a tree it does not itself build.
package compiler

// Node is a pattern AST node. Callers (or a future parser) construct a tree
// of these and pass it to Compile.
type Node interface {
	node()
}

// Literal matches a single rune.
type Literal struct{ Rune rune }

// AnyChar matches any rune (including newline when Singleline is set on
// the enclosing Options; the compiler resolves this into a CharClass at
// build time rather than a dedicated opcode).
type AnyChar struct{}

// CharClass matches against a named class in the compiled program's class
// table. Ranges/Categories/Negate mirror charclass.Class.
type CharClass struct {
	Ranges     []RuneRange
	Categories []string
	Negate     bool
}

// RuneRange is an inclusive rune range.
type RuneRange struct{ Lo, Hi rune }

// Concat matches each child in sequence.
type Concat struct{ Nodes []Node }

// Alternate matches the first alternative that leads to overall success,
// trying each in order and backtracking through earlier ones on failure
// further down the pattern.
type Alternate struct{ Nodes []Node }

// Repeat applies {Min,Max} repetition to Body. Max < 0 means unbounded.
// Lazy selects the minimal-first strategy.
type Repeat struct {
	Body     Node
	Min, Max int
	Lazy     bool
}

// Capture wraps Body as capturing group Group (a declared group number,
// not necessarily dense — the compiler assigns dense slots).
type Capture struct {
	Body  Node
	Group int
	Name  string // empty for unnamed groups
}

// Balanced implements `(?<Group-Prior>Body)`: Group may be -1 (no capture
// of the combined span, just the transfer).
type Balanced struct {
	Body        Node
	Group       int
	PriorGroup  int
}

// Backreference matches the same text a previous capture of Group matched.
type Backreference struct{ Group int }

// Assertion is a fixed zero-width test.
type Assertion struct{ Kind AssertionKind }

// AssertionKind enumerates the zero-width assertions available to Assertion.
type AssertionKind int

const (
	AssertBeginning AssertionKind = iota
	AssertStart
	AssertEnd
	AssertEndZ
	AssertBol
	AssertEol
	AssertBoundary
	AssertNonboundary
	AssertECMABoundary
	AssertNonECMABoundary
)

// Lookaround implements `(?=Body)`, `(?!Body)`, `(?<=Body)`, `(?<!Body)`.
type Lookaround struct {
	Body     Node
	Behind   bool
	Negative bool
}

// Atomic implements `(?>Body)`: once Body matches, none of its internal
// backtracking alternatives remain available.
type Atomic struct{ Body Node }

// Conditional implements `(?(Group)Yes|No)`. No may be nil.
type Conditional struct {
	Group    int
	Yes, No  Node
}

func (Literal) node()       {}
func (AnyChar) node()       {}
func (CharClass) node()     {}
func (Concat) node()        {}
func (Alternate) node()     {}
func (Repeat) node()        {}
func (Capture) node()       {}
func (Balanced) node()      {}
func (Backreference) node() {}
func (Assertion) node()     {}
func (Lookaround) node()    {}
func (Atomic) node()        {}
func (Conditional) node()   {}
