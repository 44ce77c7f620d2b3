package program

// Opcode is a single base bytecode instruction. The interpreter ORs a base
// Opcode with the Back / Back2 / Rtl / Ci flag bits (below) to know which
// re-entry mode and direction/case rules apply to the instruction it just
// decoded; see §3 and §4.3 of the core specification.
type Opcode uint32

// Flag bits layered onto the low bits of a base opcode. The base opcode
// values below all fit in the low 6 bits (OpMask), leaving these five free.
const (
	Back   Opcode = 1 << 6  // re-entered via backtrack, primary variant
	Back2  Opcode = 1 << 7  // re-entered via backtrack, secondary (Back2) variant
	Rtl    Opcode = 1 << 8  // right-to-left direction for this instruction
	Ci     Opcode = 1 << 9  // case-insensitive comparison for this instruction
	Atomic Opcode = 1 << 10 // Forejump only: body is an atomic group, keep text_pos instead of restoring it

	// OpMask isolates the base opcode from the flag bits.
	OpMask Opcode = 0x3F
)

// Base opcodes, grouped as in §4.3's opcode family table.
const (
	Stop Opcode = iota
	Nothing
	Goto

	One
	Notone
	Set

	Onerep
	Notonerep
	Setrep

	Oneloop
	Notoneloop
	Setloop

	Onelazy
	Notonelazy
	Setlazy

	Multi

	Ref

	Lazybranch
	Branchmark
	Branchcount
	Lazybranchmark
	Lazybranchcount

	Setjump
	Backjump
	Forejump

	Setmark
	Nullmark
	Setcount
	Nullcount
	Getmark

	Capturemark

	Testref

	Bol
	Eol
	Boundary
	Nonboundary
	ECMABoundary
	NonECMABoundary
	Beginning
	Start
	End
	EndZ

	opcodeCount
)

// operandCounts[op] is the number of 32-bit operand slots that follow a base
// opcode's instruction slot. It is indexed by the base opcode (flags
// stripped) and is fixed per opcode, independent of the specific instance --
// §4.3 calls this "opcode-local and fixed per opcode".
var operandCounts = [opcodeCount]int{
	Stop:    0,
	Nothing: 0,
	Goto:    1,

	One:    1,
	Notone: 1,
	Set:    1,

	Onerep:    2,
	Notonerep: 2,
	Setrep:    2,

	Oneloop:    2,
	Notoneloop: 2,
	Setloop:    2,

	Onelazy:    2,
	Notonelazy: 2,
	Setlazy:    2,

	Multi: 1,

	Ref: 1,

	Lazybranch:      1,
	Branchmark:      1,
	Branchcount:     3,
	Lazybranchmark:  1,
	Lazybranchcount: 3,

	// Setjump's operand is an after-target used only by its Back (re-entry)
	// decode: negative means "propagate failure" (atomic groups, positive
	// lookaround), non-negative is the code position a failed body should
	// redirect to as a success continuation (negative lookaround). This is
	// one operand rather than the zero a minimal reading of §4.3's table
	// might suggest; see DESIGN.md for why the extra slot earns its keep.
	Setjump:  1,
	Backjump: 0,
	Forejump: 0,

	Setmark:  0,
	Nullmark: 1, // fallback target for Back (graceful zero-iteration exit)
	Setcount: 1,
	Nullcount: 1,
	Getmark:   0,

	Capturemark: 2, // group number, uncapture-group number (-1 = none)

	// Testref carries both the tested group and the jump target to take when
	// the group has not captured, so the conditional construct needs no
	// separate branch instruction.
	Testref: 2,

	Bol: 0, Eol: 0, Boundary: 0, Nonboundary: 0,
	ECMABoundary: 0, NonECMABoundary: 0,
	Beginning: 0, Start: 0, End: 0, EndZ: 0,
}

// Base strips the Back/Back2/Rtl/Ci flag bits, returning the underlying
// instruction identity.
func (op Opcode) Base() Opcode { return op & OpMask }

// OperandCount returns the number of operand slots following this
// instruction's opcode slot.
func (op Opcode) OperandCount() int { return operandCounts[op.Base()] }

// Size returns the total number of code slots (opcode + operands) this
// instruction occupies.
func (op Opcode) Size() int { return 1 + op.OperandCount() }

// IsBack reports whether this decode represents a Back re-entry.
func (op Opcode) IsBack() bool { return op&Back != 0 }

// IsBack2 reports whether this decode represents a Back2 re-entry.
func (op Opcode) IsBack2() bool { return op&Back2 != 0 }

// IsRtl reports whether this instruction runs right-to-left.
func (op Opcode) IsRtl() bool { return op&Rtl != 0 }

// IsCi reports whether this instruction compares case-insensitively.
func (op Opcode) IsCi() bool { return op&Ci != 0 }

// IsAtomic reports whether a Forejump decode should keep text_pos (atomic
// group) rather than restore it (lookaround epilogue).
func (op Opcode) IsAtomic() bool { return op&Atomic != 0 }

var opcodeNames = [opcodeCount]string{
	Stop: "Stop", Nothing: "Nothing", Goto: "Goto",
	One: "One", Notone: "Notone", Set: "Set",
	Onerep: "Onerep", Notonerep: "Notonerep", Setrep: "Setrep",
	Oneloop: "Oneloop", Notoneloop: "Notoneloop", Setloop: "Setloop",
	Onelazy: "Onelazy", Notonelazy: "Notonelazy", Setlazy: "Setlazy",
	Multi: "Multi", Ref: "Ref",
	Lazybranch: "Lazybranch", Branchmark: "Branchmark", Branchcount: "Branchcount",
	Lazybranchmark: "Lazybranchmark", Lazybranchcount: "Lazybranchcount",
	Setjump: "Setjump", Backjump: "Backjump", Forejump: "Forejump",
	Setmark: "Setmark", Nullmark: "Nullmark", Setcount: "Setcount", Nullcount: "Nullcount", Getmark: "Getmark",
	Capturemark: "Capturemark", Testref: "Testref",
	Bol: "Bol", Eol: "Eol", Boundary: "Boundary", Nonboundary: "Nonboundary",
	ECMABoundary: "ECMABoundary", NonECMABoundary: "NonECMABoundary",
	Beginning: "Beginning", Start: "Start", End: "End", EndZ: "EndZ",
}

// String renders the base opcode name plus any decode flags, e.g.
// "Oneloop|Back|Rtl". Useful in InvariantError messages and tests.
func (op Opcode) String() string {
	name := "Invalid"
	if b := op.Base(); b < opcodeCount {
		name = opcodeNames[b]
	}
	flagOrder := []struct {
		flag Opcode
		tag  string
	}{{Back, "Back"}, {Back2, "Back2"}, {Rtl, "Rtl"}, {Ci, "Ci"}}
	for _, f := range flagOrder {
		if op&f.flag != 0 {
			name += "|" + f.tag
		}
	}
	return name
}
