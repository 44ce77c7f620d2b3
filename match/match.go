// Package match implements the mutable Match record the interpreter fills
// in while backtracking and the Tidy pass that finalizes it on success. See
// §3 and §4.3 ("Capture semantics", "Tidy") of the core specification.
package match

const (
	// balancedOutLength is the sentinel length value marking a capture
	// entry that was fully transferred away by a balanced-group construct
	// and carries no usable span. IsMatched treats a group whose last
	// active entry carries this sentinel as unmatched even though its
	// match count is nonzero.
	balancedOutLength = -2

	// refTag is the fixed second-slot value of a forward-reference entry
	// appended by TransferCapture's BalanceMatch half. The first slot of
	// such an entry holds EncodeRef(targetPairIndex).
	refTag = -1
)

// EncodeRef packs a pair index into the negative forward-reference
// encoding used by balanced-group bookkeeping. DecodeRef is its own
// inverse: DecodeRef(EncodeRef(i)) == i for all i >= 0 (§8 property 5).
func EncodeRef(pairIndex int) int { return -3 - pairIndex }

// DecodeRef recovers the pair index a forward-reference entry points at.
func DecodeRef(v int) int { return -3 - v }

// Record is the mutable per-scan match buffer. A fresh Record is allocated
// per successful scan (§3, "Interpreter state" lifecycle); failed/retried
// scans reuse one via Reset.
type Record struct {
	capSize    int
	matchCount []int
	matches    [][]int // matches[g] is a flat (start,length) pair array

	balancing bool

	// Index/Length are the finalized group-0 span, set by Tidy. They are
	// only meaningful when Success() is true.
	Index  int
	Length int
}

// NewRecord allocates a Record with room for capSize capture groups
// (dense slots 0..capSize-1; slot 0 is always the whole-match group).
func NewRecord(capSize int) *Record {
	r := &Record{}
	r.Reset(capSize)
	return r
}

// Reset prepares the Record for a fresh scan, reusing prior allocations
// where possible (the per-group arrays keep their backing storage; only
// the logical counts are cleared).
func (r *Record) Reset(capSize int) {
	r.capSize = capSize
	r.balancing = false
	r.Index = 0
	r.Length = 0
	if cap(r.matchCount) >= capSize {
		r.matchCount = r.matchCount[:capSize]
		for i := range r.matchCount {
			r.matchCount[i] = 0
		}
	} else {
		r.matchCount = make([]int, capSize)
	}
	if cap(r.matches) >= capSize {
		r.matches = r.matches[:capSize]
	} else {
		grown := make([][]int, capSize)
		copy(grown, r.matches)
		r.matches = grown
	}
}

// CapSize returns the number of dense capture slots this record tracks.
func (r *Record) CapSize() int { return r.capSize }

// MatchCount returns match_count[g]: how many times group g has completed
// a capture along the winning path.
func (r *Record) MatchCount(g int) int {
	if g < 0 || g >= len(r.matchCount) {
		return 0
	}
	return r.matchCount[g]
}

// Success reports whether the overall match (group 0) succeeded.
func (r *Record) Success() bool { return r.MatchCount(0) > 0 }

// ensureSlots grows matches[g] geometrically so it can hold at least
// needInts flat ints, preserving existing contents.
func (r *Record) ensureSlots(g, needInts int) {
	cur := r.matches[g]
	if len(cur) >= needInts {
		return
	}
	newCap := len(cur) * 2
	if newCap < 8 {
		newCap = 8
	}
	if newCap < needInts {
		newCap = needInts
	}
	grown := make([]int, newCap)
	copy(grown, cur)
	r.matches[g] = grown
}

// Capture closes a capture for group g: start/end are normalized so
// start <= end, then (start, end-start) is written at the group's current
// write cursor (match_count[g]) and the cursor advances. Writing at the
// cursor rather than always appending is what makes Uncapture an O(1),
// allocation-free undo: a later re-Capture after a backtrack overwrites
// exactly the slot the undone capture occupied.
func (r *Record) Capture(g, start, end int) {
	if start > end {
		start, end = end, start
	}
	idx := r.matchCount[g]
	r.ensureSlots(g, (idx+1)*2)
	r.matches[g][idx*2] = start
	r.matches[g][idx*2+1] = end - start
	r.matchCount[g]++
}

// Uncapture undoes the most recent capture (or balance transfer) recorded
// for group g, in response to a backtrack crossing it. It is a single
// decrement regardless of whether the undone entry was a literal capture
// or a balance-transfer marker: both were pushed via the same cursor
// discipline, so "undo" is always "move the cursor back one slot".
func (r *Record) Uncapture(g int) {
	if g < 0 || g >= len(r.matchCount) {
		return
	}
	if r.matchCount[g] > 0 {
		r.matchCount[g]--
	}
}

// TransferCapture implements the `(?<g-gPrime>...)` balanced-match
// construct (§4.3). It computes the combined span of [start,end) and
// gPrime's current innermost capture, pushes a forward-reference marker
// onto gPrime (deferring the actual pop to Tidy), and -- if g != -1 --
// pushes the combined span as a real capture of g.
func (r *Record) TransferCapture(g, gPrime, start, end int) {
	r.balancing = true

	combinedStart, combinedEnd := start, end
	if r.matchCount[gPrime] > 0 {
		ps, pl, ok := r.resolveActive(gPrime)
		if ok {
			if ps < combinedStart {
				combinedStart = ps
			}
			if pe := ps + pl; pe > combinedEnd {
				combinedEnd = pe
			}
		}
	}

	// Push the forward-reference marker onto gPrime's own slot sequence,
	// pointing at the entry it conceptually retires.
	targetIdx := r.matchCount[gPrime] - 1
	idx := r.matchCount[gPrime]
	r.ensureSlots(gPrime, (idx+1)*2)
	if targetIdx >= 0 {
		r.matches[gPrime][idx*2] = EncodeRef(targetIdx)
	} else {
		// No prior capture to retire; still record a marker so Tidy's
		// push/pop accounting stays balanced.
		r.matches[gPrime][idx*2] = EncodeRef(0)
	}
	r.matches[gPrime][idx*2+1] = refTag
	r.matchCount[gPrime]++

	if g != -1 {
		r.Capture(g, combinedStart, combinedEnd)
	}
}

// resolveActive follows the group's last active entry through any chain of
// forward-reference markers to the literal (start, length) pair it
// ultimately denotes. ok is false if there is no active entry or the chain
// runs off the front of the array (malformed program).
func (r *Record) resolveActive(g int) (start, length int, ok bool) {
	idx := r.matchCount[g] - 1
	for idx >= 0 {
		s := r.matches[g][idx*2]
		l := r.matches[g][idx*2+1]
		if l == refTag && s <= -3 {
			idx = DecodeRef(s)
			continue
		}
		return s, l, true
	}
	return 0, 0, false
}

// IsMatched reports whether group g has an active, non-balanced-out
// capture.
func (r *Record) IsMatched(g int) bool {
	if g < 0 || g >= len(r.matchCount) || r.matchCount[g] <= 0 {
		return false
	}
	_, length, ok := r.resolveActive(g)
	if !ok {
		return false
	}
	return length != balancedOutLength
}

// MatchIndex returns the start offset of group g's active capture, or -1
// if the group has not matched.
func (r *Record) MatchIndex(g int) int {
	if !r.IsMatched(g) {
		return -1
	}
	start, _, _ := r.resolveActive(g)
	return start
}

// MatchLength returns the length of group g's active capture, or -1 if the
// group has not matched.
func (r *Record) MatchLength(g int) int {
	if !r.IsMatched(g) {
		return -1
	}
	_, length, _ := r.resolveActive(g)
	return length
}

// Tidy finalizes the record after a successful scan: it publishes group 0's
// span to Index/Length, and -- if any balanced-group transfer occurred --
// compacts every group's entry sequence in place, removing forward
// reference markers and the entries they retire.
//
// Compaction walks each group's active sequence (the first match_count[g]
// pairs) left to right using a free-index cursor: a literal entry is
// copied down to the cursor (a no-op when already in place) and the cursor
// advances; a forward-reference entry instead retreats the cursor. Halving
// the final cursor yields the new match_count[g].
func (r *Record) Tidy() {
	if r.MatchCount(0) > 0 {
		r.Index = r.matches[0][0]
		r.Length = r.matches[0][1]
	}
	if !r.balancing {
		return
	}
	for g := 0; g < r.capSize; g++ {
		n := r.matchCount[g]
		if n == 0 {
			continue
		}
		entries := r.matches[g]
		free := 0
		for j := 0; j < n*2; j += 2 {
			if entries[j+1] == refTag && entries[j] <= -3 {
				free -= 2
				if free < 0 {
					free = 0
				}
				continue
			}
			if j != free {
				entries[free] = entries[j]
				entries[free+1] = entries[j+1]
			}
			free += 2
		}
		r.matchCount[g] = free / 2
	}
	if r.MatchCount(0) > 0 {
		r.Index = r.matches[0][0]
		r.Length = r.matches[0][1]
	}
}
