// Package runner implements the exclusive-reference cache of §5: a
// single-slot, lock-free cache that lets repeated calls against the same
// compiled Program reuse one Scanner/Interpreter pair instead of
// allocating fresh stacks on every call, while still being safe under
// concurrent use from multiple goroutines (each concurrent caller either
// gets the cached instance or builds its own; only one Scanner is ever
// cached at a time).
package runner

import (
	"sync/atomic"

	"github.com/coregx/regexvm/charclass"
	"github.com/coregx/regexvm/program"
	"github.com/coregx/regexvm/scanner"
)

// Cache holds at most one idle *scanner.Scanner for a given Program. It is
// the concrete realization of §5's "exclusive reference" contract: a
// caller that Acquires the cached instance owns it exclusively until
// Release, and a concurrent Acquire during that window simply builds its
// own instance rather than blocking. Only the instance most recently
// handed out by Acquire is offered back to the slot on Release; releasing
// any earlier one drops it.
type Cache struct {
	prog   *program.Program
	oracle charclass.Oracle

	slot atomic.Pointer[scanner.Scanner]
	busy atomic.Pointer[scanner.Scanner]
}

// New creates an empty Cache for prog/oracle. The first Acquire always
// misses and builds a fresh Scanner.
func New(prog *program.Program, oracle charclass.Oracle) *Cache {
	return &Cache{prog: prog, oracle: oracle}
}

// Acquire returns a Scanner for exclusive use by the caller until Release.
// It prefers the cached idle instance (a single CAS against slot); on a
// miss it allocates a new Scanner.
func (c *Cache) Acquire() *scanner.Scanner {
	for {
		s := c.slot.Load()
		if s == nil {
			break
		}
		if c.slot.CompareAndSwap(s, nil) {
			c.busy.Store(s)
			return s
		}
	}
	s := scanner.New(c.prog, c.oracle)
	c.busy.Store(s)
	return s
}

// Release returns s to the cache. If s is the instance Acquire last
// recorded as busy, it is offered back to slot via a single CAS; if slot
// is already occupied (a concurrent Acquire/Release raced ahead) s is
// simply dropped, matching §5's "cached only if the slot is empty"
// contract.
func (c *Cache) Release(s *scanner.Scanner) {
	if c.busy.Load() != s {
		return
	}
	c.busy.CompareAndSwap(s, nil)
	c.slot.CompareAndSwap(nil, s)
}
