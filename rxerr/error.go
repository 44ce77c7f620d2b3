// Package rxerr defines the error taxonomy shared by the scanner, the
// interpreter, and the exclusive-reference runner cache.
package rxerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors raised at the API boundary or from deep inside the
// interpreter. See the package doc of each consumer for which of these it
// can return.
var (
	// ErrInvalidArgument is raised at the API boundary: nil input, a
	// negative count, or a start position outside the searched range.
	// It never originates inside the core.
	ErrInvalidArgument = errors.New("regexvm: invalid argument")

	// ErrInternalInvariant marks an unreachable default in opcode
	// dispatch, a stack underflow, or a malformed program. Fatal: it
	// indicates an implementation bug, not a bad pattern or input.
	ErrInternalInvariant = errors.New("regexvm: internal invariant violated")

	// ErrNoResult is returned by accessors called on a failed or empty
	// Match. It is a usage error, not a match failure.
	ErrNoResult = errors.New("regexvm: no result available")
)

// TimeoutError reports that a scan exceeded its configured deadline. It
// carries enough context to diagnose which pattern/input pairing is
// pathological without re-running the scan.
type TimeoutError struct {
	Pattern     string
	InputPrefix string
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("regexvm: scan of pattern %q against input %q timed out after %s",
		e.Pattern, e.InputPrefix, e.Timeout)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded)-style checks compose
// with the sentinel below.
func (e *TimeoutError) Unwrap() error { return errTimeoutSentinel }

var errTimeoutSentinel = errors.New("regexvm: timeout")

// IsTimeout reports whether err is or wraps a scan timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, errTimeoutSentinel)
}

// InvariantError wraps ErrInternalInvariant with the offending opcode and
// code position, so a panic-free caller can still log where the VM gave up.
type InvariantError struct {
	Message string
	CodePos int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("regexvm: internal invariant violated at code position %d: %s", e.CodePos, e.Message)
}

func (e *InvariantError) Unwrap() error { return ErrInternalInvariant }
