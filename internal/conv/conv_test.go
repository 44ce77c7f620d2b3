package conv

import (
	"math"
	"testing"
)

func TestIntToInt32RoundTrips(t *testing.T) {
	if got := IntToInt32(42); got != 42 {
		t.Errorf("IntToInt32(42) = %d, want 42", got)
	}
	if got := IntToInt32(-1); got != -1 {
		t.Errorf("IntToInt32(-1) = %d, want -1", got)
	}
}

func TestIntToInt32PanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("IntToInt32 did not panic on an out-of-range value")
		}
	}()
	IntToInt32(math.MaxInt32 + 1)
}
