package charclass

import "testing"

func TestClassMatchesRanges(t *testing.T) {
	c := Class{Ranges: []RuneRange{{Lo: 'a', Hi: 'z'}}}
	if !c.Matches('m') {
		t.Errorf("expected 'm' in [a-z]")
	}
	if c.Matches('M') {
		t.Errorf("did not expect 'M' in [a-z]")
	}
}

func TestClassMatchesNegated(t *testing.T) {
	c := Class{Ranges: []RuneRange{{Lo: '0', Hi: '9'}}, Negate: true}
	if c.Matches('5') {
		t.Errorf("negated digit class should reject '5'")
	}
	if !c.Matches('x') {
		t.Errorf("negated digit class should accept 'x'")
	}
}

func TestClassMatchesCategory(t *testing.T) {
	c := Class{Categories: []string{"Nd"}}
	if !c.Matches('7') {
		t.Errorf("expected '7' to be in category Nd")
	}
	if c.Matches('x') {
		t.Errorf("did not expect 'x' in category Nd")
	}
}

func TestTableInClassBoundsChecked(t *testing.T) {
	tbl := Table{{Ranges: []RuneRange{{Lo: 'a', Hi: 'a'}}}}
	if !tbl.InClass('a', 0) {
		t.Errorf("expected class 0 to match 'a'")
	}
	if tbl.InClass('a', 5) {
		t.Errorf("out-of-range classID must not match")
	}
	if tbl.InClass('a', -1) {
		t.Errorf("negative classID must not match")
	}
}

func TestIsWordChar(t *testing.T) {
	cases := map[rune]bool{'a': true, '9': true, '_': true, ' ': false, '.': false}
	for r, want := range cases {
		if got := IsWordChar(r); got != want {
			t.Errorf("IsWordChar(%q) = %v, want %v", r, got, want)
		}
	}
}

func TestIsWordCharECMAIsASCIIOnly(t *testing.T) {
	if !IsWordCharECMA('z') {
		t.Errorf("expected ASCII letter to be an ECMA word char")
	}
	if IsWordCharECMA('é') {
		t.Errorf("non-ASCII letter must not count under ECMAScript word-char rules")
	}
}
