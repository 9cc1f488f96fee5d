package amount

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"0.000000", 0},
		{"1", 1_000_000},
		{"1.000000", 1_000_000},
		{"0.004000", 4_000},
		{"0.004", 4_000},
		{"0.000001", 1},
		{"3.5", 3_500_000},
		{"10000", 10_000_000_000},
	}
	for _, c := range cases {
		v, ok := Parse(c.in)
		if !ok {
			t.Errorf("Parse(%q) rejected", c.in)
			continue
		}
		if v.Int64() != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, v.Int64(), c.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		".",
		".5",
		"1.",
		"-1",
		"-0.5",
		"+1",
		"1.0000001", // more than six fractional digits
		"1,5",
		"1.5.0",
		"abc",
		"1e6",
		" 1",
	}
	for _, s := range bad {
		if _, ok := Parse(s); ok {
			t.Errorf("Parse(%q) accepted, want rejection", s)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0.000000"},
		{1, "0.000001"},
		{4_000, "0.004000"},
		{1_000_000, "1.000000"},
		{5_996_000, "5.996000"},
		{-2_500_000, "-2.500000"},
	}
	for _, c := range cases {
		if got := Format(big.NewInt(c.in)); got != c.want {
			t.Errorf("Format(%d) = %q, want %q", c.in, got, c.want)
		}
	}
	if got := Format(nil); got != "0.000000" {
		t.Errorf("Format(nil) = %q", got)
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	for _, s := range []string{"0.000000", "0.000001", "2.000000", "10000.000000"} {
		v, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) rejected", s)
		}
		if got := Format(v); got != s {
			t.Errorf("Format(Parse(%q)) = %q", s, got)
		}
	}
}

func TestIsPositive(t *testing.T) {
	for _, s := range []string{"0.000001", "1", "3.500000"} {
		if !IsPositive(s) {
			t.Errorf("IsPositive(%q) = false", s)
		}
	}
	for _, s := range []string{"0", "0.000000", "-1", "bogus", ""} {
		if IsPositive(s) {
			t.Errorf("IsPositive(%q) = true", s)
		}
	}
}

func TestBasisShare(t *testing.T) {
	cases := []struct {
		amt   string
		basis int
		want  string
	}{
		{"4.000000", 10, "0.004000"},
		{"1.000000", 10, "0.001000"},
		{"1.000000", 10_000, "1.000000"},
		{"0", 10, "0.000000"},
	}
	for _, c := range cases {
		got, ok := BasisShare(c.amt, c.basis)
		if !ok {
			t.Errorf("BasisShare(%q, %d) rejected", c.amt, c.basis)
			continue
		}
		if got != c.want {
			t.Errorf("BasisShare(%q, %d) = %q, want %q", c.amt, c.basis, got, c.want)
		}
	}
}

func TestBasisShareFloorsAtOneUnit(t *testing.T) {
	// 10bp of 0.000100 is a tenth of the smallest unit; the share rounds
	// up to one unit instead of vanishing.
	got, ok := BasisShare("0.000100", 10)
	if !ok {
		t.Fatal("BasisShare rejected valid amount")
	}
	if got != "0.000001" {
		t.Errorf("BasisShare floor = %q, want 0.000001", got)
	}
}

func TestBasisShareRejectsMalformed(t *testing.T) {
	if _, ok := BasisShare("bogus", 10); ok {
		t.Error("malformed amount accepted")
	}
	if _, ok := BasisShare("1.000000", -1); ok {
		t.Error("negative basis accepted")
	}
}
