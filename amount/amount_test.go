package amount

import (
	"errors"
	"testing"
)

func TestParseString(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"0", 0},
		{"1", 100000000},
		{"1.5", 150000000},
		{"1,5", 150000000},
		{"0.00000001", 1},
		{"2.00000000", 200000000},
		{"4.21549076", 421549076},
		{"-0.5", -50000000},
		{"123456.789", 12345678900000},
		// digits past the eighth are ignored
		{"1.123456789", 112345678},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "-", "1.2.3", "12x3", "1e5", " 1"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidNumericFormat) {
			t.Errorf("Parse(%q) = %v, want ErrInvalidNumericFormat", in, err)
		}
	}
}

func TestStringPadding(t *testing.T) {
	cases := []struct {
		in   Amount
		want string
	}{
		{0, "0.00000000"},
		{150000000, "1.50000000"},
		{1, "0.00000001"},
		{421549076, "4.21549076"},
		{-50000000, "-0.50000000"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Errorf("String(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []Amount{0, 1, 99, 100000000, 150000000, 123456789012345, -421549076}
	for _, v := range values {
		got, err := Parse(v.String())
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", v.String(), err)
		}
		if got != v {
			t.Errorf("round trip %d -> %q -> %d", v, v.String(), got)
		}
	}
}

func TestParseValue(t *testing.T) {
	got, err := ParseValue("2.5")
	if err != nil || got != 250000000 {
		t.Fatalf("ParseValue(string) = %d, %v", got, err)
	}
	got, err = ParseValue(float64(0.5))
	if err != nil || got != 50000000 {
		t.Fatalf("ParseValue(float64) = %d, %v", got, err)
	}
	got, err = ParseValue(nil)
	if err != nil || got != 0 {
		t.Fatalf("ParseValue(nil) = %d, %v", got, err)
	}
	if _, err = ParseValue(true); !errors.Is(err, ErrInvalidNumericFormat) {
		t.Fatalf("ParseValue(bool) = %v, want ErrInvalidNumericFormat", err)
	}
}

func TestMul(t *testing.T) {
	// 1.5 * 2 = 3
	if got := Mul(150000000, 200000000); got != 300000000 {
		t.Errorf("Mul = %d, want 300000000", got)
	}
	// 0.00000002 * 0.5 = 0.00000001
	if got := Mul(2, 50000000); got != 1 {
		t.Errorf("Mul = %d, want 1", got)
	}
}

func TestDiv(t *testing.T) {
	// 3 / 2 = 1.5
	got, err := Div(300000000, 200000000)
	if err != nil {
		t.Fatalf("Div failed: %v", err)
	}
	if got != 150000000 {
		t.Errorf("Div = %d, want 150000000", got)
	}

	if _, err := Div(100000000, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("Div by zero = %v, want ErrDivisionByZero", err)
	}
}
