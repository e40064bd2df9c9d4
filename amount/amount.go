// Package amount implements fixed-point currency arithmetic with eight
// decimal digits of precision, matching the resolution used by the exchange.
package amount

import (
	"errors"
	"fmt"
	"math"
)

// Amount is a currency quantity stored as an integer number of 1e-8 units.
type Amount int64

const (
	// Digits is the number of fractional decimal digits carried by an Amount.
	Digits = 8
	// Scale is the integer multiplier between one currency unit and one Amount unit.
	Scale = 100000000
)

var (
	ErrInvalidNumericFormat = errors.New("invalid numeric format")
	ErrDivisionByZero       = errors.New("division by zero")
)

// FromInt converts a whole number of currency units.
func FromInt(v int64) Amount {
	return Amount(v * Scale)
}

// FromFloat converts a floating point number of currency units, rounding to
// the nearest representable amount.
func FromFloat(v float64) Amount {
	return Amount(math.Round(v * Scale))
}

// Parse reads a decimal string digit by digit, with no locale dependence.
// Both '.' and ',' are accepted as the decimal separator. Fractional digits
// past the eighth are ignored. Any other non-digit character fails with
// ErrInvalidNumericFormat.
func Parse(s string) (Amount, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidNumericFormat)
	}

	neg := false
	start := 0
	switch s[0] {
	case '-':
		neg = true
		start = 1
	case '+':
		start = 1
	}
	if start == len(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumericFormat, s)
	}

	var intPart, fracPart int64
	inFrac := false
	fracMul := int64(Scale / 10)
	for i := start; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == ',' {
			if inFrac {
				return 0, fmt.Errorf("%w: %q", ErrInvalidNumericFormat, s)
			}
			inFrac = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumericFormat, s)
		}
		d := int64(c - '0')
		if !inFrac {
			intPart = intPart*10 + d
			continue
		}
		if fracMul == 0 {
			continue
		}
		fracPart += d * fracMul
		fracMul /= 10
	}

	v := intPart*Scale + fracPart
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// ParseValue converts a decoded JSON value into an Amount. Strings are parsed
// with Parse, numbers are scaled, nil becomes zero. Anything else fails with
// ErrInvalidNumericFormat.
func ParseValue(v interface{}) (Amount, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return Parse(val)
	case float64:
		return FromFloat(val), nil
	case int:
		return FromInt(int64(val)), nil
	case int64:
		return FromInt(val), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidNumericFormat, v)
	}
}

// String formats the amount with exactly eight fractional digits, left-padded
// with zeros. Trailing zeros are kept so that Parse(a.String()) == a.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%08d", sign, v/Scale, v%Scale)
}

// Float converts the amount to a float64 number of currency units.
func (a Amount) Float() float64 {
	return float64(a) / Scale
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// Mul multiplies two amounts through a float64 intermediate and rounds to the
// nearest representable amount. Precision can be lost in the eighth digit for
// very large operands.
func Mul(a, b Amount) Amount {
	return Amount(math.Round(float64(a) * float64(b) / Scale))
}

// Div divides a by b through a float64 intermediate and rounds to the nearest
// representable amount. A zero divisor fails with ErrDivisionByZero.
func Div(a, b Amount) (Amount, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return Amount(math.Round(float64(a) * Scale / float64(b))), nil
}
