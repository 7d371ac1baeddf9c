package money

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Scale is the number of minor units in one major unit.
const Scale = 100

var (
	// ErrInvalidAmount is returned for text that is not a decimal number.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrAmountOverflow is returned when a value does not fit into int64 minor units.
	ErrAmountOverflow = errors.New("money: amount out of range")

	scaleRat = big.NewRat(Scale, 1)
)

// Amount is an exact monetary value stored as a count of minor units.
type Amount int64

// FromMinor builds an Amount from minor units.
func FromMinor(minor int64) Amount {
	return Amount(minor)
}

// Parse converts decimal text into an Amount without going through float64.
// Exponent notation is accepted; digits beyond the second fraction digit round half away from zero.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || strings.Contains(s, "/") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	r.Mul(r, scaleRat)

	num, den := r.Num(), r.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	twiceRem := new(big.Int).Abs(rem)
	twiceRem.Lsh(twiceRem, 1)
	if twiceRem.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			quo.Sub(quo, big.NewInt(1))
		} else {
			quo.Add(quo, big.NewInt(1))
		}
	}
	if !quo.IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return Amount(quo.Int64()), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Minor returns the value in minor units.
func (a Amount) Minor() int64 {
	return int64(a)
}

// Add returns a+b. Callers accumulating untrusted amounts use CheckedAdd.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// CheckedAdd returns a+b, or ErrAmountOverflow when the sum does not fit into int64 minor units.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return a, ErrAmountOverflow
	}
	return sum, nil
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool {
	return a < 0
}

// Float64 is for metrics only; never accumulate with it.
func (a Amount) Float64() float64 {
	return float64(a) / Scale
}

// String renders the amount with exactly two fraction digits, e.g. "15.50".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + strconv.FormatInt(v/Scale, 10) + "." + fmt.Sprintf("%02d", v%Scale)
}

// MarshalJSON writes the amount as a JSON number literal.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	text := string(data)
	if len(data) >= 2 && data[0] == '"' {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, text)
		}
		text = unquoted
	}
	parsed, err := Parse(text)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
