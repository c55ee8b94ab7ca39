package token

import (
	"fmt"
	"math/big"
)

// Amount is an indivisible minor-unit token value. It is wide enough for
// 128-bit chain denominations and is never negative: subtraction saturates
// at zero, so callers must guard balances before debiting.
type Amount struct {
	i *big.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{i: new(big.Int)}
}

// FromUint64 builds an Amount from a native integer.
func FromUint64(v uint64) Amount {
	return Amount{i: new(big.Int).SetUint64(v)}
}

// Parse reads a base-10 amount string.
func Parse(s string) (Amount, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok || i.Sign() < 0 {
		return Amount{}, fmt.Errorf("token: invalid amount %q", s)
	}
	return Amount{i: i}, nil
}

func (a Amount) value() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.value(), b.value())}
}

// Sub returns a-b, saturating at zero.
func (a Amount) Sub(b Amount) Amount {
	r := new(big.Int).Sub(a.value(), b.value())
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return Amount{i: r}
}

// MulDiv returns a*num/den using integer division. den must be non-zero.
func (a Amount) MulDiv(num, den uint64) Amount {
	r := new(big.Int).Mul(a.value(), new(big.Int).SetUint64(num))
	r.Quo(r, new(big.Int).SetUint64(den))
	return Amount{i: r}
}

// Cmp returns -1, 0 or +1 comparing a against b.
func (a Amount) Cmp(b Amount) int {
	return a.value().Cmp(b.value())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.value().Sign() == 0
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return Amount{i: new(big.Int).Set(a.value())}
	}
	return Amount{i: new(big.Int).Set(b.value())}
}

func (a Amount) String() string {
	return a.value().String()
}

// MarshalJSON encodes the amount as a decimal string so 128-bit values
// survive JSON number precision limits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value().String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	a.i = parsed.i
	return nil
}
