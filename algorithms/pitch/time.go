package pitch

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
)

// Time is an exact rational position or length on a musical timeline.
// Symbolic sources use quarter-note beats, audio sources use seconds.
// The zero value is 0 and every operation returns a new Time.
type Time struct {
	r *big.Rat
}

// NewTime creates the time num/den. It panics if den is zero, like big.NewRat.
func NewTime(num, den int64) Time {
	return Time{r: big.NewRat(num, den)}
}

// Beats creates a whole-number time
func Beats(n int64) Time {
	return Time{r: big.NewRat(n, 1)}
}

// TimeFromFloat converts a float to the exact rational it represents.
// NaN and infinities are rejected.
func TimeFromFloat(f float64) (Time, error) {
	r := new(big.Rat)
	if r.SetFloat64(f) == nil {
		return Time{}, fmt.Errorf("%w: time %v is not finite", ErrInvalidInput, f)
	}
	return Time{r: r}, nil
}

// ParseTime parses "3/2", "1.5" or "2".
func ParseTime(s string) (Time, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalidInput, s)
	}
	return Time{r: r}, nil
}

func (t Time) rat() *big.Rat {
	if t.r == nil {
		return new(big.Rat)
	}
	return t.r
}

// Add returns t+u
func (t Time) Add(u Time) Time {
	return Time{r: new(big.Rat).Add(t.rat(), u.rat())}
}

// Sub returns t-u
func (t Time) Sub(u Time) Time {
	return Time{r: new(big.Rat).Sub(t.rat(), u.rat())}
}

// MulInt returns t*n
func (t Time) MulInt(n int64) Time {
	return Time{r: new(big.Rat).Mul(t.rat(), big.NewRat(n, 1))}
}

// Cmp compares t and u and returns -1, 0 or +1.
func (t Time) Cmp(u Time) int {
	return t.rat().Cmp(u.rat())
}

// Before reports whether t < u
func (t Time) Before(u Time) bool { return t.Cmp(u) < 0 }

// After reports whether t > u
func (t Time) After(u Time) bool { return t.Cmp(u) > 0 }

// Equal reports whether t == u
func (t Time) Equal(u Time) bool { return t.Cmp(u) == 0 }

// Sign returns -1, 0 or +1
func (t Time) Sign() int { return t.rat().Sign() }

// IsZero reports whether t == 0
func (t Time) IsZero() bool { return t.Sign() == 0 }

// Float64 returns the nearest float64 value
func (t Time) Float64() float64 {
	f, _ := t.rat().Float64()
	return f
}

// Quo returns how many times u fits into t, truncated toward zero.
// It panics if u is zero.
func (t Time) Quo(u Time) int64 {
	q := new(big.Rat).Quo(t.rat(), u.rat())
	return new(big.Int).Quo(q.Num(), q.Denom()).Int64()
}

func (t Time) String() string {
	return t.rat().RatString()
}

// MinTime returns the earlier of a and b
func MinTime(a, b Time) Time {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxTime returns the later of a and b
func MaxTime(a, b Time) Time {
	if a.After(b) {
		return a
	}
	return b
}

// MarshalJSON encodes the time exactly: a JSON number when it has a finite
// decimal form (2, 1.5, 0.125), otherwise a rational string such as "1/3".
func (t Time) MarshalJSON() ([]byte, error) {
	r := t.rat()
	if digits, ok := decimalDigits(r.Denom()); ok {
		return []byte(r.FloatString(digits)), nil
	}
	return []byte(strconv.Quote(r.RatString())), nil
}

// decimalDigits reports how many decimal places a fraction with this
// denominator needs, or false when its expansion does not terminate
func decimalDigits(denom *big.Int) (int, bool) {
	twos := int(denom.TrailingZeroBits())
	d := new(big.Int).Rsh(denom, uint(twos))

	five := big.NewInt(5)
	fives := 0
	q, m := new(big.Int), new(big.Int)
	for {
		q.QuoRem(d, five, m)
		if m.Sign() != 0 {
			break
		}
		d.Set(q)
		fives++
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}

// UnmarshalJSON accepts a JSON number or a rational string such as "1/3".
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		data = []byte(s)
	}
	parsed, err := ParseTime(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
