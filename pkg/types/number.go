package types

import (
	"math/big"
	"strconv"
	"strings"
)

// Number is the decimal-precise textual form of a DynamoDB number attribute.
// Values decoded from the wire keep their exact textual representation,
// including trailing zeros, so round-trips are lossless.
type Number string

// String returns the textual form of the number.
func (n Number) String() string {
	return string(n)
}

// Int64 parses the number as a 64-bit integer.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 parses the number as a float, potentially losing precision.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Rat returns the exact rational value of the number. The second return
// value reports whether the textual form was parseable.
func (n Number) Rat() (*big.Rat, bool) {
	r, ok := new(big.Rat).SetString(string(n))
	return r, ok
}

// canonicalInteger normalizes an integer string the way an arbitrary-precision
// integer parse would: leading zeros dropped, "-0" collapsed to "0".
func canonicalInteger(s string) string {
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0"
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// isInteger reports whether s is a bare (optionally negative) run of digits.
func isInteger(s string) bool {
	body := strings.TrimPrefix(s, "-")
	if body == "" {
		return false
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// canonicalDecimal validates s as a plain decimal literal and returns its
// canonical form. Plain forms keep their text (so "1.50" stays "1.50");
// a bare leading dot gains a zero and a trailing dot is dropped. Exponent
// forms are accepted when they parse, rendered without scientific notation.
func canonicalDecimal(s string) (string, bool) {
	if s == "" {
		return "", false
	}

	body := s
	sign := ""
	switch body[0] {
	case '+':
		body = body[1:]
	case '-':
		sign = "-"
		body = body[1:]
	}
	if body == "" {
		return "", false
	}

	if idx := strings.IndexAny(body, "eE"); idx >= 0 {
		// Exponent forms are rare in condition text; normalize through a
		// rational so the output has no scientific notation.
		r, ok := new(big.Rat).SetString(sign + body)
		if !ok {
			return "", false
		}
		return ratToDecimalString(r), true
	}

	intPart, fracPart, hasDot := strings.Cut(body, ".")
	if intPart == "" && fracPart == "" {
		return "", false
	}
	for _, part := range []string{intPart, fracPart} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", false
			}
		}
	}

	if !hasDot {
		return sign + intPart, true
	}
	if intPart == "" {
		intPart = "0"
	}
	if fracPart == "" {
		return sign + intPart, true
	}
	return sign + intPart + "." + fracPart, true
}

// ratToDecimalString renders an exact rational as a plain decimal string.
// Rationals produced from decimal literals always have a power-of-ten
// denominator, so the expansion terminates.
func ratToDecimalString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}

	prec := 0
	den := new(big.Int).Set(r.Denom())
	ten := big.NewInt(10)
	mod := new(big.Int)
	for den.Cmp(big.NewInt(1)) > 0 {
		den.QuoRem(den, ten, mod)
		if mod.Sign() != 0 {
			// Non-terminating expansion; fall back to a generous fixed precision.
			return strings.TrimRight(strings.TrimRight(r.FloatString(34), "0"), ".")
		}
		prec++
	}

	s := r.FloatString(prec)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
