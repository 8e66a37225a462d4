// Package money implements exact-decimal currency arithmetic for AI spend
// accounting. Binary floats are never used for cost accumulation: every
// amount is stored as an integer count of micro-dollars (1e-6 USD), which is
// enough precision for per-token LLM pricing while keeping addition and
// comparison exact.
package money

import "fmt"

// Micros is an exact amount of US dollars represented as millionths of a
// dollar. Zero value is zero cost.
type Micros int64

// FromDollars constructs a Micros amount from a float64 dollar figure. This
// is the one place binary-float imprecision can enter the system: callers
// should only use it to convert an already-rounded per-unit price (e.g. "$3
// per million tokens"), never to accumulate totals.
func FromDollars(dollars float64) Micros {
	return Micros(dollars * 1_000_000)
}

// Dollars downcasts to float64, e.g. for Prometheus gauge exposition where
// exactness is no longer required.
func (m Micros) Dollars() float64 {
	return float64(m) / 1_000_000
}

// Add returns the exact sum of two amounts.
func (m Micros) Add(other Micros) Micros {
	return m + other
}

// Sum adds a slice of amounts exactly.
func Sum(amounts []Micros) Micros {
	var total Micros
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MulTokens scales a per-token-unit price by a token count. rate is
// micro-dollars per single token.
func MulTokens(ratePerToken Micros, tokens int64) Micros {
	return Micros(int64(ratePerToken) * tokens)
}

func (m Micros) String() string {
	return fmt.Sprintf("$%.6f", m.Dollars())
}

// IsZero reports whether the amount is exactly zero.
func (m Micros) IsZero() bool {
	return m == 0
}
