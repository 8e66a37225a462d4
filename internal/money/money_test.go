package money_test

import (
	"testing"

	"github.com/marcus-qen/turnengine/internal/money"
)

func TestAdditionIsExact(t *testing.T) {
	// 0.1 + 0.2 famously != 0.3 in binary floats; in micros it is exact.
	a := money.FromDollars(0.1)
	b := money.FromDollars(0.2)
	if got := a.Add(b); got != money.Micros(300_000) {
		t.Fatalf("0.1 + 0.2 = %d micros, want 300000", got)
	}
}

func TestSum(t *testing.T) {
	amounts := []money.Micros{1, 2, 3, 4}
	if got := money.Sum(amounts); got != 10 {
		t.Fatalf("Sum = %d, want 10", got)
	}
	if got := money.Sum(nil); got != 0 {
		t.Fatalf("Sum(nil) = %d, want 0", got)
	}
}

func TestMulTokens(t *testing.T) {
	// $0.000002/token * 1500 tokens = $0.003.
	if got := money.MulTokens(2, 1500); got != 3_000 {
		t.Fatalf("MulTokens = %d, want 3000", got)
	}
}

func TestDollarsRoundTrip(t *testing.T) {
	m := money.Micros(1_234_567)
	if got := m.Dollars(); got < 1.234566 || got > 1.234568 {
		t.Fatalf("Dollars = %v", got)
	}
	if m.String() != "$1.234567" {
		t.Fatalf("String = %q", m.String())
	}
}

func TestIsZero(t *testing.T) {
	if !money.Micros(0).IsZero() {
		t.Fatal("zero must report IsZero")
	}
	if money.Micros(1).IsZero() {
		t.Fatal("non-zero must not report IsZero")
	}
}
