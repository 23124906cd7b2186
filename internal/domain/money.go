package domain

import "fmt"

// Money is a monetary amount in integer micro-units of its currency
// (1 USD = 1_000_000 micros). Provider fees are fractions of a cent, so
// floats are never used for arithmetic.
type Money struct {
	Micros   int64
	Currency string
}

// USD builds an amount in US dollar micro-units.
func USD(micros int64) Money {
	return Money{Micros: micros, Currency: "USD"}
}

// Add returns the sum of two amounts. An amount with an empty currency is
// treated as zero and adopts the other side's currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency == "" {
		return other, nil
	}
	if other.Currency == "" {
		return m, nil
	}
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Micros: m.Micros + other.Micros, Currency: m.Currency}, nil
}

// IsZero reports whether the amount is unset or zero.
func (m Money) IsZero() bool {
	return m.Micros == 0
}

// Float64 renders the amount in major units for API responses. Display only.
func (m Money) Float64() float64 {
	return float64(m.Micros) / 1e6
}

func (m Money) String() string {
	currency := m.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %.6f", currency, m.Float64())
}
