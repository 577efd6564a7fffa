package currency

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultGasReserve is the native amount kept back by MaxAmountSpend (0.01 native units)
var DefaultGasReserve = decimal.New(1, -2)

// Amount is a quantity of a currency in human units
type Amount struct {
	Currency Currency
	Value    decimal.Decimal
}

// NewAmount creates an amount from a decimal value
func NewAmount(c Currency, v decimal.Decimal) Amount {
	return Amount{Currency: c, Value: v}
}

// ParseAmount parses a user-typed decimal string
func ParseAmount(c Currency, raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if v.IsNegative() {
		return Amount{}, fmt.Errorf("negative amount %q", raw)
	}
	// Trailing zeros beyond the token precision are fine
	if shifted := v.Shift(c.Decimals); !shifted.Equal(shifted.Truncate(0)) {
		return Amount{}, fmt.Errorf("amount %q exceeds %d decimals of %s", raw, c.Decimals, c)
	}
	return Amount{Currency: c, Value: v}, nil
}

// FromRaw converts a base-unit integer (wei) into an Amount
func FromRaw(c Currency, raw *big.Int) Amount {
	if raw == nil {
		raw = new(big.Int)
	}
	return Amount{Currency: c, Value: decimal.NewFromBigInt(raw, -c.Decimals)}
}

// Raw returns the amount in base units, truncating sub-unit precision
func (a Amount) Raw() *big.Int {
	return a.Value.Shift(a.Currency.Decimals).Truncate(0).BigInt()
}

// IsPositive reports whether the amount is strictly greater than zero
func (a Amount) IsPositive() bool {
	return a.Value.IsPositive()
}

// Cmp compares two amounts of the same currency
func (a Amount) Cmp(o Amount) int {
	return a.Value.Cmp(o.Value)
}

// Equal reports whether both currency and value match
func (a Amount) Equal(o Amount) bool {
	return a.Currency.Equal(o.Currency) && a.Value.Equal(o.Value)
}

// Significant formats the amount with at most n significant digits
func (a Amount) Significant(n int) string {
	return Significant(a.Value, n)
}

func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency.String()
}

// Significant rounds d half-up to n significant digits
func Significant(d decimal.Decimal, n int) string {
	if d.IsZero() {
		return "0"
	}
	intDigits := d.NumDigits() + int(d.Exponent())
	return d.Round(int32(n - intDigits)).String()
}

// MaxAmountSpend returns the largest spendable amount of a balance.
// Native balances keep reserve back for gas. Returns nil when nothing is spendable.
func MaxAmountSpend(balance *Amount, reserve decimal.Decimal) *Amount {
	if balance == nil {
		return nil
	}
	v := balance.Value
	if balance.Currency.Native {
		v = v.Sub(reserve)
	}
	if !v.IsPositive() {
		return nil
	}
	out := Amount{Currency: balance.Currency, Value: v}
	return &out
}
