package intent

import (
	"github.com/shopspring/decimal"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

// Field identifies a side of the swap
type Field int

const (
	FieldInput Field = iota
	FieldOutput
)

// String returns the string representation of the field
func (f Field) String() string {
	switch f {
	case FieldInput:
		return "INPUT"
	case FieldOutput:
		return "OUTPUT"
	default:
		return "UNKNOWN"
	}
}

// Other returns the opposite field
func (f Field) Other() Field {
	if f == FieldInput {
		return FieldOutput
	}
	return FieldInput
}

// Intent is an immutable snapshot of what the user asked for.
// Only the independent field carries a typed amount; the other side is derived from the trade.
type Intent struct {
	IndependentField Field
	TypedAmount      string
	Currencies       [2]*currency.Currency
	Version          uint64
}

// Currency returns the currency selected for field, or nil
func (i Intent) Currency(field Field) *currency.Currency {
	return i.Currencies[field]
}

// Amount returns the typed amount of field. Only the independent field has one.
func (i Intent) Amount(field Field) (string, bool) {
	if field != i.IndependentField || i.TypedAmount == "" {
		return "", false
	}
	return i.TypedAmount, true
}

// IsIndependent reports whether field is the user-typed side
func (i Intent) IsIndependent(field Field) bool {
	return i.IndependentField == field
}

// ParsedAmount parses the typed amount in the independent field's currency.
// Returns nil when the currency is missing or the amount is empty, invalid or zero.
func (i Intent) ParsedAmount() *currency.Amount {
	c := i.Currencies[i.IndependentField]
	if c == nil || i.TypedAmount == "" {
		return nil
	}
	a, err := currency.ParseAmount(*c, i.TypedAmount)
	if err != nil || !a.IsPositive() {
		return nil
	}
	return &a
}

// Complete reports whether both currencies and a positive amount are present
func (i Intent) Complete() bool {
	return i.Currencies[FieldInput] != nil && i.Currencies[FieldOutput] != nil && i.ParsedAmount() != nil
}

// State holds the mutable swap intent. Every mutation bumps the version so that
// work keyed to an older snapshot can be recognized as stale.
// State is not safe for concurrent use; the owning session serializes access.
type State struct {
	cur Intent
}

// New creates an empty intent with INPUT independent
func New() *State {
	return &State{cur: Intent{IndependentField: FieldInput}}
}

// Snapshot returns the current intent
func (s *State) Snapshot() Intent {
	return s.cur
}

// Version returns the current version
func (s *State) Version() uint64 {
	return s.cur.Version
}

// SetAmount records a typed amount and marks field independent
func (s *State) SetAmount(field Field, raw string) {
	s.cur.IndependentField = field
	s.cur.TypedAmount = raw
	s.bump()
}

// SetCurrency selects a currency for field. Picking the currency already on the
// other side swaps the two sides instead. A nil currency clears the side.
func (s *State) SetCurrency(field Field, c *currency.Currency) {
	other := field.Other()
	if c != nil && s.cur.Currencies[other] != nil && s.cur.Currencies[other].Equal(*c) {
		s.swapSides()
		s.bump()
		return
	}
	if c != nil {
		cp := *c
		c = &cp
	}
	s.cur.Currencies[field] = c
	if s.cur.Currencies[FieldInput] == nil && s.cur.Currencies[FieldOutput] == nil {
		s.cur.TypedAmount = ""
	}
	s.bump()
}

// Switch flips the two sides. The typed amount follows its currency to the other side.
func (s *State) Switch() {
	s.swapSides()
	s.bump()
}

// SetMax types the maximum spendable amount of balance into field, keeping
// reserve back for gas on native balances. Returns false and leaves the intent
// untouched when nothing is spendable.
func (s *State) SetMax(field Field, balance *currency.Amount, reserve decimal.Decimal) bool {
	max := currency.MaxAmountSpend(balance, reserve)
	if max == nil {
		return false
	}
	s.SetAmount(field, max.Value.String())
	return true
}

// Reset clears amount and currencies
func (s *State) Reset() {
	s.cur = Intent{IndependentField: FieldInput, Version: s.cur.Version}
	s.bump()
}

func (s *State) swapSides() {
	s.cur.Currencies[FieldInput], s.cur.Currencies[FieldOutput] = s.cur.Currencies[FieldOutput], s.cur.Currencies[FieldInput]
	s.cur.IndependentField = s.cur.IndependentField.Other()
}

func (s *State) bump() {
	s.cur.Version++
}
