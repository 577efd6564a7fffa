package trade

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
)

// State is the lifecycle state of trade resolution
type State int

const (
	StateNoTrade State = iota
	StateLoading
	StateInvalid
	StateSyncing
	StateValid
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateNoTrade:
		return "NO_TRADE"
	case StateLoading:
		return "LOADING"
	case StateInvalid:
		return "INVALID"
	case StateSyncing:
		return "SYNCING"
	case StateValid:
		return "VALID"
	default:
		return "UNKNOWN"
	}
}

// Type is the trade direction
type Type int

const (
	ExactInput Type = iota
	ExactOutput
)

// String returns the string representation of the trade type
func (t Type) String() string {
	if t == ExactOutput {
		return "EXACT_OUTPUT"
	}
	return "EXACT_INPUT"
}

// TypeFor derives the trade direction from the independent field
func TypeFor(field intent.Field) Type {
	if field == intent.FieldOutput {
		return ExactOutput
	}
	return ExactInput
}

// Route is a path of pools from input token to output token
type Route struct {
	Tokens []common.Address // len(Fees)+1 tokens, input first
	Fees   []uint32         // pool fee per hop in hundredths of a bip (3000 = 0.3%)
}

// Key returns the route identity
func (r Route) Key() string {
	var b strings.Builder
	for i, t := range r.Tokens {
		if i > 0 {
			fmt.Fprintf(&b, ">%d>", r.Fees[i-1])
		}
		b.WriteString(strings.ToLower(t.Hex()))
	}
	return b.String()
}

// Hops returns the number of pools in the route
func (r Route) Hops() int {
	return len(r.Fees)
}

// Trade is a priced, routed conversion from input to output currency
type Trade struct {
	Type         Type
	InputAmount  currency.Amount
	OutputAmount currency.Amount
	PriceImpact  decimal.Decimal // percent
	Route        Route
	GasEstimate  uint64

	// Optimized marks the variant that authorizes the input with a permit inside the swap
	Optimized bool
}

// Key identifies a trade by direction, route and amounts
func (t *Trade) Key() string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s:%s|%s:%s",
		t.Type,
		t.Route.Key(),
		t.InputAmount.Currency.Key(), t.InputAmount.Raw(),
		t.OutputAmount.Currency.Key(), t.OutputAmount.Raw())
}

// Same reports whether a and b are the same trade by value
func Same(a, b *Trade) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

const bpsDenominator = 10000

// MinimumAmountOut is the least output accepted under slippageBps
func (t *Trade) MinimumAmountOut(slippageBps uint32) currency.Amount {
	if t.Type == ExactOutput {
		return t.OutputAmount
	}
	raw := new(big.Int).Mul(t.OutputAmount.Raw(), big.NewInt(bpsDenominator))
	raw.Quo(raw, big.NewInt(int64(bpsDenominator+slippageBps)))
	return currency.FromRaw(t.OutputAmount.Currency, raw)
}

// MaximumAmountIn is the most input spent under slippageBps
func (t *Trade) MaximumAmountIn(slippageBps uint32) currency.Amount {
	if t.Type == ExactInput {
		return t.InputAmount
	}
	raw := new(big.Int).Mul(t.InputAmount.Raw(), big.NewInt(int64(bpsDenominator+slippageBps)))
	raw.Quo(raw, big.NewInt(bpsDenominator))
	return currency.FromRaw(t.InputAmount.Currency, raw)
}

// Request describes what the engine should price
type Request struct {
	Input  currency.Currency
	Output currency.Currency
	Amount currency.Amount // in Input for ExactInput, in Output for ExactOutput
	Type   Type
}

// RequestFor builds an engine request from a complete intent
func RequestFor(in intent.Intent) (Request, bool) {
	if !in.Complete() {
		return Request{}, false
	}
	return Request{
		Input:  *in.Currency(intent.FieldInput),
		Output: *in.Currency(intent.FieldOutput),
		Amount: *in.ParsedAmount(),
		Type:   TypeFor(in.IndependentField),
	}, true
}

// Engine prices trades. Implementations return a swaperr NoRoute error when
// nothing can be routed and must honor ctx cancellation.
type Engine interface {
	GetTrade(ctx context.Context, req Request) (*Trade, error)
}

// Optimizer is implemented by engines that can produce a variant of a trade
// whose input authorization is carried by a permit instead of a separate approval
type Optimizer interface {
	OptimizeTrade(ctx context.Context, base *Trade) (*Trade, error)
}
