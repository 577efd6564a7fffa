package trade

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
)

const (
	feeDenominator = 1_000_000
	gasPerHop      = 100_000
	gasBase        = 60_000
	gasPermit      = 45_000
)

// Pool is a constant-product pool between two tokens
type Pool struct {
	Token0, Token1     common.Address
	Reserve0, Reserve1 *big.Int // base units
	Fee                uint32   // hundredths of a bip
}

// MockEngine is a mock trade engine over in-memory constant-product pools.
// For demonstration and testing only; production deployments use a real router.
type MockEngine struct {
	// Latency delays every response, honoring ctx cancellation
	Latency time.Duration

	mu    sync.RWMutex
	pools map[string]*Pool // key: "tokenA:tokenB" (lowercase, ordered)
}

// NewMockEngine creates an empty mock engine
func NewMockEngine() *MockEngine {
	return &MockEngine{pools: make(map[string]*Pool)}
}

// AddPool registers a pool
func (e *MockEngine) AddPool(p Pool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := p
	e.pools[poolKey(p.Token0, p.Token1)] = &cp
}

func poolKey(a, b common.Address) string {
	x, y := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

// reserves returns the reserves of the pool between in and out, oriented in->out
func (e *MockEngine) reserves(in, out common.Address) (rIn, rOut *big.Int, fee uint32, ok bool) {
	p, found := e.pools[poolKey(in, out)]
	if !found {
		return nil, nil, 0, false
	}
	if p.Token0 == in {
		return p.Reserve0, p.Reserve1, p.Fee, true
	}
	return p.Reserve1, p.Reserve0, p.Fee, true
}

// candidateRoutes returns the direct route and every two-hop route via a shared token
func (e *MockEngine) candidateRoutes(in, out common.Address) []Route {
	var routes []Route
	if _, _, fee, ok := e.reserves(in, out); ok {
		routes = append(routes, Route{Tokens: []common.Address{in, out}, Fees: []uint32{fee}})
	}
	keys := make([]string, 0, len(e.pools))
	for k := range e.pools {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[common.Address]bool)
	for _, k := range keys {
		p := e.pools[k]
		for _, mid := range []common.Address{p.Token0, p.Token1} {
			if mid == in || mid == out || seen[mid] {
				continue
			}
			seen[mid] = true
			_, _, fee1, ok1 := e.reserves(in, mid)
			_, _, fee2, ok2 := e.reserves(mid, out)
			if ok1 && ok2 {
				routes = append(routes, Route{Tokens: []common.Address{in, mid, out}, Fees: []uint32{fee1, fee2}})
			}
		}
	}
	return routes
}

// GetTrade prices req along the best candidate route
func (e *MockEngine) GetTrade(ctx context.Context, req Request) (*Trade, error) {
	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	tokenIn, tokenOut := req.Input.TokenAddress(), req.Output.TokenAddress()
	if tokenIn == tokenOut {
		return nil, swaperr.NoRoute("mock engine", fmt.Errorf("%s and %s share a token", req.Input, req.Output))
	}
	amount := req.Amount.Raw()
	if amount.Sign() <= 0 {
		return nil, swaperr.NoRoute("mock engine", fmt.Errorf("amount must be positive"))
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *Trade
	var bestIn, bestOut *big.Int
	for _, route := range e.candidateRoutes(tokenIn, tokenOut) {
		var in, out *big.Int
		var ok bool
		if req.Type == ExactInput {
			in = amount
			out, ok = e.quoteExactIn(route, amount)
		} else {
			out = amount
			in, ok = e.quoteExactOut(route, amount)
		}
		if !ok {
			continue
		}
		better := best == nil ||
			(req.Type == ExactInput && out.Cmp(bestOut) > 0) ||
			(req.Type == ExactOutput && in.Cmp(bestIn) < 0)
		if !better {
			continue
		}
		bestIn, bestOut = in, out
		best = &Trade{
			Type:         req.Type,
			InputAmount:  currency.FromRaw(req.Input, in),
			OutputAmount: currency.FromRaw(req.Output, out),
			PriceImpact:  e.priceImpact(route, in, out),
			Route:        route,
			GasEstimate:  uint64(gasBase + gasPerHop*route.Hops()),
		}
	}
	if best == nil {
		return nil, swaperr.NoRoute("mock engine",
			fmt.Errorf("no liquidity for %s -> %s", req.Input, req.Output))
	}
	return best, nil
}

// OptimizeTrade returns the permit-authorized variant of base: the same route
// and amounts with the permit call folded into the swap's gas cost
func (e *MockEngine) OptimizeTrade(ctx context.Context, base *Trade) (*Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if base.Optimized {
		return base, nil
	}
	optimized := *base
	optimized.Optimized = true
	optimized.GasEstimate = base.GasEstimate + gasPermit
	return &optimized, nil
}

func (e *MockEngine) quoteExactIn(route Route, amountIn *big.Int) (*big.Int, bool) {
	amount := new(big.Int).Set(amountIn)
	for i := 0; i < route.Hops(); i++ {
		rIn, rOut, fee, ok := e.reserves(route.Tokens[i], route.Tokens[i+1])
		if !ok {
			return nil, false
		}
		// out = in*(1-fee)*rOut / (rIn + in*(1-fee))
		inWithFee := new(big.Int).Mul(amount, big.NewInt(int64(feeDenominator-fee)))
		num := new(big.Int).Mul(inWithFee, rOut)
		den := new(big.Int).Add(new(big.Int).Mul(rIn, big.NewInt(feeDenominator)), inWithFee)
		amount = num.Quo(num, den)
		if amount.Sign() <= 0 {
			return nil, false
		}
	}
	return amount, true
}

func (e *MockEngine) quoteExactOut(route Route, amountOut *big.Int) (*big.Int, bool) {
	amount := new(big.Int).Set(amountOut)
	for i := route.Hops(); i > 0; i-- {
		rIn, rOut, fee, ok := e.reserves(route.Tokens[i-1], route.Tokens[i])
		if !ok || amount.Cmp(rOut) >= 0 {
			return nil, false
		}
		// in = rIn*out / ((rOut-out)*(1-fee)) + 1
		num := new(big.Int).Mul(new(big.Int).Mul(rIn, amount), big.NewInt(feeDenominator))
		den := new(big.Int).Mul(new(big.Int).Sub(rOut, amount), big.NewInt(int64(feeDenominator-fee)))
		amount = num.Quo(num, den)
		amount.Add(amount, big.NewInt(1))
	}
	return amount, true
}

// priceImpact compares the executed output with the output at mid price, in percent
func (e *MockEngine) priceImpact(route Route, in, out *big.Int) decimal.Decimal {
	mid := decimal.NewFromBigInt(in, 0)
	for i := 0; i < route.Hops(); i++ {
		rIn, rOut, fee, _ := e.reserves(route.Tokens[i], route.Tokens[i+1])
		price := decimal.NewFromBigInt(rOut, 0).Div(decimal.NewFromBigInt(rIn, 0))
		feeFactor := decimal.NewFromInt(int64(feeDenominator - fee)).Div(decimal.NewFromInt(feeDenominator))
		mid = mid.Mul(price).Mul(feeFactor)
	}
	if !mid.IsPositive() {
		return decimal.Zero
	}
	impact := mid.Sub(decimal.NewFromBigInt(out, 0)).Div(mid).Mul(decimal.NewFromInt(100))
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact.Round(2)
}
