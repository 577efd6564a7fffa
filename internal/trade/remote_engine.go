package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/ws"
)

// TradeRequestPayload is sent to the remote engine
type TradeRequestPayload struct {
	ChainID   uint64 `json:"chainId"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Amount    string `json:"amount"` // base units
	TradeType string `json:"tradeType"`
}

// RoutePayload is the wire form of a Route
type RoutePayload struct {
	Tokens []string `json:"tokens"`
	Fees   []uint32 `json:"fees"`
}

// TradeResponsePayload is the remote engine's priced trade
type TradeResponsePayload struct {
	AmountIn    string       `json:"amountIn"`
	AmountOut   string       `json:"amountOut"`
	PriceImpact string       `json:"priceImpact"`
	Route       RoutePayload `json:"route"`
	GasEstimate uint64       `json:"gasEstimate"`
}

// TradeRejectPayload explains why no trade was produced
type TradeRejectPayload struct {
	Reason string `json:"reason"`
}

// RemoteEngine prices trades through a trade engine server over WebSocket.
// Calls go through a circuit breaker so a failing server is not hammered.
type RemoteEngine struct {
	client  ws.Client
	chainID uint64
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRemoteEngine creates a remote engine over client
func NewRemoteEngine(client ws.Client, chainID uint64, timeout time.Duration, logger *slog.Logger) *RemoteEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	e := &RemoteEngine{
		client:  client,
		chainID: chainID,
		timeout: timeout,
		logger:  logger.With("component", "RemoteEngine"),
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "trade-engine",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return e
}

// GetTrade sends a trade request and waits for its reply
func (e *RemoteEngine) GetTrade(ctx context.Context, req Request) (*Trade, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		reply, err := e.roundTrip(ctx, req)
		if err != nil && ctx.Err() != nil {
			// Abandoned by the caller, not a server failure
			return nil, nil
		}
		return reply, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("trade engine unavailable: %w", err)
		}
		return nil, err
	}
	reply, _ := result.(*ws.Message)
	if reply == nil {
		return nil, ctx.Err()
	}

	switch reply.Type {
	case ws.MessageTypeTradeReject:
		var reject TradeRejectPayload
		if err := reply.Decode(&reject); err != nil {
			e.logger.Debug("Failed to decode trade reject", "id", reply.ID, "error", err)
			reject.Reason = "unreadable reject reason"
		}
		return nil, swaperr.NoRoute("remote engine", errors.New(reject.Reason))
	case ws.MessageTypeTradeResponse:
	default:
		return nil, fmt.Errorf("unexpected %s reply to trade request", reply.Type)
	}

	var resp TradeResponsePayload
	if err := reply.Decode(&resp); err != nil {
		return nil, err
	}
	return e.toTrade(req, &resp)
}

// roundTrip sends one request. Rejections are successful round trips and do not trip the breaker.
func (e *RemoteEngine) roundTrip(ctx context.Context, req Request) (*ws.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.client.Request(ctx, ws.MessageTypeTradeRequest, &TradeRequestPayload{
		ChainID:   e.chainID,
		TokenIn:   req.Input.TokenAddress().Hex(),
		TokenOut:  req.Output.TokenAddress().Hex(),
		Amount:    req.Amount.Raw().String(),
		TradeType: req.Type.String(),
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("trade request timed out after %s: %w", e.timeout, err)
	}
	if err != nil {
		return nil, fmt.Errorf("trade request failed: %w", err)
	}
	return reply, nil
}

func (e *RemoteEngine) toTrade(req Request, resp *TradeResponsePayload) (*Trade, error) {
	in, ok := new(big.Int).SetString(resp.AmountIn, 10)
	if !ok || in.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amountIn %q", resp.AmountIn)
	}
	out, ok := new(big.Int).SetString(resp.AmountOut, 10)
	if !ok || out.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amountOut %q", resp.AmountOut)
	}
	if len(resp.Route.Tokens) != len(resp.Route.Fees)+1 || len(resp.Route.Fees) == 0 {
		return nil, fmt.Errorf("malformed route: %d tokens, %d fees", len(resp.Route.Tokens), len(resp.Route.Fees))
	}
	route := Route{Fees: resp.Route.Fees}
	for _, t := range resp.Route.Tokens {
		if !common.IsHexAddress(t) {
			return nil, fmt.Errorf("invalid route token %q", t)
		}
		route.Tokens = append(route.Tokens, common.HexToAddress(t))
	}
	if route.Tokens[0] != req.Input.TokenAddress() || route.Tokens[len(route.Tokens)-1] != req.Output.TokenAddress() {
		return nil, fmt.Errorf("route does not connect %s to %s", req.Input, req.Output)
	}
	impact := decimal.Zero
	if resp.PriceImpact != "" {
		v, err := decimal.NewFromString(resp.PriceImpact)
		if err != nil {
			return nil, fmt.Errorf("invalid priceImpact %q: %w", resp.PriceImpact, err)
		}
		impact = v
	}
	return &Trade{
		Type:         req.Type,
		InputAmount:  currency.FromRaw(req.Input, in),
		OutputAmount: currency.FromRaw(req.Output, out),
		PriceImpact:  impact,
		Route:        route,
		GasEstimate:  resp.GasEstimate,
	}, nil
}
