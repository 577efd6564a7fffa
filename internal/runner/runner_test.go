package runner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/config"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/session"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
)

const testConfig = `
chain:
  chainId: 1
  mode: simulated
  faucet:
    ETH: "10"
    USDC: "10000"
    USDT: "10000"
router:
  address: "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"
tokens:
  - symbol: USDC
    address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    decimals: 6
    permit: {type: eip2612, name: USD Coin, version: "2"}
  - symbol: DAI
    address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"
    decimals: 18
  - symbol: USDT
    address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"
    decimals: 6
  - symbol: WBTC
    address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
    decimals: 8
engine:
  pools:
    - {token0: ETH, token1: USDC, reserve0: "1000", reserve1: "3000000", fee: 500}
    - {token0: USDC, token1: DAI, reserve0: "5000000", reserve1: "5000000", fee: 100}
    - {token0: USDT, token1: USDC, reserve0: "5000000", reserve1: "5000000", fee: 100}
history:
  pollInterval: 10ms
`

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	r, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), signer.AutoConfirm)
	require.NoError(t, err)
	return r
}

func runOrder(t *testing.T, r *Runner, order Order) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Run(ctx, order)
}

func swaps(r *Runner) []history.Transaction {
	var out []history.Transaction
	for _, tx := range r.store.List() {
		if tx.Type == history.TxSwap {
			out = append(out, tx)
		}
	}
	return out
}

func TestRunner_SwapWithApprovalTransaction(t *testing.T) {
	r := newTestRunner(t)
	require.NoError(t, runOrder(t, r, Order{In: "USDT", Out: "USDC", Amount: "100"}))

	list := r.store.List()
	require.Len(t, list, 2)
	for _, tx := range list {
		assert.Equal(t, history.StatusConfirmed, tx.Status, tx.Type)
	}
	require.Len(t, swaps(r), 1)
	assert.Equal(t, "100", swaps(r)[0].InputAmount)
}

func TestRunner_SwapWithPermit(t *testing.T) {
	r := newTestRunner(t)
	require.NoError(t, runOrder(t, r, Order{In: "USDC", Out: "DAI", Amount: "250"}))

	list := r.store.List()
	require.Len(t, list, 1, "permit replaces the approval transaction")
	assert.Equal(t, history.TxSwap, list[0].Type)
	assert.Equal(t, history.StatusConfirmed, list[0].Status)
}

func TestRunner_NativeMax(t *testing.T) {
	r := newTestRunner(t)
	require.NoError(t, runOrder(t, r, Order{In: "ETH", Out: "USDC", Max: true}))

	require.Len(t, swaps(r), 1)
	assert.Equal(t, "9.99", swaps(r)[0].InputAmount)
}

func TestRunner_ExactOut(t *testing.T) {
	r := newTestRunner(t)
	require.NoError(t, runOrder(t, r, Order{In: "ETH", Out: "USDC", Amount: "300", ExactOut: true}))

	require.Len(t, swaps(r), 1)
	assert.Equal(t, "300", swaps(r)[0].OutputAmount)
}

func TestRunner_NoRoute(t *testing.T) {
	r := newTestRunner(t)
	err := runOrder(t, r, Order{In: "WBTC", Out: "ETH", Amount: "1"})
	require.ErrorIs(t, err, session.ErrNotReady)
	assert.Empty(t, r.store.List())
}

func TestRunner_UnknownToken(t *testing.T) {
	r := newTestRunner(t)
	assert.Error(t, runOrder(t, r, Order{In: "XYZ", Out: "USDC", Amount: "1"}))
}

func TestRunner_EmptyOrderStopsOnCancel(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, Order{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestMockEngine_FromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	engine, err := MockEngine(cfg)
	require.NoError(t, err)
	assert.NotNil(t, engine)
}
