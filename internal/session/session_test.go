package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/action"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/execution"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/permit"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testOwner  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testRouter = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	weth       = currency.WrappedNativeTokens[1]

	tokenA = currency.NewToken(1, common.HexToAddress("0x00000000000000000000000000000000000000aa"), "TKA", 18)
	tokenB = currency.NewToken(1, common.HexToAddress("0x00000000000000000000000000000000000000bb"), "TKB", 6)
	tokenP = currency.NewToken(1, common.HexToAddress("0x00000000000000000000000000000000000000cc"), "TKP", 18).
		WithPermit(currency.PermitInfo{Kind: currency.PermitEIP2612, Name: "Permit Token"})
	tokenX = currency.NewToken(1, common.HexToAddress("0x00000000000000000000000000000000000000dd"), "TKX", 18)
	native = currency.NewNative(1, "ETH", 18)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func units(n int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

// recordingConfirm accepts unless reject is set and keeps every prompt.
// When hold is set, prompts block until it is closed.
type recordingConfirm struct {
	reject  atomic.Bool
	hold    chan struct{}
	mu      sync.Mutex
	prompts []signer.Prompt
}

func (c *recordingConfirm) confirm(_ context.Context, p signer.Prompt) bool {
	c.mu.Lock()
	c.prompts = append(c.prompts, p)
	hold := c.hold
	c.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return !c.reject.Load()
}

func (c *recordingConfirm) holdPrompts() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = make(chan struct{})
	return c.hold
}

func (c *recordingConfirm) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func (c *recordingConfirm) last() signer.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[len(c.prompts)-1]
}

type failingNonces struct{}

func (failingNonces) PermitNonce(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, errors.New("nonces() reverted")
}

type harness struct {
	sim     *chain.Simulated
	store   *history.MemoryStore
	tracker *history.Tracker
	engine  *trade.MockEngine
	confirm *recordingConfirm
	session *Session
}

type option func(*Deps, *Config)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim := chain.NewSimulated(1)
	confirm := &recordingConfirm{}
	s, err := signer.NewSignerFromHex(testPrivateKey, 1, sim, confirm.confirm, testLogger())
	require.NoError(t, err)
	store, err := history.NewMemoryStore("")
	require.NoError(t, err)
	reader := chain.NewEthReader(sim)

	engine := trade.NewMockEngine()
	engine.AddPool(trade.Pool{Token0: tokenA.Address, Token1: tokenB.Address, Reserve0: units(1000, 18), Reserve1: units(2000, 6), Fee: 3000})
	engine.AddPool(trade.Pool{Token0: tokenP.Address, Token1: tokenB.Address, Reserve0: units(1000, 18), Reserve1: units(2000, 6), Fee: 3000})
	engine.AddPool(trade.Pool{Token0: weth, Token1: tokenB.Address, Reserve0: units(1000, 18), Reserve1: units(3_000_000, 6), Fee: 500})

	deps := Deps{
		Owner:     s.Address(),
		Resolver:  trade.NewResolver(engine, testLogger()),
		Approvals: approval.NewMachine(reader, s, store, testRouter, currency.ApprovalExact, testLogger()),
		Permits:   permit.NewFlow(reader, s, testRouter, testLogger()),
		Executor:  execution.NewExecutor(testRouter, s, store, testLogger()),
		Balances:  reader,
		History:   store,
	}
	cfg := Config{
		SlippageBps: 50,
		DeadlineTTL: 30 * time.Minute,
		GasReserve:  currency.DefaultGasReserve,
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	h := &harness{
		sim:     sim,
		store:   store,
		tracker: history.NewTracker(store, reader, 0, testLogger()),
		engine:  engine,
		confirm: confirm,
	}
	h.session = New(ctx, deps, cfg, testLogger())
	return h
}

// pair selects in -> out, types amount into field and waits for the trade
func (h *harness) pair(in, out currency.Currency, field intent.Field, amount string) View {
	h.session.SetCurrency(intent.FieldInput, &in)
	h.session.SetCurrency(intent.FieldOutput, &out)
	h.session.Wait()
	h.session.SetAmount(field, amount)
	h.session.Wait()
	return h.session.View()
}

func (h *harness) confirmAll(t *testing.T) {
	t.Helper()
	h.sim.Mine()
	h.tracker.Poll(context.Background())
	h.session.Wait()
}

func TestSession_ApproveThenSwap(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenA.Address, testOwner, units(100, 18))
	ctx := context.Background()

	v := h.pair(tokenA, tokenB, intent.FieldInput, "5")
	require.Equal(t, trade.StateValid, v.TradeState)
	assert.Equal(t, "5", v.Amounts[intent.FieldInput])
	assert.NotEmpty(t, v.Amounts[intent.FieldOutput])
	assert.Equal(t, [2]bool{false, false}, v.IsLoading)
	assert.Equal(t, approval.StateNotApproved, v.Approval)
	assert.Equal(t, action.KindApprove, v.Action.Kind)

	handle, err := h.session.RequestApproval(ctx)
	require.NoError(t, err)
	require.NotNil(t, handle)

	v = h.session.View()
	assert.Equal(t, approval.StatePending, v.Approval)
	assert.Equal(t, action.KindApprovePending, v.Action.Kind)
	require.NotNil(t, v.ApprovalHash)
	assert.Equal(t, handle.Hash, *v.ApprovalHash)

	again, err := h.session.RequestApproval(ctx)
	require.NoError(t, err)
	assert.Equal(t, handle.Hash, again.Hash)
	assert.Len(t, h.store.List(), 1)

	h.confirmAll(t)
	v = h.session.View()
	assert.Equal(t, approval.StateApproved, v.Approval)
	assert.Equal(t, action.KindSwap, v.Action.Kind, "no further user action needed")

	active, err := h.session.Review()
	require.NoError(t, err)
	assert.NotEmpty(t, active.ID)

	tx, err := h.session.ConfirmAndExecute(ctx)
	require.NoError(t, err)
	assert.Equal(t, history.TxSwap, tx.Type)
	assert.Equal(t, "EXACT_INPUT", tx.TradeType)
	assert.Equal(t, "5", tx.InputAmount)
	assert.Equal(t, "TKA", tx.InputSymbol)

	v = h.session.View()
	assert.Nil(t, v.ActiveTrade)
	require.NotNil(t, v.LastSwapHash)
	assert.Equal(t, tx.Hash, *v.LastSwapHash)
	assert.Len(t, h.store.Pending(), 1)
}

func approvedHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := newHarness(t, opts...)
	h.sim.SetTokenBalance(tokenA.Address, testOwner, units(100, 18))
	h.sim.SetAllowance(tokenA.Address, testOwner, testRouter, chain.MaxUint256)
	return h
}

func TestSession_ExecuteRejectedKeepsActiveTrade(t *testing.T) {
	h := approvedHarness(t)
	v := h.pair(tokenA, tokenB, intent.FieldInput, "5")
	require.Equal(t, action.KindSwap, v.Action.Kind)

	active, err := h.session.Review()
	require.NoError(t, err)

	h.confirm.reject.Store(true)
	_, err = h.session.ConfirmAndExecute(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrUserRejected)

	v = h.session.View()
	require.NotNil(t, v.ActiveTrade)
	assert.Equal(t, active.ID, v.ActiveTrade.ID)
	require.NotNil(t, v.Notice)
	assert.Equal(t, swaperr.CodeUserRejected, v.Notice.Code)
	assert.False(t, v.Notice.Retryable)
	assert.Empty(t, h.store.List())

	h.session.DismissNotice()
	assert.Nil(t, h.session.View().Notice)
}

func TestSession_SubmissionFailedIsRetryable(t *testing.T) {
	h := approvedHarness(t)
	h.pair(tokenA, tokenB, intent.FieldInput, "5")
	_, err := h.session.Review()
	require.NoError(t, err)

	h.sim.FailNextSend(errors.New("connection refused"))
	_, err = h.session.ConfirmAndExecute(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrSubmissionFailed)

	v := h.session.View()
	require.NotNil(t, v.ActiveTrade)
	require.NotNil(t, v.Notice)
	assert.True(t, v.Notice.Retryable)

	// Retry from the same dialog
	_, err = h.session.ConfirmAndExecute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, h.session.View().ActiveTrade)
}

func TestSession_InsufficientBalance(t *testing.T) {
	h := approvedHarness(t)
	h.sim.SetTokenBalance(tokenA.Address, testOwner, units(1, 18))

	v := h.pair(tokenA, tokenB, intent.FieldInput, "5")
	assert.True(t, v.InputExceedsBalance)
	assert.Equal(t, action.KindDisabled, v.Action.Kind)
	assert.Equal(t, action.ReasonInsufficientBalance, v.Action.Reason)

	_, err := h.session.Review()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, swaperr.ErrInsufficientBalance)
}

func TestSession_ExactOutputShowsDerivedInput(t *testing.T) {
	h := approvedHarness(t)

	v := h.pair(tokenA, tokenB, intent.FieldOutput, "10")
	require.Equal(t, trade.StateValid, v.TradeState)
	assert.Equal(t, trade.ExactOutput, v.Trade.Type)
	assert.Equal(t, "10", v.Amounts[intent.FieldOutput])
	assert.Equal(t, v.Trade.InputAmount.Significant(6), v.Amounts[intent.FieldInput])
}

func TestSession_NoRouteDisablesWithoutNotice(t *testing.T) {
	h := approvedHarness(t)

	v := h.pair(tokenA, tokenX, intent.FieldInput, "5")
	assert.Equal(t, trade.StateInvalid, v.TradeState)
	assert.Equal(t, "", v.Amounts[intent.FieldOutput])
	assert.Equal(t, action.ReasonNoRoute, v.Action.Reason)
	assert.Nil(t, v.Notice)
}

func TestSession_LoadingFlags(t *testing.T) {
	h := approvedHarness(t)
	h.engine.Latency = 10 * time.Second

	h.session.SetCurrency(intent.FieldInput, &tokenA)
	h.session.SetCurrency(intent.FieldOutput, &tokenB)
	h.session.SetAmount(intent.FieldInput, "5")

	v := h.session.View()
	assert.Equal(t, trade.StateLoading, v.TradeState)
	assert.Equal(t, [2]bool{false, true}, v.IsLoading)
	assert.Equal(t, action.ReasonLoading, v.Action.Reason)

	// Clearing the amount supersedes the slow request
	h.session.SetAmount(intent.FieldInput, "")
	h.session.Wait()
	v = h.session.View()
	assert.Equal(t, trade.StateNoTrade, v.TradeState)
	assert.Equal(t, action.ReasonEnterAmount, v.Action.Reason)
}

func TestSession_ConcurrentConfirmSubmitsOnce(t *testing.T) {
	h := approvedHarness(t)
	h.pair(tokenA, tokenB, intent.FieldInput, "5")
	active, err := h.session.Review()
	require.NoError(t, err)

	release := h.confirm.holdPrompts()
	type result struct {
		tx  history.Transaction
		err error
	}
	first := make(chan result, 1)
	go func() {
		tx, err := h.session.ConfirmAndExecute(context.Background())
		first <- result{tx, err}
	}()
	require.Eventually(t, func() bool { return h.confirm.count() == 1 }, 2*time.Second, time.Millisecond)

	_, err = h.session.ConfirmAndExecute(context.Background())
	assert.ErrorIs(t, err, ErrSwapInFlight)
	v := h.session.View()
	require.NotNil(t, v.ActiveTrade)
	assert.Equal(t, active.ID, v.ActiveTrade.ID)

	close(release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, history.TxSwap, res.tx.Type)
	assert.Equal(t, 1, h.confirm.count(), "one wallet prompt")
	assert.Len(t, h.store.List(), 1, "one swap in history")

	// Settled: a new review can be submitted again
	_, err = h.session.Review()
	require.NoError(t, err)
	_, err = h.session.ConfirmAndExecute(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.store.List(), 2)
}

func TestSession_ExpiredPermitIsNotSubmitted(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	h := newHarness(t, func(_ *Deps, c *Config) {
		c.Now = func() time.Time { return time.Unix(0, now.Load()) }
	})
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))
	h.pair(tokenP, tokenB, intent.FieldInput, "5")

	_, err := h.session.RequestApproval(context.Background())
	require.NoError(t, err)
	active, err := h.session.Review()
	require.NoError(t, err)
	require.NotNil(t, active.Permit)

	now.Add(int64(time.Hour))
	prompts := h.confirm.count()
	_, err = h.session.ConfirmAndExecute(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, prompts, h.confirm.count(), "nothing sent to the wallet")
	assert.Empty(t, h.store.List())

	v := h.session.View()
	assert.Nil(t, v.ActiveTrade)
	assert.False(t, v.PermitSigned)
	assert.Equal(t, action.KindApprove, v.Action.Kind)
	assert.NotNil(t, v.Notice)
}

func TestSession_PendingApprovalSkipsPermit(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))
	pending, err := h.store.Add(history.Transaction{
		Hash:    common.HexToHash("0x01"),
		Type:    history.TxApproval,
		Token:   tokenP.Address,
		Spender: testRouter,
	})
	require.NoError(t, err)

	v := h.pair(tokenP, tokenB, intent.FieldInput, "5")
	require.Equal(t, approval.StatePending, v.Approval)
	require.Equal(t, action.KindApprovePending, v.Action.Kind)

	handle, err := h.session.RequestApproval(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, pending.Hash, handle.Hash)
	assert.Zero(t, h.confirm.count(), "no signature requested")
	assert.Len(t, h.store.List(), 1)
	assert.False(t, h.session.View().PermitSigned)
}

func TestSession_PermitReplacesApproval(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))
	ctx := context.Background()

	v := h.pair(tokenP, tokenB, intent.FieldInput, "5")
	require.Equal(t, action.KindApprove, v.Action.Kind)
	assert.True(t, v.Trade.Optimized)

	handle, err := h.session.RequestApproval(ctx)
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Empty(t, h.store.List(), "no approval transaction")

	v = h.session.View()
	assert.True(t, v.PermitSigned)
	assert.Equal(t, approval.StateNotApproved, v.Approval)
	assert.Equal(t, action.KindSwap, v.Action.Kind)

	active, err := h.session.Review()
	require.NoError(t, err)
	require.NotNil(t, active.Permit)

	_, err = h.session.ConfirmAndExecute(ctx)
	require.NoError(t, err)

	prompt := h.confirm.last()
	assert.Equal(t, signer.PromptTransaction, prompt.Kind)
	selfPermit := execution.Router.Methods["selfPermit"].ID
	assert.True(t, bytes.Contains(prompt.Data, selfPermit), "swap carries the permit")
}

func TestSession_PermitDiscardedWhenTradeChanges(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))

	h.pair(tokenP, tokenB, intent.FieldInput, "5")
	_, err := h.session.RequestApproval(context.Background())
	require.NoError(t, err)
	require.True(t, h.session.View().PermitSigned)

	h.session.SetAmount(intent.FieldInput, "6")
	h.session.Wait()

	v := h.session.View()
	assert.False(t, v.PermitSigned)
	assert.Equal(t, action.KindApprove, v.Action.Kind)
}

func TestSession_PermitRejectedDoesNotFallBack(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))
	h.pair(tokenP, tokenB, intent.FieldInput, "5")

	h.confirm.reject.Store(true)
	_, err := h.session.RequestApproval(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrUserRejected)
	assert.Empty(t, h.store.List())

	v := h.session.View()
	assert.Equal(t, approval.StateNotApproved, v.Approval)
	require.NotNil(t, v.Notice)
	assert.Equal(t, swaperr.CodeUserRejected, v.Notice.Code)
}

func TestSession_PermitFailureFallsBackToApproval(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Config) {
		s, err := signer.NewSignerFromHex(testPrivateKey, 1, chain.NewSimulated(1), signer.AutoConfirm, testLogger())
		require.NoError(t, err)
		d.Permits = permit.NewFlow(failingNonces{}, s, testRouter, testLogger())
	})
	h.sim.SetTokenBalance(tokenP.Address, testOwner, units(100, 18))
	h.pair(tokenP, tokenB, intent.FieldInput, "5")

	handle, err := h.session.RequestApproval(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, action.KindApprovePending, h.session.View().Action.Kind)
}

func TestSession_ApprovalRejectedReverts(t *testing.T) {
	h := newHarness(t)
	h.sim.SetTokenBalance(tokenA.Address, testOwner, units(100, 18))
	h.pair(tokenA, tokenB, intent.FieldInput, "5")

	h.confirm.reject.Store(true)
	_, err := h.session.RequestApproval(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrUserRejected)

	v := h.session.View()
	assert.Equal(t, approval.StateNotApproved, v.Approval)
	assert.Equal(t, action.KindApprove, v.Action.Kind)
	assert.Empty(t, h.store.List())
}

func TestSession_ActiveTradeIsImmutable(t *testing.T) {
	h := approvedHarness(t)
	h.pair(tokenA, tokenB, intent.FieldInput, "5")

	active, err := h.session.Review()
	require.NoError(t, err)
	key := active.Trade.Key()

	h.session.SetAmount(intent.FieldInput, "6")
	h.session.Wait()

	v := h.session.View()
	require.NotNil(t, v.ActiveTrade)
	assert.Equal(t, key, v.ActiveTrade.Trade.Key())
	assert.True(t, v.ActiveTradeStale)

	require.True(t, h.session.AcceptUpdatedTrade())
	v = h.session.View()
	assert.NotEqual(t, active.ID, v.ActiveTrade.ID)
	assert.False(t, v.ActiveTradeStale)
	assert.False(t, h.session.AcceptUpdatedTrade())

	h.session.Cancel()
	assert.Nil(t, h.session.View().ActiveTrade)
}

func TestSession_NativeInput(t *testing.T) {
	h := newHarness(t)
	h.sim.SetNativeBalance(testOwner, units(2, 18))

	v := h.pair(native, tokenB, intent.FieldInput, "1")
	require.Equal(t, trade.StateValid, v.TradeState)
	assert.Equal(t, approval.StateApproved, v.Approval)
	assert.Equal(t, action.KindSwap, v.Action.Kind)

	require.True(t, h.session.SetMax(intent.FieldInput))
	h.session.Wait()
	assert.Equal(t, "1.99", h.session.View().Amounts[intent.FieldInput])

	_, err := h.session.Review()
	require.NoError(t, err)
	_, err = h.session.ConfirmAndExecute(context.Background())
	require.NoError(t, err)

	prompt := h.confirm.last()
	assert.Equal(t, 0, prompt.Value.Cmp(units(199, 16)), "native input is sent as value")
}

func TestSession_SetMaxWithoutBalance(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.session.SetMax(intent.FieldInput))
}

func TestSession_SameCurrencySwapsSides(t *testing.T) {
	h := newHarness(t)
	h.session.SetCurrency(intent.FieldInput, &tokenA)
	h.session.SetCurrency(intent.FieldOutput, &tokenB)
	h.session.SetCurrency(intent.FieldOutput, &tokenA)
	h.session.Wait()

	v := h.session.View()
	require.NotNil(t, v.Currencies[intent.FieldInput])
	assert.True(t, v.Currencies[intent.FieldInput].Equal(tokenB))
	assert.True(t, v.Currencies[intent.FieldOutput].Equal(tokenA))
}

func TestSession_RequoteUsesFreshReserves(t *testing.T) {
	h := newHarness(t)
	v := h.pair(tokenA, tokenB, intent.FieldInput, "10")
	require.NotNil(t, v.Trade)
	before := v.Trade.OutputAmount.Significant(6)

	h.engine.AddPool(trade.Pool{Token0: tokenA.Address, Token1: tokenB.Address, Reserve0: units(1000, 18), Reserve1: units(4000, 6), Fee: 3000})
	h.session.Requote()
	h.session.Wait()

	v = h.session.View()
	require.NotNil(t, v.Trade)
	assert.Equal(t, trade.StateValid, v.TradeState)
	assert.NotEqual(t, before, v.Trade.OutputAmount.Significant(6))
	assert.Equal(t, "10", v.Amounts[intent.FieldInput])
}

func TestSession_OnChange(t *testing.T) {
	h := approvedHarness(t)
	var mu sync.Mutex
	var views []View
	h.session.OnChange(func(v View) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})

	h.pair(tokenA, tokenB, intent.FieldInput, "5")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.Equal(t, trade.StateValid, views[len(views)-1].TradeState)
}

func TestSession_DisabledWidget(t *testing.T) {
	h := approvedHarness(t, func(_ *Deps, c *Config) { c.Disabled = true })
	v := h.pair(tokenA, tokenB, intent.FieldInput, "5")
	assert.Equal(t, action.ReasonDisabled, v.Action.Reason)
}

func TestSession_BalancesRefreshAfterSwap(t *testing.T) {
	h := approvedHarness(t)
	v := h.pair(tokenA, tokenB, intent.FieldInput, "5")
	require.NotNil(t, v.Balances[intent.FieldInput])
	assert.True(t, v.Balances[intent.FieldInput].Value.Equal(decimal.NewFromInt(100)))

	_, err := h.session.Review()
	require.NoError(t, err)
	_, err = h.session.ConfirmAndExecute(context.Background())
	require.NoError(t, err)

	// The simulated chain does not move balances; the refresh itself is what is observed
	h.sim.SetTokenBalance(tokenA.Address, testOwner, units(95, 18))
	h.confirmAll(t)
	assert.True(t, h.session.View().Balances[intent.FieldInput].Value.Equal(decimal.NewFromInt(95)))
}
