// Package session orchestrates one swap widget: the intent, trade resolution,
// approval, permit signing and execution, exposed as a read-only View plus callbacks.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/execution"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/permit"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// BalanceReader reads account balances
type BalanceReader interface {
	Balance(ctx context.Context, owner common.Address, c currency.Currency) (currency.Amount, error)
}

// Config holds the session options
type Config struct {
	SlippageBps uint32
	DeadlineTTL time.Duration
	GasReserve  decimal.Decimal
	Fee         *execution.FeeOptions
	Recipient   common.Address // zero sends output to the signer
	Disabled    bool
	Now         func() time.Time
}

// Deps are the collaborators of a session
type Deps struct {
	Owner     common.Address
	Resolver  *trade.Resolver
	Approvals *approval.Machine
	Permits   *permit.Flow // nil disables permits
	Executor  *execution.Executor
	Balances  BalanceReader
	History   history.Store
}

// ActiveTrade is the trade shown for confirmation. It never changes once set.
type ActiveTrade struct {
	ID        string
	Trade     *trade.Trade
	Permit    *permit.Signature
	CreatedAt time.Time
}

// Notice is a user-facing outcome of a failed request
type Notice struct {
	Op        string
	Code      string
	Message   string
	Retryable bool
}

func noticeFor(op string, err error) *Notice {
	n := &Notice{Op: op, Code: swaperr.CodeOf(err), Message: err.Error()}
	switch {
	case errors.Is(err, swaperr.ErrUserRejected):
		n.Message = "Request rejected in wallet"
	case errors.Is(err, swaperr.ErrSubmissionFailed):
		n.Retryable = true
	}
	return n
}

// Session is safe for concurrent use
type Session struct {
	cfg    Config
	deps   Deps
	ctx    context.Context
	logger *slog.Logger

	mu        sync.Mutex
	intent    *intent.State
	balances  map[string]currency.Amount
	permit    *permit.Signature
	active    *ActiveTrade
	executing bool // a swap is with the signer
	notice    *Notice
	lastSwap  common.Hash
	listeners []func(View)

	wg sync.WaitGroup
}

// New creates a session. ctx bounds background work started by the session.
func New(ctx context.Context, deps Deps, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DeadlineTTL <= 0 {
		cfg.DeadlineTTL = 30 * time.Minute
	}
	s := &Session{
		cfg:      cfg,
		deps:     deps,
		ctx:      ctx,
		logger:   logger.With("component", "SwapSession"),
		intent:   intent.New(),
		balances: make(map[string]currency.Amount),
	}
	deps.Resolver.SetUpdateHandler(s.onTrade)
	deps.Approvals.SetChangeHandler(s.onApprovalChange)
	if deps.History != nil {
		deps.History.Subscribe(s.onHistory)
	}
	return s
}

// OnChange registers fn to receive the view after every change
func (s *Session) OnChange(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetAmount types raw into field, making it the independent side
func (s *Session) SetAmount(field intent.Field, raw string) {
	s.mutate(func(st *intent.State) bool {
		st.SetAmount(field, raw)
		return true
	})
}

// SetCurrency selects c for field and refreshes balances
func (s *Session) SetCurrency(field intent.Field, c *currency.Currency) {
	s.mutate(func(st *intent.State) bool {
		st.SetCurrency(field, c)
		return true
	})
	s.refreshAsync()
}

// Switch flips input and output
func (s *Session) Switch() {
	s.mutate(func(st *intent.State) bool {
		st.Switch()
		return true
	})
}

// SetMax types the maximum spendable balance into field.
// Returns false when the balance is unknown or nothing is spendable.
func (s *Session) SetMax(field intent.Field) bool {
	return s.mutate(func(st *intent.State) bool {
		c := st.Snapshot().Currency(field)
		if c == nil {
			return false
		}
		bal, ok := s.balances[c.Key()]
		if !ok {
			return false
		}
		return st.SetMax(field, &bal, s.cfg.GasReserve)
	})
}

// mutate applies fn to the intent and, when it changed, re-resolves the trade
func (s *Session) mutate(fn func(*intent.State) bool) bool {
	s.mu.Lock()
	if !fn(s.intent) {
		s.mu.Unlock()
		return false
	}
	snap := s.intent.Snapshot()
	s.mu.Unlock()

	s.deps.Resolver.Resolve(s.ctx, snap)
	return true
}

// Requote re-resolves the current intent without changing it
func (s *Session) Requote() {
	s.mutate(func(*intent.State) bool { return true })
}

// RefreshBalances reads the balances of both selected currencies
func (s *Session) RefreshBalances(ctx context.Context) error {
	s.mu.Lock()
	in := s.intent.Snapshot()
	s.mu.Unlock()

	var (
		mu      sync.Mutex
		results = make(map[string]currency.Amount)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range in.Currencies {
		if c == nil {
			continue
		}
		c := *c
		g.Go(func() error {
			bal, err := s.deps.Balances.Balance(gctx, s.deps.Owner, c)
			if err != nil {
				return err
			}
			mu.Lock()
			results[c.Key()] = bal
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	for k, v := range results {
		s.balances[k] = v
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to refresh balances", "error", err)
	}
	s.emit()
	return err
}

func (s *Session) refreshAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.RefreshBalances(s.ctx)
	}()
}

// Wait blocks until background resolution and refreshes settle
func (s *Session) Wait() {
	s.deps.Resolver.Wait()
	s.wg.Wait()
}

// DismissNotice clears the current notice
func (s *Session) DismissNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.emit()
}

// onTrade runs after every trade state change
func (s *Session) onTrade(snap trade.Snapshot) {
	if snap.State == trade.StateValid && snap.Trade != nil {
		s.syncApproval(snap.Trade)

		s.mu.Lock()
		if s.permit != nil && !s.permit.ValidFor(snap.Trade) {
			s.logger.Debug("Discarding permit for previous trade")
			s.permit = nil
		}
		s.mu.Unlock()
	}
	s.emit()
}

// syncApproval resolves an UNKNOWN approval state for t from chain
func (s *Session) syncApproval(t *trade.Trade) {
	if t == nil {
		return
	}
	s.deps.Approvals.Sync(s.ctx, t.InputAmount.Currency, t.MaximumAmountIn(s.cfg.SlippageBps).Raw())
}

func (s *Session) onApprovalChange(common.Address) {
	snap := s.deps.Resolver.Snapshot()
	if snap.State == trade.StateValid {
		s.syncApproval(snap.Trade)
	}
	s.emit()
}

func (s *Session) onHistory(tx history.Transaction) {
	if tx.Type == history.TxSwap {
		s.refreshAsync()
	}
}

func (s *Session) emit() {
	s.mu.Lock()
	v := s.viewLocked()
	listeners := append([]func(View){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
