package execution

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
)

// Observer receives swap submission outcomes
type Observer interface {
	SwapSubmitted(outcome string)
}

// Executor submits swaps through the signer and records them in history
type Executor struct {
	router   common.Address
	signer   signer.Signer
	store    history.Store
	logger   *slog.Logger
	observer Observer
}

// NewExecutor creates an executor for router
func NewExecutor(router common.Address, s signer.Signer, store history.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		router: router,
		signer: s,
		store:  store,
		logger: logger.With("component", "Executor", "router", router.Hex()),
	}
}

// SetObserver sets the outcome observer
func (e *Executor) SetObserver(o Observer) {
	e.observer = o
}

// Execute submits p.Trade. A zero recipient sends the output to the signer.
// On success the returned transaction is already recorded as pending.
func (e *Executor) Execute(ctx context.Context, p SwapParams) (history.Transaction, error) {
	swaperr.Invariant(p.Trade != nil, "execute without a trade")
	swaperr.Invariant(p.Trade.InputAmount.IsPositive() && p.Trade.OutputAmount.IsPositive(),
		"execute with unresolved amounts: in=%s out=%s", p.Trade.InputAmount, p.Trade.OutputAmount)

	if p.Recipient == (common.Address{}) {
		p.Recipient = e.signer.Address()
	}

	call, err := BuildSwapCall(e.router, p)
	if err != nil {
		e.report("failed")
		return history.Transaction{}, swaperr.SubmissionFailed("swap", err)
	}

	hash, err := e.signer.SendTransaction(ctx, call)
	if err != nil {
		if errors.Is(err, signer.ErrUserRejected) {
			e.report("rejected")
			e.logger.Info("Swap rejected")
			return history.Transaction{}, swaperr.UserRejected("swap", err)
		}
		e.report("failed")
		e.logger.Error("Swap submission failed", "error", err)
		return history.Transaction{}, swaperr.SubmissionFailed("swap", err)
	}

	t := p.Trade
	tx, err := e.store.Add(history.Transaction{
		Hash:         hash,
		Type:         history.TxSwap,
		TradeType:    t.Type.String(),
		InputAmount:  t.InputAmount.Value.String(),
		InputSymbol:  t.InputAmount.Currency.Symbol,
		OutputAmount: t.OutputAmount.Value.String(),
		OutputSymbol: t.OutputAmount.Currency.Symbol,
	})
	if err != nil {
		// The swap is on its way regardless
		e.logger.Warn("Failed to record swap", "hash", hash.Hex(), "error", err)
		tx = history.Transaction{Hash: hash, Type: history.TxSwap, Status: history.StatusPending}
	}

	e.report("submitted")
	e.logger.Info("Swap submitted",
		"hash", hash.Hex(),
		"type", t.Type.String(),
		"in", t.InputAmount.String(),
		"out", t.OutputAmount.String(),
		"permit", p.Permit != nil)
	return tx, nil
}

func (e *Executor) report(outcome string) {
	if e.observer != nil {
		e.observer.SwapSubmitted(outcome)
	}
}
