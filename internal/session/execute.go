package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/action"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/execution"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// ErrNoTrade is returned by callbacks that need a resolved trade
var ErrNoTrade = errors.New("no valid trade")

// ErrNotReady is returned when the action button does not allow the request
var ErrNotReady = errors.New("swap is not ready")

// ErrSwapInFlight is returned by ConfirmAndExecute while a previous submission has not settled
var ErrSwapInFlight = errors.New("swap submission already in flight")

// RequestApproval authorizes the input token of the live trade. A signed
// permit is tried first when the token supports one; any failure other than a
// user rejection falls back to an approval transaction. Returns the pending
// approval, or nil when a permit was signed or no approval is needed. While an
// approval is pending no permit is requested and the pending handle is returned.
func (s *Session) RequestApproval(ctx context.Context) (*approval.Handle, error) {
	s.mu.Lock()
	live := liveTrade(s.deps.Resolver.Snapshot())
	s.mu.Unlock()
	if live == nil {
		return nil, ErrNoTrade
	}

	token := live.InputAmount.Currency
	required := live.MaximumAmountIn(s.cfg.SlippageBps).Raw()
	state, _ := s.deps.Approvals.State(token, required)

	if state != approval.StatePending && s.deps.Permits != nil && token.SupportsPermit() {
		deadline := s.cfg.Now().Add(s.cfg.DeadlineTTL)
		sig, err := s.deps.Permits.Sign(ctx, live, s.cfg.SlippageBps, &deadline, state)
		switch {
		case err == nil && sig != nil:
			s.mu.Lock()
			// Keep the permit only if the trade it signs is still live
			if trade.Same(liveTrade(s.deps.Resolver.Snapshot()), live) {
				s.permit = sig
			}
			s.notice = nil
			s.mu.Unlock()
			s.emit()
			return nil, nil
		case errors.Is(err, swaperr.ErrUserRejected):
			s.fail("approve", err)
			return nil, err
		case err != nil:
			s.logger.Warn("Permit failed, falling back to approval transaction", "error", err)
		}
	}

	h, err := s.deps.Approvals.Request(ctx, token, required)
	if err != nil {
		s.fail("approve", err)
		return nil, err
	}

	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.emit()
	return h, nil
}

// Review freezes the live trade into the confirmation dialog
func (s *Session) Review() (*ActiveTrade, error) {
	s.mu.Lock()
	v := s.viewLocked()
	if v.Action.Kind != action.KindSwap {
		s.mu.Unlock()
		if v.Action.Reason == action.ReasonInsufficientBalance {
			return nil, swaperr.New(swaperr.CodeInsufficientBalance, "review", ErrNotReady)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotReady, v.Action.Reason)
	}
	live := liveTrade(s.deps.Resolver.Snapshot())
	s.active = s.newActiveLocked(live)
	a := *s.active
	s.mu.Unlock()

	s.emit()
	return &a, nil
}

func (s *Session) newActiveLocked(t *trade.Trade) *ActiveTrade {
	a := &ActiveTrade{
		ID:        uuid.New().String(),
		Trade:     t,
		CreatedAt: s.cfg.Now(),
	}
	if s.permitValidLocked(t) {
		a.Permit = s.permit
	}
	return a
}

// Cancel closes the confirmation dialog
func (s *Session) Cancel() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	s.emit()
}

// AcceptUpdatedTrade replaces a stale ActiveTrade with the live trade.
// Returns false when there is nothing to replace.
func (s *Session) AcceptUpdatedTrade() bool {
	s.mu.Lock()
	live := liveTrade(s.deps.Resolver.Snapshot())
	if s.active == nil || live == nil || trade.Same(live, s.active.Trade) {
		s.mu.Unlock()
		return false
	}
	s.active = s.newActiveLocked(live)
	s.mu.Unlock()

	s.emit()
	return true
}

// ConfirmAndExecute submits the ActiveTrade. On success the ActiveTrade is
// cleared unless it was replaced meanwhile. On failure it stays set so the
// user can retry from the same dialog. Only one submission runs at a time.
//
// An ActiveTrade whose permit expired is not submitted: the dialog and the
// permit are dropped so the user signs again.
func (s *Session) ConfirmAndExecute(ctx context.Context) (history.Transaction, error) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return history.Transaction{}, ErrNoTrade
	}
	if s.executing {
		s.mu.Unlock()
		return history.Transaction{}, ErrSwapInFlight
	}
	active := *s.active
	sig := active.Permit
	if sig != nil && (!sig.ValidFor(active.Trade) || sig.Expired(s.cfg.Now())) {
		if s.permit == sig {
			s.permit = nil
		}
		s.active = nil
		s.mu.Unlock()

		err := fmt.Errorf("%w: permit expired", ErrNotReady)
		s.logger.Info("Permit expired before confirmation", "id", active.ID)
		s.fail("swap", err)
		return history.Transaction{}, err
	}
	s.executing = true
	deadline := s.cfg.Now().Add(s.cfg.DeadlineTTL)
	s.mu.Unlock()

	tx, err := s.deps.Executor.Execute(ctx, execution.SwapParams{
		Trade:       active.Trade,
		SlippageBps: s.cfg.SlippageBps,
		Recipient:   s.cfg.Recipient,
		Permit:      sig,
		Deadline:    deadline,
		Fee:         s.cfg.Fee,
	})
	if err != nil {
		s.mu.Lock()
		s.executing = false
		s.mu.Unlock()
		s.fail("swap", err)
		return history.Transaction{}, err
	}

	s.mu.Lock()
	s.executing = false
	if s.active != nil && s.active.ID == active.ID {
		s.active = nil
	}
	if sig != nil && s.permit == sig {
		// Consumed by the swap
		s.permit = nil
	}
	s.lastSwap = tx.Hash
	s.notice = nil
	s.mu.Unlock()

	s.logger.Info("Swap confirmed by user", "id", active.ID, "hash", tx.Hash.Hex())
	s.emit()
	return tx, nil
}

func (s *Session) fail(op string, err error) {
	s.mu.Lock()
	s.notice = noticeFor(op, err)
	s.mu.Unlock()
	s.emit()
}
