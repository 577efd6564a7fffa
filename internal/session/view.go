package session

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/action"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// significantDigits of derived amounts
const significantDigits = 6

// View is the read-only projection handed to the rendering layer
type View struct {
	TradeState trade.State
	Trade      *trade.Trade
	Currencies [2]*currency.Currency
	Amounts    [2]string
	IsLoading  [2]bool
	Balances   [2]*currency.Amount

	InputExceedsBalance bool

	Approval     approval.State
	ApprovalHash *common.Hash
	PermitSigned bool
	Action       action.Button

	ActiveTrade      *ActiveTrade
	ActiveTradeStale bool
	Notice           *Notice
	LastSwapHash     *common.Hash
}

// View returns the current projection
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// liveTrade returns the trade the session acts on, nil unless VALID
func liveTrade(snap trade.Snapshot) *trade.Trade {
	if snap.State != trade.StateValid {
		return nil
	}
	return snap.Trade
}

func (s *Session) viewLocked() View {
	in := s.intent.Snapshot()
	snap := s.deps.Resolver.Snapshot()
	// A snapshot from an older intent is about to be replaced
	if snap.IntentVersion != in.Version && snap.State == trade.StateValid {
		snap.State = trade.StateSyncing
	}
	live := liveTrade(snap)

	v := View{
		TradeState: snap.State,
		Trade:      snap.Trade,
		Currencies: in.Currencies,
		Notice:     s.notice,
	}

	for _, f := range []intent.Field{intent.FieldInput, intent.FieldOutput} {
		if in.IsIndependent(f) {
			v.Amounts[f] = in.TypedAmount
			continue
		}
		v.IsLoading[f] = snap.State == trade.StateLoading || snap.State == trade.StateSyncing
		if snap.Trade != nil && in.Complete() {
			if f == intent.FieldInput {
				v.Amounts[f] = snap.Trade.InputAmount.Significant(significantDigits)
			} else {
				v.Amounts[f] = snap.Trade.OutputAmount.Significant(significantDigits)
			}
		}
	}

	for i, c := range in.Currencies {
		if c == nil {
			continue
		}
		if bal, ok := s.balances[c.Key()]; ok {
			b := bal
			v.Balances[i] = &b
		}
	}
	inputBalance := v.Balances[intent.FieldInput]

	// Displayed input amount against the balance
	var shownInput *currency.Amount
	switch {
	case in.IsIndependent(intent.FieldInput):
		shownInput = in.ParsedAmount()
	case live != nil:
		a := live.InputAmount
		shownInput = &a
	}
	if shownInput != nil && inputBalance != nil && shownInput.Cmp(*inputBalance) > 0 {
		v.InputExceedsBalance = true
	}

	insufficient := false
	if live != nil && inputBalance != nil {
		insufficient = live.MaximumAmountIn(s.cfg.SlippageBps).Cmp(*inputBalance) > 0
	}

	v.Approval = approval.StateUnknown
	if live != nil {
		var handle *approval.Handle
		v.Approval, handle = s.deps.Approvals.State(live.InputAmount.Currency, live.MaximumAmountIn(s.cfg.SlippageBps).Raw())
		if handle != nil {
			h := handle.Hash
			v.ApprovalHash = &h
		}
	}
	v.PermitSigned = s.permitValidLocked(live)

	inputs := action.Inputs{
		Disabled:            s.cfg.Disabled,
		CurrenciesSelected:  in.Currencies[intent.FieldInput] != nil && in.Currencies[intent.FieldOutput] != nil,
		HasAmount:           in.ParsedAmount() != nil,
		TradeState:          snap.State,
		BalanceKnown:        inputBalance != nil,
		InsufficientBalance: insufficient,
		Approval:            v.Approval,
		PermitValid:         v.PermitSigned,
	}
	if v.ApprovalHash != nil {
		inputs.ApprovalHash = *v.ApprovalHash
	}
	v.Action = action.Derive(inputs)

	if s.active != nil {
		a := *s.active
		v.ActiveTrade = &a
		v.ActiveTradeStale = live != nil && !trade.Same(live, s.active.Trade)
	}
	if s.lastSwap != (common.Hash{}) {
		h := s.lastSwap
		v.LastSwapHash = &h
	}
	return v
}

// permitValidLocked reports whether the held permit authorizes t right now
func (s *Session) permitValidLocked(t *trade.Trade) bool {
	return s.permit != nil && s.permit.ValidFor(t) && !s.permit.Expired(s.cfg.Now())
}
