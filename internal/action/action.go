// Package action derives the swap widget's primary button from session state.
package action

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// Kind is what the button does when pressed
type Kind int

const (
	KindDisabled Kind = iota
	KindSwap
	KindApprove
	KindApprovePending
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSwap:
		return "SWAP"
	case KindApprove:
		return "APPROVE"
	case KindApprovePending:
		return "APPROVE_PENDING"
	default:
		return "DISABLED"
	}
}

// Reason explains a disabled button
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonDisabled            Reason = "disabled"
	ReasonSelectToken         Reason = "select a token"
	ReasonEnterAmount         Reason = "enter an amount"
	ReasonNoRoute             Reason = "insufficient liquidity"
	ReasonLoading             Reason = "fetching best price"
	ReasonBalanceUnknown      Reason = "loading balance"
	ReasonInsufficientBalance Reason = "insufficient balance"
	ReasonCheckingApproval    Reason = "checking approval"
)

// Inputs is everything the button depends on
type Inputs struct {
	Disabled            bool
	CurrenciesSelected  bool
	HasAmount           bool
	TradeState          trade.State
	BalanceKnown        bool
	InsufficientBalance bool
	Approval            approval.State
	ApprovalHash        common.Hash
	PermitValid         bool
}

// Button is the derived action button
type Button struct {
	Kind         Kind
	Reason       Reason
	ApprovalHash *common.Hash // set with KindApprovePending when the transaction is known
}

// Enabled reports whether pressing the button does anything
func (b Button) Enabled() bool {
	return b.Kind == KindSwap || b.Kind == KindApprove
}

func disabled(r Reason) Button {
	return Button{Kind: KindDisabled, Reason: r}
}

// Derive computes the button deterministically. Checks run in order: the
// widget flag, the intent, the trade, the balance and finally approval.
func Derive(in Inputs) Button {
	switch {
	case in.Disabled:
		return disabled(ReasonDisabled)
	case !in.CurrenciesSelected:
		return disabled(ReasonSelectToken)
	case !in.HasAmount:
		return disabled(ReasonEnterAmount)
	}

	switch in.TradeState {
	case trade.StateNoTrade:
		return disabled(ReasonEnterAmount)
	case trade.StateInvalid:
		return disabled(ReasonNoRoute)
	case trade.StateLoading:
		return disabled(ReasonLoading)
	}

	switch {
	case !in.BalanceKnown:
		return disabled(ReasonBalanceUnknown)
	case in.InsufficientBalance:
		return disabled(ReasonInsufficientBalance)
	case in.TradeState != trade.StateValid:
		return disabled(ReasonLoading)
	}

	switch in.Approval {
	case approval.StatePending:
		b := Button{Kind: KindApprovePending}
		if in.ApprovalHash != (common.Hash{}) {
			h := in.ApprovalHash
			b.ApprovalHash = &h
		}
		return b
	case approval.StateNotApproved:
		if in.PermitValid {
			return Button{Kind: KindSwap}
		}
		return Button{Kind: KindApprove}
	case approval.StateUnknown:
		return disabled(ReasonCheckingApproval)
	}
	return Button{Kind: KindSwap}
}
