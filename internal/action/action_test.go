package action

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

func ready() Inputs {
	return Inputs{
		CurrenciesSelected: true,
		HasAmount:          true,
		TradeState:         trade.StateValid,
		BalanceKnown:       true,
		Approval:           approval.StateApproved,
	}
}

func TestDerive(t *testing.T) {
	hash := common.HexToHash("0xabc")
	tests := []struct {
		name   string
		modify func(*Inputs)
		kind   Kind
		reason Reason
	}{
		{"ready", func(*Inputs) {}, KindSwap, ReasonNone},
		{"widget disabled wins", func(in *Inputs) { in.Disabled = true; in.InsufficientBalance = true }, KindDisabled, ReasonDisabled},
		{"no currencies", func(in *Inputs) { in.CurrenciesSelected = false }, KindDisabled, ReasonSelectToken},
		{"no amount", func(in *Inputs) { in.HasAmount = false }, KindDisabled, ReasonEnterAmount},
		{"no trade", func(in *Inputs) { in.TradeState = trade.StateNoTrade }, KindDisabled, ReasonEnterAmount},
		{"no route", func(in *Inputs) { in.TradeState = trade.StateInvalid }, KindDisabled, ReasonNoRoute},
		{"loading", func(in *Inputs) { in.TradeState = trade.StateLoading }, KindDisabled, ReasonLoading},
		{"balance unknown", func(in *Inputs) { in.BalanceKnown = false }, KindDisabled, ReasonBalanceUnknown},
		{"insufficient balance before approval", func(in *Inputs) {
			in.InsufficientBalance = true
			in.Approval = approval.StateNotApproved
		}, KindDisabled, ReasonInsufficientBalance},
		{"syncing", func(in *Inputs) { in.TradeState = trade.StateSyncing }, KindDisabled, ReasonLoading},
		{"not approved", func(in *Inputs) { in.Approval = approval.StateNotApproved }, KindApprove, ReasonNone},
		{"not approved with permit", func(in *Inputs) {
			in.Approval = approval.StateNotApproved
			in.PermitValid = true
		}, KindSwap, ReasonNone},
		{"pending", func(in *Inputs) {
			in.Approval = approval.StatePending
			in.ApprovalHash = hash
		}, KindApprovePending, ReasonNone},
		{"unknown approval", func(in *Inputs) { in.Approval = approval.StateUnknown }, KindDisabled, ReasonCheckingApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ready()
			tt.modify(&in)
			got := Derive(in)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestDerive_PendingHash(t *testing.T) {
	in := ready()
	in.Approval = approval.StatePending
	assert.Nil(t, Derive(in).ApprovalHash)

	in.ApprovalHash = common.HexToHash("0xabc")
	got := Derive(in)
	if assert.NotNil(t, got.ApprovalHash) {
		assert.Equal(t, in.ApprovalHash, *got.ApprovalHash)
	}
	assert.False(t, got.Enabled())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "SWAP", KindSwap.String())
	assert.Equal(t, "APPROVE", KindApprove.String())
	assert.Equal(t, "APPROVE_PENDING", KindApprovePending.String())
	assert.Equal(t, "DISABLED", KindDisabled.String())
}
