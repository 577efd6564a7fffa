package permit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// Signature is a signed permit bound to the trade it was produced for
type Signature struct {
	Kind     currency.PermitKind
	Token    common.Address
	Owner    common.Address
	Spender  common.Address
	Amount   *big.Int // permitted value, unused by allowed permits
	Nonce    *big.Int
	Deadline *big.Int // unix seconds; the expiry of allowed permits
	V        uint8
	R        [32]byte
	S        [32]byte

	tradeKey string
}

// ValidFor reports whether s was produced for t. Trades compare by route and amounts.
func (s *Signature) ValidFor(t *trade.Trade) bool {
	return s != nil && t != nil && s.tradeKey == t.Key()
}

// Expired reports whether the permit deadline has passed at now
func (s *Signature) Expired(now time.Time) bool {
	return s.Deadline.Cmp(big.NewInt(now.Unix())) <= 0
}

// NonceReader reads permit nonces
type NonceReader interface {
	PermitNonce(ctx context.Context, owner, token common.Address) (*big.Int, error)
}

// Observer receives permit outcomes
type Observer interface {
	PermitRequested(outcome string)
}

// Flow requests permit signatures for the router
type Flow struct {
	nonces   NonceReader
	signer   signer.Signer
	spender  common.Address
	logger   *slog.Logger
	observer Observer
}

// NewFlow creates a permit flow for spender
func NewFlow(nonces NonceReader, s signer.Signer, spender common.Address, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		nonces:  nonces,
		signer:  s,
		spender: spender,
		logger:  logger.With("component", "PermitFlow"),
	}
}

// SetObserver sets the outcome observer
func (f *Flow) SetObserver(o Observer) {
	f.observer = o
}

// Sign requests a permit for the maximum input of t. It returns nil without
// prompting when the input token has no permit support, the allowance is
// already sufficient or deadline is nil.
func (f *Flow) Sign(ctx context.Context, t *trade.Trade, slippageBps uint32, deadline *time.Time, state approval.State) (*Signature, error) {
	if t == nil || deadline == nil || state == approval.StateApproved {
		return nil, nil
	}
	token := t.InputAmount.Currency
	if !token.SupportsPermit() {
		return nil, nil
	}

	owner := f.signer.Address()
	nonce, err := f.nonces.PermitNonce(ctx, owner, token.Address)
	if err != nil {
		f.report("failed")
		return nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}

	sig := &Signature{
		Kind:     token.Permit.Kind,
		Token:    token.Address,
		Owner:    owner,
		Spender:  f.spender,
		Amount:   t.MaximumAmountIn(slippageBps).Raw(),
		Nonce:    nonce,
		Deadline: big.NewInt(deadline.Unix()),
		tradeKey: t.Key(),
	}
	data, err := TypedData(token, sig)
	if err != nil {
		return nil, err
	}

	raw, err := f.signer.SignTypedData(ctx, data)
	if err != nil {
		if errors.Is(err, signer.ErrUserRejected) {
			f.report("rejected")
			return nil, swaperr.UserRejected("permit", err)
		}
		f.report("failed")
		return nil, fmt.Errorf("failed to sign permit: %w", err)
	}
	if len(raw) != 65 {
		f.report("failed")
		return nil, fmt.Errorf("invalid signature length: %d", len(raw))
	}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]

	f.report("signed")
	f.logger.Info("Permit signed",
		"token", token.Address.Hex(),
		"symbol", token.Symbol,
		"kind", string(sig.Kind),
		"amount", sig.Amount.String(),
		"deadline", sig.Deadline.String())
	return sig, nil
}

func (f *Flow) report(outcome string) {
	if f.observer != nil {
		f.observer.PermitRequested(outcome)
	}
}

// TypedData builds the EIP-712 payload of sig for token
func TypedData(token currency.Currency, sig *Signature) (apitypes.TypedData, error) {
	domain := DomainFor(token)
	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
	}

	switch sig.Kind {
	case currency.PermitEIP2612:
		data.Types["Permit"] = []apitypes.Type{
			{Name: "owner", Type: "address"},
			{Name: "spender", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
		}
		data.Message = apitypes.TypedDataMessage{
			"owner":    sig.Owner.Hex(),
			"spender":  sig.Spender.Hex(),
			"value":    new(big.Int).Set(sig.Amount),
			"nonce":    new(big.Int).Set(sig.Nonce),
			"deadline": new(big.Int).Set(sig.Deadline),
		}
	case currency.PermitAllowed:
		data.Types["Permit"] = []apitypes.Type{
			{Name: "holder", Type: "address"},
			{Name: "spender", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "expiry", Type: "uint256"},
			{Name: "allowed", Type: "bool"},
		}
		data.Message = apitypes.TypedDataMessage{
			"holder":  sig.Owner.Hex(),
			"spender": sig.Spender.Hex(),
			"nonce":   new(big.Int).Set(sig.Nonce),
			"expiry":  new(big.Int).Set(sig.Deadline),
			"allowed": true,
		}
	default:
		return apitypes.TypedData{}, fmt.Errorf("unsupported permit kind: %q", sig.Kind)
	}
	return data, nil
}
