package execution

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/permit"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// MaxFeeBips is the highest interface fee accepted (1%)
const MaxFeeBips = 100

// ErrStalePermit is returned when a permit was signed for another trade
var ErrStalePermit = errors.New("permit was signed for a different trade")

// FeeOptions takes an interface fee from the output
type FeeOptions struct {
	Bips      uint32
	Recipient common.Address
}

// SwapParams are the inputs of a swap call
type SwapParams struct {
	Trade       *trade.Trade
	SlippageBps uint32
	Recipient   common.Address
	Permit      *permit.Signature // optional
	Deadline    time.Time
	Fee         *FeeOptions // optional
}

// BuildSwapCall encodes the router multicall that executes p.Trade.
// It performs no network access.
func BuildSwapCall(router common.Address, p SwapParams) (chain.CallData, error) {
	t := p.Trade
	if t == nil {
		return chain.CallData{}, fmt.Errorf("no trade")
	}
	if p.Recipient == (common.Address{}) {
		return chain.CallData{}, fmt.Errorf("recipient is required")
	}
	if p.Fee != nil && p.Fee.Bips > MaxFeeBips {
		return chain.CallData{}, fmt.Errorf("fee %d bips exceeds %d", p.Fee.Bips, MaxFeeBips)
	}
	fee := p.Fee
	if fee != nil && fee.Bips == 0 {
		fee = nil
	}

	input := t.InputAmount.Currency
	output := t.OutputAmount.Currency
	maxIn := t.MaximumAmountIn(p.SlippageBps).Raw()
	minOut := t.MinimumAmountOut(p.SlippageBps).Raw()

	// Output that must be unwrapped or charged a fee lands on the router first
	routerCustody := output.Native || fee != nil
	swapRecipient := p.Recipient
	if routerCustody {
		swapRecipient = AddressThis
	}

	var calls [][]byte

	if p.Permit != nil {
		if !p.Permit.ValidFor(t) {
			return chain.CallData{}, ErrStalePermit
		}
		if input.Native {
			return chain.CallData{}, fmt.Errorf("permit on native input")
		}
		data, err := packPermit(p.Permit)
		if err != nil {
			return chain.CallData{}, err
		}
		calls = append(calls, data)
	}

	path, err := EncodePath(t.Route, t.Type == trade.ExactOutput)
	if err != nil {
		return chain.CallData{}, err
	}
	var swap []byte
	if t.Type == trade.ExactInput {
		swap, err = Router.Pack("exactInput", exactInputParams{
			Path:             path,
			Recipient:        swapRecipient,
			AmountIn:         t.InputAmount.Raw(),
			AmountOutMinimum: minOut,
		})
	} else {
		swap, err = Router.Pack("exactOutput", exactOutputParams{
			Path:            path,
			Recipient:       swapRecipient,
			AmountOut:       t.OutputAmount.Raw(),
			AmountInMaximum: maxIn,
		})
	}
	if err != nil {
		return chain.CallData{}, fmt.Errorf("failed to pack swap: %w", err)
	}
	calls = append(calls, swap)

	if routerCustody {
		data, err := packSettlement(output, minOut, p.Recipient, fee)
		if err != nil {
			return chain.CallData{}, err
		}
		calls = append(calls, data)
	}

	var value *big.Int
	if input.Native {
		value = maxIn
		if t.Type == trade.ExactOutput {
			data, err := Router.Pack("refundETH")
			if err != nil {
				return chain.CallData{}, fmt.Errorf("failed to pack refundETH: %w", err)
			}
			calls = append(calls, data)
		}
	}

	data, err := Router.Pack("multicall", big.NewInt(p.Deadline.Unix()), calls)
	if err != nil {
		return chain.CallData{}, fmt.Errorf("failed to pack multicall: %w", err)
	}
	return chain.CallData{To: router, Data: data, Value: value}, nil
}

func packPermit(sig *permit.Signature) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch sig.Kind {
	case currency.PermitEIP2612:
		data, err = Router.Pack("selfPermit", sig.Token, sig.Amount, sig.Deadline, sig.V, sig.R, sig.S)
	case currency.PermitAllowed:
		data, err = Router.Pack("selfPermitAllowed", sig.Token, sig.Nonce, sig.Deadline, sig.V, sig.R, sig.S)
	default:
		return nil, fmt.Errorf("unsupported permit kind: %q", sig.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack permit: %w", err)
	}
	return data, nil
}

func packSettlement(output currency.Currency, minOut *big.Int, recipient common.Address, fee *FeeOptions) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case output.Native && fee == nil:
		data, err = Router.Pack("unwrapWETH9", minOut, recipient)
	case output.Native:
		data, err = Router.Pack("unwrapWETH9WithFee", minOut, recipient, big.NewInt(int64(fee.Bips)), fee.Recipient)
	default:
		data, err = Router.Pack("sweepTokenWithFee", output.Address, minOut, recipient, big.NewInt(int64(fee.Bips)), fee.Recipient)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack settlement: %w", err)
	}
	return data, nil
}
