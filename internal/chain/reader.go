package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

// ReceiptStatus is the on-chain outcome of a transaction
type ReceiptStatus int

const (
	ReceiptPending ReceiptStatus = iota
	ReceiptSuccess
	ReceiptFailed
)

// String returns the string representation of the status
func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptPending:
		return "pending"
	case ReceiptSuccess:
		return "success"
	case ReceiptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reader reads the chain state the swap flow depends on
type Reader interface {
	// Allowance returns token.allowance(owner, spender)
	Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
	// Balance returns the owner's balance of c
	Balance(ctx context.Context, owner common.Address, c currency.Currency) (currency.Amount, error)
	// PermitNonce returns token.nonces(owner)
	PermitNonce(ctx context.Context, owner, token common.Address) (*big.Int, error)
	// Receipt returns the status of a submitted transaction
	Receipt(ctx context.Context, hash common.Hash) (ReceiptStatus, error)
}

// Backend is the subset of *ethclient.Client used by EthReader
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthReader implements Reader over a JSON-RPC backend
type EthReader struct {
	backend Backend
}

// NewEthReader creates a reader over backend
func NewEthReader(backend Backend) *EthReader {
	return &EthReader{backend: backend}
}

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return client, nil
}

// Allowance returns token.allowance(owner, spender)
func (r *EthReader) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	return r.callUint(ctx, token, "allowance", owner, spender)
}

// Balance returns the native balance or token.balanceOf(owner)
func (r *EthReader) Balance(ctx context.Context, owner common.Address, c currency.Currency) (currency.Amount, error) {
	if c.Native {
		wei, err := r.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return currency.Amount{}, fmt.Errorf("failed to get balance: %w", err)
		}
		return currency.FromRaw(c, wei), nil
	}
	raw, err := r.callUint(ctx, c.Address, "balanceOf", owner)
	if err != nil {
		return currency.Amount{}, err
	}
	return currency.FromRaw(c, raw), nil
}

// PermitNonce returns token.nonces(owner)
func (r *EthReader) PermitNonce(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	return r.callUint(ctx, token, "nonces", owner)
}

// Receipt returns the status of hash. A missing receipt means still pending.
func (r *EthReader) Receipt(ctx context.Context, hash common.Hash) (ReceiptStatus, error) {
	receipt, err := r.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ReceiptPending, nil
		}
		return ReceiptPending, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return ReceiptSuccess, nil
	}
	return ReceiptFailed, nil
}

func (r *EthReader) callUint(ctx context.Context, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}
	result, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	out, err := ERC20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return value, nil
}
