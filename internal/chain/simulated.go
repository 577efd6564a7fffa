package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Simulated is an in-memory chain for dry runs and tests. It serves the reads
// of Reader, accepts signed transactions, applies ERC-20 approvals and keeps
// every transaction pending until Mine is called.
type Simulated struct {
	chainID *big.Int

	mu         sync.Mutex
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int // token -> owner -> balance
	allowances map[string]*big.Int                            // token:owner:spender
	nonces     map[common.Address]uint64
	permit     map[string]*big.Int // token:owner
	pending    []*types.Transaction
	receipts   map[common.Hash]*types.Receipt
	failNext   error
}

// NewSimulated creates an empty simulated chain
func NewSimulated(chainID uint64) *Simulated {
	return &Simulated{
		chainID:    new(big.Int).SetUint64(chainID),
		native:     make(map[common.Address]*big.Int),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[string]*big.Int),
		nonces:     make(map[common.Address]uint64),
		permit:     make(map[string]*big.Int),
		receipts:   make(map[common.Hash]*types.Receipt),
	}
}

func allowanceKey(token, owner, spender common.Address) string {
	return token.Hex() + ":" + owner.Hex() + ":" + spender.Hex()
}

// ChainID returns the simulated chain id
func (s *Simulated) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SetNativeBalance sets the native balance of owner in wei
func (s *Simulated) SetNativeBalance(owner common.Address, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.native[owner] = new(big.Int).Set(wei)
}

// SetTokenBalance sets the token balance of owner in base units
func (s *Simulated) SetTokenBalance(token, owner common.Address, raw *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[token] == nil {
		s.balances[token] = make(map[common.Address]*big.Int)
	}
	s.balances[token][owner] = new(big.Int).Set(raw)
}

// SetAllowance sets token.allowance(owner, spender)
func (s *Simulated) SetAllowance(token, owner, spender common.Address, raw *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey(token, owner, spender)] = new(big.Int).Set(raw)
}

// FailNextSend makes the next SendTransaction return err
func (s *Simulated) FailNextSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Pending returns the number of unmined transactions
func (s *Simulated) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Allowance returns the stored allowance
func (s *Simulated) Allowance(_ context.Context, owner, token, spender common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.allowances[allowanceKey(token, owner, spender)]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// PermitNonce returns the stored permit nonce
func (s *Simulated) PermitNonce(_ context.Context, owner, token common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.permit[token.Hex()+":"+owner.Hex()]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// CallContract serves balanceOf, allowance and nonces so Simulated can back an EthReader
func (s *Simulated) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("simulated: unsupported call")
	}
	method, err := ERC20.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("simulated: %w", err)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("simulated: %w", err)
	}
	var value *big.Int
	switch method.Name {
	case "balanceOf":
		s.mu.Lock()
		value = new(big.Int)
		if v, ok := s.balances[*msg.To][args[0].(common.Address)]; ok {
			value.Set(v)
		}
		s.mu.Unlock()
	case "allowance":
		value, _ = s.Allowance(ctx, args[0].(common.Address), *msg.To, args[1].(common.Address))
	case "nonces":
		value, _ = s.PermitNonce(ctx, args[0].(common.Address), *msg.To)
	default:
		return nil, fmt.Errorf("simulated: %s is not a view", method.Name)
	}
	return method.Outputs.Pack(value)
}

// BalanceAt returns the native balance
func (s *Simulated) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.native[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// TransactionReceipt returns ethereum.NotFound until the transaction is mined
func (s *Simulated) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// PendingNonceAt returns the next account nonce
func (s *Simulated) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[account], nil
}

// SuggestGasPrice returns a fixed 1 gwei
func (s *Simulated) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// EstimateGas returns a fixed estimate
func (s *Simulated) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

// SendTransaction queues a signed transaction
func (s *Simulated) SendTransaction(_ context.Context, tx *types.Transaction) error {
	sender, err := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
	if err != nil {
		return fmt.Errorf("simulated: invalid signature: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if tx.Nonce() != s.nonces[sender] {
		return fmt.Errorf("simulated: nonce %d, want %d", tx.Nonce(), s.nonces[sender])
	}
	s.nonces[sender]++
	s.pending = append(s.pending, tx)
	return nil
}

// Mine confirms every pending transaction, applying approvals
func (s *Simulated) Mine() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	approveID := ERC20.Methods["approve"].ID
	mined := len(s.pending)
	for _, tx := range s.pending {
		status := types.ReceiptStatusSuccessful
		if tx.To() != nil && len(tx.Data()) >= 4 && bytes.Equal(tx.Data()[:4], approveID) {
			args, err := ERC20.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
			if err != nil {
				status = types.ReceiptStatusFailed
			} else {
				sender, _ := types.Sender(types.LatestSignerForChainID(s.chainID), tx)
				s.allowances[allowanceKey(*tx.To(), sender, args[0].(common.Address))] = new(big.Int).Set(args[1].(*big.Int))
			}
		}
		s.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash()}
	}
	s.pending = nil
	return mined
}
