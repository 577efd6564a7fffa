package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallData is a transaction the signer is asked to submit
type CallData struct {
	To       common.Address
	Data     []byte
	Value    *big.Int // nil means zero
	GasLimit uint64   // 0 lets the signer estimate
}

// ValueOrZero returns the call value, never nil
func (c CallData) ValueOrZero() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Selector returns the 4-byte method selector, or nil for plain transfers
func (c CallData) Selector() []byte {
	if len(c.Data) < 4 {
		return nil
	}
	return c.Data[:4]
}
