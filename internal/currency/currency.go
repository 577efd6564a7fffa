package currency

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PermitKind identifies the off-chain permit scheme a token implements
type PermitKind string

const (
	// PermitEIP2612 is permit(owner, spender, value, nonce, deadline)
	PermitEIP2612 PermitKind = "eip2612"
	// PermitAllowed is the DAI-style permit(holder, spender, nonce, expiry, allowed)
	PermitAllowed PermitKind = "allowed"
)

// PermitInfo describes the EIP-712 domain of a permit-capable token
type PermitInfo struct {
	Kind    PermitKind
	Name    string // EIP-712 domain name
	Version string // EIP-712 domain version
}

// ApprovalMode decides how much allowance an approval transaction grants
type ApprovalMode string

const (
	ApprovalExact     ApprovalMode = "exact"
	ApprovalUnlimited ApprovalMode = "unlimited"
)

// Currency is either the chain's native asset or an ERC-20 token
type Currency struct {
	ChainID  uint64
	Address  common.Address // zero for the native asset
	Symbol   string
	Decimals int32
	Native   bool

	// Wrapped is the wrapped-native token used for routing when Native is set
	Wrapped common.Address

	// Permit is nil when the token has no off-chain permit support
	Permit *PermitInfo

	// ApprovalMode overrides the default approval mode when non-empty
	ApprovalMode ApprovalMode
}

// NewToken creates an ERC-20 currency
func NewToken(chainID uint64, address common.Address, symbol string, decimals int32) Currency {
	return Currency{
		ChainID:  chainID,
		Address:  address,
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// NewNative creates the native currency of a chain, resolving its wrapped token from the known table
func NewNative(chainID uint64, symbol string, decimals int32) Currency {
	wrapped, _ := GetWrappedToken(chainID)
	return Currency{
		ChainID:  chainID,
		Symbol:   symbol,
		Decimals: decimals,
		Native:   true,
		Wrapped:  wrapped,
	}
}

// WithPermit returns a copy of c that supports the given permit scheme
func (c Currency) WithPermit(info PermitInfo) Currency {
	c.Permit = &info
	return c
}

// Key returns a stable identity of the currency within a chain
func (c Currency) Key() string {
	if c.Native {
		return fmt.Sprintf("%d:native", c.ChainID)
	}
	return fmt.Sprintf("%d:%s", c.ChainID, strings.ToLower(c.Address.Hex()))
}

// Equal reports whether c and o denote the same currency
func (c Currency) Equal(o Currency) bool {
	return c.Key() == o.Key()
}

// TokenAddress returns the ERC-20 address used in routes (wrapped token for native)
func (c Currency) TokenAddress() common.Address {
	if c.Native {
		return c.Wrapped
	}
	return c.Address
}

// SupportsPermit reports whether the currency can be authorized with a signed permit
func (c Currency) SupportsPermit() bool {
	return !c.Native && c.Permit != nil
}

func (c Currency) String() string {
	if c.Symbol != "" {
		return c.Symbol
	}
	return c.Key()
}

// WrappedNativeTokens maps chain IDs to their wrapped native token
var WrappedNativeTokens = map[uint64]common.Address{
	56:   common.HexToAddress("0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"), // BSC: WBNB
	8453: common.HexToAddress("0x4200000000000000000000000000000000000006"), // Base: WETH
	1:    common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), // Ethereum: WETH
}

// GetWrappedToken gets the wrapped native token address for a chain
func GetWrappedToken(chainID uint64) (common.Address, bool) {
	addr, ok := WrappedNativeTokens[chainID]
	return addr, ok
}
