package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

// Type strings of the signed structs
const (
	domainTypeString  = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	permitTypeString  = "Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"
	allowedTypeString = "Permit(address holder,address spender,uint256 nonce,uint256 expiry,bool allowed)"
)

var (
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	addressTy, _ = abi.NewType("address", "", nil)
	boolTy, _    = abi.NewType("bool", "", nil)
)

// EIP712Domain is the signing domain of a permit token
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DomainFor returns the permit domain of c. The token is the verifying contract.
func DomainFor(c currency.Currency) EIP712Domain {
	d := EIP712Domain{
		ChainID:           new(big.Int).SetUint64(c.ChainID),
		VerifyingContract: c.Address,
		Version:           "1",
	}
	if c.Permit != nil {
		d.Name = c.Permit.Name
		if c.Permit.Version != "" {
			d.Version = c.Permit.Version
		}
	}
	return d
}

// DomainSeparator calculates the EIP-712 domain separator
func (d *EIP712Domain) DomainSeparator() []byte {
	typeHash := crypto.Keccak256Hash([]byte(domainTypeString))
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	args := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: uint256Ty},
		{Type: addressTy},
	}

	encoded, _ := args.Pack(typeHash, nameHash, versionHash, d.ChainID, d.VerifyingContract)
	return crypto.Keccak256(encoded)
}

// structHash hashes the permit message of sig
func structHash(sig *Signature) ([]byte, error) {
	var (
		encoded []byte
		err     error
	)
	switch sig.Kind {
	case currency.PermitEIP2612:
		args := abi.Arguments{{Type: bytes32Ty}, {Type: addressTy}, {Type: addressTy}, {Type: uint256Ty}, {Type: uint256Ty}, {Type: uint256Ty}}
		encoded, err = args.Pack(crypto.Keccak256Hash([]byte(permitTypeString)), sig.Owner, sig.Spender, sig.Amount, sig.Nonce, sig.Deadline)
	case currency.PermitAllowed:
		args := abi.Arguments{{Type: bytes32Ty}, {Type: addressTy}, {Type: addressTy}, {Type: uint256Ty}, {Type: uint256Ty}, {Type: boolTy}}
		encoded, err = args.Pack(crypto.Keccak256Hash([]byte(allowedTypeString)), sig.Owner, sig.Spender, sig.Nonce, sig.Deadline, true)
	default:
		return nil, fmt.Errorf("unsupported permit kind: %q", sig.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode permit: %w", err)
	}
	return crypto.Keccak256(encoded), nil
}

// Digest returns the EIP-712 digest that sig signs under domain
func Digest(domain EIP712Domain, sig *Signature) ([]byte, error) {
	h, err := structHash(sig)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte{0x19, 0x01}, domain.DomainSeparator(), h), nil
}

// Recover returns the address that produced sig under domain
func Recover(domain EIP712Domain, sig *Signature) (common.Address, error) {
	digest, err := Digest(domain, sig)
	if err != nil {
		return common.Address{}, err
	}
	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
