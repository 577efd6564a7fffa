package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
)

// ErrUserRejected is returned when the account holder declines a request.
// Any other error from a Signer is a transport or submission failure.
var ErrUserRejected = errors.New("user rejected the request")

// defaultGasLimit is used when estimation fails
const defaultGasLimit = 300000

// Signer submits transactions and signs typed data on behalf of one account
type Signer interface {
	// Address returns the signer address
	Address() common.Address
	// SendTransaction signs and broadcasts call, returning the transaction hash
	SendTransaction(ctx context.Context, call chain.CallData) (common.Hash, error)
	// SignTypedData returns a 65-byte EIP-712 signature with v in {27, 28}
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// Broadcaster is the subset of *ethclient.Client needed to submit transactions
type Broadcaster interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// SignerConfig is the signer configuration
type SignerConfig struct {
	PrivateKey    string // Private key (hexadecimal, highest priority)
	PrivateKeyEnv string // Private key environment variable name (fallback)
	ChainID       uint64
}

// signer is the local private-key implementation
type signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	backend    Broadcaster
	confirm    ConfirmFunc
	logger     *slog.Logger

	nonceMu sync.Mutex // serializes nonce allocation and broadcast
}

// NewSigner creates a local signer
func NewSigner(privateKey *ecdsa.PrivateKey, chainID uint64, backend Broadcaster, confirm ConfirmFunc, logger *slog.Logger) Signer {
	if confirm == nil {
		confirm = AutoConfirm
	}
	if logger == nil {
		logger = slog.Default()
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	return &signer{
		privateKey: privateKey,
		address:    address,
		chainID:    new(big.Int).SetUint64(chainID),
		backend:    backend,
		confirm:    confirm,
		logger:     logger.With("component", "Signer", "address", address.Hex()),
	}
}

// NewSignerFromHex creates a signer from hexadecimal private key
func NewSignerFromHex(hexKey string, chainID uint64, backend Broadcaster, confirm ConfirmFunc, logger *slog.Logger) (Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSigner(privateKey, chainID, backend, confirm, logger), nil
}

// NewSignerFromConfig creates a signer from config (prefers config file private key, falls back to environment variable)
func NewSignerFromConfig(config *SignerConfig, backend Broadcaster, confirm ConfirmFunc, logger *slog.Logger) (Signer, error) {
	var hexKey string

	if config.PrivateKey != "" {
		hexKey = strings.TrimSpace(config.PrivateKey)
	} else if config.PrivateKeyEnv != "" {
		hexKey = strings.TrimSpace(os.Getenv(config.PrivateKeyEnv))
		if hexKey == "" {
			return nil, fmt.Errorf("environment variable %s is not set and no privateKey in config", config.PrivateKeyEnv)
		}
	} else {
		return nil, fmt.Errorf("neither privateKey nor privateKeyEnv is configured")
	}

	return NewSignerFromHex(hexKey, config.ChainID, backend, confirm, logger)
}

// Address returns the signer address
func (s *signer) Address() common.Address {
	return s.address
}

// SendTransaction asks for confirmation, then signs and broadcasts call
func (s *signer) SendTransaction(ctx context.Context, call chain.CallData) (common.Hash, error) {
	if !s.confirm(ctx, Prompt{Kind: PromptTransaction, To: call.To, Value: call.ValueOrZero(), Data: call.Data}) {
		s.logger.Info("Transaction rejected by user", "to", call.To.Hex())
		return common.Hash{}, ErrUserRejected
	}

	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
		to := call.To
		estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  s.address,
			To:    &to,
			Value: call.ValueOrZero(),
			Data:  call.Data,
		})
		if err == nil {
			gasLimit = estimated * 120 / 100 // Add 20% buffer
		} else {
			s.logger.Warn("Gas estimation failed, using default", "error", err, "gasLimit", gasLimit)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    call.ValueOrZero(),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.logger.Info("Transaction sent",
		"hash", signed.Hash().Hex(),
		"to", call.To.Hex(),
		"nonce", nonce,
		"gasLimit", gasLimit)
	return signed.Hash(), nil
}

// SignTypedData asks for confirmation, then signs the EIP-712 digest of data
func (s *signer) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if !s.confirm(ctx, Prompt{Kind: PromptSignature, To: common.HexToAddress(data.Domain.VerifyingContract), TypedData: &data}) {
		s.logger.Info("Signature rejected by user", "primaryType", data.PrimaryType)
		return nil, ErrUserRejected
	}

	digest, err := TypedDataHash(data)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value to 27 or 28 (Ethereum standard)
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// TypedDataHash computes keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func TypedDataHash(data apitypes.TypedData) ([]byte, error) {
	if data.Types == nil {
		data.Types = make(apitypes.Types)
	}
	if _, exists := data.Types["EIP712Domain"]; !exists {
		data.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	structHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash), nil
}
