package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

var (
	token   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func signedTx(t *testing.T, sim *Simulated, key string, to common.Address, data []byte) *types.Transaction {
	t.Helper()
	pk, err := crypto.HexToECDSA(key)
	require.NoError(t, err)
	nonce, _ := sim.PendingNonceAt(context.Background(), crypto.PubkeyToAddress(pk.PublicKey))
	tx := types.NewTransaction(nonce, to, big.NewInt(0), ApproveGasLimit, big.NewInt(1), data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(sim.ChainID()), pk)
	require.NoError(t, err)
	return signed
}

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestEthReader_Reads(t *testing.T) {
	sim := NewSimulated(1)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sim.SetNativeBalance(owner, big.NewInt(3_000_000_000_000_000_000))
	sim.SetTokenBalance(token, owner, big.NewInt(10_000_000))
	sim.SetAllowance(token, owner, spender, big.NewInt(42))

	r := NewEthReader(sim)
	ctx := context.Background()

	allowance, err := r.Allowance(ctx, owner, token, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(42), allowance.Int64())

	usdc := currency.NewToken(1, token, "USDC", 6)
	bal, err := r.Balance(ctx, owner, usdc)
	require.NoError(t, err)
	assert.Equal(t, "10", bal.Value.String())

	eth := currency.NewNative(1, "ETH", 18)
	bal, err = r.Balance(ctx, owner, eth)
	require.NoError(t, err)
	assert.Equal(t, "3", bal.Value.String())

	nonce, err := r.PermitNonce(ctx, owner, token)
	require.NoError(t, err)
	assert.Equal(t, int64(0), nonce.Int64())
}

func TestSimulated_ApproveLifecycle(t *testing.T) {
	sim := NewSimulated(1)
	r := NewEthReader(sim)
	ctx := context.Background()

	data, err := PackApprove(spender, MaxUint256)
	require.NoError(t, err)
	tx := signedTx(t, sim, testKey, token, data)
	require.NoError(t, sim.SendTransaction(ctx, tx))

	status, err := r.Receipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, ReceiptPending, status)

	assert.Equal(t, 1, sim.Mine())
	status, err = r.Receipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, status)

	owner := crypto.PubkeyToAddress(mustKey(t).PublicKey)
	allowance, err := r.Allowance(ctx, owner, token, spender)
	require.NoError(t, err)
	assert.Equal(t, 0, allowance.Cmp(MaxUint256))
}

func TestSimulated_FailNextSend(t *testing.T) {
	sim := NewSimulated(1)
	boom := errors.New("connection reset")
	sim.FailNextSend(boom)

	data, _ := PackApprove(spender, big.NewInt(1))
	err := sim.SendTransaction(context.Background(), signedTx(t, sim, testKey, token, data))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, sim.Pending())
}

func TestCallData(t *testing.T) {
	c := CallData{To: token}
	assert.Equal(t, int64(0), c.ValueOrZero().Int64())
	assert.Nil(t, c.Selector())

	data, _ := PackApprove(spender, big.NewInt(1))
	c.Data = data
	assert.Equal(t, ERC20.Methods["approve"].ID, c.Selector())
	assert.Equal(t, "pending", ReceiptPending.String())
	assert.Equal(t, "failed", ReceiptFailed.String())
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	pk, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	return pk
}
