package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

const minimal = `
chain:
  chainId: 1
  mode: simulated
router:
  address: "0x00000000000000000000000000000000000000ff"
tokens:
  - symbol: USDC
    address: "0x00000000000000000000000000000000000000aa"
    decimals: 6
    permit:
      type: eip2612
      name: USD Coin
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "swap-widget", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "ETH", cfg.Chain.NativeSymbol)
	assert.Equal(t, int32(18), cfg.Chain.NativeDecimals)
	assert.True(t, cfg.GasReserve().Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, EngineModeMock, cfg.Engine.Mode)
	assert.Equal(t, 15*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.WebSocket.HeartbeatInterval)
	assert.Equal(t, uint32(50), cfg.Swap.SlippageBps)
	assert.Equal(t, 30*time.Minute, cfg.Swap.Deadline)
	assert.Equal(t, "exact", cfg.Swap.ApprovalMode)
	assert.Equal(t, 4*time.Second, cfg.History.PollInterval)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing chain id", `
chain: {mode: simulated}
router: {address: "0x00000000000000000000000000000000000000ff"}
`},
		{"rpc without url", `
chain: {chainId: 1}
router: {address: "0x00000000000000000000000000000000000000ff"}
`},
		{"bad router", `
chain: {chainId: 1, mode: simulated}
router: {address: "nope"}
`},
		{"bad permit type", minimal + `
  - symbol: DAI
    address: "0x00000000000000000000000000000000000000bb"
    decimals: 18
    permit: {type: eip3009, name: Dai}
`},
		{"duplicate symbol", minimal + `
  - symbol: usdc
    address: "0x00000000000000000000000000000000000000bb"
    decimals: 6
`},
		{"unknown pool token", minimal + `
engine:
  pools:
    - {token0: USDC, token1: WBTC, reserve0: "1", reserve1: "1", fee: 500}
`},
		{"remote without url", minimal + `
engine: {mode: remote}
`},
		{"fee without recipient", minimal + `
swap: {feeBips: 10}
`},
		{"bad approval mode", minimal + `
swap: {approvalMode: infinite}
`},
		{"slippage too high", minimal + `
swap: {slippageBps: 10000}
`},
		{"unknown faucet token", `
chain: {chainId: 1, mode: simulated, faucet: {WBTC: "1"}}
router: {address: "0x00000000000000000000000000000000000000ff"}
`},
		{"negative gas reserve", `
chain: {chainId: 1, mode: simulated, gasReserve: "-1"}
router: {address: "0x00000000000000000000000000000000000000ff"}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Currency(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
  - symbol: USDT
    address: "0x00000000000000000000000000000000000000cc"
    decimals: 6
    approvalMode: unlimited
engine:
  pools:
    - {token0: ETH, token1: USDC, reserve0: "1000", reserve1: "3000000", fee: 500}
`))
	require.NoError(t, err)

	eth, err := cfg.Currency("eth")
	require.NoError(t, err)
	assert.True(t, eth.Native)
	assert.Equal(t, currency.WrappedNativeTokens[1], eth.Wrapped)

	usdc, err := cfg.Currency("USDC")
	require.NoError(t, err)
	assert.Equal(t, int32(6), usdc.Decimals)
	require.True(t, usdc.SupportsPermit())
	assert.Equal(t, currency.PermitEIP2612, usdc.Permit.Kind)
	assert.Equal(t, "USD Coin", usdc.Permit.Name)

	usdt, err := cfg.Currency("USDT")
	require.NoError(t, err)
	assert.False(t, usdt.SupportsPermit())
	assert.Equal(t, currency.ApprovalUnlimited, usdt.ApprovalMode)

	_, err = cfg.Currency("WBTC")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.Chain.ChainID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ChainModeSimulated, cfg.Chain.Mode)
	assert.NotEmpty(t, cfg.Engine.Pools)
}

func TestSignerConfig_GetPrivateKey(t *testing.T) {
	c := SignerConfig{PrivateKey: " 0xabc "}
	key, err := c.GetPrivateKey()
	require.NoError(t, err)
	assert.Equal(t, "abc", key)

	t.Setenv("SWAP_TEST_KEY", "0xdef")
	c = SignerConfig{PrivateKeyEnv: "SWAP_TEST_KEY"}
	key, err = c.GetPrivateKey()
	require.NoError(t, err)
	assert.Equal(t, "def", key)

	c = SignerConfig{PrivateKeyEnv: "SWAP_TEST_KEY_UNSET"}
	_, err = c.GetPrivateKey()
	assert.Error(t, err)

	_, err = (&SignerConfig{}).GetPrivateKey()
	assert.Error(t, err)
}
