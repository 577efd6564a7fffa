package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
)

// Config application configuration
type Config struct {
	App     AppConfig     `yaml:"app"`
	Chain   ChainConfig   `yaml:"chain"`
	Signer  SignerConfig  `yaml:"signer"`
	Router  RouterConfig  `yaml:"router"`
	Tokens  []TokenConfig `yaml:"tokens"`
	Engine  EngineConfig  `yaml:"engine"`
	Swap    SwapConfig    `yaml:"swap"`
	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AppConfig application basic configuration
type AppConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"logLevel"` // debug, info, warn, error
}

// Chain modes
const (
	ChainModeRPC       = "rpc"
	ChainModeSimulated = "simulated"
)

// ChainConfig chain connection configuration
type ChainConfig struct {
	ChainID        uint64 `yaml:"chainId"`
	Mode           string `yaml:"mode"` // rpc, simulated
	RPCURL         string `yaml:"rpcUrl"`
	NativeSymbol   string `yaml:"nativeSymbol"`
	NativeDecimals int32  `yaml:"nativeDecimals"`
	GasReserve     string `yaml:"gasReserve"` // native units kept back by setMax

	// Faucet funds the signer in simulated mode, symbol -> amount in token units
	Faucet map[string]string `yaml:"faucet"`
}

// SignerConfig signer configuration
type SignerConfig struct {
	PrivateKey    string `yaml:"privateKey"`    // Private key (hexadecimal, highest priority)
	PrivateKeyEnv string `yaml:"privateKeyEnv"` // Private key environment variable name (fallback)
	AutoConfirm   bool   `yaml:"autoConfirm"`   // Skip the terminal confirmation prompt
}

// GetPrivateKey gets private key (prioritizes config file, falls back to environment variable)
func (c *SignerConfig) GetPrivateKey() (string, error) {
	if c.PrivateKey != "" {
		return strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x"), nil
	}
	if c.PrivateKeyEnv != "" {
		key := os.Getenv(c.PrivateKeyEnv)
		if key == "" {
			return "", fmt.Errorf("environment variable %s is not set", c.PrivateKeyEnv)
		}
		return strings.TrimPrefix(strings.TrimSpace(key), "0x"), nil
	}
	return "", fmt.Errorf("neither privateKey nor privateKeyEnv is configured")
}

// RouterConfig swap router configuration
type RouterConfig struct {
	Address string `yaml:"address"`
}

// PermitConfig token permit support
type PermitConfig struct {
	Type    string `yaml:"type"` // eip2612, allowed
	Name    string `yaml:"name"` // EIP-712 domain name
	Version string `yaml:"version"`
}

// TokenConfig known token configuration
type TokenConfig struct {
	Symbol       string        `yaml:"symbol"`
	Address      string        `yaml:"address"`
	Decimals     int32         `yaml:"decimals"`
	Permit       *PermitConfig `yaml:"permit"`
	ApprovalMode string        `yaml:"approvalMode"` // exact, unlimited; empty uses swap.approvalMode
}

// Engine modes
const (
	EngineModeMock   = "mock"
	EngineModeRemote = "remote"
)

// EngineConfig trade engine configuration
type EngineConfig struct {
	Mode      string          `yaml:"mode"` // mock, remote
	Timeout   time.Duration   `yaml:"timeout"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Pools     []PoolConfig    `yaml:"pools"`
}

// WebSocketConfig WebSocket configuration
type WebSocketConfig struct {
	ServerURL            string        `yaml:"serverUrl"`
	APIToken             string        `yaml:"apiToken"`
	ReconnectInterval    time.Duration `yaml:"reconnectInterval"`
	MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"` // 0 = unlimited
	HeartbeatInterval    time.Duration `yaml:"heartbeatInterval"`
	ReadTimeout          time.Duration `yaml:"readTimeout"`
	WriteTimeout         time.Duration `yaml:"writeTimeout"`
}

// PoolConfig mock engine pool, reserves in token units.
// The native symbol stands for the wrapped native token.
type PoolConfig struct {
	Token0   string `yaml:"token0"` // symbol
	Token1   string `yaml:"token1"` // symbol
	Reserve0 string `yaml:"reserve0"`
	Reserve1 string `yaml:"reserve1"`
	Fee      uint32 `yaml:"fee"` // hundredths of a bip
}

// SwapConfig swap defaults
type SwapConfig struct {
	SlippageBps  uint32        `yaml:"slippageBps"`
	Deadline     time.Duration `yaml:"deadline"`
	FeeBips      uint32        `yaml:"feeBips"`
	FeeRecipient string        `yaml:"feeRecipient"`
	ApprovalMode string        `yaml:"approvalMode"` // exact, unlimited
}

// HistoryConfig transaction history configuration
type HistoryConfig struct {
	Path         string        `yaml:"path"` // empty keeps history in memory
	PollInterval time.Duration `yaml:"pollInterval"`
}

// MetricsConfig metrics endpoint configuration
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	cfg.setDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "swap-widget"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Chain.Mode == "" {
		c.Chain.Mode = ChainModeRPC
	}
	if c.Chain.NativeSymbol == "" {
		c.Chain.NativeSymbol = "ETH"
	}
	if c.Chain.NativeDecimals == 0 {
		c.Chain.NativeDecimals = 18
	}
	if c.Chain.GasReserve == "" {
		c.Chain.GasReserve = currency.DefaultGasReserve.String()
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = EngineModeMock
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 15 * time.Second
	}
	if c.Engine.WebSocket.ReconnectInterval == 0 {
		c.Engine.WebSocket.ReconnectInterval = 5 * time.Second
	}
	if c.Engine.WebSocket.HeartbeatInterval == 0 {
		c.Engine.WebSocket.HeartbeatInterval = 30 * time.Second
	}
	if c.Engine.WebSocket.ReadTimeout == 0 {
		c.Engine.WebSocket.ReadTimeout = 90 * time.Second
	}
	if c.Engine.WebSocket.WriteTimeout == 0 {
		c.Engine.WebSocket.WriteTimeout = 10 * time.Second
	}
	if c.Swap.SlippageBps == 0 {
		c.Swap.SlippageBps = 50
	}
	if c.Swap.Deadline == 0 {
		c.Swap.Deadline = 30 * time.Minute
	}
	if c.Swap.ApprovalMode == "" {
		c.Swap.ApprovalMode = string(currency.ApprovalExact)
	}
	if c.History.PollInterval == 0 {
		c.History.PollInterval = 4 * time.Second
	}
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chainId is required")
	}
	switch c.Chain.Mode {
	case ChainModeRPC:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpcUrl is required in rpc mode")
		}
	case ChainModeSimulated:
	default:
		return fmt.Errorf("chain.mode must be rpc or simulated, got %q", c.Chain.Mode)
	}
	if reserve, err := decimal.NewFromString(c.Chain.GasReserve); err != nil || reserve.IsNegative() {
		return fmt.Errorf("chain.gasReserve must be a non-negative number, got %q", c.Chain.GasReserve)
	}
	if !common.IsHexAddress(c.Router.Address) {
		return fmt.Errorf("router.address is required")
	}

	seen := make(map[string]bool)
	for i, t := range c.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("tokens[%d].symbol is required", i)
		}
		if seen[strings.ToUpper(t.Symbol)] {
			return fmt.Errorf("tokens[%d].symbol %s is duplicated", i, t.Symbol)
		}
		seen[strings.ToUpper(t.Symbol)] = true
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("tokens[%d].address is invalid", i)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("tokens[%d].decimals out of range", i)
		}
		if t.Permit != nil {
			switch currency.PermitKind(t.Permit.Type) {
			case currency.PermitEIP2612, currency.PermitAllowed:
			default:
				return fmt.Errorf("tokens[%d].permit.type must be eip2612 or allowed", i)
			}
			if t.Permit.Name == "" {
				return fmt.Errorf("tokens[%d].permit.name is required", i)
			}
		}
		if t.ApprovalMode != "" && !validApprovalMode(t.ApprovalMode) {
			return fmt.Errorf("tokens[%d].approvalMode must be exact or unlimited", i)
		}
	}

	for sym, amount := range c.Chain.Faucet {
		if _, err := c.Currency(sym); err != nil {
			return fmt.Errorf("chain.faucet: %w", err)
		}
		if d, err := decimal.NewFromString(amount); err != nil || d.IsNegative() {
			return fmt.Errorf("chain.faucet.%s must be a non-negative number", sym)
		}
	}

	switch c.Engine.Mode {
	case EngineModeMock:
		for i, p := range c.Engine.Pools {
			for _, sym := range []string{p.Token0, p.Token1} {
				if _, err := c.Currency(sym); err != nil {
					return fmt.Errorf("engine.pools[%d]: %w", i, err)
				}
			}
			for _, r := range []string{p.Reserve0, p.Reserve1} {
				if d, err := decimal.NewFromString(r); err != nil || !d.IsPositive() {
					return fmt.Errorf("engine.pools[%d] reserves must be positive numbers", i)
				}
			}
		}
	case EngineModeRemote:
		if c.Engine.WebSocket.ServerURL == "" {
			return fmt.Errorf("engine.websocket.serverUrl is required in remote mode")
		}
		if c.Engine.WebSocket.APIToken == "" {
			return fmt.Errorf("engine.websocket.apiToken is required in remote mode")
		}
	default:
		return fmt.Errorf("engine.mode must be mock or remote, got %q", c.Engine.Mode)
	}

	if c.Swap.SlippageBps >= 10000 {
		return fmt.Errorf("swap.slippageBps must be below 10000")
	}
	if c.Swap.FeeBips > 0 && !common.IsHexAddress(c.Swap.FeeRecipient) {
		return fmt.Errorf("swap.feeRecipient is required when swap.feeBips is set")
	}
	if !validApprovalMode(c.Swap.ApprovalMode) {
		return fmt.Errorf("swap.approvalMode must be exact or unlimited")
	}
	return nil
}

func validApprovalMode(m string) bool {
	return m == string(currency.ApprovalExact) || m == string(currency.ApprovalUnlimited)
}

// FindToken gets token configuration by symbol (case-insensitive)
func (c *Config) FindToken(symbol string) *TokenConfig {
	for i := range c.Tokens {
		if strings.EqualFold(c.Tokens[i].Symbol, symbol) {
			return &c.Tokens[i]
		}
	}
	return nil
}

// GasReserve returns the parsed gas reserve
func (c *Config) GasReserve() decimal.Decimal {
	d, err := decimal.NewFromString(c.Chain.GasReserve)
	if err != nil {
		return currency.DefaultGasReserve
	}
	return d
}

// Native returns the chain's native currency
func (c *Config) Native() currency.Currency {
	return currency.NewNative(c.Chain.ChainID, c.Chain.NativeSymbol, c.Chain.NativeDecimals)
}

// Currency resolves symbol to a currency; the native symbol maps to the native currency
func (c *Config) Currency(symbol string) (currency.Currency, error) {
	if strings.EqualFold(symbol, c.Chain.NativeSymbol) {
		return c.Native(), nil
	}
	t := c.FindToken(symbol)
	if t == nil {
		return currency.Currency{}, fmt.Errorf("unknown token %q", symbol)
	}
	cur := currency.NewToken(c.Chain.ChainID, common.HexToAddress(t.Address), t.Symbol, t.Decimals)
	if t.Permit != nil {
		cur = cur.WithPermit(currency.PermitInfo{
			Kind:    currency.PermitKind(t.Permit.Type),
			Name:    t.Permit.Name,
			Version: t.Permit.Version,
		})
	}
	cur.ApprovalMode = currency.ApprovalMode(t.ApprovalMode)
	return cur, nil
}
