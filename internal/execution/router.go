package execution

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
)

// routerABI is the subset of the swap router used by the widget
const routerABI = `[
{"inputs":[{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"name":"","type":"bytes[]"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"}],"name":"params","type":"tuple"}],"name":"exactInput","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountOut","type":"uint256"},{"name":"amountInMaximum","type":"uint256"}],"name":"params","type":"tuple"}],"name":"exactOutput","outputs":[{"name":"amountIn","type":"uint256"}],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"token","type":"address"},{"name":"value","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"selfPermit","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"token","type":"address"},{"name":"nonce","type":"uint256"},{"name":"expiry","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"selfPermitAllowed","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[],"name":"refundETH","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"}],"name":"unwrapWETH9","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"},{"name":"feeBips","type":"uint256"},{"name":"feeRecipient","type":"address"}],"name":"unwrapWETH9WithFee","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"name":"token","type":"address"},{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"},{"name":"feeBips","type":"uint256"},{"name":"feeRecipient","type":"address"}],"name":"sweepTokenWithFee","outputs":[],"stateMutability":"payable","type":"function"}
]`

// Router is the parsed router ABI
var Router = mustParseABI(routerABI)

// AddressThis makes the router the recipient of an intermediate step
var AddressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// exactInputParams mirrors the exactInput tuple
type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// exactOutputParams mirrors the exactOutput tuple
type exactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// EncodePath encodes route as token(20) fee(3) token(20) ... in input order,
// or reversed for exact output swaps
func EncodePath(route trade.Route, exactOutput bool) ([]byte, error) {
	if len(route.Tokens) < 2 || len(route.Fees) != len(route.Tokens)-1 {
		return nil, fmt.Errorf("invalid route: %d tokens, %d fees", len(route.Tokens), len(route.Fees))
	}

	tokens := route.Tokens
	fees := route.Fees
	if exactOutput {
		tokens = make([]common.Address, len(route.Tokens))
		fees = make([]uint32, len(route.Fees))
		for i, t := range route.Tokens {
			tokens[len(tokens)-1-i] = t
		}
		for i, f := range route.Fees {
			fees[len(fees)-1-i] = f
		}
	}

	path := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*3)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			if fees[i] >= 1<<24 {
				return nil, fmt.Errorf("fee %d does not fit uint24", fees[i])
			}
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], fees[i])
			path = append(path, buf[1:]...)
		}
	}
	return path, nil
}
