package signer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PromptKind is what the account holder is asked to approve
type PromptKind string

const (
	PromptTransaction PromptKind = "transaction"
	PromptSignature   PromptKind = "signature"
)

// Prompt describes a pending request to the account holder
type Prompt struct {
	Kind      PromptKind
	To        common.Address
	Value     *big.Int
	Data      []byte
	TypedData *apitypes.TypedData
}

// ConfirmFunc decides whether a request is approved. Returning false rejects it.
type ConfirmFunc func(ctx context.Context, p Prompt) bool

// AutoConfirm approves every request
func AutoConfirm(context.Context, Prompt) bool { return true }

// TerminalConfirm asks on w and reads a y/N answer from r
func TerminalConfirm(r io.Reader, w io.Writer) ConfirmFunc {
	reader := bufio.NewReader(r)
	var mu sync.Mutex
	return func(ctx context.Context, p Prompt) bool {
		mu.Lock()
		defer mu.Unlock()

		switch p.Kind {
		case PromptSignature:
			primary := ""
			if p.TypedData != nil {
				primary = p.TypedData.PrimaryType
			}
			fmt.Fprintf(w, "\nSign %s for %s? (y/N): ", primary, p.To.Hex())
		default:
			fmt.Fprintf(w, "\nSend transaction to %s (value %s wei, %d bytes)? (y/N): ", p.To.Hex(), p.Value, len(p.Data))
		}

		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return false
		}
		response = strings.TrimSpace(strings.ToLower(response))
		return response == "y" || response == "yes"
	}
}
