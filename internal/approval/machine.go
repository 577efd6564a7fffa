package approval

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
)

// State is the approval state of a (token, spender) pair
type State int

const (
	StateUnknown State = iota
	StateNotApproved
	StatePending
	StateApproved
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateNotApproved:
		return "NOT_APPROVED"
	case StatePending:
		return "PENDING"
	case StateApproved:
		return "APPROVED"
	default:
		return "INVALID"
	}
}

// Handle references a submitted approval transaction
type Handle struct {
	Hash    common.Hash
	Token   common.Address
	Spender common.Address
	Amount  *big.Int
}

// Observer receives approval request outcomes
type Observer interface {
	ApprovalRequested(outcome string)
}

// entry is the cached view of one (token, spender) pair
type entry struct {
	allowance *big.Int // nil until read from chain
	handle    *Handle  // in-flight approval transaction
	inflight  bool     // approval submission waiting on the signer
}

// Machine tracks approval state per token for a single owner and spender.
// Allowances are read from chain; a pending approval overrides them until its
// transaction leaves the pending set of the history store, at which point the
// allowance is read again.
type Machine struct {
	reader   chain.Reader
	signer   signer.Signer
	store    history.Store
	owner    common.Address
	spender  common.Address
	mode     currency.ApprovalMode
	logger   *slog.Logger
	observer Observer

	group singleflight.Group

	mu       sync.Mutex
	entries  map[common.Address]*entry
	onChange func(token common.Address)
}

// NewMachine creates an approval machine for owner approving spender
func NewMachine(reader chain.Reader, s signer.Signer, store history.Store, spender common.Address, mode currency.ApprovalMode, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = currency.ApprovalExact
	}
	m := &Machine{
		reader:  reader,
		signer:  s,
		store:   store,
		owner:   s.Address(),
		spender: spender,
		mode:    mode,
		logger:  logger.With("component", "ApprovalMachine", "spender", spender.Hex()),
		entries: make(map[common.Address]*entry),
	}
	store.Subscribe(m.onHistory)
	return m
}

// SetObserver sets the outcome observer
func (m *Machine) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// SetChangeHandler is called when a token's state changed outside a call into the machine
func (m *Machine) SetChangeHandler(fn func(token common.Address)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Spender returns the approved spender
func (m *Machine) Spender() common.Address {
	return m.spender
}

func (m *Machine) entryLocked(token common.Address) *entry {
	e, ok := m.entries[token]
	if !ok {
		e = &entry{}
		m.entries[token] = e
	}
	return e
}

// State derives the state of c for required from cached data only.
// UNKNOWN means the allowance has not been read yet.
func (m *Machine) State(c currency.Currency, required *big.Int) (State, *Handle) {
	if c.Native {
		return StateApproved, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(c.Address, required)
}

func (m *Machine) stateLocked(token common.Address, required *big.Int) (State, *Handle) {
	e := m.entryLocked(token)
	if e.inflight {
		return StatePending, nil
	}
	if e.handle != nil {
		if tx, ok := m.store.Get(e.handle.Hash); ok && tx.Status == history.StatusPending {
			return StatePending, e.handle
		}
		// Confirmed, failed or dropped: local state can no longer be trusted
		e.handle = nil
		e.allowance = nil
	}
	if tx, ok := m.store.GetPending(token, m.spender); ok {
		e.handle = &Handle{Hash: tx.Hash, Token: token, Spender: m.spender}
		return StatePending, e.handle
	}
	if e.allowance == nil || required == nil {
		return StateUnknown, nil
	}
	if e.allowance.Cmp(required) >= 0 {
		return StateApproved, nil
	}
	return StateNotApproved, nil
}

// Sync resolves UNKNOWN by reading the allowance from chain. Read failures leave the state UNKNOWN.
func (m *Machine) Sync(ctx context.Context, c currency.Currency, required *big.Int) (State, *Handle) {
	state, h := m.State(c, required)
	if state != StateUnknown {
		return state, h
	}

	m.mu.Lock()
	needRead := m.entryLocked(c.Address).allowance == nil
	m.mu.Unlock()
	if needRead {
		if _, err := m.readAllowance(ctx, c.Address); err != nil {
			m.logger.Warn("Failed to read allowance", "token", c.Address.Hex(), "error", err)
			return StateUnknown, nil
		}
	}
	return m.State(c, required)
}

func (m *Machine) readAllowance(ctx context.Context, token common.Address) (*big.Int, error) {
	v, err, _ := m.group.Do("allowance:"+strings.ToLower(token.Hex()), func() (interface{}, error) {
		allowance, err := m.reader.Allowance(ctx, m.owner, token, m.spender)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		e := m.entryLocked(token)
		if e.handle == nil && !e.inflight {
			e.allowance = allowance
		}
		m.mu.Unlock()
		m.logger.Debug("Allowance read", "token", token.Hex(), "allowance", allowance.String())
		return allowance, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// Invalidate drops the cached allowance of token so the next Sync reads it again
func (m *Machine) Invalidate(token common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[token]; ok {
		e.allowance = nil
	}
}

// Request submits an approval transaction for c covering required.
// While an approval is pending, the existing handle is returned and nothing is
// submitted. Returns a nil handle when no approval is needed.
// The submitted transaction is registered in the history store.
func (m *Machine) Request(ctx context.Context, c currency.Currency, required *big.Int) (*Handle, error) {
	if c.Native {
		return nil, nil
	}
	swaperr.Invariant(required != nil, "approval requested without a required amount")

	m.mu.Lock()
	state, h := m.stateLocked(c.Address, required)
	m.mu.Unlock()
	switch {
	case state == StatePending && h != nil:
		return h, nil
	case state == StateApproved:
		return nil, nil
	}

	v, err, _ := m.group.Do("approve:"+strings.ToLower(c.Address.Hex()), func() (interface{}, error) {
		return m.submit(ctx, c, required)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (m *Machine) submit(ctx context.Context, c currency.Currency, required *big.Int) (*Handle, error) {
	m.mu.Lock()
	e := m.entryLocked(c.Address)
	if e.handle != nil {
		h := e.handle
		m.mu.Unlock()
		return h, nil
	}
	e.inflight = true
	observer := m.observer
	m.mu.Unlock()

	h, err := m.send(ctx, c, required)

	m.mu.Lock()
	e.inflight = false
	if err == nil {
		e.handle = h
	}
	m.mu.Unlock()

	if observer != nil {
		outcome := "submitted"
		switch {
		case errors.Is(err, swaperr.ErrUserRejected):
			outcome = "rejected"
		case err != nil:
			outcome = "failed"
		}
		observer.ApprovalRequested(outcome)
	}
	return h, err
}

func (m *Machine) send(ctx context.Context, c currency.Currency, required *big.Int) (*Handle, error) {
	mode := m.mode
	if c.ApprovalMode != "" {
		mode = c.ApprovalMode
	}
	amount := new(big.Int).Set(required)
	if mode == currency.ApprovalUnlimited {
		amount = new(big.Int).Set(chain.MaxUint256)
	}

	data, err := chain.PackApprove(m.spender, amount)
	swaperr.Invariant(err == nil, "pack approve: %v", err)

	hash, err := m.signer.SendTransaction(ctx, chain.CallData{
		To:       c.Address,
		Data:     data,
		GasLimit: chain.ApproveGasLimit,
	})
	if err != nil {
		if errors.Is(err, signer.ErrUserRejected) {
			m.logger.Info("Approval rejected", "token", c.Address.Hex())
			return nil, swaperr.UserRejected("approve", err)
		}
		m.logger.Error("Approval submission failed", "token", c.Address.Hex(), "error", err)
		return nil, swaperr.SubmissionFailed("approve", err)
	}

	h := &Handle{Hash: hash, Token: c.Address, Spender: m.spender, Amount: amount}
	if _, err := m.store.Add(history.Transaction{
		Hash:    hash,
		Type:    history.TxApproval,
		Token:   c.Address,
		Spender: m.spender,
	}); err != nil {
		m.logger.Warn("Failed to record approval", "hash", hash.Hex(), "error", err)
	}

	m.logger.Info("Approval submitted",
		"token", c.Address.Hex(),
		"symbol", c.Symbol,
		"amount", amount.String(),
		"mode", string(mode),
		"hash", hash.Hex())
	return h, nil
}

// onHistory drops local state that a finalized or removed transaction made stale
func (m *Machine) onHistory(tx history.Transaction) {
	var changed []common.Address

	m.mu.Lock()
	switch tx.Type {
	case history.TxApproval:
		if tx.Spender != m.spender {
			break
		}
		if e, ok := m.entries[tx.Token]; ok {
			if e.handle != nil && e.handle.Hash == tx.Hash {
				e.handle = nil
			}
			e.allowance = nil
			changed = append(changed, tx.Token)
		}
	case history.TxSwap:
		// A swap spends allowance
		for token, e := range m.entries {
			e.allowance = nil
			changed = append(changed, token)
		}
	}
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		for _, token := range changed {
			fn(token)
		}
	}
}
