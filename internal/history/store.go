package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TxType is the kind of a tracked transaction
type TxType string

const (
	TxApproval TxType = "APPROVAL"
	TxSwap     TxType = "SWAP"
)

// Status is the lifecycle of a tracked transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Transaction is a submitted transaction with the context needed to display it
type Transaction struct {
	ID          string      `json:"id"`
	Hash        common.Hash `json:"hash"`
	Type        TxType      `json:"type"`
	Status      Status      `json:"status"`
	SubmittedAt time.Time   `json:"submittedAt"`
	FinalizedAt *time.Time  `json:"finalizedAt,omitempty"`

	// Approval context
	Token   common.Address `json:"token,omitempty"`
	Spender common.Address `json:"spender,omitempty"`

	// Swap context
	TradeType    string `json:"tradeType,omitempty"`
	InputAmount  string `json:"inputAmount,omitempty"`
	InputSymbol  string `json:"inputSymbol,omitempty"`
	OutputAmount string `json:"outputAmount,omitempty"`
	OutputSymbol string `json:"outputSymbol,omitempty"`
}

// Store is the transaction history collaborator
type Store interface {
	// Add appends a pending transaction and returns it with ID and timestamps filled in
	Add(tx Transaction) (Transaction, error)
	// Get returns the transaction with hash
	Get(hash common.Hash) (Transaction, bool)
	// GetPending returns the pending approval for (token, spender)
	GetPending(token, spender common.Address) (Transaction, bool)
	// Pending returns all pending transactions, oldest first
	Pending() []Transaction
	// List returns all transactions, oldest first
	List() []Transaction
	// Finalize records the on-chain outcome of hash
	Finalize(hash common.Hash, success bool) error
	// Remove forgets hash, as when a pending transaction is dropped
	Remove(hash common.Hash) error
	// Subscribe registers fn for every finalized or removed transaction
	Subscribe(fn func(Transaction))
}

// fileFormat is the JSON structure for persistence
type fileFormat struct {
	Transactions []Transaction `json:"transactions"`
}

// MemoryStore keeps history in memory, optionally persisted to a JSON file
type MemoryStore struct {
	filePath string
	now      func() time.Time

	mu   sync.RWMutex
	txs  map[common.Hash]*Transaction
	subs []func(Transaction)
}

// NewMemoryStore creates a store. An empty filePath disables persistence.
func NewMemoryStore(filePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		filePath: filePath,
		now:      time.Now,
		txs:      make(map[common.Hash]*Transaction),
	}
	if filePath == "" {
		return s, nil
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	for i := range f.Transactions {
		tx := f.Transactions[i]
		s.txs[tx.Hash] = &tx
	}
	return nil
}

// save writes history to disk. Caller holds s.mu.
func (s *MemoryStore) save() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(fileFormat{Transactions: s.listLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Add appends a pending transaction
func (s *MemoryStore) Add(tx Transaction) (Transaction, error) {
	if tx.Hash == (common.Hash{}) {
		return Transaction{}, fmt.Errorf("transaction hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.Hash]; exists {
		return Transaction{}, fmt.Errorf("transaction %s already tracked", tx.Hash.Hex())
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.SubmittedAt.IsZero() {
		tx.SubmittedAt = s.now()
	}
	tx.Status = StatusPending
	tx.FinalizedAt = nil
	s.txs[tx.Hash] = &tx
	return tx, s.save()
}

// Get returns the transaction with hash
func (s *MemoryStore) Get(hash common.Hash) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[hash]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// GetPending returns the most recent pending approval for (token, spender)
func (s *MemoryStore) GetPending(token, spender common.Address) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Transaction
	for _, tx := range s.txs {
		if tx.Type != TxApproval || tx.Status != StatusPending || tx.Token != token || tx.Spender != spender {
			continue
		}
		if found == nil || tx.SubmittedAt.After(found.SubmittedAt) {
			found = tx
		}
	}
	if found == nil {
		return Transaction{}, false
	}
	return *found, true
}

// Pending returns all pending transactions
func (s *MemoryStore) Pending() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.listLocked() {
		if tx.Status == StatusPending {
			out = append(out, tx)
		}
	}
	return out
}

// List returns all transactions
func (s *MemoryStore) List() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *MemoryStore) listLocked() []Transaction {
	out := make([]Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Finalize records the on-chain outcome of hash
func (s *MemoryStore) Finalize(hash common.Hash, success bool) error {
	s.mu.Lock()
	tx, ok := s.txs[hash]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s not found", hash.Hex())
	}
	if tx.Status != StatusPending {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	tx.FinalizedAt = &now
	tx.Status = StatusConfirmed
	if !success {
		tx.Status = StatusFailed
	}
	snapshot := *tx
	err := s.save()
	subs := append([]func(Transaction){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return err
}

// Remove forgets hash
func (s *MemoryStore) Remove(hash common.Hash) error {
	s.mu.Lock()
	tx, ok := s.txs[hash]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s not found", hash.Hex())
	}
	delete(s.txs, hash)
	snapshot := *tx
	err := s.save()
	subs := append([]func(Transaction){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return err
}

// Subscribe registers fn for every finalized or removed transaction
func (s *MemoryStore) Subscribe(fn func(Transaction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
