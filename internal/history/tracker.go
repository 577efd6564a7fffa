package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
)

// ReceiptSource reports the on-chain status of a transaction
type ReceiptSource interface {
	Receipt(ctx context.Context, hash common.Hash) (chain.ReceiptStatus, error)
}

// Tracker polls receipts of pending transactions and finalizes them in the store
type Tracker struct {
	store    Store
	receipts ReceiptSource
	interval time.Duration
	logger   *slog.Logger
}

// NewTracker creates a receipt tracker
func NewTracker(store Store, receipts ReceiptSource, interval time.Duration, logger *slog.Logger) *Tracker {
	if interval == 0 {
		interval = 4 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    store,
		receipts: receipts,
		interval: interval,
		logger:   logger.With("component", "TxTracker"),
	}
}

// Run polls until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("Transaction tracker started", "interval", t.interval)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Transaction tracker stopped")
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll checks every pending transaction once and returns how many were finalized
func (t *Tracker) Poll(ctx context.Context) int {
	finalized := 0
	for _, tx := range t.store.Pending() {
		status, err := t.receipts.Receipt(ctx, tx.Hash)
		if err != nil {
			t.logger.Warn("Failed to check receipt", "hash", tx.Hash.Hex(), "error", err)
			continue
		}
		if status == chain.ReceiptPending {
			continue
		}
		if err := t.store.Finalize(tx.Hash, status == chain.ReceiptSuccess); err != nil {
			t.logger.Error("Failed to finalize transaction", "hash", tx.Hash.Hex(), "error", err)
			continue
		}
		finalized++
		t.logger.Info("Transaction finalized",
			"hash", tx.Hash.Hex(),
			"type", tx.Type,
			"status", status.String())
	}
	return finalized
}
