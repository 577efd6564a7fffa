package trade

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/swaperr"
)

// Snapshot is the resolver's current view of the trade
type Snapshot struct {
	Seq           uint64
	IntentVersion uint64
	State         State
	Trade         *Trade // last known trade while SYNCING, the resolved trade when VALID
	Err           error  // cause of INVALID
}

// Observer receives resolution outcomes
type Observer interface {
	TradeResolved(state State, elapsed time.Duration)
	StaleDropped()
}

// UpdateHandler is called after every applied state change
type UpdateHandler func(Snapshot)

// Ticket identifies one dispatched resolution request
type Ticket struct {
	Seq           uint64
	IntentVersion uint64
	Request       Request

	ctx     context.Context
	started time.Time
}

// Context is cancelled once the ticket is superseded
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Resolver maps intents to trades. Each request is fenced by a monotonically
// increasing sequence number: only the result of the latest request is applied,
// earlier ones are cancelled and dropped on arrival.
type Resolver struct {
	engine   Engine
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	snap     Snapshot
	onUpdate UpdateHandler

	wg sync.WaitGroup
}

// NewResolver creates a trade resolver
func NewResolver(engine Engine, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		engine:  engine,
		logger:  logger.With("component", "TradeResolver"),
		timeout: 15 * time.Second,
	}
}

// SetObserver sets the outcome observer
func (r *Resolver) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// SetUpdateHandler sets the state change callback
func (r *Resolver) SetUpdateHandler(h UpdateHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = h
}

// SetTimeout bounds a single engine call
func (r *Resolver) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// Snapshot returns the current state
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Begin supersedes any in-flight request and records a new one for in.
// Returns nil when the intent is incomplete, in which case the state becomes NO_TRADE.
func (r *Resolver) Begin(ctx context.Context, in intent.Intent) *Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	req, ok := RequestFor(in)
	if !ok {
		r.snap = Snapshot{Seq: r.seq, IntentVersion: in.Version, State: StateNoTrade}
		return nil
	}

	next := Snapshot{Seq: r.seq, IntentVersion: in.Version, State: StateLoading}
	if (r.snap.State == StateValid || r.snap.State == StateSyncing) && r.snap.Trade != nil {
		next.State = StateSyncing
		next.Trade = r.snap.Trade
	}
	r.snap = next

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	r.cancel = cancel
	return &Ticket{
		Seq:           r.seq,
		IntentVersion: in.Version,
		Request:       req,
		ctx:           reqCtx,
		started:       time.Now(),
	}
}

// Complete applies the outcome of ticket if it is still the latest request.
// Returns false when the result was stale and dropped.
func (r *Resolver) Complete(ticket *Ticket, t *Trade, err error) bool {
	r.mu.Lock()
	if ticket == nil || ticket.Seq != r.seq {
		observer := r.observer
		r.mu.Unlock()
		if ticket != nil {
			r.logger.Debug("Dropping stale trade result",
				"seq", ticket.Seq,
				"error", swaperr.New(swaperr.CodeStaleResult, "resolve", err))
		}
		if observer != nil {
			observer.StaleDropped()
		}
		return false
	}

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	next := Snapshot{Seq: ticket.Seq, IntentVersion: ticket.IntentVersion}
	switch {
	case err != nil:
		next.State = StateInvalid
		if !errors.Is(err, swaperr.ErrNoRoute) {
			err = swaperr.NoRoute("resolve", err)
		}
		next.Err = err
	case t == nil:
		next.State = StateInvalid
		next.Err = swaperr.NoRoute("resolve", nil)
	default:
		next.State = StateValid
		next.Trade = t
	}
	r.snap = next
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer.TradeResolved(next.State, time.Since(ticket.started))
	}
	if next.Err != nil {
		r.logger.Info("Trade unavailable", "seq", ticket.Seq, "error", next.Err)
	} else {
		r.logger.Debug("Trade resolved",
			"seq", ticket.Seq,
			"type", t.Type.String(),
			"in", t.InputAmount.String(),
			"out", t.OutputAmount.String())
	}
	return true
}

// Resolve starts asynchronous resolution of in and returns immediately.
// The update handler is notified when the request is dispatched and when it settles.
func (r *Resolver) Resolve(ctx context.Context, in intent.Intent) {
	ticket := r.Begin(ctx, in)
	r.notify()
	if ticket == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t, err := r.engine.GetTrade(ticket.ctx, ticket.Request)
		if err == nil && t != nil {
			t = Optimize(ticket.ctx, r.engine, t, r.logger)
		}
		if r.Complete(ticket, t, err) {
			r.notify()
		}
	}()
}

// Cancel drops interest in the in-flight request. A LOADING or SYNCING
// state falls back to NO_TRADE since no result will arrive.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	pending := r.snap.State == StateLoading || r.snap.State == StateSyncing
	if pending {
		r.snap = Snapshot{Seq: r.seq, IntentVersion: r.snap.IntentVersion, State: StateNoTrade}
	}
	r.mu.Unlock()

	if pending {
		r.notify()
	}
}

// Wait blocks until all dispatched requests have settled
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) notify() {
	r.mu.Lock()
	h := r.onUpdate
	snap := r.snap
	r.mu.Unlock()
	if h != nil {
		h(snap)
	}
}
