package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/action"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/approval"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/chain"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/config"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/currency"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/execution"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/history"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/intent"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/metrics"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/permit"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/session"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/signer"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/trade"
	"github.com/ThetaSpace/DarkPool-Swap-Widget/internal/ws"
)

// Order is a swap requested from the command line. An empty order only
// runs the transaction tracker until shutdown.
type Order struct {
	In       string // input symbol
	Out      string // output symbol
	Amount   string
	ExactOut bool // Amount is the output amount
	Max      bool // spend the whole input balance
}

// Empty reports whether no swap was requested
func (o Order) Empty() bool {
	return o.In == "" && o.Out == ""
}

// Runner is the service runner
// Responsible for orchestrating and starting all components
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	sim      *chain.Simulated // nil in rpc mode
	reader   *chain.EthReader
	wsClient ws.Client // nil with the mock engine
	signer   signer.Signer
	store    *history.MemoryStore
	tracker  *history.Tracker
	metrics  *metrics.Metrics
	server   *metrics.Server
	resolver *trade.Resolver
	session  *session.Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a service runner. confirm decides on every wallet request.
func New(cfg *config.Config, logger *slog.Logger, confirm signer.ConfirmFunc) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if err := r.init(confirm); err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

func (r *Runner) init(confirm signer.ConfirmFunc) error {
	cfg, logger := r.cfg, r.logger
	router := common.HexToAddress(cfg.Router.Address)

	// 1. Initialize chain backend
	var backend interface {
		chain.Backend
		signer.Broadcaster
	}
	switch cfg.Chain.Mode {
	case config.ChainModeSimulated:
		r.sim = chain.NewSimulated(cfg.Chain.ChainID)
		backend = r.sim
		logger.Info("Using simulated chain", "chainId", cfg.Chain.ChainID)
	default:
		dialCtx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		client, err := chain.Dial(dialCtx, cfg.Chain.RPCURL)
		cancel()
		if err != nil {
			return err
		}
		backend = client
		logger.Info("Connected to RPC endpoint", "chainId", cfg.Chain.ChainID)
	}
	r.reader = chain.NewEthReader(backend)

	// 2. Initialize signer
	s, err := r.newSigner(backend, confirm)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	r.signer = s
	logger.Info("Signer initialized", "address", s.Address().Hex())

	if r.sim != nil {
		if err := r.fund(s.Address()); err != nil {
			return fmt.Errorf("failed to fund simulated account: %w", err)
		}
	}

	// 3. Initialize transaction history
	store, err := history.NewMemoryStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	r.store = store
	r.tracker = history.NewTracker(store, r.reader, cfg.History.PollInterval, logger)
	logger.Info("History initialized", "path", cfg.History.Path, "pending", len(store.Pending()))

	// 4. Initialize metrics
	r.metrics = metrics.New()
	r.server = metrics.NewServer(cfg.Metrics.Listen, r.metrics, logger)

	// 5. Initialize trade engine
	var engine trade.Engine
	switch cfg.Engine.Mode {
	case config.EngineModeRemote:
		r.wsClient = ws.NewClient(&ws.Config{
			ServerURL:            cfg.Engine.WebSocket.ServerURL,
			APIToken:             cfg.Engine.WebSocket.APIToken,
			ReconnectInterval:    cfg.Engine.WebSocket.ReconnectInterval,
			MaxReconnectAttempts: cfg.Engine.WebSocket.MaxReconnectAttempts,
			HeartbeatInterval:    cfg.Engine.WebSocket.HeartbeatInterval,
			ReadTimeout:          cfg.Engine.WebSocket.ReadTimeout,
			WriteTimeout:         cfg.Engine.WebSocket.WriteTimeout,
		}, logger)
		engine = trade.NewRemoteEngine(r.wsClient, cfg.Chain.ChainID, cfg.Engine.Timeout, logger)
		logger.Info("Trade engine initialized (remote)", "server", cfg.Engine.WebSocket.ServerURL)
	default:
		mock, err := MockEngine(cfg)
		if err != nil {
			return fmt.Errorf("failed to build mock engine: %w", err)
		}
		engine = mock
		logger.Info("Trade engine initialized (mock)", "pools", len(cfg.Engine.Pools))
	}

	// 6. Initialize trade resolver
	r.resolver = trade.NewResolver(engine, logger)
	r.resolver.SetObserver(r.metrics)
	r.resolver.SetTimeout(cfg.Engine.Timeout)

	// 7. Initialize approval machine and permit flow
	approvals := approval.NewMachine(r.reader, s, store, router, currency.ApprovalMode(cfg.Swap.ApprovalMode), logger)
	approvals.SetObserver(r.metrics)
	permits := permit.NewFlow(r.reader, s, router, logger)
	permits.SetObserver(r.metrics)

	// 8. Initialize executor
	executor := execution.NewExecutor(router, s, store, logger)
	executor.SetObserver(r.metrics)

	// 9. Initialize session
	sessCfg := session.Config{
		SlippageBps: cfg.Swap.SlippageBps,
		DeadlineTTL: cfg.Swap.Deadline,
		GasReserve:  cfg.GasReserve(),
	}
	if cfg.Swap.FeeBips > 0 {
		sessCfg.Fee = &execution.FeeOptions{
			Bips:      cfg.Swap.FeeBips,
			Recipient: common.HexToAddress(cfg.Swap.FeeRecipient),
		}
	}
	r.session = session.New(r.ctx, session.Deps{
		Owner:     s.Address(),
		Resolver:  r.resolver,
		Approvals: approvals,
		Permits:   permits,
		Executor:  executor,
		Balances:  r.reader,
		History:   store,
	}, sessCfg, logger)

	return nil
}

// newSigner builds the configured signer. A simulated chain without a
// configured key runs with a throwaway account.
func (r *Runner) newSigner(backend signer.Broadcaster, confirm signer.ConfirmFunc) (signer.Signer, error) {
	if _, err := r.cfg.Signer.GetPrivateKey(); err != nil && r.sim != nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		r.logger.Warn("No private key configured, using an ephemeral account")
		return signer.NewSigner(key, r.cfg.Chain.ChainID, backend, confirm, r.logger), nil
	}
	return signer.NewSignerFromConfig(&signer.SignerConfig{
		PrivateKey:    r.cfg.Signer.PrivateKey,
		PrivateKeyEnv: r.cfg.Signer.PrivateKeyEnv,
		ChainID:       r.cfg.Chain.ChainID,
	}, backend, confirm, r.logger)
}

// fund credits the faucet balances to owner on the simulated chain
func (r *Runner) fund(owner common.Address) error {
	for sym, raw := range r.cfg.Chain.Faucet {
		c, err := r.cfg.Currency(sym)
		if err != nil {
			return err
		}
		amount, err := currency.ParseAmount(c, raw)
		if err != nil {
			return err
		}
		if c.Native {
			r.sim.SetNativeBalance(owner, amount.Raw())
		} else {
			r.sim.SetTokenBalance(c.Address, owner, amount.Raw())
		}
		r.logger.Info("Funded simulated account", "amount", amount.String())
	}
	return nil
}

// MockEngine builds the mock trade engine from the configured pools
func MockEngine(cfg *config.Config) (*trade.MockEngine, error) {
	engine := trade.NewMockEngine()
	for i, p := range cfg.Engine.Pools {
		c0, err := cfg.Currency(p.Token0)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		c1, err := cfg.Currency(p.Token1)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		r0, err := currency.ParseAmount(c0, p.Reserve0)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		r1, err := currency.ParseAmount(c1, p.Reserve1)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		engine.AddPool(trade.Pool{
			Token0:   c0.TokenAddress(),
			Token1:   c1.TokenAddress(),
			Reserve0: r0.Raw(),
			Reserve1: r1.Raw(),
			Fee:      p.Fee,
		})
	}
	return engine, nil
}

// Session returns the swap session
func (r *Runner) Session() *session.Session {
	return r.session
}

// Run runs the service. A non-empty order is executed once, then the
// runner shuts down; otherwise it tracks transactions until signalled.
func (r *Runner) Run(ctx context.Context, order Order) error {
	r.logger.Info("Starting swap service",
		"app", r.cfg.App.Name,
		"chainMode", r.cfg.Chain.Mode,
		"engineMode", r.cfg.Engine.Mode)

	// Create cancellable context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for system signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start WebSocket connection
	if r.wsClient != nil {
		// Requests in flight fail on disconnect, so quote again once back
		r.wsClient.SetReconnectedHandler(func() {
			r.logger.Info("Trade engine reconnected, requoting")
			r.session.Requote()
		})
		r.logger.Info("Connecting to trade engine...")
		if err := r.wsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to WebSocket: %w", err)
		}
	}

	if err := r.server.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Start transaction tracker
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.track(r.ctx)
	}()

	if err := r.session.RefreshBalances(ctx); err != nil {
		r.logger.Warn("Failed to refresh balances", "error", err)
	}

	if order.Empty() {
		r.logger.Info("Swap service started, tracking transactions")
		select {
		case sig := <-sigCh:
			r.logger.Info("Received signal, shutting down", "signal", sig)
		case <-ctx.Done():
			r.logger.Info("Context cancelled, shutting down")
		}
		return r.Shutdown()
	}

	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Info("Received signal, cancelling swap", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := r.Swap(ctx, order)
	if shutdownErr := r.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// track finalizes pending transactions. The simulated chain mines every
// pending transaction on each tick.
func (r *Runner) track(ctx context.Context) {
	if r.sim == nil {
		r.tracker.Run(ctx)
		return
	}
	ticker := time.NewTicker(r.cfg.History.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sim.Mine(); n > 0 {
				r.logger.Debug("Mined simulated transactions", "count", n)
			}
			r.tracker.Poll(ctx)
		}
	}
}

// Swap drives the session through one swap: select currencies, enter the
// amount, approve when the button asks for it, review, then confirm and
// wait for the swap transaction to finalize.
func (r *Runner) Swap(ctx context.Context, order Order) error {
	in, err := r.cfg.Currency(order.In)
	if err != nil {
		return err
	}
	out, err := r.cfg.Currency(order.Out)
	if err != nil {
		return err
	}

	changes := make(chan struct{}, 1)
	r.session.OnChange(func(session.View) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	r.session.SetCurrency(intent.FieldInput, &in)
	r.session.SetCurrency(intent.FieldOutput, &out)

	field := intent.FieldInput
	if order.ExactOut {
		field = intent.FieldOutput
	}
	if order.Max {
		if err := r.session.RefreshBalances(ctx); err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if !r.session.SetMax(intent.FieldInput) {
			return fmt.Errorf("no %s balance to spend", in.Symbol)
		}
	} else {
		r.session.SetAmount(field, order.Amount)
	}

	v, err := r.await(ctx, changes, settled)
	if err != nil {
		return err
	}

	if v.Action.Kind == action.KindApprove {
		r.logger.Info("Approval required", "token", in.Symbol, "approval", v.Approval.String())
		h, err := r.session.RequestApproval(ctx)
		if err != nil {
			return fmt.Errorf("approval failed: %w", err)
		}
		if h != nil {
			r.logger.Info("Approval submitted, waiting for confirmation", "hash", h.Hash.Hex())
		}
		if v, err = r.await(ctx, changes, func(v session.View) bool {
			return v.Action.Kind != action.KindApprovePending && settled(v)
		}); err != nil {
			return err
		}
	}
	if v.Action.Kind != action.KindSwap {
		return fmt.Errorf("%w: %s", session.ErrNotReady, v.Action.Reason)
	}

	active, err := r.session.Review()
	if err != nil {
		return err
	}
	t := active.Trade
	r.logger.Info("Reviewing trade",
		"id", active.ID,
		"type", t.Type.String(),
		"input", t.InputAmount.String(),
		"output", t.OutputAmount.String(),
		"maxIn", t.MaximumAmountIn(r.cfg.Swap.SlippageBps).String(),
		"minOut", t.MinimumAmountOut(r.cfg.Swap.SlippageBps).String(),
		"hops", t.Route.Hops(),
		"permit", active.Permit != nil)

	tx, err := r.session.ConfirmAndExecute(ctx)
	if err != nil {
		return fmt.Errorf("swap failed: %w", err)
	}
	r.logger.Info("Swap submitted, waiting for confirmation", "hash", tx.Hash.Hex())

	if _, err := r.await(ctx, changes, func(session.View) bool {
		got, ok := r.store.Get(tx.Hash)
		return ok && got.Status != history.StatusPending
	}); err != nil {
		return err
	}
	final, _ := r.store.Get(tx.Hash)
	if final.Status == history.StatusFailed {
		return fmt.Errorf("swap transaction %s reverted", tx.Hash.Hex())
	}
	r.logger.Info("Swap confirmed", "hash", tx.Hash.Hex())
	return nil
}

// settled reports whether the button no longer waits on a pending lookup
func settled(v session.View) bool {
	switch v.Action.Kind {
	case action.KindSwap, action.KindApprove:
		return true
	case action.KindDisabled:
		switch v.Action.Reason {
		case action.ReasonLoading, action.ReasonBalanceUnknown, action.ReasonCheckingApproval:
			return false
		}
		return true
	}
	return false
}

// await re-evaluates done on every session change, and at least once per
// second, until it holds or ctx ends
func (r *Runner) await(ctx context.Context, changes <-chan struct{}, done func(session.View) bool) (session.View, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		v := r.session.View()
		if done(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-changes:
		case <-ticker.C:
		}
	}
}

// Shutdown gracefully shuts down the service
func (r *Runner) Shutdown() error {
	r.logger.Info("Shutting down swap service...")

	r.cancel()
	r.resolver.Cancel()
	r.session.Wait()
	r.wg.Wait()

	// Close WebSocket connection
	if r.wsClient != nil {
		if err := r.wsClient.Close(); err != nil {
			r.logger.Error("Failed to close WebSocket", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Stop(ctx); err != nil {
		r.logger.Error("Failed to stop metrics server", "error", err)
	}

	r.logger.Info("Swap service stopped")
	return nil
}
