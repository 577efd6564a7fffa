package trade

import (
	"context"
	"log/slog"
)

// Optimize is the second resolution stage. When the engine can price a
// permit-authorized variant of base it is returned, otherwise base is kept.
// Any failure of the optimizer falls back to base.
func Optimize(ctx context.Context, engine Engine, base *Trade, logger *slog.Logger) *Trade {
	opt, ok := engine.(Optimizer)
	if !ok || base == nil || !base.InputAmount.Currency.SupportsPermit() {
		return base
	}
	optimized, err := opt.OptimizeTrade(ctx, base)
	if err != nil || optimized == nil {
		if err != nil && logger != nil {
			logger.Debug("Optimized trade unavailable, using base trade", "error", err)
		}
		return base
	}
	if !optimized.InputAmount.Currency.Equal(base.InputAmount.Currency) ||
		!optimized.OutputAmount.Currency.Equal(base.OutputAmount.Currency) {
		return base
	}
	return optimized
}
