// internal/trader/scheduler.go
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/price"
	"github.com/soltank/soltank-bot/internal/signal"
	"github.com/soltank/soltank-bot/internal/storage"
)

type sellRunner interface {
	RunTrade(ctx context.Context, sig *signal.Signal) (*dex.Outcome, error)
}

type positionStore interface {
	ListBuysByChain(ctx context.Context, chain string) ([]*storage.Buy, error)
	UpdatePriceFactor(ctx context.Context, id int64, priceFactor int) error
	DeleteBuy(ctx context.Context, id int64) error
}

// SchedulerConfig tunes the sell loop.
type SchedulerConfig struct {
	Interval time.Duration
	// Ladder is the ascending price-multiple sequence. Index 0 acts as a
	// stop-loss-like floor; the last index is the terminal take-profit.
	Ladder   []float64
	Chain    string
	Platform string
}

// Scheduler walks open positions on a fixed interval and emits sell signals
// when the price crosses the ladder threshold for the row's current rung.
// It is the only writer that deletes ledger rows.
type Scheduler struct {
	store  positionStore
	oracle priceOracle
	runner sellRunner
	cfg    SchedulerConfig
	logger *zap.Logger
}

func NewScheduler(store positionStore, oracle priceOracle, runner sellRunner, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if len(cfg.Ladder) < 2 {
		return nil, fmt.Errorf("ladder needs at least two multiples, got %d", len(cfg.Ladder))
	}
	for i := 1; i < len(cfg.Ladder); i++ {
		if cfg.Ladder[i] <= cfg.Ladder[i-1] {
			return nil, fmt.Errorf("ladder must be strictly ascending")
		}
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &Scheduler{
		store:  store,
		oracle: oracle,
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("scheduler"),
	}, nil
}

// Run ticks until the context ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every open position once. Failures on one position never
// block the rest.
func (s *Scheduler) Tick(ctx context.Context) {
	buys, err := s.store.ListBuysByChain(ctx, s.cfg.Chain)
	if err != nil {
		s.logger.Error("Failed to load open positions", zap.Error(err))
		return
	}

	// One oracle lookup per distinct mint per tick; several positions on the
	// same token share the reading.
	prices := make(map[string]price.Result)
	for _, buy := range buys {
		if err := s.evaluate(ctx, buy, prices); err != nil {
			s.logger.Warn("Position evaluation failed",
				zap.Int64("buy_id", buy.ID),
				zap.String("mint", buy.ContractAddress),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, buy *storage.Buy, prices map[string]price.Result) error {
	rung := buy.PriceFactor
	if rung >= len(s.cfg.Ladder) {
		rung = len(s.cfg.Ladder) - 1
	}

	result, ok := prices[buy.ContractAddress]
	if !ok {
		result = s.oracle.TokenPrice(ctx, buy.ContractAddress)
		prices[buy.ContractAddress] = result
	}
	if !result.Priced() {
		// No price means no trade, not a zero-price sell.
		s.logger.Debug("Price unavailable, skipping position",
			zap.String("mint", buy.ContractAddress))
		return nil
	}
	current := *result.USDPrice

	threshold := buy.PurchasedPrice * s.cfg.Ladder[rung]
	if current < threshold {
		return nil
	}

	terminal := rung == len(s.cfg.Ladder)-1
	percent := "50"
	if terminal {
		percent = "100"
	}

	s.logger.Info("Price threshold crossed, selling",
		zap.String("mint", buy.ContractAddress),
		zap.Float64("current_price", current),
		zap.Float64("threshold", threshold),
		zap.Int("price_factor", buy.PriceFactor),
		zap.String("percent", percent))

	sig := &signal.Signal{
		ID:              uuid.New().String(),
		ContractAddress: buy.ContractAddress,
		Action:          signal.ActionSell,
		Amount:          percent,
		Platform:        s.cfg.Platform,
		Chain:           s.cfg.Chain,
		Timestamp:       time.Now().UTC(),
		LedgerID:        buy.ID,
	}

	outcome, err := s.runner.RunTrade(ctx, sig)
	if err != nil {
		return fmt.Errorf("sell failed: %w", err)
	}
	if outcome.Simulated {
		// A simulated sell proves the route but must not mutate the
		// position it did not actually liquidate.
		return nil
	}

	if terminal {
		return s.store.DeleteBuy(ctx, buy.ID)
	}
	return s.store.UpdatePriceFactor(ctx, buy.ID, buy.PriceFactor+1)
}
