// internal/dex/selector.go
package dex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Mode names for the swap engine selector.
const (
	ModeJupiter = "jupiter"
	ModeRaydium = "raydium"
	ModeAuto    = "auto"
)

// Selector routes swaps to the configured backend. In auto mode the
// aggregator is tried first and the direct-pool engine is used as a one-shot
// fallback when the aggregator fails.
type Selector struct {
	mode    string
	jupiter Engine
	raydium Engine
	logger  *zap.Logger
}

func NewSelector(mode string, jupiter, raydium Engine, logger *zap.Logger) (*Selector, error) {
	switch mode {
	case ModeJupiter, ModeRaydium, ModeAuto:
	default:
		return nil, fmt.Errorf("unknown swap engine mode %q", mode)
	}
	return &Selector{
		mode:    mode,
		jupiter: jupiter,
		raydium: raydium,
		logger:  logger.Named("selector"),
	}, nil
}

// Execute runs the task on the selected backend.
func (s *Selector) Execute(ctx context.Context, task Task) (*Outcome, error) {
	switch s.mode {
	case ModeJupiter:
		return s.jupiter.Execute(ctx, task)
	case ModeRaydium:
		return s.raydium.Execute(ctx, task)
	}

	outcome, err := s.jupiter.Execute(ctx, task)
	if err == nil {
		return outcome, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	s.logger.Warn("Aggregator swap failed, falling back to direct pool",
		zap.String("mint", task.Mint.String()),
		zap.String("side", task.Side.String()),
		zap.Error(err))

	outcome, fbErr := s.raydium.Execute(ctx, task)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback failed after %v: %w", err, fbErr)
	}
	return outcome, nil
}
