// internal/dex/types.go
package dex

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Side distinguishes swap direction relative to the traded token.
type Side int

const (
	// SideBuy swaps SOL into the token.
	SideBuy Side = iota
	// SideSell swaps the token back into SOL.
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// Task describes one swap to execute.
type Task struct {
	// Mint is the traded token; the other leg is always wrapped SOL.
	Mint solana.PublicKey
	Side Side

	// AmountIn is lamports for buys, raw token units for sells.
	AmountIn uint64

	SlippageBps  int
	SimulateOnly bool
}

// Outcome reports a completed (or simulated) swap.
type Outcome struct {
	Signature solana.Signature
	Engine    string
	InAmount  uint64
	OutAmount uint64
	Simulated bool
}

// Engine executes swaps against one backend.
type Engine interface {
	Name() string
	Execute(ctx context.Context, task Task) (*Outcome, error)
}

// RejectedError marks a swap the backend refused outright (no route, pool
// missing, quote failure) as opposed to a transient transport error.
type RejectedError struct {
	Engine string
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s rejected swap: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s rejected swap: %s", e.Engine, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }
