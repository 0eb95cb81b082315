// internal/dex/jupiter/jupiter.go
package jupiter

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/blockchain/solbc"
	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/wallet"
)

const wsolMint = "So11111111111111111111111111111111111111112"

type engineChain interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*solbc.SimulationResult, error)
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
}

// Config tunes transaction submission.
type Config struct {
	PriorityFeeLamports uint64
	Commitment          rpc.CommitmentType
	SimulateOnly        bool
}

// Engine executes swaps through the Jupiter aggregator.
type Engine struct {
	client *Client
	chain  engineChain
	wallet *wallet.Wallet
	cfg    Config
	logger *zap.Logger
}

const sendRetryDelay = time.Second

func NewEngine(client *Client, chain engineChain, w *wallet.Wallet, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		client: client,
		chain:  chain,
		wallet: w,
		cfg:    cfg,
		logger: logger.Named("jupiter"),
	}
}

func (e *Engine) Name() string { return "jupiter" }

// Execute quotes the route, has the API build the transaction, then signs
// and submits it.
func (e *Engine) Execute(ctx context.Context, task dex.Task) (*dex.Outcome, error) {
	inputMint, outputMint := wsolMint, task.Mint.String()
	if task.Side == dex.SideSell {
		inputMint, outputMint = task.Mint.String(), wsolMint
	}

	quote, err := e.client.GetQuote(ctx, inputMint, outputMint, task.AmountIn, task.SlippageBps)
	if err != nil {
		return nil, &dex.RejectedError{Engine: e.Name(), Reason: "no route", Err: err}
	}
	outAmount, err := quote.OutAmountUint()
	if err != nil {
		return nil, &dex.RejectedError{Engine: e.Name(), Reason: "malformed quote", Err: err}
	}

	encoded, err := e.client.BuildSwapTransaction(ctx, quote, e.wallet.PublicKey.String(), e.cfg.PriorityFeeLamports)
	if err != nil {
		return nil, &dex.RejectedError{Engine: e.Name(), Reason: "swap build failed", Err: err}
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize swap transaction: %w", err)
	}
	if err := e.wallet.SignTransaction(tx); err != nil {
		return nil, err
	}

	outcome := &dex.Outcome{
		Engine:    e.Name(),
		InAmount:  task.AmountIn,
		OutAmount: outAmount,
	}

	if task.SimulateOnly || e.cfg.SimulateOnly {
		sim, err := e.chain.SimulateTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("simulation failed: %w", err)
		}
		if sim.Err != nil {
			return nil, &dex.RejectedError{
				Engine: e.Name(),
				Reason: fmt.Sprintf("simulation error: %v", sim.Err),
			}
		}
		e.logger.Info("Swap simulated",
			zap.String("mint", task.Mint.String()),
			zap.Uint64("units_consumed", sim.UnitsConsumed))
		outcome.Simulated = true
		return outcome, nil
	}

	sig, err := e.sendWithRetry(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := e.chain.WaitForTransactionConfirmation(ctx, sig, e.cfg.Commitment); err != nil {
		return nil, fmt.Errorf("swap %s not confirmed: %w", sig, err)
	}

	e.logger.Info("Swap confirmed",
		zap.String("mint", task.Mint.String()),
		zap.String("side", task.Side.String()),
		zap.String("signature", sig.String()),
		zap.Uint64("amount_in", task.AmountIn),
		zap.Uint64("expected_out", outAmount))

	outcome.Signature = sig
	return outcome, nil
}

func (e *Engine) sendWithRetry(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := e.chain.SendTransaction(ctx, tx)
	if err == nil {
		return sig, nil
	}
	e.logger.Warn("Swap submission failed, retrying once", zap.Error(err))

	select {
	case <-ctx.Done():
		return solana.Signature{}, ctx.Err()
	case <-time.After(sendRetryDelay):
	}

	sig, retryErr := e.chain.SendTransaction(ctx, tx)
	if retryErr != nil {
		return solana.Signature{}, fmt.Errorf("swap submission failed after retry: %w", retryErr)
	}
	return sig, nil
}
