// internal/dex/raydium/dex.go
package raydium

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/blockchain/solbc"
	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/wallet"
)

type engineChain interface {
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*solbc.SimulationResult, error)
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
}

type poolResolver interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*PoolKeys, error)
}

// Config tunes transaction building and submission.
type Config struct {
	ComputeUnits             uint32
	PriorityFeeMicroLamports uint64
	Commitment               rpc.CommitmentType
	SimulateOnly             bool
}

// Engine executes swaps directly against Raydium AMM pools.
type Engine struct {
	resolver poolResolver
	chain    engineChain
	wallet   *wallet.Wallet
	cfg      Config
	logger   *zap.Logger
}

const sendRetryDelay = time.Second

func NewEngine(resolver poolResolver, chain engineChain, w *wallet.Wallet, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		chain:    chain,
		wallet:   w,
		cfg:      cfg,
		logger:   logger.Named("raydium"),
	}
}

func (e *Engine) Name() string { return "raydium" }

// Execute resolves the pool, quotes against live reserves, and submits a
// swap transaction.
func (e *Engine) Execute(ctx context.Context, task dex.Task) (*dex.Outcome, error) {
	keys, err := e.resolver.Resolve(ctx, task.Mint)
	if err != nil {
		return nil, &dex.RejectedError{Engine: e.Name(), Reason: "pool resolution failed", Err: err}
	}

	baseReserve, quoteReserve, err := e.fetchReserves(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool reserves: %w", err)
	}

	// Orient the swap: buys spend the wrapped-SOL side, sells spend the
	// token side.
	tokenIsBase := keys.BaseIsToken(task.Mint)
	reserveIn, reserveOut := quoteReserve, baseReserve
	if tokenIsBase == (task.Side == dex.SideSell) {
		reserveIn, reserveOut = baseReserve, quoteReserve
	}

	quote, err := ComputeQuote(reserveIn, reserveOut, task.AmountIn, task.SlippageBps)
	if err != nil {
		return nil, &dex.RejectedError{Engine: e.Name(), Reason: "quote failed", Err: err}
	}

	tx, err := e.buildTransaction(ctx, task, keys, quote)
	if err != nil {
		return nil, err
	}

	outcome := &dex.Outcome{
		Engine:    e.Name(),
		InAmount:  quote.AmountIn,
		OutAmount: quote.ExpectedOut,
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
		zap.Uint64("amount_in", quote.AmountIn),
		zap.Uint64("expected_out", quote.ExpectedOut))

	outcome.Signature = sig
	return outcome, nil
}

func (e *Engine) fetchReserves(ctx context.Context, keys *PoolKeys) (base, quote uint64, err error) {
	res, err := e.chain.GetMultipleAccounts(ctx, []solana.PublicKey{keys.BaseVault, keys.QuoteVault})
	if err != nil {
		return 0, 0, err
	}
	if len(res.Value) != 2 || res.Value[0] == nil || res.Value[1] == nil {
		return 0, 0, fmt.Errorf("pool vaults missing for %s", keys.ID)
	}
	base, err = TokenAccountAmount(res.Value[0].Data.GetBinary())
	if err != nil {
		return 0, 0, err
	}
	quote, err = TokenAccountAmount(res.Value[1].Data.GetBinary())
	if err != nil {
		return 0, 0, err
	}
	return base, quote, nil
}

func (e *Engine) buildTransaction(ctx context.Context, task dex.Task, keys *PoolKeys, quote *Quote) (*solana.Transaction, error) {
	owner := e.wallet.PublicKey

	wsolATA, err := e.wallet.GetATA(WSOLMint)
	if err != nil {
		return nil, err
	}
	tokenATA, err := e.wallet.GetATA(task.Mint)
	if err != nil {
		return nil, err
	}

	instructions := BuildComputeBudgetInstructions(e.cfg.ComputeUnits, e.cfg.PriorityFeeMicroLamports)

	createWSOL, err := e.wallet.CreateATAIdempotentInstruction(WSOLMint)
	if err != nil {
		return nil, err
	}

	var source, destination solana.PublicKey
	if task.Side == dex.SideBuy {
		// Fund the wrapped-SOL account with the exact input and make sure
		// the token account exists to receive the output.
		instructions = append(instructions, BuildWrapSOLInstructions(owner, wsolATA, task.AmountIn, createWSOL)...)
		createToken, err := e.wallet.CreateATAIdempotentInstruction(task.Mint)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, createToken)
		source, destination = wsolATA, tokenATA
	} else {
		instructions = append(instructions, createWSOL)
		source, destination = tokenATA, wsolATA
	}

	instructions = append(instructions, BuildSwapInstruction(SwapParams{
		Keys:            keys,
		UserSource:      source,
		UserDestination: destination,
		Owner:           owner,
		AmountIn:        quote.AmountIn,
		MinimumOut:      quote.MinimumOut,
	}))

	// Unwrap whatever SOL the account ends up holding.
	instructions = append(instructions, BuildCloseAccountInstruction(wsolATA, owner))

	blockhash, err := e.chain.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	if err := e.wallet.SignTransaction(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// sendWithRetry submits the transaction, retrying once after a fixed delay.
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
