// internal/trader/service.go
package trader

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/price"
	"github.com/soltank/soltank-bot/internal/signal"
	"github.com/soltank/soltank-bot/internal/storage"
	"github.com/soltank/soltank-bot/internal/wallet"
)

const (
	lamportsPerSOL = 1_000_000_000

	// wsolMint prices the SOL leg of a buy for cost-basis computation.
	wsolMint = "So11111111111111111111111111111111111111112"
)

// Executor runs one swap; the engine selector satisfies it.
type Executor interface {
	Execute(ctx context.Context, task dex.Task) (*dex.Outcome, error)
}

type classifier interface {
	Classify(contractAddress string, action signal.Action) signal.Classification
}

type priceOracle interface {
	TokenPrice(ctx context.Context, mint string) price.Result
}

type ledgerStore interface {
	InsertBuys(ctx context.Context, buys []*storage.Buy) error
	ClearAllBuys(ctx context.Context) (int64, error)
	ClearBuysNotIn(ctx context.Context, mints []string) (int64, error)
}

type holdingsReader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetTokenAccountUIBalance(ctx context.Context, account solana.PublicKey) (float64, error)
}

// Config carries the trade-level knobs.
type Config struct {
	Platform        string
	Chain           string
	SlippageBps     int
	SimulateOnly    bool
	SolBuyAmountMin float64
	SolBuyAmountMax float64
	QueueSize       int
}

// Service owns the signal queue and executes trades one at a time. All trade
// paths, live ingestion and the sell scheduler alike, serialize through it so
// the single trading keypair never races itself on blockhashes.
type Service struct {
	classifier classifier
	executor   Executor
	oracle     priceOracle
	ledger     ledgerStore
	holdings   holdingsReader
	wallet     *wallet.Wallet
	notifier   Notifier
	cfg        Config
	logger     *zap.Logger

	queue chan *signal.Signal

	// execMu is the single-writer gate for swap execution.
	execMu sync.Mutex
}

func NewService(
	cls classifier,
	executor Executor,
	oracle priceOracle,
	ledger ledgerStore,
	holdings holdingsReader,
	w *wallet.Wallet,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Service{
		classifier: cls,
		executor:   executor,
		oracle:     oracle,
		ledger:     ledger,
		holdings:   holdings,
		wallet:     w,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.Named("trader"),
		queue:      make(chan *signal.Signal, cfg.QueueSize),
	}
}

// CreateSignal validates and classifies a trade intent and, if accepted,
// queues it for execution. A buy classified as an update is suppressed: the
// token was already bought this session. Sells are never suppressed.
func (s *Service) CreateSignal(ctx context.Context, contractAddress, amount string, action signal.Action) (bool, error) {
	pk, err := solana.PublicKeyFromBase58(contractAddress)
	if err != nil {
		return false, fmt.Errorf("invalid contract address %q: %w", contractAddress, err)
	}
	if !pk.IsOnCurve() {
		// Program-derived addresses parse as valid base58 but can never be
		// a token mint.
		return false, fmt.Errorf("contract address %q is not on the ed25519 curve", contractAddress)
	}

	classification := s.classifier.Classify(contractAddress, action)
	if action == signal.ActionBuy && classification.Kind == signal.KindUpdate {
		s.logger.Info("Suppressing repeat buy signal",
			zap.String("mint", contractAddress),
			zap.Int("version", classification.Version))
		return false, nil
	}

	if amount == "" && action == signal.ActionBuy {
		amount = s.randomBuyAmount()
	}

	sig := &signal.Signal{
		ID:              uuid.New().String(),
		ContractAddress: contractAddress,
		Action:          action,
		Amount:          amount,
		Platform:        s.cfg.Platform,
		Chain:           s.cfg.Chain,
		Timestamp:       time.Now().UTC(),
		Classification:  classification,
	}

	select {
	case s.queue <- sig:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Run drains the signal queue until the context ends. Trade failures are
// notified and logged, never propagated: the service stays alive across
// failed trades.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-s.queue:
			if _, err := s.RunTrade(ctx, sig); err != nil {
				s.logger.Error("Trade failed",
					zap.String("signal_id", sig.ID),
					zap.String("mint", sig.ContractAddress),
					zap.String("action", string(sig.Action)),
					zap.Error(err))
			}
		}
	}
}

// RunTrade executes one signal end to end: swap, notification, and for
// confirmed buys the ledger record. It is safe to call from multiple
// goroutines; execution is serialized internally.
func (s *Service) RunTrade(ctx context.Context, sig *signal.Signal) (*dex.Outcome, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	trade, err := s.prepare(ctx, sig)
	if err != nil {
		s.notify(ctx, sig, nil, err)
		return nil, err
	}

	outcome, err := s.executor.Execute(ctx, trade.task)
	s.notify(ctx, sig, outcome, err)
	if err != nil {
		return nil, err
	}

	if sig.Action == signal.ActionBuy && !outcome.Simulated {
		s.recordBuy(ctx, sig, trade)
	}
	return outcome, nil
}

// preparedTrade carries the swap task plus the pre-trade readings a buy
// needs for cost-basis computation afterwards.
type preparedTrade struct {
	task dex.Task

	tokenPrice    float64
	tokenATA      solana.PublicKey
	balanceBefore float64
	balanceKnown  bool
}

func (s *Service) prepare(ctx context.Context, sig *signal.Signal) (*preparedTrade, error) {
	mint, err := solana.PublicKeyFromBase58(sig.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid mint in signal %s: %w", sig.ID, err)
	}

	trade := &preparedTrade{task: dex.Task{
		Mint:         mint,
		SlippageBps:  s.cfg.SlippageBps,
		SimulateOnly: s.cfg.SimulateOnly,
	}}

	if sig.Action != signal.ActionBuy {
		trade.task.Side = dex.SideSell
		trade.task.AmountIn, err = s.sellAmount(ctx, mint, sig.Amount)
		if err != nil {
			return nil, err
		}
		return trade, nil
	}

	trade.task.Side = dex.SideBuy
	trade.task.AmountIn, err = parseSOLAmount(sig.Amount)
	if err != nil {
		return nil, err
	}

	// A token the oracle cannot price would leave an invisible position the
	// sell scheduler can never exit, so the buy is refused before any funds
	// move.
	result := s.oracle.TokenPrice(ctx, sig.ContractAddress)
	if !result.Priced() {
		return nil, fmt.Errorf("no price for %s, refusing to buy", sig.ContractAddress)
	}
	trade.tokenPrice = *result.USDPrice

	trade.tokenATA, err = s.wallet.GetATA(mint)
	if err != nil {
		return nil, err
	}
	before, err := s.holdings.GetTokenAccountUIBalance(ctx, trade.tokenATA)
	if err != nil {
		s.logger.Warn("Failed to read pre-buy balance, cost basis will use the quoted price",
			zap.String("mint", sig.ContractAddress), zap.Error(err))
	} else {
		trade.balanceBefore = before
		trade.balanceKnown = true
	}
	return trade, nil
}

// sellAmount sizes a sell from the wallet's live holdings of the mint.
func (s *Service) sellAmount(ctx context.Context, mint solana.PublicKey, percentStr string) (uint64, error) {
	percent, err := strconv.ParseFloat(strings.TrimSuffix(percentStr, "%"), 64)
	if err != nil || percent <= 0 || percent > 100 {
		return 0, fmt.Errorf("invalid sell percent %q", percentStr)
	}

	ata, err := s.wallet.GetATA(mint)
	if err != nil {
		return 0, err
	}
	balance, err := s.holdings.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		return 0, fmt.Errorf("failed to read holdings of %s: %w", mint, err)
	}
	if balance == 0 {
		return 0, fmt.Errorf("no holdings of %s to sell", mint)
	}

	amount := uint64(float64(balance) * percent / 100)
	if amount == 0 {
		return 0, fmt.Errorf("sell of %s%% of %d units rounds to zero", percentStr, balance)
	}
	return amount, nil
}

// recordBuy inserts the position row the sell scheduler will walk. Cost
// basis comes from the token-balance delta around the buy: SOL price times
// SOL spent over tokens received. When the delta or the SOL price is
// unavailable the token's quoted price from the pre-trade check stands in.
func (s *Service) recordBuy(ctx context.Context, sig *signal.Signal, trade *preparedTrade) {
	purchased := trade.tokenPrice
	if basis, ok := s.costBasis(ctx, trade); ok {
		purchased = basis
	}

	buy := &storage.Buy{
		ContractAddress: sig.ContractAddress,
		PurchasedPrice:  purchased,
		PriceFactor:     0,
		Platform:        sig.Platform,
		Chain:           sig.Chain,
		Date:            time.Now().UTC(),
	}
	if err := s.ledger.InsertBuys(ctx, []*storage.Buy{buy}); err != nil {
		s.logger.Error("Failed to record buy",
			zap.String("mint", sig.ContractAddress),
			zap.Error(err))
		return
	}

	s.logger.Info("Position recorded",
		zap.String("mint", sig.ContractAddress),
		zap.Float64("purchased_price", buy.PurchasedPrice))
}

// costBasis derives the effective per-token purchase price from the post-buy
// balance delta.
func (s *Service) costBasis(ctx context.Context, trade *preparedTrade) (float64, bool) {
	if !trade.balanceKnown {
		return 0, false
	}
	after, err := s.holdings.GetTokenAccountUIBalance(ctx, trade.tokenATA)
	if err != nil {
		s.logger.Warn("Failed to read post-buy balance", zap.Error(err))
		return 0, false
	}
	received := after - trade.balanceBefore
	if received <= 0 {
		return 0, false
	}

	sol := s.oracle.TokenPrice(ctx, wsolMint)
	if !sol.Priced() {
		return 0, false
	}
	solSpent := float64(trade.task.AmountIn) / lamportsPerSOL
	return *sol.USDPrice * solSpent / received, true
}

func (s *Service) notify(ctx context.Context, sig *signal.Signal, outcome *dex.Outcome, err error) {
	n := Notification{
		Action: string(sig.Action),
		Token:  sig.ContractAddress,
		Amount: sig.Amount,
	}
	if err != nil {
		n.Error = err.Error()
	} else {
		n.Success = true
		n.Simulated = outcome.Simulated
		if !outcome.Simulated {
			n.TxID = outcome.Signature.String()
		}
	}
	s.notifier.Notify(ctx, n)
}

// ClearPositions drops every tracked position. Exposed to the upstream
// collaborator for manual resets; it does not sell anything.
func (s *Service) ClearPositions(ctx context.Context) (int64, error) {
	removed, err := s.ledger.ClearAllBuys(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("All positions cleared", zap.Int64("removed", removed))
	return removed, nil
}

// PrunePositions drops tracked positions whose mint is not in the held set,
// reconciling the ledger with wallet reality after out-of-band sells.
func (s *Service) PrunePositions(ctx context.Context, heldMints []string) (int64, error) {
	removed, err := s.ledger.ClearBuysNotIn(ctx, heldMints)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Stale positions pruned",
		zap.Int64("removed", removed),
		zap.Int("held", len(heldMints)))
	return removed, nil
}

func (s *Service) randomBuyAmount() string {
	min, max := s.cfg.SolBuyAmountMin, s.cfg.SolBuyAmountMax
	value := min + rand.Float64()*(max-min)
	return strconv.FormatFloat(value, 'f', 8, 64) + " SOL"
}

// parseSOLAmount converts an amount like "0.00002 SOL" to lamports.
func parseSOLAmount(amount string) (uint64, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(amount), "SOL"))
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid SOL amount %q", amount)
	}
	return uint64(value * lamportsPerSOL), nil
}
