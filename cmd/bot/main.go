// cmd/bot/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	osignal "os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soltank/soltank-bot/internal/blockchain/solbc"
	"github.com/soltank/soltank-bot/internal/config"
	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/dex/jupiter"
	"github.com/soltank/soltank-bot/internal/dex/raydium"
	"github.com/soltank/soltank-bot/internal/logger"
	"github.com/soltank/soltank-bot/internal/price"
	tradesignal "github.com/soltank/soltank-bot/internal/signal"
	"github.com/soltank/soltank-bot/internal/storage/postgres"
	"github.com/soltank/soltank-bot/internal/trader"
	"github.com/soltank/soltank-bot/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := wallet.NewFromPrivateKey(cfg.WalletKey)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	log.Info("Wallet loaded", zap.String("pubkey", w.PublicKey.String()))

	chain := solbc.NewClient(cfg.RPCURL, log.WithComponent("blockchain"))

	store, err := postgres.New(ctx, cfg.PostgresURL, log.WithComponent("storage"))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer store.Close()
	if err := store.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	classifier := tradesignal.NewClassifier(store, log.WithComponent("signal"))
	if err := classifier.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed classifier: %w", err)
	}

	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment == "finalized" {
		commitment = rpc.CommitmentFinalized
	}
	priorityFeeLamports, microLamportsPerCU, err := priorityFee(cfg)
	if err != nil {
		return err
	}

	dexLog := log.WithComponent("dex")
	resolver := raydium.NewResolver(cfg.PoolDirectoryURL, chain, dexLog)
	raydiumEngine := raydium.NewEngine(resolver, chain, w, raydium.Config{
		ComputeUnits:             cfg.ComputeUnits,
		PriorityFeeMicroLamports: microLamportsPerCU,
		Commitment:               commitment,
		SimulateOnly:             cfg.SimulateOnly,
	}, dexLog)

	jupiterEngine := jupiter.NewEngine(jupiter.NewClient(cfg.JupiterBaseURL), chain, w, jupiter.Config{
		PriorityFeeLamports: priorityFeeLamports,
		Commitment:          commitment,
		SimulateOnly:        cfg.SimulateOnly,
	}, dexLog)

	selector, err := dex.NewSelector(cfg.SwapEngine, jupiterEngine, raydiumEngine, dexLog)
	if err != nil {
		return err
	}

	providers, err := priceProviders(cfg)
	if err != nil {
		return err
	}
	oracle := price.NewOracle(providers, log.WithComponent("price"))

	var notifier trader.Notifier
	if cfg.WebhookURL != "" {
		notifier = trader.NewWebhookNotifier(cfg.WebhookURL, log.WithComponent("notify"))
	} else {
		notifier = trader.NewLogNotifier(log.WithComponent("notify"))
	}

	service := trader.NewService(classifier, selector, oracle, store, chain, w, notifier, trader.Config{
		Platform:        "raydium",
		Chain:           "solana",
		SlippageBps:     cfg.SlippageBps,
		SimulateOnly:    cfg.SimulateOnly,
		SolBuyAmountMin: cfg.SolBuyAmountMin,
		SolBuyAmountMax: cfg.SolBuyAmountMax,
	}, log.WithComponent("trader"))

	scheduler, err := trader.NewScheduler(store, oracle, service, trader.SchedulerConfig{
		Interval: cfg.SellInterval(),
		Ladder:   cfg.PriceLadder,
		Chain:    "solana",
		Platform: "raydium",
	}, log.WithComponent("trader"))
	if err != nil {
		return err
	}

	log.Info("Bot starting",
		zap.String("swap_engine", cfg.SwapEngine),
		zap.String("commitment", cfg.Commitment),
		zap.Bool("simulate_only", cfg.SimulateOnly))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return readSignals(gctx, service, log.Logger) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	log.Info("Bot stopped")
	return nil
}

// readSignals feeds trade intents from stdin, one per line:
//
//	buy <mint> [amount SOL]
//	sell <mint> <percent>
//
// It stands in for the upstream chat collaborator in standalone runs.
func readSignals(ctx context.Context, service *trader.Service, log *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		var action tradesignal.Action
		switch fields[0] {
		case "buy":
			action = tradesignal.ActionBuy
		case "sell":
			action = tradesignal.ActionSell
		default:
			log.Warn("Unknown signal action", zap.String("line", scanner.Text()))
			continue
		}

		amount := ""
		if len(fields) > 2 {
			amount = strings.Join(fields[2:], " ")
		}

		accepted, err := service.CreateSignal(ctx, fields[1], amount, action)
		if err != nil {
			log.Warn("Signal rejected", zap.String("mint", fields[1]), zap.Error(err))
			continue
		}
		if !accepted {
			log.Info("Signal suppressed", zap.String("mint", fields[1]))
		}
	}
	// Stdin closing is not a reason to stop trading; the scheduler keeps
	// running.
	<-ctx.Done()
	return ctx.Err()
}

// priorityFee converts the configured SOL fee into total lamports (for the
// aggregator API) and micro-lamports per compute unit (for the compute
// budget instruction).
func priorityFee(cfg *config.Config) (lamports, microPerCU uint64, err error) {
	if cfg.PriorityFeeSol == "" {
		return 0, 0, nil
	}
	sol, err := strconv.ParseFloat(cfg.PriorityFeeSol, 64)
	if err != nil || sol < 0 {
		return 0, 0, fmt.Errorf("invalid priority_fee_sol %q", cfg.PriorityFeeSol)
	}
	lamports = uint64(sol * 1_000_000_000)
	if cfg.ComputeUnits > 0 {
		microPerCU = lamports * 1_000_000 / uint64(cfg.ComputeUnits)
	}
	return lamports, microPerCU, nil
}

func priceProviders(cfg *config.Config) ([]price.Provider, error) {
	var providers []price.Provider
	for _, name := range cfg.PriceProviders {
		switch name {
		case "moralis":
			if cfg.MoralisAPIKey == "" {
				return nil, fmt.Errorf("moralis provider configured without api key")
			}
			providers = append(providers, price.NewMoralis(cfg.MoralisAPIKey))
		case "bitquery":
			if cfg.BitqueryToken == "" {
				return nil, fmt.Errorf("bitquery provider configured without token")
			}
			providers = append(providers, price.NewBitquery(cfg.BitqueryToken))
		default:
			return nil, fmt.Errorf("unknown price provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no price providers configured")
	}
	return providers, nil
}
