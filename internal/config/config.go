// internal/config/config.go
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RPCURL     string `mapstructure:"rpc_url"`
	Commitment string `mapstructure:"commitment"` // "confirmed" or "finalized"

	// Engine selection: "jupiter", "raydium" or "auto" (jupiter with a
	// one-shot raydium fallback).
	SwapEngine     string `mapstructure:"swap_engine"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	PriorityFeeSol string `mapstructure:"priority_fee_sol"`
	ComputeUnits   uint32 `mapstructure:"compute_units"`
	SimulateOnly   bool   `mapstructure:"simulate_only"`

	PoolDirectoryURL string `mapstructure:"pool_directory_url"`
	JupiterBaseURL   string `mapstructure:"jupiter_base_url"`

	// Price providers, tried in order. Known names: "moralis", "bitquery".
	PriceProviders []string `mapstructure:"price_providers"`
	MoralisAPIKey  string   `mapstructure:"moralis_api_key"`
	BitqueryToken  string   `mapstructure:"bitquery_token"`

	// Auto-buy sizing: a random SOL amount is drawn from [min, max].
	SolBuyAmountMin float64 `mapstructure:"sol_buy_amount_min"`
	SolBuyAmountMax float64 `mapstructure:"sol_buy_amount_max"`

	// Sell scheduler: tick interval in milliseconds and the ascending
	// price-multiple ladder. Index 0 is the stop-loss floor.
	SellIntervalMs int       `mapstructure:"sell_interval_ms"`
	PriceLadder    []float64 `mapstructure:"price_ladder"`

	PostgresURL string `mapstructure:"postgres_url"`
	WebhookURL  string `mapstructure:"webhook_url"`

	// WalletKey is the base58 trading private key; env-only in practice.
	WalletKey string `mapstructure:"wallet_key"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultCommitment       = "confirmed"
	DefaultSwapEngine       = "jupiter"
	DefaultSlippageBps      = 1000 // 10%
	DefaultSellIntervalMs   = 10000
	DefaultJupiterBaseURL   = "https://quote-api.jup.ag"
	DefaultPoolDirectoryURL = "https://api.raydium.io/v2/sdk/liquidity/mainnet.json"
)

// DefaultPriceLadder is the sell ladder: a stop-loss floor at index 0 and
// take-profit multiples above it.
var DefaultPriceLadder = []float64{0.01, 2, 10}

// SellInterval returns the sell scheduler tick interval.
func (c *Config) SellInterval() time.Duration {
	return time.Duration(c.SellIntervalMs) * time.Millisecond
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"commitment":         DefaultCommitment,
		"swap_engine":        DefaultSwapEngine,
		"slippage_bps":       DefaultSlippageBps,
		"sell_interval_ms":   DefaultSellIntervalMs,
		"jupiter_base_url":   DefaultJupiterBaseURL,
		"pool_directory_url": DefaultPoolDirectoryURL,
		"price_providers":    []string{"moralis"},
		"price_ladder":       DefaultPriceLadder,
		"sol_buy_amount_min": 0.00001,
		"sol_buy_amount_max": 0.00005,
		"log_file":           "soltank.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURL(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if err := validateURL(cfg.PoolDirectoryURL, "http"); err != nil {
		return errors.New("invalid pool directory URL")
	}
	if err := validateURL(cfg.JupiterBaseURL, "http"); err != nil {
		return errors.New("invalid Jupiter base URL")
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, "https"); err != nil {
			return errors.New("webhook URL must use HTTPS")
		}
	}

	switch cfg.SwapEngine {
	case "jupiter", "raydium", "auto":
	default:
		return errors.New("swap_engine must be jupiter, raydium or auto")
	}
	switch cfg.Commitment {
	case "confirmed", "finalized":
	default:
		return errors.New("commitment must be confirmed or finalized")
	}

	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.SlippageBps <= 0 || cfg.SlippageBps >= 10000 {
		return errors.New("invalid slippage_bps")
	}
	if cfg.SellIntervalMs <= 0 {
		return errors.New("invalid sell_interval_ms")
	}
	if cfg.SolBuyAmountMin <= 0 || cfg.SolBuyAmountMax < cfg.SolBuyAmountMin {
		return errors.New("invalid sol buy amount range")
	}
	if len(cfg.PriceLadder) < 2 {
		return errors.New("price_ladder needs at least two multiples")
	}
	for i := 1; i < len(cfg.PriceLadder); i++ {
		if cfg.PriceLadder[i] <= cfg.PriceLadder[i-1] {
			return errors.New("price_ladder must be strictly ascending")
		}
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLTANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if key := v.GetString("WALLET_KEY"); key != "" {
		cfg.WalletKey = key
	}
	if dsn := v.GetString("POSTGRES_URL"); dsn != "" {
		cfg.PostgresURL = dsn
	}
	if key := v.GetString("MORALIS_API_KEY"); key != "" {
		cfg.MoralisAPIKey = key
	}
	if token := v.GetString("BITQUERY_TOKEN"); token != "" {
		cfg.BitqueryToken = token
	}
	if rpc := v.GetString("RPC_URL"); rpc != "" {
		cfg.RPCURL = rpc
	}
	return nil
}
