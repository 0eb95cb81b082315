// internal/dex/raydium/constants.go
package raydium

import "github.com/gagliardetto/solana-go"

var (
	// MainnetAMMProgramID is the Raydium liquidity pool V4 program on mainnet.
	MainnetAMMProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

	// DevnetAMMProgramID is the Raydium liquidity pool program on devnet.
	DevnetAMMProgramID = solana.MustPublicKeyFromBase58("HWy1jotHpo6UqeQxx49dpYYdQB8wj9Qk9MdxwjLvDHB8")

	// WSOLMint is the wrapped SOL mint; every pool this bot trades pairs
	// the token against it.
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// Pool state account sizes. The decoder dispatches on the exact account
// length, so these must match what the programs allocate.
const (
	LiquidityStateV4Size = 752
	LiquidityStateV5Size = 824

	// MarketStateV3Size is the Serum/OpenBook market account size.
	MarketStateV3Size = 388
)

// Field offsets inside the V4 liquidity state used for memcmp filters and
// partial decodes. V5 places the same fields 32 bytes later.
const (
	V4BaseMintOffset  = 400
	V4QuoteMintOffset = 432
	V5BaseMintOffset  = 432
	V5QuoteMintOffset = 464
)

// Seeds for the Raydium associated-account PDAs, derived alongside the pool
// from (programID, marketID).
const (
	AuthoritySeed = "amm authority"
	AMMSeed       = "amm_associated_seed"
	LPMintSeed    = "lp_mint_associated_seed"
	CoinVaultSeed = "coin_vault_associated_seed"
	PCVaultSeed   = "pc_vault_associated_seed"
	TargetSeed    = "target_associated_seed"
	WithdrawSeed  = "withdraw_associated_seed"
	OpenOrderSeed = "open_order_associated_seed"
	TempLPSeed    = "temp_lp_token_associated_seed"
)

// SwapInstructionBaseIn is the Raydium AMM instruction tag for a
// fixed-input swap.
const SwapInstructionBaseIn uint8 = 9
