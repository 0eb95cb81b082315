// internal/dex/raydium/instructions.go
package raydium

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// SwapParams describe one fixed-input pool swap.
type SwapParams struct {
	Keys            *PoolKeys
	UserSource      solana.PublicKey
	UserDestination solana.PublicKey
	Owner           solana.PublicKey
	AmountIn        uint64
	MinimumOut      uint64
}

// BuildSwapInstruction builds the AMM swap-base-in instruction. The account
// ordering is fixed by the program.
func BuildSwapInstruction(p SwapParams) solana.Instruction {
	data := make([]byte, 17)
	data[0] = SwapInstructionBaseIn
	binary.LittleEndian.PutUint64(data[1:9], p.AmountIn)
	binary.LittleEndian.PutUint64(data[9:17], p.MinimumOut)

	keys := p.Keys
	return solana.NewInstruction(
		keys.ProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(keys.ID, true, false),
			solana.NewAccountMeta(keys.Authority, false, false),
			solana.NewAccountMeta(keys.OpenOrders, true, false),
			solana.NewAccountMeta(keys.TargetOrders, true, false),
			solana.NewAccountMeta(keys.BaseVault, true, false),
			solana.NewAccountMeta(keys.QuoteVault, true, false),
			solana.NewAccountMeta(keys.MarketProgramID, false, false),
			solana.NewAccountMeta(keys.MarketID, true, false),
			solana.NewAccountMeta(keys.MarketBids, true, false),
			solana.NewAccountMeta(keys.MarketAsks, true, false),
			solana.NewAccountMeta(keys.MarketEventQueue, true, false),
			solana.NewAccountMeta(keys.MarketBaseVault, true, false),
			solana.NewAccountMeta(keys.MarketQuoteVault, true, false),
			solana.NewAccountMeta(keys.MarketAuthority, false, false),
			solana.NewAccountMeta(p.UserSource, true, false),
			solana.NewAccountMeta(p.UserDestination, true, false),
			solana.NewAccountMeta(p.Owner, false, true),
		},
		data,
	)
}

// BuildComputeBudgetInstructions sets the compute unit limit and priority
// fee. Zero values skip the corresponding instruction.
func BuildComputeBudgetInstructions(units uint32, microLamports uint64) []solana.Instruction {
	var out []solana.Instruction
	if units > 0 {
		out = append(out, computebudget.NewSetComputeUnitLimitInstruction(units).Build())
	}
	if microLamports > 0 {
		out = append(out, computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build())
	}
	return out
}

// BuildWrapSOLInstructions funds the owner's wrapped-SOL account: create the
// ATA if missing, transfer lamports into it, then sync the native balance.
func BuildWrapSOLInstructions(owner, wsolATA solana.PublicKey, lamports uint64, createATA solana.Instruction) []solana.Instruction {
	return []solana.Instruction{
		createATA,
		system.NewTransferInstruction(lamports, owner, wsolATA).Build(),
		token.NewSyncNativeInstruction(wsolATA).Build(),
	}
}

// BuildCloseAccountInstruction closes a token account, returning its rent
// and any wrapped SOL to the owner.
func BuildCloseAccountInstruction(account, owner solana.PublicKey) solana.Instruction {
	return token.NewCloseAccountInstruction(account, owner, owner, nil).Build()
}
