// internal/dex/raydium/derive.go
package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AssociatedKeys are the pool accounts the AMM program derives from the
// market id. Re-deriving them lets the bot cross-check a pool account it
// found by scanning.
type AssociatedKeys struct {
	AMMID        solana.PublicKey
	Authority    solana.PublicKey
	LPMint       solana.PublicKey
	CoinVault    solana.PublicKey
	PCVault      solana.PublicKey
	TargetOrders solana.PublicKey
	Withdraw     solana.PublicKey
	OpenOrders   solana.PublicKey
	TempLP       solana.PublicKey
}

// AssociatedAddress derives one (programID, marketID, seed) PDA.
func AssociatedAddress(programID, marketID solana.PublicKey, seed string) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{programID.Bytes(), marketID.Bytes(), []byte(seed)},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive %q address: %w", seed, err)
	}
	return addr, nil
}

// Authority derives the AMM authority PDA for a program.
func Authority(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(AuthoritySeed)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive amm authority: %w", err)
	}
	return addr, nil
}

// DeriveAssociatedKeys derives the full pool key set for a market.
func DeriveAssociatedKeys(programID, marketID solana.PublicKey) (*AssociatedKeys, error) {
	authority, err := Authority(programID)
	if err != nil {
		return nil, err
	}

	keys := &AssociatedKeys{Authority: authority}
	for _, target := range []struct {
		seed string
		dst  *solana.PublicKey
	}{
		{AMMSeed, &keys.AMMID},
		{LPMintSeed, &keys.LPMint},
		{CoinVaultSeed, &keys.CoinVault},
		{PCVaultSeed, &keys.PCVault},
		{TargetSeed, &keys.TargetOrders},
		{WithdrawSeed, &keys.Withdraw},
		{OpenOrderSeed, &keys.OpenOrders},
		{TempLPSeed, &keys.TempLP},
	} {
		addr, err := AssociatedAddress(programID, marketID, target.seed)
		if err != nil {
			return nil, err
		}
		*target.dst = addr
	}
	return keys, nil
}

// VerifyLPMint re-derives the LP mint from the pool's market and compares it
// with the stored one. A mismatch marks a pool account that only mimics the
// real schema.
func VerifyLPMint(state *LiquidityState, programID solana.PublicKey) (bool, error) {
	derived, err := AssociatedAddress(programID, state.MarketID, LPMintSeed)
	if err != nil {
		return false, err
	}
	return derived.Equals(state.LPMint), nil
}
