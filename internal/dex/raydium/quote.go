// internal/dex/raydium/quote.go
package raydium

import (
	"errors"
	"fmt"
	"math/big"
)

// Raydium AMM swap fee, in basis points of the input amount.
const swapFeeBps = 25

const bpsDenominator = 10000

// tokenAccountAmountOffset is where the u64 balance sits in an SPL token
// account (mint 32 + owner 32).
const tokenAccountAmountOffset = 64

var ErrEmptyPool = errors.New("pool has no liquidity")

// Quote is a constant-product swap estimate against current reserves.
type Quote struct {
	AmountIn    uint64
	ExpectedOut uint64
	// MinimumOut is ExpectedOut reduced by the slippage tolerance; it goes
	// into the swap instruction as the on-chain floor.
	MinimumOut uint64
}

// ComputeQuote estimates the output of swapping amountIn against the pool
// reserves, after the pool fee, and applies the slippage tolerance.
func ComputeQuote(reserveIn, reserveOut, amountIn uint64, slippageBps int) (*Quote, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return nil, ErrEmptyPool
	}
	if amountIn == 0 {
		return nil, errors.New("zero input amount")
	}
	if slippageBps < 0 || slippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage %d bps out of range", slippageBps)
	}

	// amountIn * (1 - fee), in big.Int: reserves near u64 max would
	// overflow the intermediate products otherwise.
	inAfterFee := new(big.Int).Mul(
		new(big.Int).SetUint64(amountIn),
		big.NewInt(bpsDenominator-swapFeeBps),
	)
	inAfterFee.Div(inAfterFee, big.NewInt(bpsDenominator))

	// out = reserveOut * inAfterFee / (reserveIn + inAfterFee)
	numerator := new(big.Int).Mul(new(big.Int).SetUint64(reserveOut), inAfterFee)
	denominator := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), inAfterFee)
	out := new(big.Int).Div(numerator, denominator)

	minOut := new(big.Int).Mul(out, big.NewInt(int64(bpsDenominator-slippageBps)))
	minOut.Div(minOut, big.NewInt(bpsDenominator))

	if !out.IsUint64() || !minOut.IsUint64() {
		return nil, errors.New("quote output overflows uint64")
	}

	return &Quote{
		AmountIn:    amountIn,
		ExpectedOut: out.Uint64(),
		MinimumOut:  minOut.Uint64(),
	}, nil
}

// TokenAccountAmount reads the balance field of a raw SPL token account.
func TokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountAmountOffset+8 {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return readU64(data, tokenAccountAmountOffset), nil
}
