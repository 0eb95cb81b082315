package raydium

import (
	"encoding/binary"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mulDiv computes a*b/c without intermediate overflow.
func mulDiv(a, b, c uint64) uint64 {
	out := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	out.Div(out, new(big.Int).SetUint64(c))
	return out.Uint64()
}

func TestComputeQuoteConstantProduct(t *testing.T) {
	// 1000 SOL / 1,000,000 tokens pool, swap 1 SOL in.
	quote, err := ComputeQuote(1_000_000_000_000, 1_000_000_000_000_000, 1_000_000_000, 1000)
	require.NoError(t, err)

	// out = reserveOut * inAfterFee / (reserveIn + inAfterFee) with a
	// 25 bps fee on the input.
	inAfterFee := uint64(1_000_000_000) * 9975 / 10000
	expected := mulDiv(1_000_000_000_000_000, inAfterFee, 1_000_000_000_000+inAfterFee)
	assert.Equal(t, expected, quote.ExpectedOut)
	assert.Equal(t, mulDiv(quote.ExpectedOut, 9000, 10000), quote.MinimumOut)
	assert.Less(t, quote.MinimumOut, quote.ExpectedOut)
}

func TestComputeQuoteRejectsEmptyPool(t *testing.T) {
	_, err := ComputeQuote(0, 1000, 10, 1000)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = ComputeQuote(1000, 0, 10, 1000)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestComputeQuoteRejectsBadInput(t *testing.T) {
	_, err := ComputeQuote(1000, 1000, 0, 1000)
	assert.Error(t, err)

	_, err = ComputeQuote(1000, 1000, 10, -1)
	assert.Error(t, err)

	_, err = ComputeQuote(1000, 1000, 10, 10000)
	assert.Error(t, err)
}

func TestComputeQuoteLargeReservesNoOverflow(t *testing.T) {
	quote, err := ComputeQuote(math.MaxUint64/2, math.MaxUint64/2, math.MaxUint64/4, 500)
	require.NoError(t, err)
	assert.NotZero(t, quote.ExpectedOut)
	assert.LessOrEqual(t, quote.MinimumOut, quote.ExpectedOut)
}

func TestTokenAccountAmount(t *testing.T) {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 987654321)

	amount, err := TokenAccountAmount(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(987654321), amount)

	_, err = TokenAccountAmount(make([]byte, 10))
	assert.Error(t, err)
}
