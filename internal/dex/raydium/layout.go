// internal/dex/raydium/layout.go
package raydium

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrUnknownLayout means the account size matched no supported pool
	// schema and the data cannot be decoded.
	ErrUnknownLayout = errors.New("unknown liquidity state layout")

	// ErrDecimalOverflow means a stored decimal count does not fit the
	// uint8 the SPL token standard allows.
	ErrDecimalOverflow = errors.New("token decimal count overflows uint8")

	// ErrPoolNotFound means no liquidity pool exists for the mint.
	ErrPoolNotFound = errors.New("liquidity pool not found")
)

// LiquidityState is the decoded subset of a Raydium AMM pool account that
// swap building needs.
type LiquidityState struct {
	Version int // 4 or 5

	Status        uint64
	Nonce         uint64
	BaseDecimals  uint8
	QuoteDecimals uint8

	BaseVault       solana.PublicKey
	QuoteVault      solana.PublicKey
	BaseMint        solana.PublicKey
	QuoteMint       solana.PublicKey
	LPMint          solana.PublicKey
	OpenOrders      solana.PublicKey
	MarketID        solana.PublicKey
	MarketProgramID solana.PublicKey
	TargetOrders    solana.PublicKey
	WithdrawQueue   solana.PublicKey
	LPVault         solana.PublicKey
	Owner           solana.PublicKey
	LPReserve       uint64
}

// V4 field offsets. The V5 schema carries a 32-byte header before the same
// field sequence, so V5 reads apply a uniform +32 shift.
const (
	statusOffset        = 0
	nonceOffset         = 8
	baseDecimalOffset   = 32
	quoteDecimalOffset  = 40
	baseVaultOffset     = 336
	quoteVaultOffset    = 368
	baseMintOffset      = 400
	quoteMintOffset     = 432
	lpMintOffset        = 464
	openOrdersOffset    = 496
	marketIDOffset      = 528
	marketProgramOffset = 560
	targetOrdersOffset  = 592
	withdrawQueueOffset = 624
	lpVaultOffset       = 656
	ownerOffset         = 688
	lpReserveOffset     = 720
)

// DecodeLiquidityState decodes a pool account, dispatching on the exact
// account size. Any other size is ErrUnknownLayout.
func DecodeLiquidityState(data []byte) (*LiquidityState, error) {
	switch len(data) {
	case LiquidityStateV4Size:
		return decodeAt(data, 4, 0)
	case LiquidityStateV5Size:
		return decodeAt(data, 5, 32)
	default:
		return nil, fmt.Errorf("%w: account size %d", ErrUnknownLayout, len(data))
	}
}

func decodeAt(data []byte, version, shift int) (*LiquidityState, error) {
	baseDecimal := readU64(data, baseDecimalOffset+shift)
	quoteDecimal := readU64(data, quoteDecimalOffset+shift)
	if baseDecimal > 0xFF || quoteDecimal > 0xFF {
		return nil, fmt.Errorf("%w: base=%d quote=%d", ErrDecimalOverflow, baseDecimal, quoteDecimal)
	}

	return &LiquidityState{
		Version:         version,
		Status:          readU64(data, statusOffset+shift),
		Nonce:           readU64(data, nonceOffset+shift),
		BaseDecimals:    uint8(baseDecimal),
		QuoteDecimals:   uint8(quoteDecimal),
		BaseVault:       readPubkey(data, baseVaultOffset+shift),
		QuoteVault:      readPubkey(data, quoteVaultOffset+shift),
		BaseMint:        readPubkey(data, baseMintOffset+shift),
		QuoteMint:       readPubkey(data, quoteMintOffset+shift),
		LPMint:          readPubkey(data, lpMintOffset+shift),
		OpenOrders:      readPubkey(data, openOrdersOffset+shift),
		MarketID:        readPubkey(data, marketIDOffset+shift),
		MarketProgramID: readPubkey(data, marketProgramOffset+shift),
		TargetOrders:    readPubkey(data, targetOrdersOffset+shift),
		WithdrawQueue:   readPubkey(data, withdrawQueueOffset+shift),
		LPVault:         readPubkey(data, lpVaultOffset+shift),
		Owner:           readPubkey(data, ownerOffset+shift),
		LPReserve:       readU64(data, lpReserveOffset+shift),
	}, nil
}

// MintOffsets returns the memcmp offsets of the base and quote mint fields
// for the given schema version.
func MintOffsets(version int) (base, quote uint64, err error) {
	switch version {
	case 4:
		return V4BaseMintOffset, V4QuoteMintOffset, nil
	case 5:
		return V5BaseMintOffset, V5QuoteMintOffset, nil
	default:
		return 0, 0, fmt.Errorf("%w: version %d", ErrUnknownLayout, version)
	}
}

// StateSize returns the pool account size for a schema version, used as the
// dataSize filter in program-account scans.
func StateSize(version int) (uint64, error) {
	switch version {
	case 4:
		return LiquidityStateV4Size, nil
	case 5:
		return LiquidityStateV5Size, nil
	default:
		return 0, fmt.Errorf("%w: version %d", ErrUnknownLayout, version)
	}
}

func readU64(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

func readPubkey(data []byte, offset int) solana.PublicKey {
	return solana.PublicKeyFromBytes(data[offset : offset+32])
}
