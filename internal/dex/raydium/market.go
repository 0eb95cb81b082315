// internal/dex/raydium/market.go
package raydium

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MarketState is the decoded subset of a Serum/OpenBook v3 market account
// needed to route a pool swap through the market.
type MarketState struct {
	OwnAddress       solana.PublicKey
	VaultSignerNonce uint64
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	RequestQueue     solana.PublicKey
	EventQueue       solana.PublicKey
	Bids             solana.PublicKey
	Asks             solana.PublicKey
	BaseLotSize      uint64
	QuoteLotSize     uint64
}

// Market v3 account offsets. The account starts with a 5-byte "serum"
// padding prefix and ends with a 7-byte suffix.
const (
	marketOwnAddressOffset   = 13
	marketVaultNonceOffset   = 45
	marketBaseMintOffset     = 53
	marketQuoteMintOffset    = 85
	marketBaseVaultOffset    = 117
	marketQuoteVaultOffset   = 165
	marketRequestQueueOffset = 221
	marketEventQueueOffset   = 253
	marketBidsOffset         = 285
	marketAsksOffset         = 317
	marketBaseLotSizeOffset  = 349
	marketQuoteLotSizeOffset = 357
)

// DecodeMarketState decodes a v3 market account.
func DecodeMarketState(data []byte) (*MarketState, error) {
	if len(data) != MarketStateV3Size {
		return nil, fmt.Errorf("%w: market account size %d", ErrUnknownLayout, len(data))
	}
	return &MarketState{
		OwnAddress:       readPubkey(data, marketOwnAddressOffset),
		VaultSignerNonce: readU64(data, marketVaultNonceOffset),
		BaseMint:         readPubkey(data, marketBaseMintOffset),
		QuoteMint:        readPubkey(data, marketQuoteMintOffset),
		BaseVault:        readPubkey(data, marketBaseVaultOffset),
		QuoteVault:       readPubkey(data, marketQuoteVaultOffset),
		RequestQueue:     readPubkey(data, marketRequestQueueOffset),
		EventQueue:       readPubkey(data, marketEventQueueOffset),
		Bids:             readPubkey(data, marketBidsOffset),
		Asks:             readPubkey(data, marketAsksOffset),
		BaseLotSize:      readU64(data, marketBaseLotSizeOffset),
		QuoteLotSize:     readU64(data, marketQuoteLotSizeOffset),
	}, nil
}

// VaultSigner derives the market's vault authority from the market id and
// the stored nonce.
func VaultSigner(marketID solana.PublicKey, nonce uint64, serumProgram solana.PublicKey) (solana.PublicKey, error) {
	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	signer, err := solana.CreateProgramAddress(
		[][]byte{marketID.Bytes(), nonceBytes},
		serumProgram,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive vault signer for market %s: %w", marketID, err)
	}
	return signer, nil
}
