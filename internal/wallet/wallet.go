// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds the trading keypair and caches derived token accounts.
type Wallet struct {
	PublicKey  solana.PublicKey
	privateKey solana.PrivateKey

	mu       sync.RWMutex
	ataCache map[string]solana.PublicKey
}

// NewFromPrivateKey builds a wallet from a base58-encoded private key.
func NewFromPrivateKey(privateKeyBase58 string) (*Wallet, error) {
	decoded, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(decoded) != 64 {
		return nil, fmt.Errorf("invalid private key length: %d", len(decoded))
	}

	privateKey := solana.PrivateKey(decoded)
	return &Wallet{
		PublicKey:  privateKey.PublicKey(),
		privateKey: privateKey,
		ataCache:   make(map[string]solana.PublicKey),
	}, nil
}

// SignTransaction signs the transaction with the wallet key in place.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.privateKey
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

// GetATA returns the wallet's associated token account for a mint. The
// derivation is deterministic, so results are cached.
func (w *Wallet) GetATA(mint solana.PublicKey) (solana.PublicKey, error) {
	w.mu.RLock()
	if ata, ok := w.ataCache[mint.String()]; ok {
		w.mu.RUnlock()
		return ata, nil
	}
	w.mu.RUnlock()

	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive ATA for %s: %w", mint, err)
	}

	w.mu.Lock()
	w.ataCache[mint.String()] = ata
	w.mu.Unlock()
	return ata, nil
}

// CreateATAIdempotentInstruction builds a CreateIdempotent instruction for the
// wallet's associated token account of the given mint. It is a no-op on chain
// when the account already exists.
func (w *Wallet) CreateATAIdempotentInstruction(mint solana.PublicKey) (solana.Instruction, error) {
	ata, err := w.GetATA(mint)
	if err != nil {
		return nil, err
	}

	// The associated-token-program CreateIdempotent instruction
	// (discriminator 1) with the standard account ordering.
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(w.PublicKey, true, true), // payer
			solana.NewAccountMeta(ata, true, false),
			solana.NewAccountMeta(w.PublicKey, false, false), // owner
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{1},
	), nil
}
