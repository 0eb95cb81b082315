package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) (string, solana.PublicKey) {
	t.Helper()
	account := solana.NewWallet()
	return base58.Encode(account.PrivateKey), account.PublicKey()
}

func TestNewFromPrivateKey(t *testing.T) {
	encoded, pub := newTestKey(t)

	w, err := NewFromPrivateKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, pub, w.PublicKey)
}

func TestNewFromPrivateKeyRejectsGarbage(t *testing.T) {
	_, err := NewFromPrivateKey("not-base58-!!!")
	assert.Error(t, err)

	_, err = NewFromPrivateKey(base58.Encode([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestGetATAIsCachedAndDeterministic(t *testing.T) {
	encoded, _ := newTestKey(t)
	w, err := NewFromPrivateKey(encoded)
	require.NoError(t, err)

	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	first, err := w.GetATA(mint)
	require.NoError(t, err)
	second, err := w.GetATA(mint)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	expected, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, first)
}

func TestSignTransaction(t *testing.T) {
	encoded, _ := newTestKey(t)
	w, err := NewFromPrivateKey(encoded)
	require.NoError(t, err)

	recipient := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			solana.NewInstruction(
				solana.SystemProgramID,
				solana.AccountMetaSlice{
					solana.NewAccountMeta(w.PublicKey, true, true),
					solana.NewAccountMeta(recipient, true, false),
				},
				[]byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
			),
		},
		solana.Hash{},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}
