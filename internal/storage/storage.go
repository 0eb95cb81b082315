// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all Store implementations.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Buy is one open position row: a confirmed buy with its cost-basis price.
// PriceFactor is the index into the sell ladder, starting at 0.
type Buy struct {
	ID              int64
	ContractAddress string
	PurchasedPrice  float64
	PriceFactor     int
	Platform        string
	Chain           string
	Date            time.Time
}

// SeenSignal is the persisted dedup record for one (action, mint) pair.
type SeenSignal struct {
	Action          string
	ContractAddress string
	Count           int
	FirstAt         time.Time
	LastAt          time.Time
}

// Store is the persisted side of the trade ledgers. In-memory state is
// authoritative for the process lifetime; the store provides durability
// across restarts.
type Store interface {
	// Buys ledger. InsertBuys is called by the buy path only; UpdatePriceFactor
	// and DeleteBuy by the sell scheduler only.
	InsertBuys(ctx context.Context, buys []*Buy) error
	ListBuysByChain(ctx context.Context, chain string) ([]*Buy, error)
	UpdatePriceFactor(ctx context.Context, id int64, priceFactor int) error
	DeleteBuy(ctx context.Context, id int64) error

	// Maintenance operations exposed to the upstream collaborator.
	ClearAllBuys(ctx context.Context) (int64, error)
	ClearBuysNotIn(ctx context.Context, mints []string) (int64, error)

	// signal_seen table with upsert-increment semantics on
	// (action, contractAddress).
	LoadAllSeen(ctx context.Context) ([]*SeenSignal, error)
	UpsertSeen(ctx context.Context, action, contractAddress string, at time.Time) error

	RunMigrations(ctx context.Context) error
	Close()
}
