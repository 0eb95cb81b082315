// internal/storage/postgres/ledger.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/storage"
)

// InsertBuys persists a batch of confirmed buys atomically.
func (s *Storage) InsertBuys(ctx context.Context, buys []*storage.Buy) error {
	if len(buys) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO buys (contract_address, purchased_price, price_factor, platform, chain, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	for _, b := range buys {
		if b.Date.IsZero() {
			b.Date = time.Now().UTC()
		}
		if err := tx.QueryRow(ctx, query,
			b.ContractAddress, b.PurchasedPrice, b.PriceFactor, b.Platform, b.Chain, b.Date,
		).Scan(&b.ID); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert buy: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("Buys persisted", zap.Int("count", len(buys)))
	return nil
}

// ListBuysByChain returns every open position row for a chain.
func (s *Storage) ListBuysByChain(ctx context.Context, chain string) ([]*storage.Buy, error) {
	query := `
		SELECT id, contract_address, purchased_price, price_factor, platform, chain, date
		FROM buys
		WHERE chain = $1
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, chain)
	if err != nil {
		return nil, fmt.Errorf("list buys: %w", err)
	}
	defer rows.Close()

	var buys []*storage.Buy
	for rows.Next() {
		var b storage.Buy
		if err := rows.Scan(&b.ID, &b.ContractAddress, &b.PurchasedPrice,
			&b.PriceFactor, &b.Platform, &b.Chain, &b.Date); err != nil {
			return nil, fmt.Errorf("scan buy row: %w", err)
		}
		buys = append(buys, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buy rows: %w", err)
	}
	return buys, nil
}

// UpdatePriceFactor moves a row to the next ladder index.
func (s *Storage) UpdatePriceFactor(ctx context.Context, id int64, priceFactor int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE buys SET price_factor = $1 WHERE id = $2", priceFactor, id)
	if err != nil {
		return fmt.Errorf("update price factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteBuy removes a fully liquidated position row.
func (s *Storage) DeleteBuy(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM buys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete buy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearAllBuys removes every position row.
func (s *Storage) ClearAllBuys(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM buys")
	if err != nil {
		return 0, fmt.Errorf("clear buys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearBuysNotIn removes rows whose mint is not in the held set. An empty
// held set clears everything.
func (s *Storage) ClearBuysNotIn(ctx context.Context, mints []string) (int64, error) {
	if len(mints) == 0 {
		return s.ClearAllBuys(ctx)
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM buys WHERE contract_address != ALL($1)", mints)
	if err != nil {
		return 0, fmt.Errorf("clear non-held buys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoadAllSeen returns the whole signal_seen table for classifier seeding.
func (s *Storage) LoadAllSeen(ctx context.Context) ([]*storage.SeenSignal, error) {
	query := `
		SELECT action, contract_address, count, first_at, last_at
		FROM signal_seen
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load signal_seen: %w", err)
	}
	defer rows.Close()

	var seen []*storage.SeenSignal
	for rows.Next() {
		var r storage.SeenSignal
		if err := rows.Scan(&r.Action, &r.ContractAddress, &r.Count, &r.FirstAt, &r.LastAt); err != nil {
			return nil, fmt.Errorf("scan signal_seen row: %w", err)
		}
		seen = append(seen, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal_seen rows: %w", err)
	}
	return seen, nil
}

// UpsertSeen inserts the first sighting or increments the counter.
func (s *Storage) UpsertSeen(ctx context.Context, action, contractAddress string, at time.Time) error {
	query := `
		INSERT INTO signal_seen (action, contract_address, count, first_at, last_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (action, contract_address)
		DO UPDATE SET count = signal_seen.count + 1, last_at = EXCLUDED.last_at
	`
	if _, err := s.pool.Exec(ctx, query, action, contractAddress, at); err != nil {
		return fmt.Errorf("upsert signal_seen: %w", err)
	}
	return nil
}
