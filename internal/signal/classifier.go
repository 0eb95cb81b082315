// internal/signal/classifier.go
package signal

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/storage"
)

// SeenStore is the subset of the store the classifier needs.
type SeenStore interface {
	LoadAllSeen(ctx context.Context) ([]*storage.SeenSignal, error)
	UpsertSeen(ctx context.Context, action, contractAddress string, at time.Time) error
}

type seenEntry struct {
	firstAt time.Time
	lastAt  time.Time
	count   int // 1 = initial, 2 = first update, ...
}

// Classifier deduplicates repeated mentions of the same mint/action pair.
//
// The in-memory map is authoritative for the process lifetime; the persisted
// signal_seen table is best-effort durability so classification survives
// restarts. A crash between the map update and the upsert loses at most one
// classification event.
type Classifier struct {
	mu     sync.Mutex
	seen   map[string]seenEntry
	seeded bool

	store  SeenStore
	logger *zap.Logger
}

// NewClassifier creates an unseeded classifier.
func NewClassifier(store SeenStore, logger *zap.Logger) *Classifier {
	return &Classifier{
		seen:   make(map[string]seenEntry),
		store:  store,
		logger: logger.Named("classifier"),
	}
}

func seenKey(contractAddress string, action Action) string {
	return string(action) + ":" + strings.ToLower(contractAddress)
}

// Seed loads persisted sightings into the map. Safe to call more than once;
// only the first call reads the store.
func (c *Classifier) Seed(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seeded {
		return nil
	}

	rows, err := c.store.LoadAllSeen(ctx)
	if err != nil {
		return err
	}
	for _, r := range rows {
		c.seen[seenKey(r.ContractAddress, Action(r.Action))] = seenEntry{
			firstAt: r.FirstAt,
			lastAt:  r.LastAt,
			count:   r.Count,
		}
	}
	c.seeded = true
	c.logger.Info("Classifier seeded from store", zap.Int("entries", len(rows)))
	return nil
}

// Classify records a sighting of (mint, action) and reports whether it is the
// first one. The persisted upsert is fire-and-forget: a store failure is
// logged and does not affect the returned classification.
func (c *Classifier) Classify(contractAddress string, action Action) Classification {
	return c.classifyAt(contractAddress, action, time.Now().UTC())
}

func (c *Classifier) classifyAt(contractAddress string, action Action, at time.Time) Classification {
	key := seenKey(contractAddress, action)

	c.mu.Lock()
	entry, ok := c.seen[key]
	if !ok {
		entry = seenEntry{firstAt: at, lastAt: at, count: 1}
	} else {
		entry.count++
		entry.lastAt = at
	}
	c.seen[key] = entry
	c.mu.Unlock()

	kind := KindInitial
	if entry.count > 1 {
		kind = KindUpdate
	}
	c.logger.Info("Signal classified",
		zap.String("mint", contractAddress),
		zap.String("action", string(action)),
		zap.String("kind", string(kind)),
		zap.Int("version", entry.count))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Persist the lowercased address so the table keys line up with
		// the in-memory map across restarts.
		if err := c.store.UpsertSeen(ctx, string(action), strings.ToLower(contractAddress), at); err != nil {
			c.logger.Error("Persist classification failed",
				zap.String("mint", contractAddress), zap.Error(err))
		}
	}()

	return Classification{Kind: kind, Version: entry.count}
}

// Meta returns the tracked entry for a pair, if any.
func (c *Classifier) Meta(contractAddress string, action Action) (count int, firstAt, lastAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.seen[seenKey(contractAddress, action)]
	return entry.count, entry.firstAt, entry.lastAt, ok
}
