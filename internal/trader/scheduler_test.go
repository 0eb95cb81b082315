package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/signal"
	"github.com/soltank/soltank-bot/internal/storage"
)

type fakePositions struct {
	rows    []*storage.Buy
	updates map[int64]int
	deleted []int64
	listErr error
}

func newFakePositions(rows ...*storage.Buy) *fakePositions {
	return &fakePositions{rows: rows, updates: make(map[int64]int)}
}

func (f *fakePositions) ListBuysByChain(_ context.Context, _ string) ([]*storage.Buy, error) {
	return f.rows, f.listErr
}

func (f *fakePositions) UpdatePriceFactor(_ context.Context, id int64, priceFactor int) error {
	f.updates[id] = priceFactor
	return nil
}

func (f *fakePositions) DeleteBuy(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRunner struct {
	signals []*signal.Signal
	outcome *dex.Outcome
	err     error
}

func (f *fakeRunner) RunTrade(_ context.Context, sig *signal.Signal) (*dex.Outcome, error) {
	f.signals = append(f.signals, sig)
	return f.outcome, f.err
}

func newTestScheduler(t *testing.T, store *fakePositions, oracle *fakeOracle, runner *fakeRunner) *Scheduler {
	t.Helper()
	s, err := NewScheduler(store, oracle, runner, SchedulerConfig{
		Interval: 10 * time.Second,
		Ladder:   []float64{0.01, 2, 10},
		Chain:    "solana",
		Platform: "raydium",
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSchedulerMidLadderSellsHalfAndIncrements(t *testing.T) {
	row := &storage.Buy{ID: 7, ContractAddress: testMint(), PurchasedPrice: 2.0, PriceFactor: 1, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{Engine: "jupiter"}}
	// $4.10 >= $2.00 * 2
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(4.10)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	sig := runner.signals[0]
	assert.Equal(t, signal.ActionSell, sig.Action)
	assert.Equal(t, "50", sig.Amount)
	assert.Equal(t, int64(7), sig.LedgerID)

	assert.Equal(t, 2, store.updates[7])
	assert.Empty(t, store.deleted)
}

func TestSchedulerFreshPositionSellsHalfOnFirstRung(t *testing.T) {
	row := &storage.Buy{ID: 2, ContractAddress: testMint(), PurchasedPrice: 2.0, PriceFactor: 0, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{Engine: "jupiter"}}
	// $4.10 >= $2.00 * 0.01, the first rung of the ladder
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(4.10)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	assert.Equal(t, "50", runner.signals[0].Amount)
	assert.Equal(t, 1, store.updates[2])
	assert.Empty(t, store.deleted)
}

func TestSchedulerTerminalRungSellsAllAndDeletes(t *testing.T) {
	row := &storage.Buy{ID: 9, ContractAddress: testMint(), PurchasedPrice: 2.0, PriceFactor: 2, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{Engine: "jupiter"}}
	// $21 >= $2.00 * 10
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(21.0)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	assert.Equal(t, "100", runner.signals[0].Amount)
	assert.Equal(t, []int64{9}, store.deleted)
	assert.Empty(t, store.updates)
}

func TestSchedulerBelowThresholdDoesNothing(t *testing.T) {
	row := &storage.Buy{ID: 3, ContractAddress: testMint(), PurchasedPrice: 2.0, PriceFactor: 1, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{}}
	// $3.99 < $2.00 * 2
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(3.99)}, runner)

	s.Tick(context.Background())

	assert.Empty(t, runner.signals)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.deleted)
}

func TestSchedulerUnpricedPositionSkipped(t *testing.T) {
	row := &storage.Buy{ID: 4, ContractAddress: testMint(), PurchasedPrice: 2.0, PriceFactor: 0, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{}}
	s := newTestScheduler(t, store, &fakeOracle{value: nil}, runner)

	s.Tick(context.Background())

	assert.Empty(t, runner.signals)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.deleted)
}

func TestSchedulerFailedSellLeavesRowUntouched(t *testing.T) {
	row := &storage.Buy{ID: 5, ContractAddress: testMint(), PurchasedPrice: 1.0, PriceFactor: 1, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{err: errors.New("swap rejected")}
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(100.0)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	assert.Empty(t, store.updates)
	assert.Empty(t, store.deleted)
}

func TestSchedulerSimulatedSellLeavesRowUntouched(t *testing.T) {
	row := &storage.Buy{ID: 6, ContractAddress: testMint(), PurchasedPrice: 1.0, PriceFactor: 2, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{Simulated: true}}
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(100.0)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	assert.Empty(t, store.deleted)
	assert.Empty(t, store.updates)
}

func TestSchedulerRungSaturatesAtTerminal(t *testing.T) {
	// A row whose priceFactor somehow exceeds the ladder is clamped to the
	// terminal rung instead of indexing out of bounds.
	row := &storage.Buy{ID: 8, ContractAddress: testMint(), PurchasedPrice: 1.0, PriceFactor: 9, Chain: "solana"}
	store := newFakePositions(row)
	runner := &fakeRunner{outcome: &dex.Outcome{}}
	s := newTestScheduler(t, store, &fakeOracle{value: floatPtr(100.0)}, runner)

	s.Tick(context.Background())

	require.Len(t, runner.signals, 1)
	assert.Equal(t, "100", runner.signals[0].Amount)
	assert.Equal(t, []int64{8}, store.deleted)
}

func TestSchedulerSharedMintPricedOncePerTick(t *testing.T) {
	mint := testMint()
	rows := []*storage.Buy{
		{ID: 11, ContractAddress: mint, PurchasedPrice: 2.0, PriceFactor: 1, Chain: "solana"},
		{ID: 12, ContractAddress: mint, PurchasedPrice: 2.5, PriceFactor: 1, Chain: "solana"},
	}
	store := newFakePositions(rows...)
	oracle := &fakeOracle{value: floatPtr(1.0)}
	s := newTestScheduler(t, store, oracle, &fakeRunner{outcome: &dex.Outcome{}})

	s.Tick(context.Background())

	assert.Len(t, oracle.lookups, 1)
}

func TestNewSchedulerValidatesLadder(t *testing.T) {
	_, err := NewScheduler(newFakePositions(), &fakeOracle{}, &fakeRunner{}, SchedulerConfig{
		Interval: time.Second,
		Ladder:   []float64{2},
	}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewScheduler(newFakePositions(), &fakeOracle{}, &fakeRunner{}, SchedulerConfig{
		Interval: time.Second,
		Ladder:   []float64{2, 0.5},
	}, zap.NewNop())
	assert.Error(t, err)
}
