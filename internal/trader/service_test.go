package trader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/dex"
	"github.com/soltank/soltank-bot/internal/price"
	"github.com/soltank/soltank-bot/internal/signal"
	"github.com/soltank/soltank-bot/internal/storage"
	"github.com/soltank/soltank-bot/internal/wallet"
)

type fakeClassifier struct {
	next signal.Classification
}

func (f *fakeClassifier) Classify(_ string, _ signal.Action) signal.Classification {
	return f.next
}

type fakeExecutor struct {
	mu      sync.Mutex
	tasks   []dex.Task
	outcome *dex.Outcome
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, task dex.Task) (*dex.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return f.outcome, f.err
}

type fakeOracle struct {
	value   *float64
	lookups []string
}

func (f *fakeOracle) TokenPrice(_ context.Context, mint string) price.Result {
	f.lookups = append(f.lookups, mint)
	return price.Result{USDPrice: f.value, Provider: "fake"}
}

type fakeLedger struct {
	inserted   []*storage.Buy
	cleared    bool
	pruneMints []string
	err        error
}

func (f *fakeLedger) InsertBuys(_ context.Context, buys []*storage.Buy) error {
	f.inserted = append(f.inserted, buys...)
	return f.err
}

func (f *fakeLedger) ClearAllBuys(_ context.Context) (int64, error) {
	f.cleared = true
	return 3, f.err
}

func (f *fakeLedger) ClearBuysNotIn(_ context.Context, mints []string) (int64, error) {
	f.pruneMints = mints
	return 1, f.err
}

type fakeHoldings struct {
	balance uint64
	err     error

	// ui holds successive decimal-adjusted balance readings; the last value
	// repeats once exhausted.
	ui      []float64
	uiCalls int
	uiErr   error
}

func (f *fakeHoldings) GetTokenAccountBalance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	return f.balance, f.err
}

func (f *fakeHoldings) GetTokenAccountUIBalance(_ context.Context, _ solana.PublicKey) (float64, error) {
	i := f.uiCalls
	f.uiCalls++
	if f.uiErr != nil {
		return 0, f.uiErr
	}
	if len(f.ui) == 0 {
		return 0, nil
	}
	if i >= len(f.ui) {
		i = len(f.ui) - 1
	}
	return f.ui[i], nil
}

type capturingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (c *capturingNotifier) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, n)
}

func (c *capturingNotifier) last(t *testing.T) Notification {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.notifications)
	return c.notifications[len(c.notifications)-1]
}

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewFromPrivateKey(base58.Encode(solana.NewWallet().PrivateKey))
	require.NoError(t, err)
	return w
}

func floatPtr(v float64) *float64 { return &v }

type serviceFixture struct {
	service    *Service
	classifier *fakeClassifier
	executor   *fakeExecutor
	oracle     *fakeOracle
	ledger     *fakeLedger
	holdings   *fakeHoldings
	notifier   *capturingNotifier
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		classifier: &fakeClassifier{next: signal.Classification{Kind: signal.KindInitial, Version: 1}},
		executor:   &fakeExecutor{outcome: &dex.Outcome{Engine: "jupiter"}},
		oracle:     &fakeOracle{value: floatPtr(2.0)},
		ledger:     &fakeLedger{},
		holdings:   &fakeHoldings{balance: 1_000_000},
		notifier:   &capturingNotifier{},
	}
	f.service = NewService(
		f.classifier, f.executor, f.oracle, f.ledger, f.holdings,
		testWallet(t), f.notifier,
		Config{
			Platform:        "raydium",
			Chain:           "solana",
			SlippageBps:     1000,
			SolBuyAmountMin: 0.00001,
			SolBuyAmountMax: 0.00005,
		},
		zap.NewNop(),
	)
	return f
}

func testMint() string {
	return solana.NewWallet().PublicKey().String()
}

func TestCreateSignalRejectsBadAddress(t *testing.T) {
	f := newFixture(t)

	accepted, err := f.service.CreateSignal(context.Background(), "definitely-not-a-mint", "0.01 SOL", signal.ActionBuy)
	assert.Error(t, err)
	assert.False(t, accepted)
}

func TestCreateSignalRejectsOffCurveAddress(t *testing.T) {
	f := newFixture(t)

	// A program-derived address parses as base58 but is off the ed25519
	// curve, so it cannot be a mint.
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("vault")}, solana.TokenProgramID)
	require.NoError(t, err)

	accepted, err := f.service.CreateSignal(context.Background(), pda.String(), "0.01 SOL", signal.ActionBuy)
	assert.Error(t, err)
	assert.False(t, accepted)
}

func TestCreateSignalSuppressesRepeatBuy(t *testing.T) {
	f := newFixture(t)
	f.classifier.next = signal.Classification{Kind: signal.KindUpdate, Version: 2}

	accepted, err := f.service.CreateSignal(context.Background(), testMint(), "0.01 SOL", signal.ActionBuy)
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestCreateSignalNeverSuppressesSell(t *testing.T) {
	f := newFixture(t)
	f.classifier.next = signal.Classification{Kind: signal.KindUpdate, Version: 5}

	accepted, err := f.service.CreateSignal(context.Background(), testMint(), "50", signal.ActionSell)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestCreateSignalRandomizesEmptyBuyAmount(t *testing.T) {
	f := newFixture(t)

	accepted, err := f.service.CreateSignal(context.Background(), testMint(), "", signal.ActionBuy)
	require.NoError(t, err)
	require.True(t, accepted)

	sig := <-f.service.queue
	lamports, err := parseSOLAmount(sig.Amount)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lamports, uint64(10_000))  // 0.00001 SOL
	assert.LessOrEqual(t, lamports, uint64(50_000))     // 0.00005 SOL
}

func TestRunTradeBuyRecordsPosition(t *testing.T) {
	f := newFixture(t)
	mint := testMint()
	sig := &signal.Signal{
		ID:              "sig-1",
		ContractAddress: mint,
		Action:          signal.ActionBuy,
		Amount:          "0.01 SOL",
		Platform:        "raydium",
		Chain:           "solana",
	}

	outcome, err := f.service.RunTrade(context.Background(), sig)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	require.Len(t, f.executor.tasks, 1)
	task := f.executor.tasks[0]
	assert.Equal(t, dex.SideBuy, task.Side)
	assert.Equal(t, uint64(10_000_000), task.AmountIn)
	assert.Equal(t, 1000, task.SlippageBps)

	require.Len(t, f.ledger.inserted, 1)
	row := f.ledger.inserted[0]
	assert.Equal(t, mint, row.ContractAddress)
	assert.Equal(t, 2.0, row.PurchasedPrice)
	assert.Equal(t, 0, row.PriceFactor)

	n := f.notifier.last(t)
	assert.True(t, n.Success)
	assert.Equal(t, "buy", n.Action)
}

func TestRunTradeUnpricedBuyRefusedBeforeSwap(t *testing.T) {
	f := newFixture(t)
	f.oracle.value = nil

	sig := &signal.Signal{ID: "sig-2", ContractAddress: testMint(), Action: signal.ActionBuy, Amount: "0.01 SOL"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to buy")

	// No funds moved and no invisible position entered the ledger.
	assert.Empty(t, f.executor.tasks)
	assert.Empty(t, f.ledger.inserted)
	assert.False(t, f.notifier.last(t).Success)
}

func TestRunTradeBuyCostBasisFromBalanceDelta(t *testing.T) {
	f := newFixture(t)
	// 0 tokens before the buy, 4.0 after; SOL at $2.00.
	f.holdings.ui = []float64{0, 4.0}
	mint := testMint()

	sig := &signal.Signal{ID: "sig-7", ContractAddress: mint, Action: signal.ActionBuy, Amount: "0.01 SOL"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.NoError(t, err)

	// $2.00 * 0.01 SOL / 4 tokens
	require.Len(t, f.ledger.inserted, 1)
	assert.InDelta(t, 0.005, f.ledger.inserted[0].PurchasedPrice, 1e-12)

	require.Len(t, f.oracle.lookups, 2)
	assert.Equal(t, mint, f.oracle.lookups[0])
	assert.Equal(t, wsolMint, f.oracle.lookups[1])
}

func TestRunTradeBuyCostBasisFallsBackToQuotedPrice(t *testing.T) {
	f := newFixture(t)
	f.holdings.uiErr = errors.New("rpc unavailable")

	sig := &signal.Signal{ID: "sig-8", ContractAddress: testMint(), Action: signal.ActionBuy, Amount: "0.01 SOL"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.NoError(t, err)

	require.Len(t, f.ledger.inserted, 1)
	assert.Equal(t, 2.0, f.ledger.inserted[0].PurchasedPrice)
}

func TestRunTradeFailureNotifiesAndSkipsLedger(t *testing.T) {
	f := newFixture(t)
	f.executor.outcome = nil
	f.executor.err = &dex.RejectedError{Engine: "jupiter", Reason: "no route"}

	sig := &signal.Signal{ID: "sig-3", ContractAddress: testMint(), Action: signal.ActionBuy, Amount: "0.01 SOL"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.Error(t, err)

	assert.Empty(t, f.ledger.inserted)
	n := f.notifier.last(t)
	assert.False(t, n.Success)
	assert.Contains(t, n.Error, "no route")
}

func TestRunTradeSimulatedBuyNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.executor.outcome = &dex.Outcome{Engine: "jupiter", Simulated: true}

	sig := &signal.Signal{ID: "sig-4", ContractAddress: testMint(), Action: signal.ActionBuy, Amount: "0.01 SOL"}
	outcome, err := f.service.RunTrade(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, outcome.Simulated)

	assert.Empty(t, f.ledger.inserted)
	assert.True(t, f.notifier.last(t).Simulated)
}

func TestRunTradeSellSizesFromHoldings(t *testing.T) {
	f := newFixture(t)
	f.holdings.balance = 1_000_000

	sig := &signal.Signal{ID: "sig-5", ContractAddress: testMint(), Action: signal.ActionSell, Amount: "50"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.NoError(t, err)

	require.Len(t, f.executor.tasks, 1)
	task := f.executor.tasks[0]
	assert.Equal(t, dex.SideSell, task.Side)
	assert.Equal(t, uint64(500_000), task.AmountIn)
}

func TestRunTradeSellWithNoHoldingsFails(t *testing.T) {
	f := newFixture(t)
	f.holdings.balance = 0

	sig := &signal.Signal{ID: "sig-6", ContractAddress: testMint(), Action: signal.ActionSell, Amount: "100"}
	_, err := f.service.RunTrade(context.Background(), sig)
	require.Error(t, err)
	assert.Empty(t, f.executor.tasks)
	assert.False(t, f.notifier.last(t).Success)
}

func TestClearAndPrunePositions(t *testing.T) {
	f := newFixture(t)

	removed, err := f.service.ClearPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.True(t, f.ledger.cleared)

	held := []string{testMint(), testMint()}
	removed, err = f.service.PrunePositions(context.Background(), held)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, held, f.ledger.pruneMints)
}

func TestParseSOLAmount(t *testing.T) {
	lamports, err := parseSOLAmount("0.00002 SOL")
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000), lamports)

	lamports, err = parseSOLAmount("1.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)

	_, err = parseSOLAmount("zero SOL")
	assert.Error(t, err)

	_, err = parseSOLAmount("-1 SOL")
	assert.Error(t, err)
}
