// internal/dex/raydium/pool.go
package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolKeys is the fully resolved account set needed to build a swap against
// one pool.
type PoolKeys struct {
	ID        solana.PublicKey
	ProgramID solana.PublicKey
	Authority solana.PublicKey
	Version   int

	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	BaseDecimals  uint8
	QuoteDecimals uint8
	BaseVault     solana.PublicKey
	QuoteVault    solana.PublicKey
	OpenOrders    solana.PublicKey
	TargetOrders  solana.PublicKey

	MarketProgramID  solana.PublicKey
	MarketID         solana.PublicKey
	MarketAuthority  solana.PublicKey
	MarketBaseVault  solana.PublicKey
	MarketQuoteVault solana.PublicKey
	MarketBids       solana.PublicKey
	MarketAsks       solana.PublicKey
	MarketEventQueue solana.PublicKey
}

// BaseIsToken reports whether the traded token sits on the base side of the
// pool (the quote side is then wrapped SOL).
func (k *PoolKeys) BaseIsToken(mint solana.PublicKey) bool {
	return k.BaseMint.Equals(mint)
}

type chainClient interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, programID solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// Resolver finds pool keys for a mint, preferring the hosted pool directory
// and falling back to an on-chain program scan. Results are cached for the
// process lifetime.
type Resolver struct {
	httpClient   *http.Client
	directoryURL string
	chain        chainClient
	programs     []solana.PublicKey
	logger       *zap.Logger

	mu    sync.RWMutex
	cache map[string]*PoolKeys
}

const (
	directoryTries = 3
	directoryDelay = time.Second
)

func NewResolver(directoryURL string, chain chainClient, logger *zap.Logger) *Resolver {
	return &Resolver{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		directoryURL: directoryURL,
		chain:        chain,
		programs:     []solana.PublicKey{MainnetAMMProgramID, DevnetAMMProgramID},
		logger:       logger.Named("raydium.resolver"),
		cache:        make(map[string]*PoolKeys),
	}
}

// Resolve returns the pool keys for a token mint paired with wrapped SOL.
func (r *Resolver) Resolve(ctx context.Context, mint solana.PublicKey) (*PoolKeys, error) {
	r.mu.RLock()
	if keys, ok := r.cache[mint.String()]; ok {
		r.mu.RUnlock()
		return keys, nil
	}
	r.mu.RUnlock()

	keys, err := r.fromDirectory(ctx, mint)
	if err != nil {
		r.logger.Debug("Pool directory lookup failed, scanning on-chain",
			zap.String("mint", mint.String()), zap.Error(err))
		keys, err = r.fromChain(ctx, mint)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[mint.String()] = keys
	r.mu.Unlock()
	return keys, nil
}

// directoryPool mirrors one entry of the hosted liquidity directory.
type directoryPool struct {
	ID               string `json:"id"`
	BaseMint         string `json:"baseMint"`
	QuoteMint        string `json:"quoteMint"`
	BaseDecimals     uint8  `json:"baseDecimals"`
	QuoteDecimals    uint8  `json:"quoteDecimals"`
	Version          int    `json:"version"`
	ProgramID        string `json:"programId"`
	Authority        string `json:"authority"`
	OpenOrders       string `json:"openOrders"`
	TargetOrders     string `json:"targetOrders"`
	BaseVault        string `json:"baseVault"`
	QuoteVault       string `json:"quoteVault"`
	MarketProgramID  string `json:"marketProgramId"`
	MarketID         string `json:"marketId"`
	MarketAuthority  string `json:"marketAuthority"`
	MarketBaseVault  string `json:"marketBaseVault"`
	MarketQuoteVault string `json:"marketQuoteVault"`
	MarketBids       string `json:"marketBids"`
	MarketAsks       string `json:"marketAsks"`
	MarketEventQueue string `json:"marketEventQueue"`
}

// fromDirectory fetches the hosted pool list. Transport errors are retried a
// few times with a fixed delay; a response that is not a JSON array means the
// endpoint changed shape, and retrying cannot help.
func (r *Resolver) fromDirectory(ctx context.Context, mint solana.PublicKey) (*PoolKeys, error) {
	pools, err := backoff.Retry(ctx, func() ([]directoryPool, error) {
		return r.fetchDirectory(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(directoryDelay)),
		backoff.WithMaxTries(directoryTries),
	)
	if err != nil {
		return nil, fmt.Errorf("pool directory unavailable: %w", err)
	}

	for i := range pools {
		entry := &pools[i]
		pairsMint := (entry.BaseMint == mint.String() && entry.QuoteMint == WSOLMint.String()) ||
			(entry.QuoteMint == mint.String() && entry.BaseMint == WSOLMint.String())
		if !pairsMint {
			continue
		}
		keys, err := entry.toPoolKeys()
		if err != nil {
			r.logger.Warn("Skipping malformed directory entry",
				zap.String("pool_id", entry.ID), zap.Error(err))
			continue
		}
		return keys, nil
	}
	return nil, fmt.Errorf("%w: mint %s not in directory", ErrPoolNotFound, mint)
}

func (r *Resolver) fetchDirectory(ctx context.Context) ([]directoryPool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.directoryURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pool directory returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var pools []directoryPool
	if err := json.Unmarshal(body, &pools); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("pool directory is not a JSON array: %w", err))
	}
	return pools, nil
}

func (e *directoryPool) toPoolKeys() (*PoolKeys, error) {
	keys := &PoolKeys{
		Version:       e.Version,
		BaseDecimals:  e.BaseDecimals,
		QuoteDecimals: e.QuoteDecimals,
	}
	for _, field := range []struct {
		name string
		raw  string
		dst  *solana.PublicKey
	}{
		{"id", e.ID, &keys.ID},
		{"programId", e.ProgramID, &keys.ProgramID},
		{"authority", e.Authority, &keys.Authority},
		{"baseMint", e.BaseMint, &keys.BaseMint},
		{"quoteMint", e.QuoteMint, &keys.QuoteMint},
		{"baseVault", e.BaseVault, &keys.BaseVault},
		{"quoteVault", e.QuoteVault, &keys.QuoteVault},
		{"openOrders", e.OpenOrders, &keys.OpenOrders},
		{"targetOrders", e.TargetOrders, &keys.TargetOrders},
		{"marketProgramId", e.MarketProgramID, &keys.MarketProgramID},
		{"marketId", e.MarketID, &keys.MarketID},
		{"marketAuthority", e.MarketAuthority, &keys.MarketAuthority},
		{"marketBaseVault", e.MarketBaseVault, &keys.MarketBaseVault},
		{"marketQuoteVault", e.MarketQuoteVault, &keys.MarketQuoteVault},
		{"marketBids", e.MarketBids, &keys.MarketBids},
		{"marketAsks", e.MarketAsks, &keys.MarketAsks},
		{"marketEventQueue", e.MarketEventQueue, &keys.MarketEventQueue},
	} {
		pk, err := solana.PublicKeyFromBase58(field.raw)
		if err != nil {
			return nil, fmt.Errorf("bad %s %q: %w", field.name, field.raw, err)
		}
		*field.dst = pk
	}
	return keys, nil
}

type scanHit struct {
	programID solana.PublicKey
	pubkey    solana.PublicKey
	state     *LiquidityState
}

// fromChain scans the AMM programs for a pool pairing the mint with wrapped
// SOL. Both schema versions and both mint orderings are tried concurrently.
func (r *Resolver) fromChain(ctx context.Context, mint solana.PublicKey) (*PoolKeys, error) {
	var (
		mu       sync.Mutex
		hit      *scanHit
		scans    int
		scanErrs int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, programID := range r.programs {
		for _, version := range []int{4, 5} {
			for _, tokenIsBase := range []bool{true, false} {
				programID, version, tokenIsBase := programID, version, tokenIsBase
				scans++
				g.Go(func() error {
					found, err := r.scanProgram(gctx, programID, version, mint, tokenIsBase)
					if err != nil {
						// An RPC error on one combination must not sink the
						// others, but it is not a miss either.
						r.logger.Warn("Pool scan failed",
							zap.String("program_id", programID.String()),
							zap.Int("version", version),
							zap.Bool("token_is_base", tokenIsBase),
							zap.Error(err))
						mu.Lock()
						scanErrs++
						lastErr = err
						mu.Unlock()
						return nil
					}
					if found == nil {
						return nil
					}
					mu.Lock()
					if hit == nil {
						hit = found
					}
					mu.Unlock()
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if hit == nil {
		if scanErrs == scans {
			// Every scan errored: the chain is unreachable, which says
			// nothing about whether the pool exists.
			return nil, fmt.Errorf("all %d pool scans failed: %w", scans, lastErr)
		}
		return nil, fmt.Errorf("%w: no on-chain pool for mint %s", ErrPoolNotFound, mint)
	}
	return r.assemble(ctx, hit)
}

func (r *Resolver) scanProgram(ctx context.Context, programID solana.PublicKey, version int, mint solana.PublicKey, tokenIsBase bool) (*scanHit, error) {
	size, err := StateSize(version)
	if err != nil {
		return nil, err
	}
	baseOffset, quoteOffset, err := MintOffsets(version)
	if err != nil {
		return nil, err
	}

	baseMint, quoteMint := mint, WSOLMint
	if !tokenIsBase {
		baseMint, quoteMint = WSOLMint, mint
	}

	accounts, err := r.chain.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: size},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: baseOffset, Bytes: solana.Base58(baseMint.Bytes())}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: quoteOffset, Bytes: solana.Base58(quoteMint.Bytes())}},
		},
	})
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		if account == nil || account.Account == nil {
			continue
		}
		state, err := DecodeLiquidityState(account.Account.Data.GetBinary())
		if err != nil {
			r.logger.Debug("Skipping undecodable pool candidate",
				zap.String("account", account.Pubkey.String()), zap.Error(err))
			continue
		}
		genuine, err := VerifyLPMint(state, programID)
		if err != nil || !genuine {
			r.logger.Debug("Skipping pool candidate with mismatched lp mint",
				zap.String("account", account.Pubkey.String()))
			continue
		}
		return &scanHit{programID: programID, pubkey: account.Pubkey, state: state}, nil
	}
	return nil, nil
}

// assemble completes a scanned pool with market-side accounts.
func (r *Resolver) assemble(ctx context.Context, hit *scanHit) (*PoolKeys, error) {
	state := hit.state

	authority, err := Authority(hit.programID)
	if err != nil {
		return nil, err
	}

	marketInfo, err := r.chain.GetAccountInfo(ctx, state.MarketID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", state.MarketID, err)
	}
	if marketInfo == nil || marketInfo.Value == nil {
		return nil, fmt.Errorf("%w: market account %s missing", ErrPoolNotFound, state.MarketID)
	}
	market, err := DecodeMarketState(marketInfo.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}

	marketAuthority, err := VaultSigner(state.MarketID, market.VaultSignerNonce, state.MarketProgramID)
	if err != nil {
		return nil, err
	}

	return &PoolKeys{
		ID:               hit.pubkey,
		ProgramID:        hit.programID,
		Authority:        authority,
		Version:          state.Version,
		BaseMint:         state.BaseMint,
		QuoteMint:        state.QuoteMint,
		BaseDecimals:     state.BaseDecimals,
		QuoteDecimals:    state.QuoteDecimals,
		BaseVault:        state.BaseVault,
		QuoteVault:       state.QuoteVault,
		OpenOrders:       state.OpenOrders,
		TargetOrders:     state.TargetOrders,
		MarketProgramID:  state.MarketProgramID,
		MarketID:         state.MarketID,
		MarketAuthority:  marketAuthority,
		MarketBaseVault:  market.BaseVault,
		MarketQuoteVault: market.QuoteVault,
		MarketBids:       market.Bids,
		MarketAsks:       market.Asks,
		MarketEventQueue: market.EventQueue,
	}, nil
}
