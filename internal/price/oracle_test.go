package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	name     string
	failures int
	value    float64
	calls    int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) TokenPrice(_ context.Context, _ string) (float64, error) {
	p.calls++
	if p.calls <= p.failures {
		return 0, errors.New("upstream hiccup")
	}
	return p.value, nil
}

func fastOracle(providers ...Provider) *Oracle {
	o := NewOracle(providers, zap.NewNop())
	o.delay = time.Millisecond
	return o
}

func TestOracleFirstProviderWins(t *testing.T) {
	first := &scriptedProvider{name: "first", value: 1.5}
	second := &scriptedProvider{name: "second", value: 9.9}

	result := fastOracle(first, second).TokenPrice(context.Background(), "mint")
	require.True(t, result.Priced())
	assert.Equal(t, 1.5, *result.USDPrice)
	assert.Equal(t, "first", result.Provider)
	assert.Zero(t, second.calls)
}

func TestOracleRetriesBeforeFallingThrough(t *testing.T) {
	flaky := &scriptedProvider{name: "flaky", failures: 2, value: 3.25}

	result := fastOracle(flaky).TokenPrice(context.Background(), "mint")
	require.True(t, result.Priced())
	assert.Equal(t, 3.25, *result.USDPrice)
	assert.Equal(t, 3, flaky.calls)
}

func TestOracleFallsToNextProvider(t *testing.T) {
	dead := &scriptedProvider{name: "dead", failures: 100}
	alive := &scriptedProvider{name: "alive", value: 0.004}

	result := fastOracle(dead, alive).TokenPrice(context.Background(), "mint")
	require.True(t, result.Priced())
	assert.Equal(t, "alive", result.Provider)
	assert.Equal(t, providerTries, dead.calls)
}

func TestOracleExhaustionLeavesPriceUnset(t *testing.T) {
	dead := &scriptedProvider{name: "dead", failures: 100}

	result := fastOracle(dead).TokenPrice(context.Background(), "mint")
	assert.False(t, result.Priced())
	assert.Nil(t, result.USDPrice)
}

func TestMoralisProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/mainnet/SomeMint/price", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		fmt.Fprint(w, `{"usdPrice": 0.0123, "exchangeName": "Raydium"}`)
	}))
	defer server.Close()

	p := NewMoralisWithBaseURL(server.URL, "test-key")
	value, err := p.TokenPrice(context.Background(), "SomeMint")
	require.NoError(t, err)
	assert.Equal(t, 0.0123, value)
}

func TestMoralisMissingPriceIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"exchangeName": "Raydium"}`)
	}))
	defer server.Close()

	p := NewMoralisWithBaseURL(server.URL, "test-key")
	_, err := p.TokenPrice(context.Background(), "SomeMint")
	assert.Error(t, err)
}

func TestBitqueryProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"Solana":{"DEXTradeByTokens":[{"Trade":{"PriceInUSD":2.75}}]}}}`)
	}))
	defer server.Close()

	p := NewBitqueryWithEndpoint(server.URL, "tok")
	value, err := p.TokenPrice(context.Background(), "SomeMint")
	require.NoError(t, err)
	assert.Equal(t, 2.75, value)
}

func TestBitqueryNoTradesIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"Solana":{"DEXTradeByTokens":[]}}}`)
	}))
	defer server.Close()

	p := NewBitqueryWithEndpoint(server.URL, "tok")
	_, err := p.TokenPrice(context.Background(), "SomeMint")
	assert.Error(t, err)
}
