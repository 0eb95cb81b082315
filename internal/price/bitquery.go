// internal/price/bitquery.go
package price

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBitqueryBaseURL = "https://streaming.bitquery.io/graphql"

// bitqueryPriceQuery pulls the latest USD trade price of a mint from DEX
// trade history.
const bitqueryPriceQuery = `query ($mint: String!) {
  Solana {
    DEXTradeByTokens(
      limit: {count: 1}
      orderBy: {descending: Block_Time}
      where: {Trade: {Currency: {MintAddress: {is: $mint}}}}
    ) {
      Trade {
        PriceInUSD
      }
    }
  }
}`

// Bitquery prices tokens from recent DEX trades via the Bitquery streaming
// API.
type Bitquery struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewBitquery(token string) *Bitquery {
	return NewBitqueryWithEndpoint(defaultBitqueryBaseURL, token)
}

func NewBitqueryWithEndpoint(endpoint, token string) *Bitquery {
	return &Bitquery{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *Bitquery) Name() string { return "bitquery" }

type bitqueryRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type bitqueryResponse struct {
	Data struct {
		Solana struct {
			DEXTradeByTokens []struct {
				Trade struct {
					PriceInUSD *float64 `json:"PriceInUSD"`
				} `json:"Trade"`
			} `json:"DEXTradeByTokens"`
		} `json:"Solana"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (b *Bitquery) TokenPrice(ctx context.Context, mint string) (float64, error) {
	payload, err := json.Marshal(bitqueryRequest{
		Query:     bitqueryPriceQuery,
		Variables: map[string]string{"mint": mint},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("bitquery returned status %d", resp.StatusCode)
	}

	var decoded bitqueryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("failed to decode bitquery response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return 0, fmt.Errorf("bitquery error: %s", decoded.Errors[0].Message)
	}

	trades := decoded.Data.Solana.DEXTradeByTokens
	if len(trades) == 0 || trades[0].Trade.PriceInUSD == nil {
		return 0, fmt.Errorf("bitquery has no trades for %s", mint)
	}
	return *trades[0].Trade.PriceInUSD, nil
}
