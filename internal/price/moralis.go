// internal/price/moralis.go
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMoralisBaseURL = "https://solana-gateway.moralis.io"

// Moralis prices tokens through the Moralis Solana gateway.
type Moralis struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewMoralis(apiKey string) *Moralis {
	return NewMoralisWithBaseURL(defaultMoralisBaseURL, apiKey)
}

func NewMoralisWithBaseURL(baseURL, apiKey string) *Moralis {
	return &Moralis{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *Moralis) Name() string { return "moralis" }

type moralisPriceResponse struct {
	USDPrice *float64 `json:"usdPrice"`
}

func (m *Moralis) TokenPrice(ctx context.Context, mint string) (float64, error) {
	endpoint := fmt.Sprintf("%s/token/mainnet/%s/price", m.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-API-Key", m.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("moralis returned status %d", resp.StatusCode)
	}

	var decoded moralisPriceResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0, fmt.Errorf("failed to decode moralis response: %w", err)
	}
	if decoded.USDPrice == nil {
		return 0, fmt.Errorf("moralis has no price for %s", mint)
	}
	return *decoded.USDPrice, nil
}
