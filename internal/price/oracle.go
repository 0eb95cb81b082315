// internal/price/oracle.go
package price

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Provider prices one token mint in USD.
type Provider interface {
	Name() string
	TokenPrice(ctx context.Context, mint string) (float64, error)
}

// Result carries a price lookup outcome. USDPrice is nil when every provider
// was exhausted; callers treat that as "skip the trade", never as zero.
type Result struct {
	USDPrice *float64
	Provider string
}

// Priced reports whether a usable price was found.
func (r Result) Priced() bool { return r.USDPrice != nil }

const (
	providerTries = 5
	providerDelay = time.Second
)

// Oracle queries providers in configuration order, retrying each a fixed
// number of times before moving on.
type Oracle struct {
	providers []Provider
	tries     int
	delay     time.Duration
	logger    *zap.Logger
}

func NewOracle(providers []Provider, logger *zap.Logger) *Oracle {
	return &Oracle{
		providers: providers,
		tries:     providerTries,
		delay:     providerDelay,
		logger:    logger.Named("price"),
	}
}

// TokenPrice resolves the USD price of a mint. It never returns an error: an
// unpriceable token yields an unset result.
func (o *Oracle) TokenPrice(ctx context.Context, mint string) Result {
	for _, provider := range o.providers {
		for attempt := 1; attempt <= o.tries; attempt++ {
			value, err := provider.TokenPrice(ctx, mint)
			if err == nil {
				return Result{USDPrice: &value, Provider: provider.Name()}
			}

			o.logger.Debug("Price lookup attempt failed",
				zap.String("provider", provider.Name()),
				zap.String("mint", mint),
				zap.Int("attempt", attempt),
				zap.Error(err))

			if attempt == o.tries {
				break
			}
			select {
			case <-ctx.Done():
				return Result{}
			case <-time.After(o.delay):
			}
		}
	}

	o.logger.Warn("All price providers exhausted", zap.String("mint", mint))
	return Result{}
}
