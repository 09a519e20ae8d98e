package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/stockrun/stockrun/internal/models"
)

// Offline is a deterministic synthetic market-data gateway for offline runs
// and tests. Each ticker gets a reproducible price path seeded from its
// name, so repeated runs screen identically.
type Offline struct {
	now func() time.Time
}

// NewOffline creates the synthetic gateway.
func NewOffline() *Offline {
	return &Offline{now: time.Now}
}

// GetSeries generates periods daily bars with a ticker-seeded drift and a
// deterministic oscillation.
func (o *Offline) GetSeries(ctx context.Context, ticker string, periods int) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if periods <= 0 {
		return nil, fmt.Errorf("offline %s: non-positive periods: %w", ticker, ErrDataProvider)
	}

	seed := tickerSeed(ticker)
	// Drift in [-0.8%, +1.2%] per bar; higher seeds trend up.
	drift := -0.008 + 0.020*float64(seed%1000)/999.0
	basePrice := 20 + float64(seed%200)
	baseVolume := 500_000 + float64(seed%1_500_000)

	end := o.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -periods+1)

	bars := make([]models.Bar, periods)
	price := basePrice
	for i := range bars {
		wave := 0.005 * math.Sin(float64(i)/7+float64(seed%13))
		price *= 1 + drift + wave
		volume := baseVolume * (1 + 0.3*math.Sin(float64(i)/5+float64(seed%7)))
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price * 0.995,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    volume,
		}
	}
	return models.NewSeries(ticker, bars)
}

// GetCurrentPrice returns the close of a fresh 1-bar series.
func (o *Offline) GetCurrentPrice(ctx context.Context, ticker string) (float64, error) {
	series, err := o.GetSeries(ctx, ticker, 60)
	if err != nil {
		return 0, err
	}
	return series.Bars[series.Len()-1].Close, nil
}

// GetFundamentals fabricates a stable record per ticker.
func (o *Offline) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := tickerSeed(ticker)
	return &models.Fundamentals{
		MarketCap: 1e9 * float64(1+seed%500),
		PERatio:   8 + float64(seed%40),
		EPS:       1 + float64(seed%20),
	}, nil
}

func tickerSeed(ticker string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	return h.Sum64()
}
