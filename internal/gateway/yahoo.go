package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/stockrun/stockrun/internal/models"
)

// toFloat converts finance-go's decimal bar fields.
func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// SourceYahoo is the rate-limiter source name for Yahoo calls.
const SourceYahoo = "yahoo"

// calendarDaysPerTradingDay oversizes history fetches so weekends and
// holidays still leave enough trading bars.
const calendarDaysPerTradingDay = 1.5

// Yahoo serves market data from Yahoo Finance via finance-go. All errors
// are wrapped in ErrDataProvider.
type Yahoo struct{}

// NewYahoo creates the gateway.
func NewYahoo() *Yahoo { return &Yahoo{} }

// GetSeries fetches daily bars covering at least periods trading days.
func (y *Yahoo) GetSeries(ctx context.Context, ticker string, periods int) (*models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := time.Now()
	start := end.AddDate(0, 0, -int(float64(periods)*calendarDaysPerTradingDay)-7)

	params := &chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	var bars []models.Bar
	iter := chart.Get(params)
	for iter.Next() {
		bar := iter.Bar()
		bars = append(bars, models.Bar{
			Timestamp: time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:      toFloat(bar.Open),
			High:      toFloat(bar.High),
			Low:       toFloat(bar.Low),
			Close:     toFloat(bar.Close),
			Volume:    float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %v: %w", ticker, err, ErrDataProvider)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: no bars returned: %w", ticker, ErrDataProvider)
	}

	series, err := models.NewSeries(ticker, bars)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %v: %w", ticker, err, ErrDataProvider)
	}
	return series, nil
}

// GetCurrentPrice fetches the regular-market price.
func (y *Yahoo) GetCurrentPrice(ctx context.Context, ticker string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := quote.Get(ticker)
	if err != nil {
		return 0, fmt.Errorf("yahoo quote %s: %v: %w", ticker, err, ErrDataProvider)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return 0, fmt.Errorf("yahoo quote %s: no price: %w", ticker, ErrDataProvider)
	}
	return q.RegularMarketPrice, nil
}

// GetFundamentals fetches the equity record. Missing fundamentals are not
// an error; enrichment is best-effort.
func (y *Yahoo) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eq, err := equity.Get(ticker)
	if err != nil {
		return nil, fmt.Errorf("yahoo equity %s: %v: %w", ticker, err, ErrDataProvider)
	}
	if eq == nil {
		return nil, nil
	}
	return &models.Fundamentals{
		MarketCap:     float64(eq.MarketCap),
		PERatio:       eq.TrailingPE,
		EPS:           eq.EpsTrailingTwelveMonths,
		DividendYield: eq.TrailingAnnualDividendYield,
		FiftyTwoWkHi:  eq.FiftyTwoWeekHigh,
		FiftyTwoWkLo:  eq.FiftyTwoWeekLow,
	}, nil
}
