package indicators

import (
	"fmt"
	"math"

	"github.com/stockrun/stockrun/internal/models"
)

// SMA position classes relative to the moving average.
const (
	SMAAbove = "above"
	SMABelow = "below"
	SMAAt    = "at"
)

const smaName = "sma"

const smaWarmupMargin = 5

// atBandFraction is how close price must be to the average (fractionally)
// to read as "at" rather than above/below.
const atBandFraction = 0.001

// SMA is a simple moving average with a price-position signal.
type SMA struct {
	period int
}

// NewSMA builds an SMA instance from configuration.
func NewSMA(cfg map[string]any) (Indicator, error) {
	if err := rejectUnknownParams(cfg, "period"); err != nil {
		return nil, err
	}
	period, err := intParam(cfg, "period", 20, 2, 500)
	if err != nil {
		return nil, err
	}
	return &SMA{period: period}, nil
}

func (s *SMA) Name() string { return smaName }

func (s *SMA) RequiredPeriods() int { return s.period + smaWarmupMargin }

func (s *SMA) Metadata() Metadata {
	return Metadata{
		DisplayName: "Simple Moving Average",
		Description: "Rolling close-price mean with the current price's position and percent distance from it.",
		Category:    "trend",
		Params: []ParamSpec{
			{Name: "period", Type: "int", Default: 20, Min: 2, Max: 500, Description: "Averaging window in bars"},
		},
	}
}

// column returns the period-specific output column name, so two SMA
// configurations can coexist on one series.
func (s *SMA) column() string { return fmt.Sprintf("sma_%d", s.period) }

// Calculate appends the sma_<period> column.
func (s *SMA) Calculate(series *models.Series) (*models.Series, error) {
	if err := checkSeries(smaName, series, s.RequiredPeriods()); err != nil {
		return nil, err
	}

	out := series.Clone()
	values := rollingMean(out.Closes(), s.period)
	if err := out.SetColumn(s.column(), values); err != nil {
		return nil, err
	}
	return out, nil
}

// Signal reports the average value, current price, position and percent
// distance.
func (s *SMA) Signal(series *models.Series) (*models.Signal, error) {
	computed := series
	if _, ok := series.Column(s.column()); !ok {
		var err error
		computed, err = s.Calculate(series)
		if err != nil {
			return nil, err
		}
	}

	col, _ := computed.Column(s.column())
	value := last(col)
	price := last(computed.Closes())

	position := SMAAt
	distancePct := math.NaN()
	if !math.IsNaN(value) && value != 0 {
		distancePct = (price - value) / value * 100
		band := math.Abs(value) * atBandFraction
		switch {
		case price > value+band:
			position = SMAAbove
		case price < value-band:
			position = SMABelow
		}
	}

	signal := models.NewSignal(smaName, computed.Ticker, computed.LastTimestamp())
	signal.Set("value", models.Number(value))
	signal.Set("price", models.Number(price))
	signal.Set("position", models.String(position))
	signal.Set("distance_pct", models.Number(distancePct))
	return signal, nil
}
