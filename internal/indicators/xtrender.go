package indicators

import (
	"math"

	"github.com/stockrun/stockrun/internal/models"
)

// XTrender color classes.
const (
	XTrenderGreen  = "Green"
	XTrenderRed    = "Red"
	XTrenderYellow = "Yellow"
)

const xtrenderName = "xtrender"

const xtrenderWarmupMargin = 5

// XTrender is a trend-momentum color indicator: MACD-style EMA spread,
// smoothed, classified into Green / Yellow / Red.
type XTrender struct {
	fastSpan   int
	slowSpan   int
	signalSpan int
	greenFloor float64
	redCeiling float64
}

// NewXTrender builds an XTrender instance from configuration.
func NewXTrender(cfg map[string]any) (Indicator, error) {
	if err := rejectUnknownParams(cfg,
		"fast_span", "slow_span", "signal_span", "green_floor", "red_ceiling"); err != nil {
		return nil, err
	}
	fast, err := intParam(cfg, "fast_span", 12, 2, 250)
	if err != nil {
		return nil, err
	}
	slow, err := intParam(cfg, "slow_span", 26, 2, 500)
	if err != nil {
		return nil, err
	}
	signalSpan, err := intParam(cfg, "signal_span", 9, 1, 100)
	if err != nil {
		return nil, err
	}
	greenFloor, err := floatParam(cfg, "green_floor", 0.0, -100, 100)
	if err != nil {
		return nil, err
	}
	redCeiling, err := floatParam(cfg, "red_ceiling", -0.5, -100, 100)
	if err != nil {
		return nil, err
	}
	return &XTrender{
		fastSpan:   fast,
		slowSpan:   slow,
		signalSpan: signalSpan,
		greenFloor: greenFloor,
		redCeiling: redCeiling,
	}, nil
}

func (x *XTrender) Name() string { return xtrenderName }

func (x *XTrender) RequiredPeriods() int {
	span := x.slowSpan
	if x.fastSpan > span {
		span = x.fastSpan
	}
	return span + x.signalSpan + xtrenderWarmupMargin
}

func (x *XTrender) Metadata() Metadata {
	return Metadata{
		DisplayName: "XTrender Momentum Color",
		Description: "Fast/slow EMA spread smoothed by a signal EMA and classified into Green (bullish), Yellow (transition) and Red (bearish).",
		Category:    "trend",
		Params: []ParamSpec{
			{Name: "fast_span", Type: "int", Default: 12, Min: 2, Max: 250, Description: "Fast EMA span"},
			{Name: "slow_span", Type: "int", Default: 26, Min: 2, Max: 500, Description: "Slow EMA span"},
			{Name: "signal_span", Type: "int", Default: 9, Min: 1, Max: 100, Description: "Smoothing EMA span"},
			{Name: "green_floor", Type: "float", Default: 0.0, Min: -100, Max: 100, Description: "Smoothed momentum floor for Green"},
			{Name: "red_ceiling", Type: "float", Default: -0.5, Min: -100, Max: 100, Description: "Smoothed momentum ceiling for Red"},
		},
	}
}

// Calculate appends xtrender_raw and xtrender_smoothed columns.
func (x *XTrender) Calculate(series *models.Series) (*models.Series, error) {
	if err := checkSeries(xtrenderName, series, x.RequiredPeriods()); err != nil {
		return nil, err
	}

	out := series.Clone()
	closes := out.Closes()

	fast := ema(closes, x.fastSpan)
	slow := ema(closes, x.slowSpan)

	raw := nanSlice(len(closes))
	for i := range raw {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			raw[i] = fast[i] - slow[i]
		}
	}
	smoothed := ema(raw, x.signalSpan)

	if err := out.SetColumn("xtrender_raw", raw); err != nil {
		return nil, err
	}
	if err := out.SetColumn("xtrender_smoothed", smoothed); err != nil {
		return nil, err
	}
	return out, nil
}

// Signal classifies the most recent smoothed momentum.
func (x *XTrender) Signal(series *models.Series) (*models.Signal, error) {
	computed := series
	if _, ok := series.Column("xtrender_smoothed"); !ok {
		var err error
		computed, err = x.Calculate(series)
		if err != nil {
			return nil, err
		}
	}

	smoothedCol, _ := computed.Column("xtrender_smoothed")
	rawCol, _ := computed.Column("xtrender_raw")

	momentum := last(smoothedCol)
	signal := models.NewSignal(xtrenderName, computed.Ticker, computed.LastTimestamp())
	signal.Set("color", models.String(x.Classify(momentum)))
	signal.Set("momentum", models.Number(momentum))
	signal.Set("raw", models.Number(last(rawCol)))
	return signal, nil
}

// Classify maps smoothed momentum to a color. NaN is Yellow: not enough
// settled history to call a direction.
func (x *XTrender) Classify(momentum float64) string {
	switch {
	case math.IsNaN(momentum):
		return XTrenderYellow
	case momentum >= x.greenFloor:
		return XTrenderGreen
	case momentum <= x.redCeiling:
		return XTrenderRed
	default:
		return XTrenderYellow
	}
}
