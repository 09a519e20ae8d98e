package indicators

import (
	"math"

	"github.com/stockrun/stockrun/internal/models"
)

// MCDX signal classes, strongest accumulation first.
const (
	MCDXBanker     = "Banker"
	MCDXSmartMoney = "Smart Money"
	MCDXRetail     = "Retail"
	MCDXNeutral    = "Neutral"
)

const mcdxName = "mcdx"

// mcdxWarmupMargin pads RequiredPeriods past the raw window sizes so the
// smoothed score has settled before the most recent bar.
const mcdxWarmupMargin = 5

// MCDX is a divergence/accumulation indicator: price momentum scaled by
// relative volume, smoothed, then classified into who is likely buying.
type MCDX struct {
	lookback        int
	volumeWindow    int
	smoothing       int
	bankerThreshold float64
	smartThreshold  float64
	retailThreshold float64
}

// NewMCDX builds an MCDX instance from configuration. All parameters are
// optional; defaults follow the standard tuning.
func NewMCDX(cfg map[string]any) (Indicator, error) {
	if err := rejectUnknownParams(cfg,
		"lookback", "volume_window", "smoothing",
		"banker_threshold", "smart_threshold", "retail_threshold"); err != nil {
		return nil, err
	}
	lookback, err := intParam(cfg, "lookback", 14, 2, 250)
	if err != nil {
		return nil, err
	}
	volumeWindow, err := intParam(cfg, "volume_window", 20, 2, 250)
	if err != nil {
		return nil, err
	}
	smoothing, err := intParam(cfg, "smoothing", 5, 1, 100)
	if err != nil {
		return nil, err
	}
	banker, err := floatParam(cfg, "banker_threshold", 0.10, -10, 10)
	if err != nil {
		return nil, err
	}
	smart, err := floatParam(cfg, "smart_threshold", 0.02, -10, 10)
	if err != nil {
		return nil, err
	}
	retail, err := floatParam(cfg, "retail_threshold", -0.05, -10, 10)
	if err != nil {
		return nil, err
	}
	return &MCDX{
		lookback:        lookback,
		volumeWindow:    volumeWindow,
		smoothing:       smoothing,
		bankerThreshold: banker,
		smartThreshold:  smart,
		retailThreshold: retail,
	}, nil
}

func (m *MCDX) Name() string { return mcdxName }

func (m *MCDX) RequiredPeriods() int {
	window := m.lookback
	if m.volumeWindow > window {
		window = m.volumeWindow
	}
	return window + m.smoothing + mcdxWarmupMargin
}

func (m *MCDX) Metadata() Metadata {
	return Metadata{
		DisplayName: "MCDX Banker Accumulation",
		Description: "Price momentum scaled by relative volume, smoothed and classified into Banker / Smart Money / Retail / Neutral accumulation bands.",
		Category:    "momentum",
		Params: []ParamSpec{
			{Name: "lookback", Type: "int", Default: 14, Min: 2, Max: 250, Description: "Momentum look-back in bars"},
			{Name: "volume_window", Type: "int", Default: 20, Min: 2, Max: 250, Description: "Rolling mean window for volume ratio"},
			{Name: "smoothing", Type: "int", Default: 5, Min: 1, Max: 100, Description: "Rolling mean window for the final score"},
			{Name: "banker_threshold", Type: "float", Default: 0.10, Min: -10, Max: 10, Description: "Score floor for the Banker class"},
			{Name: "smart_threshold", Type: "float", Default: 0.02, Min: -10, Max: 10, Description: "Score floor for the Smart Money class"},
			{Name: "retail_threshold", Type: "float", Default: -0.05, Min: -10, Max: 10, Description: "Score ceiling for the Retail class"},
		},
	}
}

// Calculate appends mcdx_momentum, mcdx_volume_ratio, mcdx_divergence and
// mcdx_score columns.
func (m *MCDX) Calculate(series *models.Series) (*models.Series, error) {
	if err := checkSeries(mcdxName, series, m.RequiredPeriods()); err != nil {
		return nil, err
	}
	if err := checkVolume(mcdxName, series); err != nil {
		return nil, err
	}

	out := series.Clone()
	closes := out.Closes()
	volumes := out.Volumes()

	momentum := pctChange(closes, m.lookback)
	meanVolume := rollingMean(volumes, m.volumeWindow)

	volumeRatio := nanSlice(len(volumes))
	for i := range volumes {
		if !math.IsNaN(meanVolume[i]) && meanVolume[i] != 0 {
			volumeRatio[i] = volumes[i] / meanVolume[i]
		}
	}

	divergence := nanSlice(len(closes))
	for i := range divergence {
		if !math.IsNaN(momentum[i]) && !math.IsNaN(volumeRatio[i]) {
			divergence[i] = momentum[i] * volumeRatio[i]
		}
	}

	score := rollingMean(divergence, m.smoothing)

	for name, col := range map[string][]float64{
		"mcdx_momentum":     momentum,
		"mcdx_volume_ratio": volumeRatio,
		"mcdx_divergence":   divergence,
		"mcdx_score":        score,
	} {
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Signal classifies the most recent smoothed score.
func (m *MCDX) Signal(series *models.Series) (*models.Signal, error) {
	computed := series
	if _, ok := series.Column("mcdx_score"); !ok {
		var err error
		computed, err = m.Calculate(series)
		if err != nil {
			return nil, err
		}
	}

	scoreCol, _ := computed.Column("mcdx_score")
	momentumCol, _ := computed.Column("mcdx_momentum")
	ratioCol, _ := computed.Column("mcdx_volume_ratio")

	score := last(scoreCol)
	signal := models.NewSignal(mcdxName, computed.Ticker, computed.LastTimestamp())
	signal.Set("signal", models.String(m.Classify(score)))
	signal.Set("score", models.Number(score))
	signal.Set("momentum", models.Number(last(momentumCol)))
	signal.Set("volume_ratio", models.Number(last(ratioCol)))
	return signal, nil
}

// Classify maps a smoothed divergence score to its accumulation class. NaN
// scores are Neutral.
func (m *MCDX) Classify(score float64) string {
	switch {
	case math.IsNaN(score):
		return MCDXNeutral
	case score >= m.bankerThreshold:
		return MCDXBanker
	case score >= m.smartThreshold:
		return MCDXSmartMoney
	case score <= m.retailThreshold:
		return MCDXRetail
	default:
		return MCDXNeutral
	}
}
