package indicators

import "math"

// Shared vector math. All helpers produce NaN for warmup positions so
// downstream classification can treat "not yet computable" uniformly.

// pctChange returns the fractional change over lookback bars.
func pctChange(values []float64, lookback int) []float64 {
	out := nanSlice(len(values))
	for i := lookback; i < len(values); i++ {
		prev := values[i-lookback]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(values[i]) {
			continue
		}
		out[i] = (values[i] - prev) / prev
	}
	return out
}

// rollingMean returns the simple moving average over window bars. A NaN
// inside the window yields NaN for that position.
func rollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// ema returns the exponential moving average with span-based smoothing
// (alpha = 2/(span+1)), seeded with the simple mean of the first span valid
// values. Leading NaNs in the input shift the warmup accordingly.
func ema(values []float64, span int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < span {
		return out
	}

	seed := 0.0
	for i := start; i < start+span; i++ {
		if math.IsNaN(values[i]) {
			return out
		}
		seed += values[i]
	}
	seed /= float64(span)

	alpha := 2.0 / float64(span+1)
	out[start+span-1] = seed
	prev := seed
	for i := start + span; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			out[i] = prev
			continue
		}
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// nanSlice allocates a slice pre-filled with NaN.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// last returns the final element, or NaN for an empty slice.
func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
