package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for
// every index. Index 0 has no previous close and uses high-low.
func TrueRange(candles []model.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		pc := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-pc), math.Abs(c.Low-pc)))
	}
	return tr
}

// ATR returns the Wilder-smoothed average true range for every candle index.
// The first value sits at index period (mean of the true ranges of candles
// 1..period); earlier indices are NaN. A window shorter than period+1 yields
// an all-NaN slice.
func ATR(candles []model.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = math.NaN()
	}
	smoothed, ok := wilder(TrueRange(candles), 1, period)
	if !ok {
		return out
	}
	for i := period; i < len(candles); i++ {
		out[i] = smoothed[i]
	}
	return out
}

// LastATR is the ATR at the latest candle, or NaN.
func LastATR(candles []model.Candle, period int) float64 {
	if len(candles) == 0 {
		return math.NaN()
	}
	return ATR(candles, period)[len(candles)-1]
}
