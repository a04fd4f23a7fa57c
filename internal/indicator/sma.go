package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// SMA returns the simple mean of the last period closes, or NaN if the
// window is short.
func SMA(candles []model.Candle, period int) float64 {
	n := len(candles)
	if period <= 0 || n < period {
		return math.NaN()
	}
	sum := 0.0
	for _, c := range candles[n-period:] {
		sum += c.Close
	}
	return sum / float64(period)
}
