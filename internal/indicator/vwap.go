package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// VWAP is cumulative typical price × volume over cumulative volume across the
// whole slice. There is no session reset; callers choose the window.
// Returns NaN for an empty slice or zero total volume.
func VWAP(candles []model.Candle) float64 {
	var pv, vol float64
	for _, c := range candles {
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return math.NaN()
	}
	return pv / vol
}
