package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// DefaultBollingerK is the band width in standard deviations.
const DefaultBollingerK = 2.0

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
	StdDev float64
}

// Bollinger computes mean ± k·σ of the last period closes using the population
// standard deviation. All fields are NaN when the window is short.
func Bollinger(candles []model.Candle, period int, k float64) Bands {
	n := len(candles)
	if period <= 0 || n < period {
		nan := math.NaN()
		return Bands{Upper: nan, Middle: nan, Lower: nan, StdDev: nan}
	}
	window := closes(candles[n-period:])
	m := mean(window)
	variance := 0.0
	for _, x := range window {
		variance += (x - m) * (x - m)
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{
		Upper:  m + k*sd,
		Middle: m,
		Lower:  m - k*sd,
		StdDev: sd,
	}
}
