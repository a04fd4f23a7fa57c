package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// RSIPeriod is the standard RSI lookback.
const RSIPeriod = 14

// RSI calculates the Relative Strength Index over the last period+1 closes.
//
// Average gain and loss are simple means of the period deltas in that
// trailing window only; older history does not contribute. Returns NaN with
// fewer than period+1 candles. A window with no losses reads 100, a flat
// window reads 50.
func RSI(candles []model.Candle, period int) float64 {
	n := len(candles)
	if period <= 0 || n < period+1 {
		return math.NaN()
	}

	var gains, losses float64
	window := candles[n-period-1:]
	for i := 1; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSI14 is RSI with the standard 14-candle period.
func RSI14(candles []model.Candle) float64 {
	return RSI(candles, RSIPeriod)
}
