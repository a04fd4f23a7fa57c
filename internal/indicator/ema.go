package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// EMA calculates the exponential moving average of close prices.
//
// The average is seeded with the close of the oldest candle of the trailing
// period-sized window and the multiplier k = 2/(period+1) is applied forward
// through the rest of that window, so the value only depends on the last
// period candles. Returns NaN if len(candles) < period.
func EMA(candles []model.Candle, period int) float64 {
	n := len(candles)
	if period <= 0 || n < period {
		return math.NaN()
	}
	k := 2.0 / float64(period+1)
	window := candles[n-period:]
	ema := window[0].Close
	for _, c := range window[1:] {
		// EMA = (Price - EMA_prev) * k + EMA_prev
		ema = (c.Close-ema)*k + ema
	}
	return ema
}

// Cross describes how a fast average moved relative to a slow one on the
// latest candle.
type Cross int

const (
	CrossNone Cross = 0
	CrossUp   Cross = 1
	CrossDown Cross = -1
)

// EMACross compares EMA(fast) and EMA(slow) on the full window and on the
// window without its latest candle. A cross down means fast was at or above
// slow and is now below it. Needs slow+1 candles, otherwise CrossNone.
func EMACross(candles []model.Candle, fast, slow int) Cross {
	n := len(candles)
	if n < slow+1 || n < fast+1 {
		return CrossNone
	}
	prev := candles[:n-1]
	prevFast, prevSlow := EMA(prev, fast), EMA(prev, slow)
	curFast, curSlow := EMA(candles, fast), EMA(candles, slow)

	switch {
	case prevFast >= prevSlow && curFast < curSlow:
		return CrossDown
	case prevFast <= prevSlow && curFast > curSlow:
		return CrossUp
	}
	return CrossNone
}
