// Package indicator provides technical indicator calculations over candle windows.
//
// Every function is pure: it reads the slice it is given and keeps nothing
// between calls. When the window is shorter than an indicator's minimum
// period the function returns a sentinel (NaN, 0 or false) instead of failing,
// so streaming callers can start with thin history. Callers check the
// sentinel with math.IsNaN before acting on a value.
package indicator

import "trading-signalsv1/internal/model"

// closes extracts close prices.
func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
