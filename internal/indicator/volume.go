package indicator

import "trading-signalsv1/internal/model"

// VolumeConfirmThreshold is how far the latest volume must exceed the trailing
// average for IsVolumeConfirming to report a direction.
const VolumeConfirmThreshold = 1.2

// VolumeSMA is the mean volume of the last period candles; 0 if short.
func VolumeSMA(candles []model.Candle, period int) float64 {
	n := len(candles)
	if period <= 0 || n < period {
		return 0
	}
	sum := 0.0
	for _, c := range candles[n-period:] {
		sum += c.Volume
	}
	return sum / float64(period)
}

// precedingVolume is the mean volume of the lookback candles before the latest.
func precedingVolume(candles []model.Candle, lookback int) (float64, bool) {
	n := len(candles)
	if lookback <= 0 || n < lookback+1 {
		return 0, false
	}
	return VolumeSMA(candles[:n-1], lookback), true
}

// VolumeRatio is latest volume over the mean of the preceding lookback
// candles. 0 when the window is short or the baseline is zero.
func VolumeRatio(candles []model.Candle, lookback int) float64 {
	avg, ok := precedingVolume(candles, lookback)
	if !ok || avg == 0 {
		return 0
	}
	return candles[len(candles)-1].Volume / avg
}

// IsVolumeSpike reports whether latest volume > multiplier × mean volume of
// the preceding lookback candles. False when data is short or the baseline is
// zero.
func IsVolumeSpike(candles []model.Candle, lookback int, multiplier float64) bool {
	avg, ok := precedingVolume(candles, lookback)
	if !ok || avg == 0 {
		return false
	}
	return candles[len(candles)-1].Volume > multiplier*avg
}

// IsVolumeConfirming returns +1 when price rose over the last lookback candles
// on above-threshold volume, -1 for the falling case and 0 otherwise.
func IsVolumeConfirming(candles []model.Candle, lookback int) int {
	avg, ok := precedingVolume(candles, lookback)
	if !ok || avg == 0 {
		return 0
	}
	n := len(candles)
	last := candles[n-1]
	if last.Volume <= avg*VolumeConfirmThreshold {
		return 0
	}
	change := last.Close - candles[n-1-lookback].Close
	switch {
	case change > 0:
		return 1
	case change < 0:
		return -1
	}
	return 0
}
