package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// ADX returns the average directional index with +DI and -DI at the latest
// candle.
//
// True range, +DM and -DM are Wilder-smoothed over period; DX = 100 ×
// |+DI − -DI| / (+DI + -DI); ADX is the Wilder mean of the DX series. Needs
// 2×period candles, otherwise all three are NaN.
func ADX(candles []model.Candle, period int) (adx, plusDI, minusDI float64) {
	n := len(candles)
	if period <= 0 || n < 2*period {
		nan := math.NaN()
		return nan, nan, nan
	}

	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder's running sums (sum - sum/period + x) keep the ratio identical to
	// smoothed means, so the mean form from wilder() is used for all three.
	sTR, _ := wilder(tr, 1, period)
	sPlus, _ := wilder(plusDM, 1, period)
	sMinus, _ := wilder(minusDM, 1, period)

	dx := make([]float64, 0, n-period)
	for i := period; i < n; i++ {
		plusDI, minusDI = directional(sPlus[i], sMinus[i], sTR[i])
		sum := plusDI + minusDI
		if sum == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(plusDI-minusDI)/sum)
	}

	smoothedDX, ok := wilder(dx, 0, period)
	if !ok {
		nan := math.NaN()
		return nan, nan, nan
	}
	return smoothedDX[len(smoothedDX)-1], plusDI, minusDI
}

func directional(plusDM, minusDM, tr float64) (float64, float64) {
	if tr == 0 {
		return 0, 0
	}
	return 100 * plusDM / tr, 100 * minusDM / tr
}
