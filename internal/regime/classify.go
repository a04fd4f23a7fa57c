package regime

import (
	"math"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/model"
)

// Classification is one evaluation of the regime rule with the readings
// behind it. Readings are NaN until the window is long enough.
type Classification struct {
	Regime      model.MarketRegime `json:"regime"`
	Confidence  float64            `json:"confidence"`
	Ready       bool               `json:"ready"`
	ADX         float64            `json:"-"`
	PlusDI      float64            `json:"-"`
	MinusDI     float64            `json:"-"`
	RSI         float64            `json:"-"`
	EMASlope    float64            `json:"-"` // percent change of EMA over the last candle
	VolumeRatio float64            `json:"-"`
}

// Short windows report ranging with confidence scaled by how full the window
// is, never above this cap.
const warmupConfidenceCap = 20

// Classify applies the regime rule to a candle window. Evaluated top-down:
//  1. ADX ≥ StrongTrendADX and |+DI − -DI| ≥ MinDISpread → strong trend
//  2. ADX ≥ WeakTrendADX → weak trend
//  3. otherwise ranging
//
// Direction is the sign of +DI − -DI; equal DIs read as ranging.
func Classify(candles []model.Candle, cfg Config) Classification {
	cfg = cfg.normalized()

	adx, plusDI, minusDI := indicator.ADX(candles, cfg.ADXPeriod)
	cls := Classification{
		Regime:      model.RegimeRanging,
		ADX:         adx,
		PlusDI:      plusDI,
		MinusDI:     minusDI,
		RSI:         indicator.RSI(candles, cfg.RSIPeriod),
		EMASlope:    emaSlope(candles, cfg.EMAPeriod),
		VolumeRatio: indicator.VolumeRatio(candles, cfg.VolumeLookback),
	}

	need := cfg.MinCandles()
	if len(candles) < need {
		cls.Confidence = warmupConfidenceCap * float64(len(candles)) / float64(need)
		return cls
	}
	cls.Ready = true

	spread := plusDI - minusDI
	dir := 0
	switch {
	case spread > 0:
		dir = 1
	case spread < 0:
		dir = -1
	}

	switch {
	case dir != 0 && adx >= cfg.StrongTrendADX && math.Abs(spread) >= cfg.MinDISpread:
		cls.Regime = trend(dir, true)
	case dir != 0 && adx >= cfg.WeakTrendADX:
		cls.Regime = trend(dir, false)
	}

	if cls.Regime.IsTrend() {
		cls.Confidence = trendConfidence(cls, dir, indicator.IsVolumeConfirming(candles, cfg.VolumeLookback))
	} else {
		cls.Confidence = rangeConfidence(cls, cfg)
	}
	return cls
}

func trend(dir int, strong bool) model.MarketRegime {
	switch {
	case dir > 0 && strong:
		return model.RegimeStrongTrendUp
	case dir > 0:
		return model.RegimeWeakTrendUp
	case strong:
		return model.RegimeStrongTrendDown
	}
	return model.RegimeWeakTrendDown
}

// trendConfidence weights ADX magnitude 40, DI separation 30, volume 20 and
// RSI agreement 10.
func trendConfidence(c Classification, dir, volumeDir int) float64 {
	score := math.Min(c.ADX/50, 1) * 40
	score += math.Min(math.Abs(c.PlusDI-c.MinusDI)/30, 1) * 30

	switch {
	case volumeDir == dir:
		score += 20
	case c.VolumeRatio >= 1:
		score += 10
	}

	if (dir > 0 && c.RSI > 50) || (dir < 0 && c.RSI < 50) {
		score += 10
	}
	return clamp(score)
}

// rangeConfidence rewards a weak ADX 40, quiet volume 25, a flat EMA 20 and a
// neutral RSI 15.
func rangeConfidence(c Classification, cfg Config) float64 {
	weak := cfg.WeakTrendADX
	if weak <= 0 {
		weak = 1
	}
	score := (1 - math.Min(c.ADX/weak, 1)) * 40

	switch {
	case c.VolumeRatio <= 1:
		score += 25
	case c.VolumeRatio <= 1.5:
		score += 12.5
	}

	switch slope := math.Abs(c.EMASlope); {
	case slope < 0.1:
		score += 20
	case slope < 0.5:
		score += 10
	}

	switch d := math.Abs(c.RSI - 50); {
	case d < 10:
		score += 15
	case d < 20:
		score += 7.5
	}
	return clamp(score)
}

func emaSlope(candles []model.Candle, period int) float64 {
	n := len(candles)
	if n < period+1 {
		return math.NaN()
	}
	prev := indicator.EMA(candles[:n-1], period)
	cur := indicator.EMA(candles, period)
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
