package strategy

import (
	"math"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/model"
)

// Targets are ATR-based entry, stop and take-profit levels.
type Targets struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	ATR        float64 `json:"atr"`
}

// PriceTargets places the stop ATR×multiplier away from the latest close and
// the target ATR×multiplier×riskReward away on the other side. Fails with
// *InsufficientDataError when len(candles) < atrPeriod+1 and with
// ErrNoDirection for HOLD.
func PriceTargets(candles []model.Candle, sig model.SignalType, cfg Config) (Targets, error) {
	cfg = cfg.normalized()
	if need := cfg.ATRPeriod + 1; len(candles) < need {
		return Targets{}, &InsufficientDataError{Op: "price targets", Need: need, Got: len(candles)}
	}
	dir, ok := model.DirectionFromSignal(sig)
	if !ok {
		return Targets{}, ErrNoDirection
	}

	atr := indicator.LastATR(candles, cfg.ATRPeriod)
	if math.IsNaN(atr) {
		atr = 0
	}
	entry := candles[len(candles)-1].Close
	risk := atr * cfg.ATRMultiplier
	reward := risk * cfg.RiskRewardRatio

	t := Targets{Entry: entry, ATR: atr}
	if dir == model.DirectionLong {
		t.StopLoss = entry - risk
		t.TakeProfit = entry + reward
	} else {
		t.StopLoss = entry + risk
		t.TakeProfit = entry - reward
	}
	return t, nil
}
