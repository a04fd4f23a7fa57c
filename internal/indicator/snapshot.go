package indicator

import "trading-signalsv1/internal/model"

// SnapshotParams selects the lookbacks used by Snapshot.
type SnapshotParams struct {
	FastEMA         int
	SlowEMA         int
	ADXPeriod       int
	ATRPeriod       int
	BollingerPeriod int
	BollingerK      float64
	VolumeLookback  int
}

// DefaultSnapshotParams returns the standard 12/26 EMA, 14 ADX/ATR and 20/2
// Bollinger lookbacks.
func DefaultSnapshotParams() SnapshotParams {
	return SnapshotParams{
		FastEMA:         12,
		SlowEMA:         26,
		ADXPeriod:       14,
		ATRPeriod:       14,
		BollingerPeriod: 20,
		BollingerK:      DefaultBollingerK,
		VolumeLookback:  20,
	}
}

// Snapshot computes every indicator reading for the window.
func Snapshot(candles []model.Candle, p SnapshotParams) model.IndicatorSnapshot {
	adx, plusDI, minusDI := ADX(candles, p.ADXPeriod)
	bands := Bollinger(candles, p.BollingerPeriod, p.BollingerK)
	return model.IndicatorSnapshot{
		RSI14:       RSI14(candles),
		EMA12:       EMA(candles, p.FastEMA),
		EMA26:       EMA(candles, p.SlowEMA),
		ADX:         adx,
		PlusDI:      plusDI,
		MinusDI:     minusDI,
		ATR:         LastATR(candles, p.ATRPeriod),
		VWAP:        VWAP(candles),
		BBUpper:     bands.Upper,
		BBMiddle:    bands.Middle,
		BBLower:     bands.Lower,
		VolumeRatio: VolumeRatio(candles, p.VolumeLookback),
	}
}
