package model

import (
	"encoding/json"
	"math"
)

// IndicatorSnapshot holds the readings derived from one candle window.
// Fields the window is too short for are NaN.
type IndicatorSnapshot struct {
	RSI14       float64
	EMA12       float64
	EMA26       float64
	ADX         float64
	PlusDI      float64
	MinusDI     float64
	ATR         float64
	VWAP        float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	VolumeRatio float64
}

type snapshotJSON struct {
	RSI14       *float64 `json:"rsi14"`
	EMA12       *float64 `json:"ema12"`
	EMA26       *float64 `json:"ema26"`
	ADX         *float64 `json:"adx"`
	PlusDI      *float64 `json:"plusDi"`
	MinusDI     *float64 `json:"minusDi"`
	ATR         *float64 `json:"atr"`
	VWAP        *float64 `json:"vwap"`
	BBUpper     *float64 `json:"bbUpper"`
	BBMiddle    *float64 `json:"bbMiddle"`
	BBLower     *float64 `json:"bbLower"`
	VolumeRatio *float64 `json:"volumeRatio"`
}

// MarshalJSON writes undefined readings as null.
func (s IndicatorSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		RSI14:       nullable(s.RSI14),
		EMA12:       nullable(s.EMA12),
		EMA26:       nullable(s.EMA26),
		ADX:         nullable(s.ADX),
		PlusDI:      nullable(s.PlusDI),
		MinusDI:     nullable(s.MinusDI),
		ATR:         nullable(s.ATR),
		VWAP:        nullable(s.VWAP),
		BBUpper:     nullable(s.BBUpper),
		BBMiddle:    nullable(s.BBMiddle),
		BBLower:     nullable(s.BBLower),
		VolumeRatio: nullable(s.VolumeRatio),
	})
}

// UnmarshalJSON restores null readings as NaN.
func (s *IndicatorSnapshot) UnmarshalJSON(b []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	val := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	*s = IndicatorSnapshot{
		RSI14:       val(raw.RSI14),
		EMA12:       val(raw.EMA12),
		EMA26:       val(raw.EMA26),
		ADX:         val(raw.ADX),
		PlusDI:      val(raw.PlusDI),
		MinusDI:     val(raw.MinusDI),
		ATR:         val(raw.ATR),
		VWAP:        val(raw.VWAP),
		BBUpper:     val(raw.BBUpper),
		BBMiddle:    val(raw.BBMiddle),
		BBLower:     val(raw.BBLower),
		VolumeRatio: val(raw.VolumeRatio),
	}
	return nil
}
