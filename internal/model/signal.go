package model

import (
	"fmt"
	"time"
)

// SignalType is the action recommended by the signal generator.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// SignalResult is produced fresh on every generator call and never mutated.
type SignalResult struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol,omitempty"`
	Signal        SignalType         `json:"signal"`
	Confidence    float64            `json:"confidence"`
	Reason        string             `json:"reason"`
	Regime        MarketRegime       `json:"regime"`
	Timestamp     time.Time          `json:"timestamp"`
	EntryPrice    *float64           `json:"entryPrice,omitempty"`
	StopLoss      *float64           `json:"stopLoss,omitempty"`
	TakeProfit    *float64           `json:"takeProfit,omitempty"`
	RawIndicators *IndicatorSnapshot `json:"rawIndicators,omitempty"`
}

// SignalID derives a deterministic id from the signal type and time.
func SignalID(sig SignalType, ts time.Time) string {
	return fmt.Sprintf("%s-%d", sig, ts.UnixMilli())
}

// Actionable reports whether the result is BUY or SELL.
func (s SignalResult) Actionable() bool {
	return s.Signal == SignalBuy || s.Signal == SignalSell
}

// HasTargets reports whether entry, stop and target prices are all set.
func (s SignalResult) HasTargets() bool {
	return s.EntryPrice != nil && s.StopLoss != nil && s.TakeProfit != nil
}
