package portfolio

import "math"

// RiskLimits gates new live entries.
type RiskLimits struct {
	MaxOpenTrades  int     `yaml:"maxOpenTrades" json:"max_open_trades" default:"1" validate:"gte=0"`
	MaxDrawdownPct float64 `yaml:"maxDrawdownPct" json:"max_drawdown_pct" default:"20" validate:"gte=0,lte=100"` // 0 disables
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOpenTrades:  1,
		MaxDrawdownPct: 20,
	}
}

// HighWaterMark tracks the running equity peak and the deepest decline from it.
type HighWaterMark struct {
	peak   float64
	equity float64
	maxDD  float64
	seen   bool
}

// Update records an equity value and returns the current drawdown in percent.
func (h *HighWaterMark) Update(equity float64) float64 {
	if math.IsNaN(equity) {
		return h.Drawdown()
	}
	if !h.seen || equity > h.peak {
		h.peak = equity
		h.seen = true
	}
	h.equity = equity
	dd := h.Drawdown()
	if dd > h.maxDD {
		h.maxDD = dd
	}
	return dd
}

// Drawdown is the current decline from the peak in percent.
func (h *HighWaterMark) Drawdown() float64 {
	if h.peak <= 0 {
		return 0
	}
	return (h.peak - h.equity) / h.peak * 100
}

// Max is the largest drawdown seen so far in percent.
func (h *HighWaterMark) Max() float64 { return h.maxDD }

// Peak is the highest equity seen so far.
func (h *HighWaterMark) Peak() float64 { return h.peak }

// MaxDrawdown runs a high-water mark over equity and returns the largest
// peak-to-trough decline in percent.
func MaxDrawdown(equity []float64) float64 {
	var h HighWaterMark
	for _, e := range equity {
		h.Update(e)
	}
	return h.Max()
}
