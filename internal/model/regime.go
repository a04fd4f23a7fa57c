package model

import "time"

// MarketRegime is the qualitative market state reported by a regime detector.
type MarketRegime string

const (
	RegimeStrongTrendUp   MarketRegime = "strong-trend-up"
	RegimeStrongTrendDown MarketRegime = "strong-trend-down"
	RegimeWeakTrendUp     MarketRegime = "weak-trend-up"
	RegimeWeakTrendDown   MarketRegime = "weak-trend-down"
	RegimeRanging         MarketRegime = "ranging"
)

// AllRegimes lists every regime in a stable order (used for metric labels).
var AllRegimes = []MarketRegime{
	RegimeStrongTrendUp,
	RegimeWeakTrendUp,
	RegimeRanging,
	RegimeWeakTrendDown,
	RegimeStrongTrendDown,
}

// IsTrend reports whether the regime is any trending state.
func (r MarketRegime) IsTrend() bool {
	return r != RegimeRanging && r != ""
}

// IsStrong reports whether the regime is a strong trend.
func (r MarketRegime) IsStrong() bool {
	return r == RegimeStrongTrendUp || r == RegimeStrongTrendDown
}

// Direction returns +1 for up trends, -1 for down trends and 0 otherwise.
func (r MarketRegime) Direction() int {
	switch r {
	case RegimeStrongTrendUp, RegimeWeakTrendUp:
		return 1
	case RegimeStrongTrendDown, RegimeWeakTrendDown:
		return -1
	}
	return 0
}

// RegimeState is the detector's persisted state. EnteredAt only moves when
// Current changes.
type RegimeState struct {
	Current    MarketRegime `json:"current"`
	EnteredAt  time.Time    `json:"enteredAt"`
	Confidence float64      `json:"confidence"`
}
