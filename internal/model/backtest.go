package model

import "encoding/json"

// Metrics is always derived from a trade list and an equity curve.
// WinRate and MaxDrawdown are percentages; GrossProfit and GrossLoss are sums
// of trade returns in percentage points. ProfitFactor is +Inf when there are
// winning trades and no losing ones.
type Metrics struct {
	TotalTrades  int     `json:"totalTrades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor float64 `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	NetProfit    float64 `json:"netProfit"`
	GrossProfit  float64 `json:"grossProfitPct"`
	GrossLoss    float64 `json:"grossLossPct"`
}

type metricsJSON struct {
	TotalTrades  int     `json:"totalTrades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor ratio   `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	NetProfit    float64 `json:"netProfit"`
	GrossProfit  float64 `json:"grossProfitPct"`
	GrossLoss    float64 `json:"grossLossPct"`
}

// MarshalJSON encodes an infinite profit factor as "Infinity".
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		TotalTrades:  m.TotalTrades,
		Wins:         m.Wins,
		Losses:       m.Losses,
		WinRate:      m.WinRate,
		ProfitFactor: ratio(m.ProfitFactor),
		MaxDrawdown:  m.MaxDrawdown,
		NetProfit:    m.NetProfit,
		GrossProfit:  m.GrossProfit,
		GrossLoss:    m.GrossLoss,
	})
}

// UnmarshalJSON accepts the "Infinity" profit factor encoding.
func (m *Metrics) UnmarshalJSON(b []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metrics{
		TotalTrades:  raw.TotalTrades,
		Wins:         raw.Wins,
		Losses:       raw.Losses,
		WinRate:      raw.WinRate,
		ProfitFactor: float64(raw.ProfitFactor),
		MaxDrawdown:  raw.MaxDrawdown,
		NetProfit:    raw.NetProfit,
		GrossProfit:  raw.GrossProfit,
		GrossLoss:    raw.GrossLoss,
	}
	return nil
}

// BacktestResult is the output of one backtest run. Equity starts with the
// initial balance.
type BacktestResult struct {
	Preset  string    `json:"preset"`
	Candles int       `json:"candles"`
	Trades  []Trade   `json:"trades"`
	Equity  []float64 `json:"equity"`
	Metrics Metrics   `json:"metrics"`
}
