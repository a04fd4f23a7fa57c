package portfolio

import (
	"math"

	"trading-signalsv1/internal/model"
)

// ComputeMetrics derives performance metrics from closed trades and an
// equity curve. Open trades are ignored.
//
//   - winRate = wins / total × 100 (0 with no trades)
//   - profitFactor = Σ winning pnlPercent / Σ |losing pnlPercent|; +Inf with
//     wins and no losses, 0 with neither
//   - maxDrawdown = largest peak-to-trough decline of equity, in percent
//   - netProfit = final equity - initialBalance, 0 with an empty curve
func ComputeMetrics(trades []model.Trade, equity []float64, initialBalance float64) model.Metrics {
	var m model.Metrics
	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		m.TotalTrades++
		switch {
		case t.PnLPercent > 0:
			m.Wins++
			m.GrossProfit += t.PnLPercent
		case t.PnLPercent < 0:
			m.Losses++
			m.GrossLoss -= t.PnLPercent
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
	}
	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.MaxDrawdown = MaxDrawdown(equity)
	if len(equity) > 0 {
		m.NetProfit = equity[len(equity)-1] - initialBalance
	}
	return m
}
