// Package portfolio holds the trade accounting shared by backtests and live
// tracking: the direction-aware return formula, the stop-first exit rule,
// drawdown tracking and the metrics derived from a closed-trade list.
//
// Backtest and live results are only comparable because both go through
// ComputeMetrics and TradeReturn here.
package portfolio

import "trading-signalsv1/internal/model"

// TradeReturn is the fractional return of a position, positive when the
// price moved in the position's favour.
func TradeReturn(dir model.Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if dir == model.DirectionShort {
		return (entry - exit) / entry
	}
	return (exit - entry) / entry
}

// CheckExit reports whether a candle touches the stop or the target of an
// open position. When both are inside the candle's range the stop wins:
// without tick data the worse fill is assumed.
func CheckExit(dir model.Direction, stop, target float64, c model.Candle) (price float64, reason string, hit bool) {
	var stopHit, targetHit bool
	if dir == model.DirectionShort {
		stopHit = c.High >= stop
		targetHit = c.Low <= target
	} else {
		stopHit = c.Low <= stop
		targetHit = c.High >= target
	}
	switch {
	case stopHit:
		return stop, model.ExitStopLoss, true
	case targetHit:
		return target, model.ExitTakeProfit, true
	}
	return 0, "", false
}

// BreakevenStop moves stop to entry once a position is no longer at risk
// of a loss. The stop only ever tightens.
func BreakevenStop(dir model.Direction, entry, stop float64) float64 {
	if dir == model.DirectionShort {
		if entry < stop {
			return entry
		}
		return stop
	}
	if entry > stop {
		return entry
	}
	return stop
}
