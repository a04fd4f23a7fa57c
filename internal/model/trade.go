package model

import "time"

// Direction is the side of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// DirectionFromSignal maps BUY to long and SELL to short. HOLD has no direction.
func DirectionFromSignal(s SignalType) (Direction, bool) {
	switch s {
	case SignalBuy:
		return DirectionLong, true
	case SignalSell:
		return DirectionShort, true
	}
	return "", false
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen       TradeStatus = "open"
	TradeClosed     TradeStatus = "closed"
	TradeStoppedOut TradeStatus = "stopped_out"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitEndOfData  = "end_of_data"
	ExitManual     = "manual"
)

// Trade is created on entry and closed exactly once. PositionSize is the
// notional committed at entry, in quote currency.
type Trade struct {
	ID            string      `json:"id"`
	EntrySignalID string      `json:"entrySignalId"`
	Symbol        string      `json:"symbol,omitempty"`
	Direction     Direction   `json:"direction"`
	EntryPrice    float64     `json:"entryPrice"`
	EntryTime     time.Time   `json:"entryTime"`
	PositionSize  float64     `json:"positionSize"`
	StopLoss      float64     `json:"stopLoss,omitempty"`
	TakeProfit    float64     `json:"takeProfit,omitempty"`
	ExitPrice     float64     `json:"exitPrice,omitempty"`
	ExitTime      time.Time   `json:"exitTime,omitzero"`
	ExitReason    string      `json:"exitReason,omitempty"`
	Status        TradeStatus `json:"status"`
	PnLPercent    float64     `json:"pnlPercent,omitempty"`
	PnLAbsolute   float64     `json:"pnlAbsolute,omitempty"`
}

// IsOpen reports whether the trade has not been closed yet.
func (t Trade) IsOpen() bool {
	return t.Status == TradeOpen || t.Status == ""
}
