package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
)

var (
	ErrDuplicateTrade = errors.New("portfolio: duplicate trade id")
	ErrInvalidTrade   = errors.New("portfolio: invalid trade")
)

// Tracker records live trade entries and exits and reports metrics with the
// same formulas the backtester uses.
type Tracker struct {
	mu             sync.RWMutex
	initialBalance float64

	open      map[string]model.Trade
	openOrder []string
	closed    []model.Trade
	closedIDs map[string]struct{}

	journal model.TradeJournal
	log     zerolog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(initialBalance float64) *Tracker {
	return &Tracker{
		initialBalance: initialBalance,
		open:           make(map[string]model.Trade),
		closed:         make([]model.Trade, 0, 128),
		closedIDs:      make(map[string]struct{}),
		log:            log.With().Str("component", "tracker").Logger(),
	}
}

// SetJournal attaches a sink that receives every closed trade.
func (t *Tracker) SetJournal(j model.TradeJournal) {
	t.mu.Lock()
	t.journal = j
	t.mu.Unlock()
}

// InitialBalance returns the balance the equity curve starts from.
func (t *Tracker) InitialBalance() float64 { return t.initialBalance }

// RecordEntry opens a trade. Ids are unique across open and closed trades.
func (t *Tracker) RecordEntry(trade model.Trade) error {
	if trade.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidTrade)
	}
	if trade.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price %v", ErrInvalidTrade, trade.EntryPrice)
	}
	if trade.Direction == "" {
		trade.Direction = model.DirectionLong
	}
	trade.Status = model.TradeOpen

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.open[trade.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, trade.ID)
	}
	if _, ok := t.closedIDs[trade.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, trade.ID)
	}
	t.open[trade.ID] = trade
	t.openOrder = append(t.openOrder, trade.ID)

	t.log.Info().
		Str("trade_id", trade.ID).
		Str("direction", string(trade.Direction)).
		Float64("entry", trade.EntryPrice).
		Msg("trade opened")
	return nil
}

// RecordExit closes an open trade. It returns false when id is not open.
// A stop_loss reason marks the trade stopped_out.
func (t *Tracker) RecordExit(id string, exitPrice float64, exitTime time.Time, reason string) bool {
	t.mu.Lock()
	trade, ok := t.open[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.open, id)
	for i, oid := range t.openOrder {
		if oid == id {
			t.openOrder = append(t.openOrder[:i], t.openOrder[i+1:]...)
			break
		}
	}

	ret := TradeReturn(trade.Direction, trade.EntryPrice, exitPrice)
	trade.ExitPrice = exitPrice
	trade.ExitTime = exitTime
	trade.ExitReason = reason
	trade.PnLPercent = ret * 100
	trade.PnLAbsolute = trade.PositionSize * ret
	trade.Status = model.TradeClosed
	if reason == model.ExitStopLoss {
		trade.Status = model.TradeStoppedOut
	}
	t.closed = append(t.closed, trade)
	t.closedIDs[id] = struct{}{}
	journal := t.journal
	t.mu.Unlock()

	t.log.Info().
		Str("trade_id", id).
		Str("reason", reason).
		Float64("exit", exitPrice).
		Float64("pnl_pct", trade.PnLPercent).
		Msg("trade closed")

	if journal != nil {
		if err := journal.RecordTrade(trade); err != nil {
			t.log.Error().Err(err).Str("trade_id", id).Msg("journal write failed")
		}
	}
	return true
}

// Open returns a copy of one open trade.
func (t *Tracker) Open(id string) (model.Trade, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.open[id]
	return tr, ok
}

// OpenTrades returns a copy of the open trades in entry order.
func (t *Tracker) OpenTrades() []model.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Trade, 0, len(t.openOrder))
	for _, id := range t.openOrder {
		out = append(out, t.open[id])
	}
	return out
}

// ClosedTrades returns a copy of the closed trades in exit order.
func (t *Tracker) ClosedTrades() []model.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Trade, len(t.closed))
	copy(out, t.closed)
	return out
}

// Equity is the initial balance followed by one point per closed trade.
func (t *Tracker) Equity() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.equityLocked()
}

func (t *Tracker) equityLocked() []float64 {
	eq := make([]float64, 0, len(t.closed)+1)
	bal := t.initialBalance
	eq = append(eq, bal)
	for _, tr := range t.closed {
		bal += tr.PnLAbsolute
		eq = append(eq, bal)
	}
	return eq
}

// CalculateMetrics applies ComputeMetrics to every closed trade.
func (t *Tracker) CalculateMetrics() model.Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ComputeMetrics(t.closed, t.equityLocked(), t.initialBalance)
}

// Summary is a point-in-time view of the tracker.
type Summary struct {
	OpenTrades   int           `json:"openTrades"`
	ClosedTrades int           `json:"closedTrades"`
	Balance      float64       `json:"balance"`
	Drawdown     float64       `json:"drawdown"`
	Metrics      model.Metrics `json:"metrics"`
}

// Summary returns counts, balance, current drawdown and metrics.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	eq := t.equityLocked()
	var hwm HighWaterMark
	for _, e := range eq {
		hwm.Update(e)
	}
	return Summary{
		OpenTrades:   len(t.open),
		ClosedTrades: len(t.closed),
		Balance:      eq[len(eq)-1],
		Drawdown:     hwm.Drawdown(),
		Metrics:      ComputeMetrics(t.closed, eq, t.initialBalance),
	}
}

// CanOpen checks a new entry against limits. The reason is empty when allowed.
func (t *Tracker) CanOpen(limits RiskLimits) (bool, string) {
	s := t.Summary()
	if limits.MaxOpenTrades > 0 && s.OpenTrades >= limits.MaxOpenTrades {
		return false, fmt.Sprintf("max open trades reached (%d)", limits.MaxOpenTrades)
	}
	if limits.MaxDrawdownPct > 0 && s.Drawdown >= limits.MaxDrawdownPct {
		return false, fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", s.Drawdown, limits.MaxDrawdownPct)
	}
	return true, ""
}
