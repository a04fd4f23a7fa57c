// Package execution simulates fills for live signals. Positions live in a
// portfolio.Tracker so live and backtest statistics share one formula.
package execution

import (
	"fmt"
	"sync"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/portfolio"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls which signals the paper executor takes.
type Config struct {
	MinConfidence float64
	Risk          portfolio.RiskLimits
}

// Paper turns actionable signals into tracker trades and closes them when
// a later candle reaches the stop or the target. The stop wins when both
// are touched by the same candle.
type Paper struct {
	mu      sync.Mutex
	tracker *portfolio.Tracker
	cfg     Config
	newID   func() string
	log     zerolog.Logger

	// OnOpen and OnClose are called after the tracker has been updated.
	OnOpen  func(model.Trade)
	OnClose func(model.Trade)
}

// NewPaper creates a paper executor over tracker.
func NewPaper(tracker *portfolio.Tracker, cfg Config) *Paper {
	return &Paper{
		tracker: tracker,
		cfg:     cfg,
		newID:   func() string { return "PAPER-" + uuid.NewString() },
		log:     log.With().Str("component", "paper").Logger(),
	}
}

// OnSignal opens a position at the signal's entry price. It returns false
// when the signal is not actionable, lacks targets, is below the confidence
// floor or the risk limits refuse a new position.
func (p *Paper) OnSignal(sig model.SignalResult) (model.Trade, bool) {
	dir, ok := model.DirectionFromSignal(sig.Signal)
	if !ok || !sig.HasTargets() {
		return model.Trade{}, false
	}
	if sig.Confidence < p.cfg.MinConfidence {
		p.log.Debug().Float64("confidence", sig.Confidence).Msg("signal below confidence floor")
		return model.Trade{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if allowed, reason := p.tracker.CanOpen(p.cfg.Risk); !allowed {
		p.log.Info().Str("signal", sig.ID).Str("reason", reason).Msg("entry refused")
		return model.Trade{}, false
	}

	trade := model.Trade{
		ID:            p.newID(),
		EntrySignalID: sig.ID,
		Symbol:        sig.Symbol,
		Direction:     dir,
		EntryPrice:    *sig.EntryPrice,
		EntryTime:     sig.Timestamp,
		PositionSize:  p.tracker.Summary().Balance,
		StopLoss:      *sig.StopLoss,
		TakeProfit:    *sig.TakeProfit,
		Status:        model.TradeOpen,
	}
	if err := p.tracker.RecordEntry(trade); err != nil {
		p.log.Error().Err(err).Str("trade", trade.ID).Msg("record entry failed")
		return model.Trade{}, false
	}

	p.log.Info().
		Str("trade", trade.ID).
		Str("direction", string(dir)).
		Float64("entry", trade.EntryPrice).
		Float64("stop", trade.StopLoss).
		Float64("target", trade.TakeProfit).
		Msg("paper position opened")
	if p.OnOpen != nil {
		p.OnOpen(trade)
	}
	return trade, true
}

// OnCandle checks every open position against c and returns the trades it
// closed. Positions are never closed on their entry candle.
func (p *Paper) OnCandle(c model.Candle) []model.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := c.Timestamp()
	var closed []model.Trade
	for _, t := range p.tracker.OpenTrades() {
		if !ts.After(t.EntryTime) {
			continue
		}
		price, reason, hit := portfolio.CheckExit(t.Direction, t.StopLoss, t.TakeProfit, c)
		if !hit {
			continue
		}
		if !p.tracker.RecordExit(t.ID, price, ts, reason) {
			continue
		}
		done, err := p.closedTrade(t.ID)
		if err != nil {
			p.log.Error().Err(err).Msg("closed trade lookup failed")
			continue
		}
		p.log.Info().
			Str("trade", done.ID).
			Str("reason", reason).
			Float64("exit", price).
			Float64("pnl_pct", done.PnLPercent).
			Msg("paper position closed")
		closed = append(closed, done)
		if p.OnClose != nil {
			p.OnClose(done)
		}
	}
	return closed
}

// closedTrade searches from the newest closed trade backwards.
func (p *Paper) closedTrade(id string) (model.Trade, error) {
	trades := p.tracker.ClosedTrades()
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].ID == id {
			return trades[i], nil
		}
	}
	return model.Trade{}, fmt.Errorf("paper: trade %s not in closed set", id)
}
