// Package backtest replays a candle series through the regime detector and
// signal generator and simulates one position at a time.
package backtest

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/portfolio"
	"trading-signalsv1/internal/regime"
	"trading-signalsv1/internal/strategy"
)

// Engine runs backtests for one configuration. Every Run builds its own
// detector, generator and virtual clock, so identical input gives identical
// output.
type Engine struct {
	cfg    Config
	preset Preset
	log    zerolog.Logger

	// signal replaces the generator when set.
	signal func(candles []model.Candle) model.SignalResult
}

// NewEngine resolves the configured preset.
func NewEngine(cfg Config) (*Engine, error) {
	p, err := LookupPreset(cfg.Preset)
	if err != nil {
		return nil, err
	}
	return NewEngineWithPreset(cfg, p), nil
}

// NewEngineWithPreset uses p instead of a built-in preset.
func NewEngineWithPreset(cfg Config, p Preset) *Engine {
	if p.Name == "" {
		p.Name = "custom"
	}
	cfg.Preset = p.Name
	return &Engine{
		cfg:    cfg,
		preset: p,
		log:    log.With().Str("component", "backtest").Str("preset", p.Name).Logger(),
	}
}

// Preset returns the policy in use.
func (e *Engine) Preset() Preset { return e.preset }

type position struct {
	trade      model.Trade
	entryIndex int
	stop       float64
	target     float64
}

// bounds resolves the inclusive candle range.
func (e *Engine) bounds(n int) (start, end int, err error) {
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: no candles", ErrInvalidRange)
	}
	start, end = e.cfg.StartIndex, e.cfg.EndIndex
	if end == 0 {
		end = n - 1
	}
	if start < 0 || end >= n || start > end {
		return 0, 0, fmt.Errorf("%w: [%d, %d] over %d candles", ErrInvalidRange, start, end, n)
	}
	return start, end, nil
}

// Run replays candles[StartIndex..EndIndex]. The generator only ever sees
// candles up to the current index.
func (e *Engine) Run(candles []model.Candle) (model.BacktestResult, error) {
	start, end, err := e.bounds(len(candles))
	if err != nil {
		return model.BacktestResult{}, err
	}
	if err := model.ValidateSeries(candles[:end+1]); err != nil {
		return model.BacktestResult{}, fmt.Errorf("backtest run: %w", err)
	}

	clk := clock.NewMock()
	det := regime.New(e.cfg.Regime, clk)
	gen := strategy.NewGenerator(e.cfg.Signal, clk, det)
	generate := gen.Generate
	if e.signal != nil {
		generate = e.signal
	}

	balance := e.cfg.InitialBalance
	equity := []float64{balance}
	trades := make([]model.Trade, 0, 32)
	var (
		pos      *position
		cooldown int
	)

	closePos := func(price float64, c model.Candle, reason string) {
		t := pos.trade
		ret := portfolio.TradeReturn(t.Direction, t.EntryPrice, price)
		t.ExitPrice = price
		t.ExitTime = c.Timestamp()
		t.ExitReason = reason
		t.PnLPercent = ret * 100
		t.PnLAbsolute = balance * ret
		t.Status = model.TradeClosed
		if reason == model.ExitStopLoss {
			t.Status = model.TradeStoppedOut
		}
		balance *= 1 + ret
		trades = append(trades, t)
		equity = append(equity, balance)
		pos = nil
		cooldown = e.preset.CooldownCandles

		e.log.Debug().
			Str("trade_id", t.ID).
			Str("reason", reason).
			Float64("pnl_pct", t.PnLPercent).
			Float64("balance", balance).
			Msg("position closed")
	}

	for i := 0; i <= end; i++ {
		c := candles[i]
		clk.Set(c.Timestamp())
		det.Update(c)
		if i < start {
			continue
		}

		if pos != nil {
			if i == pos.entryIndex {
				continue
			}
			if price, reason, hit := portfolio.CheckExit(pos.trade.Direction, pos.stop, pos.target, c); hit {
				closePos(price, c, reason)
				continue
			}
			if e.preset.BreakevenAfter > 0 && i-pos.entryIndex >= e.preset.BreakevenAfter {
				pos.stop = portfolio.BreakevenStop(pos.trade.Direction, pos.trade.EntryPrice, pos.stop)
			}
			continue
		}

		equity = append(equity, balance)
		if cooldown > 0 {
			cooldown--
			continue
		}

		// Each call recomputes indicators over the whole prefix, since
		// Wilder ADX and VWAP depend on it. A run is O(n²).
		sig := generate(candles[:i+1])
		if !sig.Actionable() || sig.Confidence < e.preset.MinConfidence {
			continue
		}
		dir, _ := model.DirectionFromSignal(sig.Signal)
		pos = e.open(len(trades)+1, dir, sig, c, balance, i)
	}

	if pos != nil {
		last := candles[end]
		closePos(last.Close, last, model.ExitEndOfData)
	}

	res := model.BacktestResult{
		Preset:  e.preset.Name,
		Candles: end - start + 1,
		Trades:  trades,
		Equity:  equity,
		Metrics: portfolio.ComputeMetrics(trades, equity, e.cfg.InitialBalance),
	}
	e.log.Info().
		Int("candles", res.Candles).
		Int("trades", res.Metrics.TotalTrades).
		Float64("win_rate", res.Metrics.WinRate).
		Float64("net_profit", res.Metrics.NetProfit).
		Msg("backtest complete")
	return res, nil
}

func (e *Engine) open(seq int, dir model.Direction, sig model.SignalResult, c model.Candle, balance float64, idx int) *position {
	entry := c.Close
	stopOff := entry * e.preset.StopLossPct / 100
	targetOff := entry * e.preset.TakeProfitPct / 100
	stop, target := entry-stopOff, entry+targetOff
	if dir == model.DirectionShort {
		stop, target = entry+stopOff, entry-targetOff
	}
	e.log.Debug().
		Str("signal_id", sig.ID).
		Str("direction", string(dir)).
		Float64("entry", entry).
		Float64("confidence", sig.Confidence).
		Msg("position opened")
	return &position{
		trade: model.Trade{
			ID:            fmt.Sprintf("BT-%s-%d", e.preset.Name, seq),
			EntrySignalID: sig.ID,
			Symbol:        sig.Symbol,
			Direction:     dir,
			EntryPrice:    entry,
			EntryTime:     c.Timestamp(),
			PositionSize:  balance,
			StopLoss:      stop,
			TakeProfit:    target,
			Status:        model.TradeOpen,
		},
		entryIndex: idx,
		stop:       stop,
		target:     target,
	}
}

// Run is a convenience wrapper around NewEngine and Engine.Run.
func Run(cfg Config, candles []model.Candle) (model.BacktestResult, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return model.BacktestResult{}, err
	}
	return e.Run(candles)
}

// Compare runs every built-in preset over the same candles.
func Compare(cfg Config, candles []model.Candle) (map[string]model.BacktestResult, error) {
	out := make(map[string]model.BacktestResult, len(Presets))
	for _, name := range PresetNames() {
		c := cfg
		c.Preset = name
		res, err := Run(c, candles)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		out[name] = res
	}
	return out, nil
}
