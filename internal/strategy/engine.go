// Package strategy holds the signal policy and the live engine that drives it.
//
// Generator is the synchronous decision function over a candle window.
// Engine is the integration boundary: it receives candles on a channel, feeds
// each one exactly once to the regime detector and the generator, and emits
// the resulting SignalResult on its own channel.
package strategy

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/regime"
	"trading-signalsv1/internal/ringbuf"
)

// Observer receives engine instrumentation. *metrics.Metrics implements it.
type Observer interface {
	ObserveSignal(sig model.SignalResult, took time.Duration)
	ObserveRegime(state model.RegimeState)
	CandleRejected()
	SignalDropped()
}

// Engine routes candles for one symbol through a detector and a generator.
type Engine struct {
	symbol   string
	detector *regime.Detector
	gen      *Generator
	window   *ringbuf.Window
	signalCh chan model.SignalResult

	lastTime int64
	seen     bool

	// Optional hooks.
	Observer       Observer
	OnRegimeChange func(symbol string, state model.RegimeState)

	// OnProcessed runs synchronously for every accepted candle, before the
	// result is queued on Signals.
	OnProcessed func(c model.Candle, res model.SignalResult)

	// CandleClock, when set, is moved to each candle's time before the
	// detector and generator see it.
	CandleClock *clock.Mock

	log zerolog.Logger
}

// NewEngine creates an engine. The generator should use detector as its
// RegimeSource so signals see the regime of the same candle.
func NewEngine(symbol string, detector *regime.Detector, gen *Generator, windowSize, signalBufferSize int) *Engine {
	if need := gen.Config().MinCandles(); windowSize < need {
		windowSize = need
	}
	return &Engine{
		symbol:   symbol,
		detector: detector,
		gen:      gen,
		window:   ringbuf.New(windowSize),
		signalCh: make(chan model.SignalResult, signalBufferSize),
		log:      log.With().Str("component", "engine").Str("symbol", symbol).Logger(),
	}
}

// Signals returns the channel of results. It is closed when Run returns.
func (e *Engine) Signals() <-chan model.SignalResult {
	return e.signalCh
}

// Detector returns the engine's regime detector.
func (e *Engine) Detector() *regime.Detector { return e.detector }

// Warmup loads history into the detector and window without emitting signals.
func (e *Engine) Warmup(candles []model.Candle) int {
	loaded := 0
	for _, c := range candles {
		if !e.accept(c) {
			continue
		}
		if e.CandleClock != nil {
			e.CandleClock.Set(c.Timestamp())
		}
		e.detector.Update(c)
		e.window.Push(c)
		loaded++
	}
	e.log.Info().Int("candles", loaded).Msg("warmup complete")
	return loaded
}

// Restore applies a detector snapshot and seeds the engine window and
// ordering from its candles, so the feed must resume after the newest one.
// It returns the time of that candle, or 0 for an empty snapshot.
func (e *Engine) Restore(snap regime.Snapshot) int64 {
	n := len(snap.Window)
	if n == 0 {
		return 0
	}
	e.detector.Restore(snap)
	for _, c := range snap.Window {
		if e.seen && c.Time <= e.lastTime {
			continue
		}
		e.window.Push(c)
		e.lastTime = c.Time
		e.seen = true
	}
	last := snap.Window[n-1]
	if e.CandleClock != nil {
		e.CandleClock.Set(last.Timestamp())
	}
	return last.Time
}

// Process handles one candle synchronously. ok is false when the candle was
// rejected as invalid or out of order.
func (e *Engine) Process(c model.Candle) (res model.SignalResult, ok bool) {
	if !e.accept(c) {
		if e.Observer != nil {
			e.Observer.CandleRejected()
		}
		return model.SignalResult{}, false
	}

	if e.CandleClock != nil {
		e.CandleClock.Set(c.Timestamp())
	}
	start := time.Now()
	state, changed := e.detector.Update(c)
	e.window.Push(c)
	res = e.gen.Generate(e.window.Candles())
	res.Symbol = e.symbol

	if e.Observer != nil {
		e.Observer.ObserveRegime(state)
		e.Observer.ObserveSignal(res, time.Since(start))
	}
	if changed && e.OnRegimeChange != nil {
		e.OnRegimeChange(e.symbol, state)
	}
	if e.OnProcessed != nil {
		e.OnProcessed(c, res)
	}
	return res, true
}

// Run consumes candles until ctx is cancelled or candleCh is closed.
func (e *Engine) Run(ctx context.Context, candleCh <-chan model.Candle) {
	defer close(e.signalCh)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			res, ok := e.Process(c)
			if !ok {
				continue
			}
			select {
			case e.signalCh <- res:
			default:
				// signal channel full, drop
				if e.Observer != nil {
					e.Observer.SignalDropped()
				}
				e.log.Warn().Str("signal", string(res.Signal)).Msg("signal channel full, dropping result")
			}
		}
	}
}

// accept enforces strictly ascending time and candle invariants.
func (e *Engine) accept(c model.Candle) bool {
	if err := c.Validate(); err != nil {
		e.log.Warn().Err(err).Msg("rejecting candle")
		return false
	}
	if e.seen && c.Time <= e.lastTime {
		e.log.Warn().
			Int64("candle", c.Time).
			Int64("last", e.lastTime).
			Msg("rejecting out-of-order candle")
		return false
	}
	e.lastTime = c.Time
	e.seen = true
	return true
}
