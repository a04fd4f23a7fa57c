// Package regime classifies the prevailing market regime from a candle stream.
//
// A Detector is fed one candle at a time. It keeps a bounded rolling window,
// reclassifies on every update and tracks how long the current regime has
// held. Time comes from an injected clock so duration is deterministic in
// tests and backtests.
package regime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/ringbuf"
)

// Detector owns one regime state machine. Not safe for concurrent use.
type Detector struct {
	cfg    Config
	clk    clock.Clock
	window *ringbuf.Window

	state   model.RegimeState
	started bool
	last    Classification

	log zerolog.Logger
}

// New creates a detector in the ranging state. A nil clock uses wall time.
func New(cfg Config, clk clock.Clock) *Detector {
	if clk == nil {
		clk = clock.New()
	}
	cfg = cfg.normalized()
	return &Detector{
		cfg:    cfg,
		clk:    clk,
		window: ringbuf.New(cfg.WindowSize()),
		state:  model.RegimeState{Current: model.RegimeRanging},
		last:   Classification{Regime: model.RegimeRanging},
		log:    log.With().Str("component", "regime").Logger(),
	}
}

// Update appends a candle, reclassifies and returns the new state. changed is
// true when the regime differs from the previous one. EnteredAt is set on the
// first update and on every real change, never on a repeat classification.
// A candle at or before the newest buffered one is ignored and the current
// state is returned unchanged.
func (d *Detector) Update(c model.Candle) (state model.RegimeState, changed bool) {
	if last, ok := d.window.Last(); ok && c.Time <= last.Time {
		d.log.Warn().
			Int64("candle", c.Time).
			Int64("last", last.Time).
			Msg("ignoring out-of-order candle")
		return d.state, false
	}
	d.window.Push(c)
	cls := Classify(d.window.Candles(), d.cfg)
	now := d.clk.Now()

	switch {
	case !d.started:
		d.state.Current = cls.Regime
		d.state.EnteredAt = now
		d.started = true
	case cls.Regime != d.state.Current:
		d.log.Debug().
			Str("from", string(d.state.Current)).
			Str("to", string(cls.Regime)).
			Float64("adx", cls.ADX).
			Float64("confidence", cls.Confidence).
			Msg("regime transition")
		d.state.Current = cls.Regime
		d.state.EnteredAt = now
		changed = true
	}

	d.state.Confidence = cls.Confidence
	d.last = cls
	return d.state, changed
}

// CurrentRegime returns the regime as of the latest update.
func (d *Detector) CurrentRegime() model.MarketRegime { return d.state.Current }

// Confidence returns the latest confidence in [0, 100].
func (d *Detector) Confidence() float64 { return d.state.Confidence }

// State returns a copy of the regime state.
func (d *Detector) State() model.RegimeState { return d.state }

// Readings returns the classification from the latest update.
func (d *Detector) Readings() Classification { return d.last }

// Duration is how long the current regime has held. Zero before the first
// update and immediately after it.
func (d *Detector) Duration() time.Duration {
	if !d.started {
		return 0
	}
	dur := d.clk.Now().Sub(d.state.EnteredAt)
	if dur < 0 {
		return 0
	}
	return dur
}

// DurationMs is Duration in milliseconds.
func (d *Detector) DurationMs() int64 {
	return d.Duration().Milliseconds()
}

// Len returns the number of buffered candles.
func (d *Detector) Len() int { return d.window.Len() }

// ────────────────────────────────────────────────────────────
// Snapshot / Restore
// ────────────────────────────────────────────────────────────

// Snapshot captures the detector so a restarted process keeps EnteredAt.
type Snapshot struct {
	State   model.RegimeState `json:"state"`
	Started bool              `json:"started"`
	Window  []model.Candle    `json:"window"`
}

// Snapshot returns a copy of the detector state and window.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		State:   d.state,
		Started: d.started,
		Window:  d.window.Candles(),
	}
}

// Restore replaces the detector state with snap. The latest classification is
// recomputed from the restored window without touching EnteredAt.
func (d *Detector) Restore(snap Snapshot) {
	d.window.Reset(snap.Window)
	d.state = snap.State
	if d.state.Current == "" {
		d.state.Current = model.RegimeRanging
	}
	d.started = snap.Started
	d.last = Classify(d.window.Candles(), d.cfg)
	d.log.Info().
		Str("regime", string(d.state.Current)).
		Int("candles", d.window.Len()).
		Time("entered_at", d.state.EnteredAt).
		Msg("restored from snapshot")
}

// MarshalSnapshot encodes the detector snapshot as JSON.
func (d *Detector) MarshalSnapshot() ([]byte, error) {
	b, err := json.Marshal(d.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("regime snapshot marshal: %w", err)
	}
	return b, nil
}

// RestoreJSON decodes and applies a snapshot produced by MarshalSnapshot.
func (d *Detector) RestoreJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("regime snapshot unmarshal: %w", err)
	}
	d.Restore(snap)
	return nil
}
