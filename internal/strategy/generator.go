package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/regime"
)

// RegimeSource supplies the current regime. *regime.Detector satisfies it.
type RegimeSource interface {
	CurrentRegime() model.MarketRegime
	Confidence() float64
}

const (
	// spikeMultiplier is the volume multiple that earns the spike bonus.
	spikeMultiplier = 1.5
	adxPeriod       = 14
)

// Generator turns a candle window into BUY/SELL/HOLD.
//
// Policy, first match wins:
//
//  1. cooldown gate: HOLD while now - lastSignalTime < cooldown
//  2. volume gate: HOLD while latest/mean volume < VolumeThreshold
//  3. SELL: EMA fast crosses below slow, or RSI ≥ RSISell with close above the upper band
//  4. BUY: EMA fast crosses above slow, or RSI ≤ RSIBuy with close below the lower band
//  5. HOLD
//
// The only state kept between calls is the last non-HOLD time and price.
// With the same candles, config and clock the output is identical.
type Generator struct {
	cfg    Config
	clk    clock.Clock
	regime RegimeSource

	lastSignalTime  time.Time
	lastSignalPrice float64

	log zerolog.Logger
}

// NewGenerator creates a generator. src may be nil, in which case the regime
// is classified from the candle window with default settings. A nil clock
// uses wall time.
func NewGenerator(cfg Config, clk clock.Clock, src RegimeSource) *Generator {
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{
		cfg:    cfg.normalized(),
		clk:    clk,
		regime: src,
		log:    log.With().Str("component", "signal").Logger(),
	}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// LastSignal returns the time and price of the last BUY or SELL.
func (g *Generator) LastSignal() (time.Time, float64) {
	return g.lastSignalTime, g.lastSignalPrice
}

// Reset forgets the last signal, lifting any cooldown.
func (g *Generator) Reset() {
	g.lastSignalTime = time.Time{}
	g.lastSignalPrice = 0
}

// Generate evaluates the policy on candles (oldest first).
func (g *Generator) Generate(candles []model.Candle) (res model.SignalResult) {
	now := g.clk.Now()
	res = model.SignalResult{
		Signal:    model.SignalHold,
		Timestamp: now,
		Regime:    g.currentRegime(candles),
	}
	defer func() { res.ID = model.SignalID(res.Signal, res.Timestamp) }()

	n := len(candles)
	if need := g.cfg.MinCandles(); n < need {
		res.Reason = fmt.Sprintf("insufficient data: %d of %d candles", n, need)
		return res
	}

	if !g.lastSignalTime.IsZero() {
		if elapsed := now.Sub(g.lastSignalTime); elapsed < g.cfg.Cooldown() {
			res.Reason = fmt.Sprintf("cooldown: %s remaining", (g.cfg.Cooldown() - elapsed).Round(time.Second))
			return res
		}
	}

	if g.cfg.VolumeThreshold > 0 {
		ratio := indicator.VolumeRatio(candles, g.cfg.VolumeLookback)
		if ratio < g.cfg.VolumeThreshold {
			res.Reason = fmt.Sprintf("volume %.2fx below threshold %.2fx", ratio, g.cfg.VolumeThreshold)
			return res
		}
	}

	snap := indicator.Snapshot(candles, indicator.SnapshotParams{
		FastEMA:         g.cfg.FastEMA,
		SlowEMA:         g.cfg.SlowEMA,
		ADXPeriod:       adxPeriod,
		ATRPeriod:       g.cfg.ATRPeriod,
		BollingerPeriod: g.cfg.BollingerPeriod,
		BollingerK:      g.cfg.BollingerK,
		VolumeLookback:  g.cfg.VolumeLookback,
	})
	res.RawIndicators = &snap

	last := candles[n-1]
	cross := indicator.EMACross(candles, g.cfg.FastEMA, g.cfg.SlowEMA)

	var triggers []string
	var crossHit, rsiBandHit bool
	fast := fmt.Sprintf("EMA%d", g.cfg.FastEMA)
	slow := fmt.Sprintf("EMA%d", g.cfg.SlowEMA)
	sellRSIBand := snap.RSI14 >= g.cfg.RSISell && last.Close > snap.BBUpper
	buyRSIBand := snap.RSI14 <= g.cfg.RSIBuy && last.Close < snap.BBLower

	switch {
	case cross == indicator.CrossDown || sellRSIBand:
		res.Signal = model.SignalSell
		if cross == indicator.CrossDown {
			crossHit = true
			triggers = append(triggers, fmt.Sprintf("%s crossed below %s", fast, slow))
		}
		if sellRSIBand {
			rsiBandHit = true
			triggers = append(triggers, fmt.Sprintf("RSI %.1f >= %.0f with close above upper band %.4g", snap.RSI14, g.cfg.RSISell, snap.BBUpper))
		}
	case cross == indicator.CrossUp || buyRSIBand:
		res.Signal = model.SignalBuy
		if cross == indicator.CrossUp {
			crossHit = true
			triggers = append(triggers, fmt.Sprintf("%s crossed above %s", fast, slow))
		}
		if buyRSIBand {
			rsiBandHit = true
			triggers = append(triggers, fmt.Sprintf("RSI %.1f <= %.0f with close below lower band %.4g", snap.RSI14, g.cfg.RSIBuy, snap.BBLower))
		}
	default:
		res.Reason = "no trigger"
		return res
	}

	dir := 1
	if res.Signal == model.SignalSell {
		dir = -1
	}
	res.Confidence = g.confidence(candles, dir, crossHit, rsiBandHit, res.Regime)
	res.Reason = strings.Join(triggers, "; ")

	g.lastSignalTime = now
	g.lastSignalPrice = last.Close

	if t, err := PriceTargets(candles, res.Signal, g.cfg); err == nil {
		res.EntryPrice = &t.Entry
		res.StopLoss = &t.StopLoss
		res.TakeProfit = &t.TakeProfit
	} else {
		g.log.Warn().Err(err).Msg("price targets unavailable")
	}

	g.log.Debug().
		Str("signal", string(res.Signal)).
		Float64("confidence", res.Confidence).
		Str("regime", string(res.Regime)).
		Str("reason", res.Reason).
		Msg("signal")
	return res
}

// confidence starts at 50 and adds: cross 20, RSI/band 15, volume confirming
// the direction 10, volume spike 5, strong regime in the same direction 10.
// A trend regime against the direction costs 15.
func (g *Generator) confidence(candles []model.Candle, dir int, crossHit, rsiBandHit bool, reg model.MarketRegime) float64 {
	score := 50.0
	if crossHit {
		score += 20
	}
	if rsiBandHit {
		score += 15
	}
	if indicator.IsVolumeConfirming(candles, g.cfg.VolumeLookback) == dir {
		score += 10
	}
	if indicator.IsVolumeSpike(candles, g.cfg.VolumeLookback, spikeMultiplier) {
		score += 5
	}
	switch rd := reg.Direction(); {
	case rd == dir && reg.IsStrong():
		score += 10
	case rd == -dir:
		score -= 15
	}
	return math.Max(0, math.Min(100, score))
}

func (g *Generator) currentRegime(candles []model.Candle) model.MarketRegime {
	if g.regime != nil {
		return g.regime.CurrentRegime()
	}
	return regime.Classify(candles, regime.DefaultConfig()).Regime
}
