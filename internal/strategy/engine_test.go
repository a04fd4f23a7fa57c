package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/regime"
)

type countingObserver struct {
	mu       sync.Mutex
	signals  map[model.SignalType]int
	regimes  int
	rejected int
	dropped  int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{signals: make(map[model.SignalType]int)}
}

func (o *countingObserver) ObserveSignal(sig model.SignalResult, _ time.Duration) {
	o.mu.Lock()
	o.signals[sig.Signal]++
	o.mu.Unlock()
}
func (o *countingObserver) ObserveRegime(model.RegimeState) { o.mu.Lock(); o.regimes++; o.mu.Unlock() }
func (o *countingObserver) CandleRejected()                 { o.mu.Lock(); o.rejected++; o.mu.Unlock() }
func (o *countingObserver) SignalDropped()                  { o.mu.Lock(); o.dropped++; o.mu.Unlock() }

func newTestEngine(bufSize int) (*Engine, *countingObserver) {
	clk := newMock()
	det := regime.New(regime.DefaultConfig(), clk)
	gen := NewGenerator(scenarioConfig(), clk, det)
	eng := NewEngine("BTCUSDT", det, gen, 128, bufSize)
	obs := newCountingObserver()
	eng.Observer = obs
	return eng, obs
}

func TestEngine_ProcessEmitsOneResultPerCandle(t *testing.T) {
	eng, obs := newTestEngine(1)

	var last model.SignalResult
	for _, c := range dropAfterFlat() {
		res, ok := eng.Process(c)
		if !ok {
			t.Fatalf("candle %d rejected", c.Time)
		}
		last = res
	}

	if last.Signal != model.SignalSell {
		t.Fatalf("last result: got %s (%s), want SELL", last.Signal, last.Reason)
	}
	if last.Symbol != "BTCUSDT" {
		t.Errorf("symbol: got %q", last.Symbol)
	}
	if obs.regimes != 51 {
		t.Errorf("regime observations: got %d, want 51", obs.regimes)
	}
	if obs.signals[model.SignalSell] != 1 || obs.signals[model.SignalHold] != 50 {
		t.Errorf("signal counts: %+v", obs.signals)
	}
	if eng.Detector().Len() == 0 {
		t.Error("detector was not updated")
	}
}

func TestEngine_RejectsOutOfOrderAndInvalid(t *testing.T) {
	eng, obs := newTestEngine(1)

	if _, ok := eng.Process(bar(120, 100, 10)); !ok {
		t.Fatal("first candle rejected")
	}
	if _, ok := eng.Process(bar(120, 100, 10)); ok {
		t.Error("duplicate time accepted")
	}
	if _, ok := eng.Process(bar(60, 100, 10)); ok {
		t.Error("older candle accepted")
	}
	bad := bar(180, 100, 10)
	bad.High = 50
	if _, ok := eng.Process(bad); ok {
		t.Error("invalid candle accepted")
	}
	if obs.rejected != 3 {
		t.Errorf("rejected: got %d, want 3", obs.rejected)
	}
}

func TestEngine_RunStreamsAndCloses(t *testing.T) {
	eng, _ := newTestEngine(64)

	in := make(chan model.Candle, 64)
	for _, c := range dropAfterFlat() {
		in <- c
	}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go eng.Run(ctx, in)

	var got []model.SignalResult
	for res := range eng.Signals() {
		got = append(got, res)
	}
	if len(got) != 51 {
		t.Fatalf("results: got %d, want 51", len(got))
	}
	if got[50].Signal != model.SignalSell {
		t.Errorf("last: got %s, want SELL", got[50].Signal)
	}
}

func TestEngine_DropsWhenSignalChannelFull(t *testing.T) {
	eng, obs := newTestEngine(1)

	in := make(chan model.Candle, 8)
	for i := int64(0); i < 5; i++ {
		in <- bar(i*60, 100, 10)
	}
	close(in)

	eng.Run(context.Background(), in) // nobody reads Signals()

	if obs.dropped != 4 {
		t.Errorf("dropped: got %d, want 4", obs.dropped)
	}
}

func TestEngine_WarmupDoesNotEmit(t *testing.T) {
	eng, obs := newTestEngine(4)
	history := dropAfterFlat()[:50]

	if n := eng.Warmup(history); n != 50 {
		t.Fatalf("warmup loaded %d, want 50", n)
	}
	if len(obs.signals) != 0 {
		t.Errorf("warmup emitted signals: %+v", obs.signals)
	}

	res, ok := eng.Process(dropAfterFlat()[50])
	if !ok || res.Signal != model.SignalSell {
		t.Fatalf("first live candle after warmup: got %s ok=%v, want SELL", res.Signal, ok)
	}
}

func TestEngine_CandleClockAndOnProcessed(t *testing.T) {
	clk := newMock()
	det := regime.New(regime.DefaultConfig(), clk)
	eng := NewEngine("BTCUSDT", det, NewGenerator(scenarioConfig(), clk, det), 128, 1)
	eng.CandleClock = clk

	var calls int
	var lastCandle model.Candle
	eng.OnProcessed = func(c model.Candle, res model.SignalResult) {
		calls++
		lastCandle = c
		if !res.Timestamp.Equal(c.Timestamp()) {
			t.Errorf("result at %v, candle at %v", res.Timestamp, c.Timestamp())
		}
	}

	candles := dropAfterFlat()
	for _, c := range candles {
		eng.Process(c)
	}
	eng.Process(candles[0]) // out of order, not reported

	if calls != len(candles) {
		t.Errorf("OnProcessed calls = %d, want %d", calls, len(candles))
	}
	if lastCandle.Time != candles[len(candles)-1].Time {
		t.Errorf("last candle = %d", lastCandle.Time)
	}
}

func TestEngine_RestoreSeedsOrdering(t *testing.T) {
	clk := newMock()
	src := regime.New(regime.DefaultConfig(), clk)
	for i := 0; i < 80; i++ {
		ts := 100000 + int64(i)*60
		clk.Set(time.Unix(ts, 0))
		src.Update(bar(ts, 100+float64(i), 300))
	}
	snap := src.Snapshot()
	lastTS := snap.Window[len(snap.Window)-1].Time

	det := regime.New(regime.DefaultConfig(), clk)
	eng := NewEngine("BTCUSDT", det, NewGenerator(scenarioConfig(), clk, det), 128, 1)
	eng.CandleClock = clk

	if got := eng.Restore(snap); got != lastTS {
		t.Fatalf("Restore returned %d, want %d", got, lastTS)
	}
	if !clk.Now().Equal(time.Unix(lastTS, 0)) {
		t.Errorf("clock at %v, want %v", clk.Now(), time.Unix(lastTS, 0))
	}
	entered := det.State().EnteredAt
	regimeBefore := det.CurrentRegime()

	// A feed replayed from the start must not reach the detector.
	for ts := int64(60); ts <= 300; ts += 60 {
		if _, ok := eng.Process(bar(ts, 100+float64(ts), 300)); ok {
			t.Fatalf("candle at %d accepted after restore", ts)
		}
	}
	if det.CurrentRegime() != regimeBefore {
		t.Errorf("regime changed to %s on stale candles", det.CurrentRegime())
	}
	if !det.State().EnteredAt.Equal(entered) {
		t.Errorf("enteredAt moved: %v → %v", entered, det.State().EnteredAt)
	}

	window := det.Snapshot().Window
	for i := 1; i < len(window); i++ {
		if window[i].Time <= window[i-1].Time {
			t.Fatalf("detector window out of order at %d", i)
		}
	}

	if _, ok := eng.Process(bar(lastTS+60, 180, 300)); !ok {
		t.Fatal("next candle after the snapshot rejected")
	}
}

func TestEngine_RestoreEmptySnapshot(t *testing.T) {
	eng, _ := newTestEngine(1)
	if got := eng.Restore(regime.Snapshot{}); got != 0 {
		t.Fatalf("empty snapshot returned %d", got)
	}
	if _, ok := eng.Process(bar(60, 100, 300)); !ok {
		t.Fatal("first candle rejected after empty restore")
	}
}
