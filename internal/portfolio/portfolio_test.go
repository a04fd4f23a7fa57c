package portfolio

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"trading-signalsv1/internal/model"
)

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, tol)
	}
}

// closedTrades compounds balance through the given percentage returns.
func closedTrades(initial float64, pcts ...float64) ([]model.Trade, []float64) {
	bal := initial
	trades := make([]model.Trade, 0, len(pcts))
	equity := []float64{bal}
	for i, p := range pcts {
		abs := bal * p / 100
		trades = append(trades, model.Trade{
			ID:           fmt.Sprintf("t%d", i),
			Direction:    model.DirectionLong,
			EntryPrice:   100,
			ExitPrice:    100 * (1 + p/100),
			PositionSize: bal,
			Status:       model.TradeClosed,
			PnLPercent:   p,
			PnLAbsolute:  abs,
		})
		bal += abs
		equity = append(equity, bal)
	}
	return trades, equity
}

// ────────────────────────────────────────────────────────────
// TradeReturn / CheckExit
// ────────────────────────────────────────────────────────────

func TestTradeReturn(t *testing.T) {
	tests := []struct {
		dir         model.Direction
		entry, exit float64
		want        float64
	}{
		{model.DirectionLong, 100, 110, 0.10},
		{model.DirectionLong, 100, 95, -0.05},
		{model.DirectionShort, 100, 90, 0.10},
		{model.DirectionShort, 100, 105, -0.05},
		{model.DirectionLong, 0, 10, 0},
	}
	for _, tt := range tests {
		approx(t, fmt.Sprintf("%s %v→%v", tt.dir, tt.entry, tt.exit), TradeReturn(tt.dir, tt.entry, tt.exit), tt.want, 1e-12)
	}
}

func TestCheckExit(t *testing.T) {
	bar := func(h, l float64) model.Candle {
		return model.Candle{Open: (h + l) / 2, High: h, Low: l, Close: (h + l) / 2}
	}
	tests := []struct {
		name       string
		dir        model.Direction
		stop, tgt  float64
		c          model.Candle
		wantHit    bool
		wantPrice  float64
		wantReason string
	}{
		{"long inside", model.DirectionLong, 95, 110, bar(105, 97), false, 0, ""},
		{"long stop", model.DirectionLong, 95, 110, bar(101, 94), true, 95, model.ExitStopLoss},
		{"long target", model.DirectionLong, 95, 110, bar(111, 100), true, 110, model.ExitTakeProfit},
		{"long both, stop first", model.DirectionLong, 95, 110, bar(112, 90), true, 95, model.ExitStopLoss},
		{"short stop", model.DirectionShort, 105, 90, bar(106, 100), true, 105, model.ExitStopLoss},
		{"short target", model.DirectionShort, 105, 90, bar(100, 89), true, 90, model.ExitTakeProfit},
		{"short both, stop first", model.DirectionShort, 105, 90, bar(106, 89), true, 105, model.ExitStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, reason, hit := CheckExit(tt.dir, tt.stop, tt.tgt, tt.c)
			if hit != tt.wantHit || price != tt.wantPrice || reason != tt.wantReason {
				t.Errorf("got (%v, %q, %v), want (%v, %q, %v)", price, reason, hit, tt.wantPrice, tt.wantReason, tt.wantHit)
			}
		})
	}
}

func TestBreakevenStopOnlyTightens(t *testing.T) {
	if got := BreakevenStop(model.DirectionLong, 100, 98); got != 100 {
		t.Errorf("long: got %v, want 100", got)
	}
	if got := BreakevenStop(model.DirectionLong, 100, 101); got != 101 {
		t.Errorf("long already above entry: got %v, want 101", got)
	}
	if got := BreakevenStop(model.DirectionShort, 100, 102); got != 100 {
		t.Errorf("short: got %v, want 100", got)
	}
	if got := BreakevenStop(model.DirectionShort, 100, 99); got != 99 {
		t.Errorf("short already below entry: got %v, want 99", got)
	}
}

// ────────────────────────────────────────────────────────────
// ComputeMetrics
// ────────────────────────────────────────────────────────────

func TestComputeMetricsScenario(t *testing.T) {
	trades, equity := closedTrades(1000, 5, -2, 1, -3)
	m := ComputeMetrics(trades, equity, 1000)

	if m.TotalTrades != 4 || m.Wins != 2 || m.Losses != 2 {
		t.Fatalf("counts = %d/%d/%d, want 4/2/2", m.TotalTrades, m.Wins, m.Losses)
	}
	approx(t, "winRate", m.WinRate, 50, 1e-9)
	approx(t, "profitFactor", m.ProfitFactor, 1.2, 1e-9)
	approx(t, "netProfit", m.NetProfit, 8.1113, 1e-6)
	approx(t, "maxDrawdown", m.MaxDrawdown, 3.9894, 1e-6)
	approx(t, "grossProfit", m.GrossProfit, 6, 1e-9)
	approx(t, "grossLoss", m.GrossLoss, 5, 1e-9)
}

func TestComputeMetricsNoTrades(t *testing.T) {
	m := ComputeMetrics(nil, nil, 1000)
	if m != (model.Metrics{}) {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestComputeMetricsNoLosses(t *testing.T) {
	trades, equity := closedTrades(1000, 2, 3)
	m := ComputeMetrics(trades, equity, 1000)
	if !math.IsInf(m.ProfitFactor, 1) {
		t.Errorf("profitFactor = %v, want +Inf", m.ProfitFactor)
	}
	if m.MaxDrawdown != 0 {
		t.Errorf("maxDrawdown = %v, want 0", m.MaxDrawdown)
	}
}

func TestComputeMetricsIgnoresOpenTrades(t *testing.T) {
	trades, equity := closedTrades(1000, 2)
	trades = append(trades, model.Trade{ID: "open", Status: model.TradeOpen, PnLPercent: -50})
	m := ComputeMetrics(trades, equity, 1000)
	if m.TotalTrades != 1 || m.Losses != 0 {
		t.Errorf("open trade counted: %+v", m)
	}
}

// ────────────────────────────────────────────────────────────
// Drawdown
// ────────────────────────────────────────────────────────────

func bruteForceDrawdown(eq []float64) float64 {
	var worst float64
	for i := range eq {
		for j := i + 1; j < len(eq); j++ {
			if eq[i] <= 0 {
				continue
			}
			if dd := (eq[i] - eq[j]) / eq[i] * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func TestMaxDrawdownMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		eq := make([]float64, 1+rng.Intn(40))
		v := 1000.0
		for i := range eq {
			v *= 1 + (rng.Float64()-0.5)*0.1
			eq[i] = v
		}
		got, want := MaxDrawdown(eq), bruteForceDrawdown(eq)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("run %d: MaxDrawdown = %v, brute force = %v", run, got, want)
		}
		if got < 0 || got > 100 {
			t.Fatalf("run %d: drawdown %v out of [0,100]", run, got)
		}
	}
}

func TestHighWaterMark(t *testing.T) {
	var h HighWaterMark
	h.Update(100)
	h.Update(120)
	approx(t, "drawdown", h.Update(90), 25, 1e-9)
	approx(t, "after partial recovery", h.Update(108), 10, 1e-9)
	approx(t, "max", h.Max(), 25, 1e-9)
	if h.Peak() != 120 {
		t.Errorf("peak = %v, want 120", h.Peak())
	}
}

// ────────────────────────────────────────────────────────────
// Tracker
// ────────────────────────────────────────────────────────────

type memJournal struct {
	mu     sync.Mutex
	trades []model.Trade
	err    error
}

func (j *memJournal) RecordTrade(tr model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, tr)
	return j.err
}

func entry(id string, dir model.Direction, price, size float64) model.Trade {
	return model.Trade{
		ID:           id,
		Direction:    dir,
		EntryPrice:   price,
		EntryTime:    time.Unix(1_700_000_000, 0).UTC(),
		PositionSize: size,
	}
}

func TestTrackerRoundTrip(t *testing.T) {
	const n = 25
	tr := NewTracker(10_000)
	for i := 0; i < n; i++ {
		if err := tr.RecordEntry(entry(fmt.Sprintf("t%d", i), model.DirectionLong, 100, 1000)); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	if got := len(tr.OpenTrades()); got != n {
		t.Fatalf("open = %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		if !tr.RecordExit(fmt.Sprintf("t%d", i), 101, time.Unix(1_700_000_600, 0).UTC(), model.ExitTakeProfit) {
			t.Fatalf("exit %d returned false", i)
		}
	}
	if len(tr.OpenTrades()) != 0 || len(tr.ClosedTrades()) != n {
		t.Errorf("open=%d closed=%d, want 0/%d", len(tr.OpenTrades()), len(tr.ClosedTrades()), n)
	}
}

func TestTrackerUnknownExit(t *testing.T) {
	tr := NewTracker(1000)
	if tr.RecordExit("missing", 100, time.Now(), "") {
		t.Error("exit of unknown id returned true")
	}
	if len(tr.ClosedTrades()) != 0 {
		t.Error("unknown exit mutated state")
	}
}

func TestTrackerRejectsDuplicates(t *testing.T) {
	tr := NewTracker(1000)
	if err := tr.RecordEntry(entry("a", model.DirectionLong, 100, 100)); err != nil {
		t.Fatal(err)
	}
	if err := tr.RecordEntry(entry("a", model.DirectionLong, 100, 100)); !errors.Is(err, ErrDuplicateTrade) {
		t.Errorf("open duplicate: err = %v, want ErrDuplicateTrade", err)
	}
	tr.RecordExit("a", 100, time.Now(), model.ExitManual)
	if err := tr.RecordEntry(entry("a", model.DirectionLong, 100, 100)); !errors.Is(err, ErrDuplicateTrade) {
		t.Errorf("closed duplicate: err = %v, want ErrDuplicateTrade", err)
	}
	if err := tr.RecordEntry(entry("", model.DirectionLong, 100, 100)); !errors.Is(err, ErrInvalidTrade) {
		t.Errorf("empty id: err = %v, want ErrInvalidTrade", err)
	}
}

func TestTrackerPnLAndStatus(t *testing.T) {
	tr := NewTracker(1000)
	j := &memJournal{}
	tr.SetJournal(j)

	_ = tr.RecordEntry(entry("long", model.DirectionLong, 100, 500))
	_ = tr.RecordEntry(entry("short", model.DirectionShort, 100, 500))
	tr.RecordExit("long", 110, time.Now(), model.ExitTakeProfit)
	tr.RecordExit("short", 105, time.Now(), model.ExitStopLoss)

	closed := tr.ClosedTrades()
	approx(t, "long pct", closed[0].PnLPercent, 10, 1e-9)
	approx(t, "long abs", closed[0].PnLAbsolute, 50, 1e-9)
	if closed[0].Status != model.TradeClosed {
		t.Errorf("long status = %s", closed[0].Status)
	}
	approx(t, "short pct", closed[1].PnLPercent, -5, 1e-9)
	approx(t, "short abs", closed[1].PnLAbsolute, -25, 1e-9)
	if closed[1].Status != model.TradeStoppedOut {
		t.Errorf("short status = %s, want stopped_out", closed[1].Status)
	}
	if len(j.trades) != 2 {
		t.Errorf("journal got %d trades, want 2", len(j.trades))
	}

	eq := tr.Equity()
	want := []float64{1000, 1050, 1025}
	for i := range want {
		approx(t, fmt.Sprintf("equity[%d]", i), eq[i], want[i], 1e-9)
	}
	m := tr.CalculateMetrics()
	approx(t, "profitFactor", m.ProfitFactor, 2, 1e-9)
	approx(t, "netProfit", m.NetProfit, 25, 1e-9)
}

func TestTrackerMatchesComputeMetrics(t *testing.T) {
	tr := NewTracker(1000)
	bal := 1000.0
	for i, p := range []float64{5, -2, 1, -3} {
		id := fmt.Sprintf("t%d", i)
		_ = tr.RecordEntry(entry(id, model.DirectionLong, 100, bal))
		tr.RecordExit(id, 100*(1+p/100), time.Now(), model.ExitManual)
		bal *= 1 + p/100
	}
	trades, equity := closedTrades(1000, 5, -2, 1, -3)
	want := ComputeMetrics(trades, equity, 1000)
	got := tr.CalculateMetrics()
	approx(t, "winRate", got.WinRate, want.WinRate, 1e-9)
	approx(t, "profitFactor", got.ProfitFactor, want.ProfitFactor, 1e-9)
	approx(t, "netProfit", got.NetProfit, want.NetProfit, 1e-6)
	approx(t, "maxDrawdown", got.MaxDrawdown, want.MaxDrawdown, 1e-6)
}

func TestTrackerCanOpen(t *testing.T) {
	tr := NewTracker(1000)
	limits := RiskLimits{MaxOpenTrades: 1, MaxDrawdownPct: 10}
	if ok, reason := tr.CanOpen(limits); !ok {
		t.Fatalf("empty tracker blocked: %s", reason)
	}
	_ = tr.RecordEntry(entry("a", model.DirectionLong, 100, 1000))
	if ok, _ := tr.CanOpen(limits); ok {
		t.Error("second open trade allowed")
	}
	tr.RecordExit("a", 85, time.Now(), model.ExitStopLoss)
	if ok, _ := tr.CanOpen(limits); ok {
		t.Error("entry allowed at 15% drawdown")
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(1000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				id := fmt.Sprintf("w%d-%d", i, k)
				_ = tr.RecordEntry(entry(id, model.DirectionLong, 100, 10))
				_ = tr.Summary()
				tr.RecordExit(id, 100, time.Now(), model.ExitManual)
			}
		}(i)
	}
	wg.Wait()
	if got := len(tr.ClosedTrades()); got != 400 {
		t.Errorf("closed = %d, want 400", got)
	}
}
