package execution

import (
	"math"
	"testing"
	"time"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/portfolio"
)

const t0 = int64(1700000000)

func f(v float64) *float64 { return &v }

func buy(conf, entry, stop, target float64) model.SignalResult {
	ts := time.Unix(t0, 0).UTC()
	return model.SignalResult{
		ID:         model.SignalID(model.SignalBuy, ts),
		Symbol:     "BTCUSDT",
		Signal:     model.SignalBuy,
		Confidence: conf,
		Timestamp:  ts,
		EntryPrice: f(entry),
		StopLoss:   f(stop),
		TakeProfit: f(target),
	}
}

func candle(ts int64, high, low float64) model.Candle {
	return model.Candle{Time: ts, Open: (high + low) / 2, High: high, Low: low, Close: (high + low) / 2, Volume: 1}
}

func newPaper(minConf float64) (*Paper, *portfolio.Tracker) {
	tr := portfolio.NewTracker(1000)
	p := NewPaper(tr, Config{MinConfidence: minConf, Risk: portfolio.DefaultRiskLimits()})
	seq := 0
	p.newID = func() string {
		seq++
		return "PAPER-" + string(rune('0'+seq))
	}
	return p, tr
}

// ──────────────────────────────────────────────────────────────
// Entries
// ──────────────────────────────────────────────────────────────

func TestOnSignal_Opens(t *testing.T) {
	p, tr := newPaper(60)
	var opened []model.Trade
	p.OnOpen = func(tr model.Trade) { opened = append(opened, tr) }

	trade, ok := p.OnSignal(buy(70, 100, 95, 110))
	if !ok {
		t.Fatal("expected entry")
	}
	if trade.Direction != model.DirectionLong || trade.EntryPrice != 100 || trade.PositionSize != 1000 {
		t.Errorf("trade = %+v", trade)
	}
	if trade.EntrySignalID == "" || trade.Symbol != "BTCUSDT" {
		t.Errorf("signal linkage missing: %+v", trade)
	}
	if len(tr.OpenTrades()) != 1 || len(opened) != 1 {
		t.Fatalf("open=%d callbacks=%d, want 1 and 1", len(tr.OpenTrades()), len(opened))
	}
}

func TestOnSignal_Rejections(t *testing.T) {
	hold := buy(90, 100, 95, 110)
	hold.Signal = model.SignalHold
	noTargets := buy(90, 100, 95, 110)
	noTargets.StopLoss = nil

	tests := []struct {
		name string
		sig  model.SignalResult
	}{
		{"hold", hold},
		{"no targets", noTargets},
		{"below confidence", buy(59.9, 100, 95, 110)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, tr := newPaper(60)
			if _, ok := p.OnSignal(tt.sig); ok {
				t.Fatal("expected rejection")
			}
			if len(tr.OpenTrades()) != 0 {
				t.Fatal("tracker should have no open trades")
			}
		})
	}
}

func TestOnSignal_RiskLimit(t *testing.T) {
	p, tr := newPaper(0)
	if _, ok := p.OnSignal(buy(70, 100, 95, 110)); !ok {
		t.Fatal("first entry refused")
	}
	if _, ok := p.OnSignal(buy(70, 101, 96, 111)); ok {
		t.Fatal("second entry should hit MaxOpenTrades=1")
	}
	if n := len(tr.OpenTrades()); n != 1 {
		t.Fatalf("open trades = %d, want 1", n)
	}
}

// ──────────────────────────────────────────────────────────────
// Exits
// ──────────────────────────────────────────────────────────────

func TestOnCandle_TakeProfit(t *testing.T) {
	p, tr := newPaper(0)
	p.OnSignal(buy(70, 100, 95, 110))

	if got := p.OnCandle(candle(t0, 120, 90)); len(got) != 0 {
		t.Fatal("position closed on its entry candle")
	}
	if got := p.OnCandle(candle(t0+60, 105, 99)); len(got) != 0 {
		t.Fatal("closed without touching a level")
	}

	var closedCB int
	p.OnClose = func(model.Trade) { closedCB++ }
	got := p.OnCandle(candle(t0+120, 111, 99))
	if len(got) != 1 {
		t.Fatalf("closed %d trades, want 1", len(got))
	}
	tr0 := got[0]
	if tr0.ExitReason != model.ExitTakeProfit || tr0.ExitPrice != 110 {
		t.Errorf("exit = %s at %v", tr0.ExitReason, tr0.ExitPrice)
	}
	if math.Abs(tr0.PnLPercent-10) > 1e-9 || math.Abs(tr0.PnLAbsolute-100) > 1e-9 {
		t.Errorf("pnl = %v%% / %v", tr0.PnLPercent, tr0.PnLAbsolute)
	}
	if closedCB != 1 {
		t.Errorf("OnClose called %d times", closedCB)
	}
	if bal := tr.Summary().Balance; math.Abs(bal-1100) > 1e-9 {
		t.Errorf("balance = %v, want 1100", bal)
	}
}

func TestOnCandle_StopWinsForShort(t *testing.T) {
	p, _ := newPaper(0)
	sig := buy(70, 100, 105, 90)
	sig.Signal = model.SignalSell
	if _, ok := p.OnSignal(sig); !ok {
		t.Fatal("short entry refused")
	}

	got := p.OnCandle(candle(t0+60, 106, 89))
	if len(got) != 1 {
		t.Fatalf("closed %d, want 1", len(got))
	}
	if got[0].ExitReason != model.ExitStopLoss || got[0].Status != model.TradeStoppedOut {
		t.Errorf("exit = %s status = %s", got[0].ExitReason, got[0].Status)
	}
	if math.Abs(got[0].PnLPercent+5) > 1e-9 {
		t.Errorf("pnl = %v, want -5", got[0].PnLPercent)
	}
}

func TestPaper_SizesFromBalance(t *testing.T) {
	p, _ := newPaper(0)
	p.OnSignal(buy(70, 100, 95, 110))
	p.OnCandle(candle(t0+60, 111, 99))

	next := buy(70, 200, 190, 220)
	next.Timestamp = time.Unix(t0+120, 0).UTC()
	trade, ok := p.OnSignal(next)
	if !ok {
		t.Fatal("entry after close refused")
	}
	if math.Abs(trade.PositionSize-1100) > 1e-9 {
		t.Errorf("position size = %v, want 1100", trade.PositionSize)
	}
}
