package resample

import (
	"testing"

	"trading-signalsv1/internal/model"
)

const base = int64(1700000100) // aligned to 5m

func minute(i int64, open, high, low, close, vol float64) model.Candle {
	return model.Candle{Time: base + i*60, Open: open, High: high, Low: low, Close: close, Volume: vol}
}

// ──────────────────────────────────────────────────────────────
// ParseInterval
// ──────────────────────────────────────────────────────────────

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1m", 60, false},
		{"15m", 900, false},
		{"4h", 14400, false},
		{"1d", 86400, false},
		{"1w", 604800, false},
		{"30s", 30, false},
		{"m", 0, true},
		{"0m", 0, true},
		{"5x", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInterval(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────────────────
// Builder
// ──────────────────────────────────────────────────────────────

func TestBuilderMergesBucket(t *testing.T) {
	b := New(300)
	in := []model.Candle{
		minute(0, 100, 105, 99, 104, 10),
		minute(1, 104, 110, 103, 108, 20),
		minute(2, 108, 109, 95, 97, 5),
		minute(3, 97, 100, 96, 99, 1),
		minute(4, 99, 101, 98, 100, 4),
	}
	for _, c := range in {
		if _, closed := b.Push(c); closed {
			t.Fatalf("closed before bucket end at %d", c.Time)
		}
	}

	out, closed := b.Push(minute(5, 100, 102, 99, 101, 7))
	if !closed {
		t.Fatal("expected the first bucket to close")
	}
	want := model.Candle{Time: base, Open: 100, High: 110, Low: 95, Close: 100, Volume: 40}
	if out != want {
		t.Errorf("closed candle = %+v, want %+v", out, want)
	}

	forming, ok := b.Forming()
	if !ok || forming.Time != base+300 || forming.Open != 100 {
		t.Errorf("forming = %+v ok=%v", forming, ok)
	}
}

func TestBuilderStale(t *testing.T) {
	b := New(60)
	var stale int
	b.OnStale = func(model.Candle) { stale++ }

	b.Push(model.Candle{Time: base + 120, Open: 1, High: 1, Low: 1, Close: 1})
	b.Push(model.Candle{Time: base, Open: 2, High: 9, Low: 2, Close: 2})
	if stale != 1 {
		t.Fatalf("stale = %d, want 1", stale)
	}
	if f, _ := b.Forming(); f.High != 1 {
		t.Errorf("stale candle merged: %+v", f)
	}

	b.StaleTolerance = 120
	b.Push(model.Candle{Time: base, Open: 2, High: 9, Low: 2, Close: 2, Volume: 3})
	f, _ := b.Forming()
	if f.High != 9 || f.Close != 1 || f.Volume != 3 {
		t.Errorf("tolerated candle: %+v, want high 9, close 1, volume 3", f)
	}
}

func TestFlushResets(t *testing.T) {
	b := New(60)
	if _, ok := b.Flush(); ok {
		t.Fatal("empty builder flushed a candle")
	}
	b.Push(minute(0, 1, 2, 0.5, 1.5, 1))
	if _, ok := b.Flush(); !ok {
		t.Fatal("expected a flushed candle")
	}
	if _, ok := b.Forming(); ok {
		t.Error("builder still forming after Flush")
	}
}

// ──────────────────────────────────────────────────────────────
// Series
// ──────────────────────────────────────────────────────────────

func TestSeries(t *testing.T) {
	var in []model.Candle
	for i := int64(0); i < 12; i++ {
		p := float64(100 + i)
		in = append(in, minute(i, p, p+1, p-1, p, 1))
	}

	tests := []struct {
		name     string
		complete bool
		want     int
	}{
		{"partial kept", false, 3},
		{"partial dropped", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Series(in, 300, 60, tt.complete)
			if len(out) != tt.want {
				t.Fatalf("len = %d, want %d", len(out), tt.want)
			}
			if out[1].Open != 105 || out[1].Close != 109 || out[1].Volume != 5 {
				t.Errorf("second bucket = %+v", out[1])
			}
		})
	}

	if out := Series(in[:10], 300, 60, true); len(out) != 2 {
		t.Errorf("complete series of two full buckets = %d candles, want 2", len(out))
	}
}
