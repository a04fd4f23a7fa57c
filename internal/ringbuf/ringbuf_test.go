package ringbuf

import (
	"testing"

	"trading-signalsv1/internal/model"
)

func TestWindow_PushAndOrder(t *testing.T) {
	w := New(4)

	for i := int64(1); i <= 3; i++ {
		w.Push(model.Candle{Time: i, Close: float64(i * 10)})
	}

	if w.Len() != 3 {
		t.Fatalf("expected len=3, got %d", w.Len())
	}
	got := w.Candles()
	for i, c := range got {
		if c.Time != int64(i+1) {
			t.Errorf("index %d: expected time=%d, got %d", i, i+1, c.Time)
		}
	}

	last, ok := w.Last()
	if !ok || last.Time != 3 {
		t.Fatalf("expected last time=3, got %d ok=%v", last.Time, ok)
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := New(4)

	for i := int64(1); i <= 10; i++ {
		w.Push(model.Candle{Time: i})
	}

	if w.Len() != 4 {
		t.Fatalf("expected len=4, got %d", w.Len())
	}
	if w.Evicted() != 6 {
		t.Fatalf("expected evicted=6, got %d", w.Evicted())
	}

	got := w.Candles()
	want := []int64{7, 8, 9, 10}
	for i := range want {
		if got[i].Time != want[i] {
			t.Errorf("index %d: expected time=%d, got %d", i, want[i], got[i].Time)
		}
	}
}

func TestWindow_CandlesIsCopy(t *testing.T) {
	w := New(2)
	w.Push(model.Candle{Time: 1, Close: 5})

	got := w.Candles()
	got[0].Close = 99

	if again := w.Candles(); again[0].Close != 5 {
		t.Fatalf("mutating the copy changed the window: close=%.0f", again[0].Close)
	}
}

func TestWindow_Empty(t *testing.T) {
	w := New(8)
	if _, ok := w.Last(); ok {
		t.Fatal("Last on empty window should return false")
	}
	if len(w.Candles()) != 0 {
		t.Fatal("Candles on empty window should be empty")
	}
}

func TestWindow_Reset(t *testing.T) {
	w := New(4)
	w.Push(model.Candle{Time: 100})

	var history []model.Candle
	for i := int64(1); i <= 6; i++ {
		history = append(history, model.Candle{Time: i})
	}
	w.Reset(history)

	got := w.Candles()
	if len(got) != 4 || got[0].Time != 3 || got[3].Time != 6 {
		t.Fatalf("unexpected window after reset: %+v", got)
	}
	if w.Evicted() != 0 {
		t.Fatalf("expected evicted=0 after reset, got %d", w.Evicted())
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {64, 64}, {65, 128},
	}
	for _, tt := range tests {
		if got := nextPow2(tt.in); got != tt.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
