package bus

import (
	"context"
	"testing"
	"time"

	"trading-signalsv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Candle]("candles", 10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Candle{Time: 60, Open: 100, High: 110, Low: 90, Close: 105}

	for i, out := range []<-chan model.Candle{out1, out2} {
		select {
		case c := <-out:
			if c.Time != 60 || c.Close != 105 {
				t.Errorf("out%d: got %+v", i+1, c)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for candle", i+1)
		}
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New[int]("ints", 1)
	slow := fo.Subscribe()
	fast := fo.Subscribe()

	drops := make(chan int, 10)
	fo.OnDrop = func(idx int) { drops <- idx }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	input <- 1
	<-fast
	input <- 2
	<-fast
	close(input)
	<-done

	select {
	case idx := <-drops:
		if idx != 0 {
			t.Errorf("dropped subscriber = %d, want 0", idx)
		}
	default:
		t.Fatal("expected a drop for the slow subscriber")
	}

	if v, ok := <-slow; !ok || v != 1 {
		t.Errorf("slow consumer got %d,%v, want 1,true", v, ok)
	}
	if _, ok := <-slow; ok {
		t.Error("outputs should be closed after input closes")
	}
}

func TestChannelStats(t *testing.T) {
	fo := New[int]("ints", 4)
	fo.Subscribe()

	input := make(chan int, 2)
	input <- 1
	input <- 2
	close(input)
	fo.Run(context.Background(), input)

	stats := fo.ChannelStats()
	if len(stats) != 1 || stats[0].Len != 2 || stats[0].Cap != 4 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := stats[0].Saturation(); got != 50 {
		t.Errorf("Saturation() = %v, want 50", got)
	}
}
