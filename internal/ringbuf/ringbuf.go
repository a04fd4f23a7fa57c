// Package ringbuf provides a fixed-capacity rolling window of candles.
// Pushing into a full window overwrites the oldest candle, so memory stays
// bounded no matter how long a stream runs. A Window has a single owner and
// is not safe for concurrent use.
package ringbuf

import "trading-signalsv1/internal/model"

// Window is a bounded candle history.
// Capacity is rounded up to a power of two for fast bitwise modulo.
type Window struct {
	buf  []model.Candle
	mask uint64
	head uint64 // total pushes

	// evicted counts candles overwritten after the window filled.
	evicted uint64
}

// New creates a window holding at least capacity candles.
// Minimum capacity is 2.
func New(capacity int) *Window {
	size := nextPow2(capacity)
	if size < 2 {
		size = 2
	}
	return &Window{
		buf:  make([]model.Candle, size),
		mask: uint64(size - 1),
	}
}

// Push appends a candle, evicting the oldest one when the window is full.
func (w *Window) Push(c model.Candle) {
	if w.head >= uint64(len(w.buf)) {
		w.evicted++
	}
	w.buf[w.head&w.mask] = c
	w.head++
}

// Len returns the number of candles currently held.
func (w *Window) Len() int {
	if w.head < uint64(len(w.buf)) {
		return int(w.head)
	}
	return len(w.buf)
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Evicted returns how many candles have been overwritten.
func (w *Window) Evicted() uint64 {
	return w.evicted
}

// Last returns the newest candle, or false when empty.
func (w *Window) Last() (model.Candle, bool) {
	if w.head == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.head-1)&w.mask], true
}

// Candles returns a copy of the held candles, oldest first.
func (w *Window) Candles() []model.Candle {
	n := w.Len()
	out := make([]model.Candle, n)
	start := w.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = w.buf[(start+uint64(i))&w.mask]
	}
	return out
}

// Reset empties the window and reloads it from candles (oldest first).
// Only the newest Cap() candles are kept.
func (w *Window) Reset(candles []model.Candle) {
	w.head = 0
	w.evicted = 0
	if len(candles) > len(w.buf) {
		candles = candles[len(candles)-len(w.buf):]
	}
	for _, c := range candles {
		w.Push(c)
	}
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
