// Package bus fans a single channel out to several consumers.
package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FanOut broadcasts items from one input channel to N output channels.
// A full output drops the item for that consumer so a slow consumer never
// blocks the pipeline.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int
	log     zerolog.Logger

	// OnDrop is called with the 0-based index of a subscriber that missed
	// an item. Nil logs the drop instead.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut whose output channels hold bufSize items.
func New[T any](name string, bufSize int) *FanOut[T] {
	return &FanOut[T]{
		bufSize: bufSize,
		log:     log.With().Str("component", "bus").Str("bus", name).Logger(),
	}
}

// Subscribe creates and returns a new output channel. Subscribe before Run.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run copies input to every subscriber until ctx is cancelled or input is
// closed, then closes all outputs.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- item:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						f.log.Warn().Int("subscriber", i).Msg("output channel full, dropping")
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// Saturation returns the fill percentage, 0 for unbuffered channels.
func (s ChannelStat) Saturation() float64 {
	if s.Cap == 0 {
		return 0
	}
	return float64(s.Len) / float64(s.Cap) * 100
}

// ChannelStats returns the fill level of each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
