// Package resample builds higher-interval candles from a lower-interval
// series. A Builder keeps one forming candle and emits it when a candle
// arrives in a later bucket.
package resample

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-signalsv1/internal/model"
)

// ParseInterval converts an interval label such as "1m", "4h", "1d" or "1w"
// into seconds.
func ParseInterval(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("resample: invalid interval %q", s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("resample: invalid interval %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("resample: unknown interval unit in %q", s)
	}
	return n * int64(unit/time.Second), nil
}

// Builder resamples candles into buckets of a fixed width. Not safe for
// concurrent use.
type Builder struct {
	width int64

	bucket  int64
	forming model.Candle
	started bool

	// StaleTolerance is how far (seconds) behind the forming bucket a candle
	// may arrive and still be merged. 0 drops every out-of-order candle.
	StaleTolerance int64

	// OnStale is called for each dropped out-of-order candle.
	OnStale func(c model.Candle)
}

// New creates a builder for buckets of width seconds.
func New(width int64) *Builder {
	return &Builder{width: width}
}

// Width returns the bucket width in seconds.
func (b *Builder) Width() int64 { return b.width }

// Push merges c into the forming candle. When c opens a new bucket the
// previous candle is returned with closed=true.
func (b *Builder) Push(c model.Candle) (out model.Candle, closed bool) {
	bucket := c.Time - c.Time%b.width

	if b.started && bucket < b.bucket {
		if b.bucket-bucket > b.StaleTolerance {
			if b.OnStale != nil {
				b.OnStale(c)
			}
			return model.Candle{}, false
		}
		b.merge(c)
		return model.Candle{}, false
	}

	if b.started && bucket > b.bucket {
		out, closed = b.forming, true
		b.started = false
	}

	if !b.started {
		b.bucket = bucket
		b.started = true
		b.forming = model.Candle{
			Time:                bucket,
			Open:                c.Open,
			High:                c.High,
			Low:                 c.Low,
			Close:               c.Close,
			Volume:              c.Volume,
			CloseTime:           c.CloseTime,
			QuoteVolume:         c.QuoteVolume,
			TradeCount:          c.TradeCount,
			TakerBuyBaseVolume:  c.TakerBuyBaseVolume,
			TakerBuyQuoteVolume: c.TakerBuyQuoteVolume,
		}
		return out, closed
	}

	b.merge(c)
	return out, closed
}

func (b *Builder) merge(c model.Candle) {
	fc := &b.forming
	if c.High > fc.High {
		fc.High = c.High
	}
	if c.Low < fc.Low {
		fc.Low = c.Low
	}
	if c.Time >= fc.Time {
		fc.Close = c.Close
	}
	if c.CloseTime > fc.CloseTime {
		fc.CloseTime = c.CloseTime
	}
	fc.Volume += c.Volume
	fc.QuoteVolume += c.QuoteVolume
	fc.TradeCount += c.TradeCount
	fc.TakerBuyBaseVolume += c.TakerBuyBaseVolume
	fc.TakerBuyQuoteVolume += c.TakerBuyQuoteVolume
}

// Forming returns the in-progress candle, if any.
func (b *Builder) Forming() (model.Candle, bool) {
	return b.forming, b.started
}

// Flush returns the forming candle and resets the builder.
func (b *Builder) Flush() (model.Candle, bool) {
	if !b.started {
		return model.Candle{}, false
	}
	b.started = false
	return b.forming, true
}

// Series resamples an ascending series. The last bucket is included only
// when complete is false or it ends exactly on a bucket boundary, judged by
// srcWidth, the width of the input candles in seconds.
func Series(candles []model.Candle, width, srcWidth int64, complete bool) []model.Candle {
	b := New(width)
	out := make([]model.Candle, 0, len(candles)*int(srcWidth)/int(width)+1)
	for _, c := range candles {
		if closed, ok := b.Push(c); ok {
			out = append(out, closed)
		}
	}
	if last, ok := b.Flush(); ok {
		end := candles[len(candles)-1].Time + srcWidth
		if !complete || end == last.Time+width {
			out = append(out, last)
		}
	}
	return out
}
