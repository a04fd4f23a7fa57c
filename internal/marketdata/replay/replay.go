// Package replay re-emits stored candles at a configurable speed so the
// live pipeline can be driven from history.
package replay

import (
	"context"
	"fmt"
	"time"

	"trading-signalsv1/internal/model"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxGap caps the wait between two candles.
const maxGap = 5 * time.Second

// Replayer reads candles from a model.CandleReader and replays them.
type Replayer struct {
	reader model.CandleReader
	clk    clock.Clock
	log    zerolog.Logger
}

// New creates a Replayer. A nil clk uses the wall clock.
func New(reader model.CandleReader, clk clock.Clock) *Replayer {
	if clk == nil {
		clk = clock.New()
	}
	return &Replayer{
		reader: reader,
		clk:    clk,
		log:    log.With().Str("component", "replay").Logger(),
	}
}

// Run emits symbol/interval candles with fromTS <= time <= toTS into out
// and returns how many were sent. speed scales the original spacing:
// 1 is real time, 10 is ten times faster, 0 is as fast as possible.
func (r *Replayer) Run(ctx context.Context, symbol, interval string, fromTS, toTS int64, speed float64, out chan<- model.Candle) (int, error) {
	candles, err := r.reader.ReadCandles(symbol, interval, fromTS, toTS)
	if err != nil {
		return 0, fmt.Errorf("replay read: %w", err)
	}
	if len(candles) == 0 {
		r.log.Warn().Str("symbol", symbol).Str("interval", interval).Msg("no candles to replay")
		return 0, nil
	}
	r.log.Info().Int("candles", len(candles)).Float64("speed", speed).Msg("replay started")

	emitted := 0
	var prev int64
	for _, c := range candles {
		if speed > 0 && prev != 0 && c.Time > prev {
			gap := time.Duration(float64(time.Duration(c.Time-prev)*time.Second) / speed)
			if gap > maxGap {
				gap = maxGap
			}
			select {
			case <-ctx.Done():
				return emitted, ctx.Err()
			case <-r.clk.After(gap):
			}
		}
		prev = c.Time

		select {
		case <-ctx.Done():
			r.log.Info().Int("emitted", emitted).Msg("replay cancelled")
			return emitted, ctx.Err()
		case out <- c:
			emitted++
		}
	}

	r.log.Info().Int("emitted", emitted).Msg("replay completed")
	return emitted, nil
}
