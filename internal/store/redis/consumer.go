package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
)

// ConsumerConfig names the consumer group used on the candle stream.
type ConsumerConfig struct {
	Group    string // e.g. "signald"
	Consumer string // unique consumer name, e.g. hostname
}

// CandleConsumer reads closed candles from a Redis stream via a consumer group.
type CandleConsumer struct {
	client   *goredis.Client
	group    string
	consumer string
	log      zerolog.Logger
}

// NewCandleConsumer wraps client.
func NewCandleConsumer(client *goredis.Client, cfg ConsumerConfig) *CandleConsumer {
	group := cfg.Group
	if group == "" {
		group = "signald"
	}
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "worker-1"
	}
	return &CandleConsumer{
		client:   client,
		group:    group,
		consumer: consumer,
		log:      log.With().Str("component", "redis-consumer").Str("group", group).Logger(),
	}
}

// EnsureGroup creates the consumer group on stream if it doesn't exist.
// Uses "$" as start ID (only new messages) for fresh groups.
func (c *CandleConsumer) EnsureGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s: %w", stream, err)
	}
	return nil
}

// Consume blocks on XREADGROUP and sends decoded candles to out. Pending
// messages from a previous run are delivered first. Returns when ctx is
// cancelled.
func (c *CandleConsumer) Consume(ctx context.Context, symbol, interval string, out chan<- model.Candle) error {
	stream := CandleStream(symbol, interval)
	if err := c.EnsureGroup(ctx, stream); err != nil {
		return err
	}

	// "0" replays this consumer's pending entries, ">" reads new ones.
	for _, start := range []string{"0", ">"} {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
				Group:    c.group,
				Consumer: c.consumer,
				Streams:  []string{stream, start},
				Count:    100,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
					if start == "0" {
						break
					}
					continue
				}
				c.log.Error().Err(err).Msg("xreadgroup failed")
				time.Sleep(500 * time.Millisecond)
				continue
			}

			n := 0
			for _, st := range results {
				for _, msg := range st.Messages {
					n++
					candle, err := decodeCandle(msg.Values)
					if err != nil {
						c.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping undecodable candle")
						// ACK even on bad message to avoid poison pill
						c.client.XAck(ctx, stream, c.group, msg.ID)
						continue
					}
					select {
					case out <- candle:
					case <-ctx.Done():
						return ctx.Err()
					}
					c.client.XAck(ctx, stream, c.group, msg.ID)
				}
			}
			if start == "0" && n == 0 {
				break
			}
		}
	}
	return nil
}

func decodeCandle(values map[string]interface{}) (model.Candle, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return model.Candle{}, errors.New("missing data field")
	}
	var c model.Candle
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return model.Candle{}, fmt.Errorf("unmarshal candle: %w", err)
	}
	if err := c.Validate(); err != nil {
		return model.Candle{}, err
	}
	return c, nil
}
