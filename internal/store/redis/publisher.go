package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
)

const (
	signalStreamMaxLen = 10000
	candleStreamMaxLen = 50000
	defaultLatestTTL   = 24 * time.Hour
	writeTimeout       = 3 * time.Second
)

// Config configures the Redis connection.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
}

// Connect opens a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("component", "redis").Str("addr", cfg.Addr).Msg("connected")
	return client, nil
}

// message is one outbound write: an optional PUBLISH, latest-value SET and
// capped XADD of the same payload.
type message struct {
	Kind      string
	Channel   string
	LatestKey string
	Stream    string
	MaxLen    int64
	Persist   bool // LatestKey without TTL
	Data      []byte
}

// Publisher pushes signals and regime changes to Redis through a circuit
// breaker. While the breaker is open, messages are buffered and flushed
// once it closes again. It satisfies model.SignalPublisher.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
	log    zerolog.Logger

	mu     sync.Mutex
	buffer []message
	maxBuf int

	send func(ctx context.Context, m message) error

	// Optional hooks
	OnPublish func(took time.Duration)
	OnBuffer  func()
	OnFlush   func(count int)
}

// NewPublisher wraps client. maxBufferSize <= 0 defaults to 10000.
func NewPublisher(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration, maxBufferSize int) *Publisher {
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	p := &Publisher{
		client: client,
		cb:     cb,
		ttl:    ttl,
		log:    log.With().Str("component", "redis-publisher").Logger(),
		buffer: make([]message, 0, 256),
		maxBuf: maxBufferSize,
	}
	p.send = p.write

	// Flush on circuit close
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		p.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker transition")
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// PublishSignal publishes a signal result on signal:{symbol}, stores it as the
// latest value and appends it to the symbol's signal stream.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.SignalResult) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis marshal signal: %w", err)
	}
	return p.publish(ctx, message{
		Kind:      "signal",
		Channel:   SignalChannel(sig.Symbol),
		LatestKey: LatestSignalKey(sig.Symbol),
		Stream:    SignalStream(sig.Symbol),
		MaxLen:    signalStreamMaxLen,
		Data:      data,
	})
}

// RegimeUpdate is the payload published on regime:{symbol}.
type RegimeUpdate struct {
	Symbol     string             `json:"symbol"`
	Regime     model.MarketRegime `json:"regime"`
	Confidence float64            `json:"confidence"`
	EnteredAt  time.Time          `json:"enteredAt"`
}

// PublishRegime publishes a regime transition and stores the current regime.
func (p *Publisher) PublishRegime(ctx context.Context, symbol string, state model.RegimeState) error {
	data, err := json.Marshal(RegimeUpdate{
		Symbol:     symbol,
		Regime:     state.Current,
		Confidence: state.Confidence,
		EnteredAt:  state.EnteredAt,
	})
	if err != nil {
		return fmt.Errorf("redis marshal regime: %w", err)
	}
	return p.publish(ctx, message{
		Kind:      "regime",
		Channel:   RegimeChannel(symbol),
		LatestKey: LatestRegimeKey(symbol),
		Data:      data,
	})
}

// PublishCandle appends a closed candle to the candle stream consumed by
// signald's redis feed.
func (p *Publisher) PublishCandle(ctx context.Context, symbol, interval string, c model.Candle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis marshal candle: %w", err)
	}
	return p.publish(ctx, message{
		Kind:   "candle",
		Stream: CandleStream(symbol, interval),
		MaxLen: candleStreamMaxLen,
		Data:   data,
	})
}

// SaveRegimeSnapshot stores a detector snapshot for symbol without expiry.
func (p *Publisher) SaveRegimeSnapshot(symbol string, data []byte) error {
	return p.publish(context.Background(), message{
		Kind:      "snapshot",
		LatestKey: RegimeSnapshotKey(symbol),
		Persist:   true,
		Data:      data,
	})
}

// ReadLatestRegimeSnapshot returns the stored snapshot, or nil if none exists.
func (p *Publisher) ReadLatestRegimeSnapshot(symbol string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.Latest(ctx, RegimeSnapshotKey(symbol))
}

func (p *Publisher) publish(ctx context.Context, m message) error {
	start := time.Now()
	err := p.cb.Execute(func() error { return p.send(ctx, m) })
	if errors.Is(err, ErrCircuitOpen) {
		p.bufferMessage(m)
		return nil // buffered, not lost
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", m.Kind, err)
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
	return nil
}

// write sends one message in a single pipeline round trip.
func (p *Publisher) write(ctx context.Context, m message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	payload := string(m.Data)
	pipe := p.client.Pipeline()
	if m.Channel != "" {
		pipe.Publish(ctx, m.Channel, payload)
	}
	if m.LatestKey != "" {
		ttl := p.ttl
		if m.Persist {
			ttl = 0
		}
		pipe.Set(ctx, m.LatestKey, payload, ttl)
	}
	if m.Stream != "" {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: m.Stream,
			MaxLen: m.MaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload, "kind": m.Kind},
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Latest reads the latest stored value under key. Missing keys return nil, nil.
func (p *Publisher) Latest(ctx context.Context, key string) ([]byte, error) {
	b, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return b, err
}

// RecentSignals returns up to n signals from the symbol's stream, newest first.
func (p *Publisher) RecentSignals(ctx context.Context, symbol string, n int64) ([]model.SignalResult, error) {
	msgs, err := p.client.XRevRangeN(ctx, SignalStream(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange: %w", err)
	}
	out := make([]model.SignalResult, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var sig model.SignalResult
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			p.log.Warn().Err(err).Str("id", msg.ID).Msg("skipping undecodable signal")
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}
