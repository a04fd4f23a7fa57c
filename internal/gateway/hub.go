// Package gateway streams signals and regime transitions to WebSocket
// clients. Every broadcast is wrapped in an envelope carrying a global and a
// per-channel sequence number so clients can detect gaps and backfill them
// from the replay buffers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"trading-signalsv1/internal/model"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultReplaySize = 500

// SignalChannel is the channel a symbol's signals are broadcast on.
func SignalChannel(symbol string) string { return "signal:" + symbol }

// RegimeChannel is the channel a symbol's regime transitions are broadcast on.
func RegimeChannel(symbol string) string { return "regime:" + symbol }

// channelSymbol returns the symbol part of a channel name.
func channelSymbol(channel string) string {
	if i := strings.IndexByte(channel, ':'); i >= 0 {
		return channel[i+1:]
	}
	return channel
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// RegimeUpdate is the payload broadcast on regime:{symbol}.
type RegimeUpdate struct {
	Symbol     string             `json:"symbol"`
	Regime     model.MarketRegime `json:"regime"`
	Confidence float64            `json:"confidence"`
	EnteredAt  time.Time          `json:"enteredAt"`
}

// Hub tracks connected clients and fans broadcasts out to them. It
// implements model.SignalPublisher.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replaySize  int

	now func() time.Time
	log zerolog.Logger

	// OnClientCount is called with the client total after every connect
	// and disconnect.
	OnClientCount func(n int)
}

// NewHub creates a hub keeping replaySize envelopes per channel.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replaySize:  replaySize,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

// PublishSignal broadcasts sig on its symbol's signal channel.
func (h *Hub) PublishSignal(_ context.Context, sig model.SignalResult) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("gateway marshal signal: %w", err)
	}
	h.Broadcast(SignalChannel(sig.Symbol), data)
	return nil
}

// PublishRegime broadcasts a regime transition for symbol.
func (h *Hub) PublishRegime(_ context.Context, symbol string, state model.RegimeState) error {
	data, err := json.Marshal(RegimeUpdate{
		Symbol:     symbol,
		Regime:     state.Current,
		Confidence: state.Confidence,
		EnteredAt:  state.EnteredAt,
	})
	if err != nil {
		return fmt.Errorf("gateway marshal regime: %w", err)
	}
	h.Broadcast(RegimeChannel(symbol), data)
	return nil
}

// Broadcast wraps data in an envelope, records it for replay and sends it
// to every client subscribed to the channel. Slow clients drop messages
// rather than block the caller.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.channelSeqs[channel]++
	chSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: chSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replaySize)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+128), channel, data, now, seq, chSeq)
	rb.Push(chSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			h.log.Debug().Str("channel", channel).Msg("client send buffer full, dropping")
		}
	}
}

// appendEnvelope writes {"channel","data","ts","seq","channel_seq"} to buf
// without going through encoding/json. data must already be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, ts time.Time, seq, chSeq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, chSeq, 10)
	return append(buf, '}')
}

// Register adopts an upgraded connection. Latest values newer than since
// (zero means all) are queued before the client starts receiving live
// broadcasts.
func (h *Hub) Register(conn *websocket.Conn, since time.Time) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	for channel, e := range h.latest {
		if !since.IsZero() && !e.TS.After(since) {
			continue
		}
		env, err := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        e.Data,
			"ts":          e.TS.Format(time.RFC3339Nano),
			"channel_seq": e.Seq,
			"initial":     true,
		})
		if err != nil {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", n).Msg("ws client connected")
	h.clientCount(n)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient unregisters c and closes its send queue. It is safe to call
// more than once.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", n).Msg("ws client disconnected")
	h.clientCount(n)
}

func (h *Hub) clientCount(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// Latest returns the most recent payload for every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns the buffered envelopes for channel with channel
// sequence in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// OldestSeq returns the oldest channel sequence still buffered for channel.
func (h *Hub) OldestSeq(channel string) (int64, bool) {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return rb.Oldest()
}

// ChannelSeq returns the last sequence number issued on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
