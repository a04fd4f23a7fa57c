package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trading-signalsv1/internal/model"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
	Type       string          `json:"type"`
	Symbols    []string        `json:"symbols"`
	Ping       int64           `json:"ping"`
}

// ──────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(16)
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readUntil reads frames, splitting coalesced messages, until match
// returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(envelope) bool) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env envelope
			if err := json.Unmarshal(line, &env); err != nil {
				t.Fatalf("invalid JSON %q: %v", line, err)
			}
			if match(env) {
				return env
			}
		}
	}
}

func signal(symbol string, ts int64) model.SignalResult {
	at := time.Unix(ts, 0).UTC()
	return model.SignalResult{
		ID:         model.SignalID(model.SignalBuy, at),
		Symbol:     symbol,
		Signal:     model.SignalBuy,
		Confidence: 72,
		Reason:     "test",
		Regime:     model.RegimeStrongTrendUp,
		Timestamp:  at,
	}
}

// ──────────────────────────────────────────────────────────────
// Envelope
// ──────────────────────────────────────────────────────────────

func TestAppendEnvelopeFormat(t *testing.T) {
	data := []byte(`{"signal":"BUY","confidence":70}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := appendEnvelope(nil, "signal:BTCUSDT", data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != "signal:BTCUSDT" || env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("envelope = %+v", env)
	}
	if !bytes.Equal(env.Data, data) {
		t.Errorf("data = %s, want %s", env.Data, data)
	}
	if env.TS != "2026-02-25T10:00:01Z" {
		t.Errorf("ts = %s", env.TS)
	}
}

func TestBroadcastSequences(t *testing.T) {
	hub := NewHub(4)
	for i := 0; i < 3; i++ {
		hub.Broadcast("signal:A", []byte(`{}`))
	}
	hub.Broadcast("signal:B", []byte(`{}`))

	if got := hub.ChannelSeq("signal:A"); got != 3 {
		t.Errorf("ChannelSeq(A) = %d, want 3", got)
	}
	if got := hub.ChannelSeq("signal:B"); got != 1 {
		t.Errorf("ChannelSeq(B) = %d, want 1", got)
	}

	envs := hub.ReplayRange("signal:A", 2, 3)
	if len(envs) != 2 {
		t.Fatalf("ReplayRange = %d envelopes, want 2", len(envs))
	}
	var last envelope
	json.Unmarshal(envs[1], &last)
	if last.ChannelSeq != 3 {
		t.Errorf("last channel_seq = %d, want 3", last.ChannelSeq)
	}

	var b envelope
	json.Unmarshal(hub.ReplayRange("signal:B", 1, 1)[0], &b)
	if b.Seq != 4 {
		t.Errorf("global seq for B = %d, want 4", b.Seq)
	}
}

func TestPublishRegimePayload(t *testing.T) {
	hub := NewHub(4)
	entered := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := hub.PublishRegime(context.Background(), "ETHUSDT", model.RegimeState{
		Current: model.RegimeRanging, EnteredAt: entered, Confidence: 55,
	})
	if err != nil {
		t.Fatalf("PublishRegime: %v", err)
	}
	var upd RegimeUpdate
	if err := json.Unmarshal(hub.Latest()[RegimeChannel("ETHUSDT")], &upd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if upd.Symbol != "ETHUSDT" || upd.Regime != model.RegimeRanging || !upd.EnteredAt.Equal(entered) {
		t.Errorf("regime update = %+v", upd)
	}
}

// ──────────────────────────────────────────────────────────────
// WebSocket
// ──────────────────────────────────────────────────────────────

func TestWSReceivesSignal(t *testing.T) {
	hub, srv := newTestServer(t)
	var count atomic.Int64
	hub.OnClientCount = func(n int) { count.Store(int64(n)) }

	conn := dial(t, srv, "")
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	if err := hub.PublishSignal(context.Background(), signal("BTCUSDT", 1700000000)); err != nil {
		t.Fatalf("PublishSignal: %v", err)
	}
	env := readUntil(t, conn, func(e envelope) bool { return e.Channel != "" })
	if env.Channel != "signal:BTCUSDT" || env.ChannelSeq != 1 {
		t.Fatalf("envelope = %+v", env)
	}
	var sig model.SignalResult
	if err := json.Unmarshal(env.Data, &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.Signal != model.SignalBuy || sig.Confidence != 72 {
		t.Errorf("signal = %+v", sig)
	}

	conn.Close()
	waitFor(t, "client removal", func() bool { return hub.ClientCount() == 0 })
	if count.Load() != 0 {
		t.Errorf("OnClientCount last = %d, want 0", count.Load())
	}
}

func TestWSSymbolSubscription(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv, "")
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	if err := conn.WriteJSON(map[string]any{"type": "SUBSCRIBE", "symbols": []string{"ETHUSDT"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readUntil(t, conn, func(e envelope) bool { return e.Type == "subscribed" })
	if len(ack.Symbols) != 1 || ack.Symbols[0] != "ETHUSDT" {
		t.Fatalf("ack symbols = %v", ack.Symbols)
	}

	hub.PublishSignal(context.Background(), signal("BTCUSDT", 1))
	hub.PublishSignal(context.Background(), signal("ETHUSDT", 2))

	env := readUntil(t, conn, func(e envelope) bool { return e.Channel != "" })
	if env.Channel != "signal:ETHUSDT" {
		t.Fatalf("first delivered channel = %s, want signal:ETHUSDT", env.Channel)
	}
}

func TestWSPingPong(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv, "")
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	conn.WriteJSON(map[string]any{"ping": 123})
	pong := readUntil(t, conn, func(e envelope) bool { return e.Type == "pong" })
	if pong.Ping != 123 {
		t.Errorf("pong.ping = %d, want 123", pong.Ping)
	}
}

func TestWSInitialState(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.PublishSignal(context.Background(), signal("BTCUSDT", 1))

	conn := dial(t, srv, "")
	env := readUntil(t, conn, func(e envelope) bool { return e.Channel != "" })
	if !env.Initial || env.Channel != "signal:BTCUSDT" || env.ChannelSeq != 1 {
		t.Fatalf("initial envelope = %+v", env)
	}
}

func TestWSInitialStateSkipsOlder(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	hub.PublishSignal(context.Background(), signal("BTCUSDT", 1))
	hub.now = func() time.Time { return time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC) }
	hub.PublishSignal(context.Background(), signal("ETHUSDT", 2))

	conn := dial(t, srv, "?last_ts=2026-01-01T00:01:00Z")
	env := readUntil(t, conn, func(e envelope) bool { return e.Channel != "" })
	if env.Channel != "signal:ETHUSDT" {
		t.Fatalf("initial channel = %s, want signal:ETHUSDT", env.Channel)
	}
}

// ──────────────────────────────────────────────────────────────
// REST
// ──────────────────────────────────────────────────────────────

func TestMissedEndpoint(t *testing.T) {
	hub, srv := newTestServer(t)
	for i := int64(1); i <= 3; i++ {
		hub.PublishSignal(context.Background(), signal("BTCUSDT", i))
	}

	resp, err := http.Get(srv.URL + "/api/missed?channel=signal:BTCUSDT&from=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		To       int64             `json:"to"`
		Oldest   int64             `json:"oldest"`
		Gap      bool              `json:"gap"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.To != 3 || len(body.Messages) != 2 {
		t.Fatalf("to=%d messages=%d, want 3 and 2", body.To, len(body.Messages))
	}
	if body.Oldest != 1 || body.Gap {
		t.Errorf("oldest=%d gap=%v, want 1 and false", body.Oldest, body.Gap)
	}
}

func TestMissedEndpointReportsGap(t *testing.T) {
	hub, srv := newTestServer(t)
	for i := int64(1); i <= 20; i++ {
		hub.PublishSignal(context.Background(), signal("BTCUSDT", i))
	}

	resp, err := http.Get(srv.URL + "/api/missed?channel=signal:BTCUSDT&from=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Oldest   int64             `json:"oldest"`
		Gap      bool              `json:"gap"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Gap || body.Oldest != 5 || len(body.Messages) != 16 {
		t.Errorf("oldest=%d gap=%v messages=%d, want 5, true, 16", body.Oldest, body.Gap, len(body.Messages))
	}
}

func TestMissedEndpointBadRequest(t *testing.T) {
	_, srv := newTestServer(t)
	for _, q := range []string{"", "?channel=signal:X", "?channel=signal:X&from=1&to=z"} {
		resp, err := http.Get(srv.URL + "/api/missed" + q)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("query %q: status %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestLatestEndpoint(t *testing.T) {
	hub, srv := newTestServer(t)
	hub.PublishSignal(context.Background(), signal("BTCUSDT", 1))

	resp, err := http.Get(srv.URL + "/api/latest")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var latest map[string]model.SignalResult
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest["signal:BTCUSDT"].Signal != model.SignalBuy {
		t.Fatalf("latest = %+v", latest)
	}
}

var _ model.SignalPublisher = (*Hub)(nil)
