package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trading-signalsv1/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────────────────────
// Webhook
// ──────────────────────────────────────────────────────────────

func newTestWebhook(url string, retries uint64) *WebhookNotifier {
	w := NewWebhookNotifier(WebhookConfig{URL: url, RatePerMinute: 600, MaxRetries: retries, Timeout: time.Second})
	w.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return w
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method=%s content-type=%s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, 0)
	var result string
	wh.OnResult = func(r string) { result = r }

	alert := Alert{Level: AlertWarning, Kind: "regime", Symbol: "BTCUSDT", Title: "t", Message: "m"}
	if err := wh.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Kind != "regime" || got.Symbol != "BTCUSDT" || got.Level != AlertWarning {
		t.Errorf("payload = %+v", got)
	}
	if got.Time.IsZero() {
		t.Error("missing ts")
	}
	if result != "sent" {
		t.Errorf("result = %q, want sent", result)
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestWebhook(srv.URL, 3).Send(context.Background(), Alert{Title: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   uint64
		wantCalls int32
	}{
		{"client error is permanent", http.StatusBadRequest, 3, 1},
		{"retries exhausted", http.StatusInternalServerError, 2, 3},
		{"429 is retried", http.StatusTooManyRequests, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			wh := newTestWebhook(srv.URL, tt.retries)
			var result string
			wh.OnResult = func(r string) { result = r }

			err := wh.Send(context.Background(), Alert{Title: "x"})
			var statusErr *HTTPStatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
				t.Fatalf("err = %v, want HTTPStatusError %d", err, tt.status)
			}
			if n := calls.Load(); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
			if result != "failed" {
				t.Errorf("result = %q, want failed", result)
			}
		})
	}
}

func TestWebhook_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wh := NewWebhookNotifier(WebhookConfig{URL: srv.URL, RatePerMinute: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := wh.Send(ctx, Alert{Title: "first"}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := wh.Send(ctx, Alert{Title: "second"}); err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("second Send err = %v, want rate limit error", err)
	}
}

// ──────────────────────────────────────────────────────────────
// Log / Multi
// ──────────────────────────────────────────────────────────────

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier()
	n.log = zerolog.New(&buf)

	n.Send(context.Background(), Alert{Level: AlertWarning, Kind: "regime", Symbol: "ETHUSDT", Title: "T", Message: "M"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["severity"] != "WARNING" || entry["symbol"] != "ETHUSDT" || entry["message"] != "T: M" {
		t.Errorf("entry = %v", entry)
	}
}

type recorder struct {
	got []Alert
	err error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.got = append(r.got, a)
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("down")}

	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("err = %v, want joined error", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(ok.got), len(bad.got))
	}
}

// ──────────────────────────────────────────────────────────────
// Alert builders
// ──────────────────────────────────────────────────────────────

func TestSignalAlert(t *testing.T) {
	entry, stop, target := 100.0, 95.0, 110.0
	a := SignalAlert(model.SignalResult{
		ID: "BUY-1", Symbol: "BTCUSDT", Signal: model.SignalBuy, Confidence: 71.6,
		Reason: "trend", Regime: model.RegimeStrongTrendUp,
		EntryPrice: &entry, StopLoss: &stop, TakeProfit: &target,
	})
	if a.Kind != "signal" || a.Title != "BUY BTCUSDT (72%)" || a.Message != "trend" {
		t.Errorf("alert = %+v", a)
	}
	if a.Fields["stopLoss"] != 95.0 {
		t.Errorf("fields = %v", a.Fields)
	}
}

func TestRegimeAlertLevel(t *testing.T) {
	strong := RegimeAlert("X", model.RegimeRanging, model.RegimeState{Current: model.RegimeStrongTrendDown})
	weak := RegimeAlert("X", model.RegimeStrongTrendDown, model.RegimeState{Current: model.RegimeRanging})
	if strong.Level != AlertWarning || weak.Level != AlertInfo {
		t.Errorf("levels = %s/%s, want WARNING/INFO", strong.Level, weak.Level)
	}
}

func TestTradeAlert(t *testing.T) {
	open := TradeAlert(model.Trade{ID: "T1", Symbol: "X", Direction: model.DirectionLong, Status: model.TradeOpen})
	if open.Kind != "trade_open" {
		t.Errorf("kind = %s, want trade_open", open.Kind)
	}
	loss := TradeAlert(model.Trade{ID: "T1", Symbol: "X", Direction: model.DirectionShort, Status: model.TradeStoppedOut, PnLPercent: -1.5, ExitReason: model.ExitStopLoss})
	if loss.Kind != "trade_close" || loss.Level != AlertWarning || loss.Title != "closed short X -1.50%" {
		t.Errorf("alert = %+v", loss)
	}
}
