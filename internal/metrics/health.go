package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// ProbeResult is the outcome of the latest run of a probe.
type ProbeResult struct {
	OK        bool      `json:"ok"`
	Critical  bool      `json:"critical"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type probe struct {
	name     string
	critical bool
	fn       Probe
}

// HealthStatus aggregates feed liveness and dependency probes for /healthz.
//
//	unhealthy  feed down and a critical probe failing
//	degraded   feed down, any probe failing, or no candle within StaleAfter
//	healthy    otherwise
type HealthStatus struct {
	symbol    string
	clk       clock.Clock
	startedAt time.Time

	// StaleAfter marks the feed stale when no candle has arrived for this
	// long. 0 disables the check.
	StaleAfter time.Duration

	mu           sync.RWMutex
	feed         bool
	regime       string
	lastCandle   time.Time
	lastCandleAt time.Time
	probes       []probe
	results      map[string]ProbeResult
}

// NewHealthStatus creates a status for symbol. A nil clk uses the wall clock.
func NewHealthStatus(symbol string, clk clock.Clock) *HealthStatus {
	if clk == nil {
		clk = clock.New()
	}
	return &HealthStatus{
		symbol:    symbol,
		clk:       clk,
		startedAt: clk.Now(),
		results:   make(map[string]ProbeResult),
	}
}

// AddProbe registers a dependency check. Critical probes decide between
// degraded and unhealthy. Probes never run report as passing.
func (h *HealthStatus) AddProbe(name string, critical bool, fn Probe) {
	h.mu.Lock()
	h.probes = append(h.probes, probe{name: name, critical: critical, fn: fn})
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.feed = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRegime(r string) {
	h.mu.Lock()
	h.regime = r
	h.mu.Unlock()
}

// ObserveCandle records the open time of the latest processed candle.
func (h *HealthStatus) ObserveCandle(open time.Time) {
	now := h.clk.Now()
	h.mu.Lock()
	h.lastCandle = open
	h.lastCandleAt = now
	h.mu.Unlock()
}

// Check runs every probe once with ctx.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	probes := append([]probe(nil), h.probes...)
	h.mu.RUnlock()

	for _, p := range probes {
		start := h.clk.Now()
		err := p.fn(ctx)
		res := ProbeResult{
			OK:        err == nil,
			Critical:  p.critical,
			LatencyMs: float64(h.clk.Since(start).Microseconds()) / 1000,
			CheckedAt: h.clk.Now(),
		}
		if err != nil {
			res.Error = err.Error()
			log.Warn().Err(err).Str("component", "health").Str("probe", p.name).Msg("probe failed")
		}
		h.mu.Lock()
		h.results[p.name] = res
		h.mu.Unlock()
	}
}

// StartLivenessChecker runs Check now and then every interval until ctx ends.
// Each round gets a 3s deadline.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	round := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		h.Check(probeCtx)
		cancel()
	}
	go func() {
		round()
		ticker := h.clk.Ticker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				round()
			}
		}
	}()
}

// Status is the overall verdict: healthy, degraded or unhealthy.
func (h *HealthStatus) Status() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statusLocked()
}

func (h *HealthStatus) staleLocked() bool {
	return h.StaleAfter > 0 && h.feed && !h.lastCandleAt.IsZero() &&
		h.clk.Since(h.lastCandleAt) > h.StaleAfter
}

func (h *HealthStatus) statusLocked() string {
	criticalDown, anyDown := false, false
	for _, r := range h.results {
		if !r.OK {
			anyDown = true
			criticalDown = criticalDown || r.Critical
		}
	}
	switch {
	case !h.feed && criticalDown:
		return "unhealthy"
	case !h.feed || anyDown || h.staleLocked():
		return "degraded"
	}
	return "healthy"
}

// ServeHTTP handles /healthz. Anything but healthy answers 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	status := h.statusLocked()
	body := struct {
		Status         string                 `json:"status"`
		Uptime         string                 `json:"uptime"`
		Symbol         string                 `json:"symbol"`
		Regime         string                 `json:"regime"`
		FeedConnected  bool                   `json:"feed_connected"`
		Stale          bool                   `json:"stale"`
		LastCandleTime string                 `json:"last_candle_time,omitempty"`
		LastCandleAge  string                 `json:"last_candle_age,omitempty"`
		Checks         map[string]ProbeResult `json:"checks"`
		Probes         []string               `json:"probes"`
	}{
		Status:        status,
		Uptime:        h.clk.Since(h.startedAt).Round(time.Second).String(),
		Symbol:        h.symbol,
		Regime:        h.regime,
		FeedConnected: h.feed,
		Stale:         h.staleLocked(),
		Checks:        make(map[string]ProbeResult, len(h.results)),
	}
	if !h.lastCandleAt.IsZero() {
		body.LastCandleTime = h.lastCandle.Format(time.RFC3339)
		body.LastCandleAge = h.clk.Since(h.lastCandleAt).Round(time.Millisecond).String()
	}
	for name, res := range h.results {
		body.Checks[name] = res
	}
	for _, p := range h.probes {
		body.Probes = append(body.Probes, p.name)
	}
	h.mu.RUnlock()
	sort.Strings(body.Probes)

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Str("component", "health").Msg("encode failed")
	}
}
