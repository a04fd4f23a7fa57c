package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trading-signalsv1/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	CandlesTotal     prometheus.Counter
	CandlesRejected  prometheus.Counter
	SignalsTotal     *prometheus.CounterVec // labels: signal
	SignalsDropped   prometheus.Counter
	SignalConfidence prometheus.Histogram
	SignalComputeDur prometheus.Histogram

	RegimeChanges    *prometheus.CounterVec // labels: regime
	RegimeCurrent    *prometheus.GaugeVec   // labels: regime; 1 for the active one
	RegimeConfidence prometheus.Gauge

	// Paper trading
	TradesOpen   prometheus.Gauge
	TradesClosed *prometheus.CounterVec // labels: reason
	Equity       prometheus.Gauge
	Drawdown     prometheus.Gauge

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Redis publisher circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisPublishDur          prometheus.Histogram

	NotificationsTotal *prometheus.CounterVec // labels: result
	WSClients          prometheus.Gauge

	mu         sync.Mutex
	lastRegime model.MarketRegime
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_candles_total",
			Help: "Candles accepted by the strategy engine",
		}),
		CandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_candles_rejected_total",
			Help: "Candles rejected as invalid or out of order",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_total",
			Help: "Signal results by type",
		}, []string{"signal"}),
		SignalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_signals_dropped_total",
			Help: "Signal results dropped because the output channel was full",
		}),
		SignalConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_signal_confidence",
			Help:    "Confidence of BUY/SELL signals",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		SignalComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_signal_compute_duration_seconds",
			Help:    "Regime update plus signal generation latency per candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		RegimeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_regime_changes_total",
			Help: "Regime transitions by new regime",
		}, []string{"regime"}),
		RegimeCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_regime_current",
			Help: "1 for the current market regime, 0 otherwise",
		}, []string{"regime"}),
		RegimeConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_regime_confidence",
			Help: "Confidence of the current regime classification",
		}),

		TradesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_trades_open",
			Help: "Open paper trades",
		}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_trades_closed_total",
			Help: "Closed paper trades by exit reason",
		}, []string{"reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_equity",
			Help: "Paper account balance",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_drawdown_pct",
			Help: "Current drawdown from the equity high-water mark",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_fanout_drops_total",
			Help: "Items dropped by a FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_notifications_total",
			Help: "Outbound notifications by result",
		}, []string{"result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.CandlesRejected,
		m.SignalsTotal,
		m.SignalsDropped,
		m.SignalConfidence,
		m.SignalComputeDur,
		m.RegimeChanges,
		m.RegimeCurrent,
		m.RegimeConfidence,
		m.TradesOpen,
		m.TradesClosed,
		m.Equity,
		m.Drawdown,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisPublishDur,
		m.NotificationsTotal,
		m.WSClients,
	)

	return m
}

// ObserveSignal records one generator result.
func (m *Metrics) ObserveSignal(sig model.SignalResult, took time.Duration) {
	m.CandlesTotal.Inc()
	m.SignalsTotal.WithLabelValues(string(sig.Signal)).Inc()
	m.SignalComputeDur.Observe(took.Seconds())
	if sig.Actionable() {
		m.SignalConfidence.Observe(sig.Confidence)
	}
}

// ObserveRegime records the detector state after a candle. RegimeChanges
// only counts observations whose regime differs from the previous one.
func (m *Metrics) ObserveRegime(state model.RegimeState) {
	m.mu.Lock()
	if state.Current != m.lastRegime {
		m.RegimeChanges.WithLabelValues(string(state.Current)).Inc()
		m.lastRegime = state.Current
	}
	m.mu.Unlock()
	for _, r := range model.AllRegimes {
		v := 0.0
		if r == state.Current {
			v = 1
		}
		m.RegimeCurrent.WithLabelValues(string(r)).Set(v)
	}
	m.RegimeConfidence.Set(state.Confidence)
}

func (m *Metrics) CandleRejected() { m.CandlesRejected.Inc() }

func (m *Metrics) SignalDropped() { m.SignalsDropped.Inc() }

// FanoutDrop returns an OnDrop hook that counts drops under name.
func (m *Metrics) FanoutDrop(name string) func(int) {
	return func(idx int) {
		m.FanoutDropsTotal.WithLabelValues(name + "-" + strconv.Itoa(idx)).Inc()
	}
}

// ObserveTrades sets the paper trading gauges.
func (m *Metrics) ObserveTrades(open int, equity, drawdown float64) {
	m.TradesOpen.Set(float64(open))
	m.Equity.Set(equity)
	m.Drawdown.Set(drawdown)
}

// BreakerStateChange records a Redis circuit breaker transition.
func (m *Metrics) BreakerStateChange(from, to string) {
	switch to {
	case "closed":
		m.RedisCircuitBreakerState.Set(0)
	case "open":
		m.RedisCircuitBreakerState.Set(1)
		m.RedisCircuitBreakerTrips.Inc()
	case "half-open":
		m.RedisCircuitBreakerState.Set(2)
	}
}
