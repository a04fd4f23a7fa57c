// cmd/signald runs the live signal pipeline for one symbol.
//
//	[SQLite replay | Redis stream] → [FanOut] → [Engine: regime + signal]
//	                                     ↓                ↓
//	                              [SQLite store]   [Redis, WS hub, paper executor, alerts]
//
// Usage:
//
//	go run ./cmd/signald --config=config.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/execution"
	"trading-signalsv1/internal/gateway"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/marketdata/bus"
	"trading-signalsv1/internal/marketdata/replay"
	"trading-signalsv1/internal/marketdata/resample"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/notification"
	"trading-signalsv1/internal/portfolio"
	"trading-signalsv1/internal/regime"
	redisstore "trading-signalsv1/internal/store/redis"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
	"trading-signalsv1/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signald: %v\n", err)
		os.Exit(1)
	}
	if _, err := logger.Init("signald", cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "signald: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("symbol", cfg.Symbol).Str("interval", cfg.Interval).Str("feed", cfg.Feed.Source).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.Symbol, nil)

	// ---- SQLite ----
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir failed")
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Storage.SQLitePath})
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite init failed")
	}
	defer sqlWriter.Close()
	reader, err := sqlitestore.NewReader(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite reader init failed")
	}
	defer reader.Close()
	health.AddProbe("sqlite", true, sqlWriter.DB().PingContext)

	// ---- Redis (optional) ----
	var rdb *goredis.Client
	var redisPub *redisstore.Publisher
	if cfg.Storage.RedisAddr != "" {
		rdb, err = redisstore.Connect(redisstore.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			if cfg.Feed.Source == "redis" {
				log.Fatal().Err(err).Msg("redis required for the redis feed")
			}
			log.Warn().Err(err).Msg("redis unavailable, continuing without it")
			rdb = nil
		} else {
			defer rdb.Close()
			health.AddProbe("redis", false, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second, nil)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.BreakerStateChange(from.String(), to.String())
			}
			redisPub = redisstore.NewPublisher(rdb, cb, cfg.Storage.LatestTTL, 10000)
			redisPub.OnPublish = func(took time.Duration) { prom.RedisPublishDur.Observe(took.Seconds()) }
			redisPub.OnFlush = func(n int) { log.Info().Int("messages", n).Msg("redis buffer flushed") }
		}
	}
	if cfg.Feed.Source == "redis" {
		if width, err := resample.ParseInterval(cfg.Interval); err == nil {
			health.StaleAfter = 3 * time.Duration(width) * time.Second
		}
	}
	health.StartLivenessChecker(ctx, 10*time.Second)

	// ---- Paper trading ----
	tracker := portfolio.NewTracker(cfg.Tracker.InitialBalance)
	tracker.SetJournal(sqlWriter)
	paper := execution.NewPaper(tracker, execution.Config{
		MinConfidence: cfg.Tracker.MinConfidence,
		Risk:          cfg.Tracker.Risk,
	})

	// ---- Alerts ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.Notify.WebhookURL != "" {
		wh := notification.NewWebhookNotifier(notification.WebhookConfig{
			URL:           cfg.Notify.WebhookURL,
			RatePerMinute: cfg.Notify.RatePerMinute,
			MaxRetries:    cfg.Notify.MaxRetries,
			Timeout:       cfg.Notify.Timeout,
		})
		wh.OnResult = func(result string) { prom.NotificationsTotal.WithLabelValues(result).Inc() }
		notifiers = append(notifiers, wh)
	}
	alertCh := make(chan notification.Alert, 256)
	alertsDone := make(chan struct{})
	go runAlerts(notifiers, alertCh, alertsDone)
	alert := func(a notification.Alert) {
		select {
		case alertCh <- a:
		default:
			log.Warn().Str("kind", a.Kind).Msg("alert queue full, dropping")
		}
	}

	paper.OnOpen = func(t model.Trade) { alert(notification.TradeAlert(t)) }
	paper.OnClose = func(t model.Trade) {
		prom.TradesClosed.WithLabelValues(t.ExitReason).Inc()
		alert(notification.TradeAlert(t))
	}

	// ---- WebSocket hub ----
	hub := gateway.NewHub(500)
	hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
	var wsSrv *http.Server
	if cfg.Server.WSAddr != "" {
		mux := http.NewServeMux()
		gateway.RegisterRoutes(mux, hub)
		wsSrv = &http.Server{Addr: cfg.Server.WSAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", cfg.Server.WSAddr).Msg("ws gateway listening")
			if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("ws gateway error")
			}
		}()
	}

	publishers := []model.SignalPublisher{hub}
	if redisPub != nil {
		publishers = append(publishers, redisPub)
	}

	// ---- Engine ----
	clk := clock.NewMock()
	det := regime.New(cfg.Regime, clk)
	gen := strategy.NewGenerator(cfg.Signal, clk, det)
	eng := strategy.NewEngine(cfg.Symbol, det, gen, cfg.Engine.WindowSize, cfg.Engine.SignalBuffer)
	eng.CandleClock = clk
	eng.Observer = prom

	var warmEnd int64
	if cfg.Engine.WarmupCandles > 0 {
		warmEnd = warmup(eng, reader, cfg)
	}
	snapshotStores := []model.RegimeSnapshotStore{sqlWriter}
	if redisPub != nil {
		snapshotStores = append(snapshotStores, redisPub)
	}
	resumeAfter := restoreSnapshot(eng, cfg.Symbol, warmEnd, snapshotStores...)
	health.SetRegime(string(det.CurrentRegime()))

	saveSnapshot := func() {
		data, err := det.MarshalSnapshot()
		if err != nil {
			log.Error().Err(err).Msg("snapshot marshal failed")
			return
		}
		for _, s := range snapshotStores {
			if err := s.SaveRegimeSnapshot(cfg.Symbol, data); err != nil {
				log.Error().Err(err).Msg("snapshot save failed")
			}
		}
	}

	prevRegime := det.CurrentRegime()
	eng.OnRegimeChange = func(symbol string, state model.RegimeState) {
		for _, p := range publishers {
			if err := p.PublishRegime(ctx, symbol, state); err != nil {
				log.Error().Err(err).Msg("publish regime failed")
			}
		}
		alert(notification.RegimeAlert(symbol, prevRegime, state))
		prevRegime = state.Current
		health.SetRegime(string(state.Current))
	}

	processed := 0
	eng.OnProcessed = func(c model.Candle, res model.SignalResult) {
		health.ObserveCandle(c.Timestamp())
		paper.OnCandle(c)
		paper.OnSignal(res)
		s := tracker.Summary()
		prom.ObserveTrades(s.OpenTrades, s.Balance, s.Drawdown)

		processed++
		if cfg.Storage.SnapshotEvery > 0 && processed%cfg.Storage.SnapshotEvery == 0 {
			saveSnapshot()
		}
	}

	// ---- Candle pipeline ----
	candleCh := make(chan model.Candle, 5000)
	fanout := bus.New[model.Candle]("candles", 5000)
	fanout.OnDrop = prom.FanoutDrop("candles")
	engineIn := fanout.Subscribe()
	if cfg.Feed.Source == "redis" {
		storeIn := fanout.Subscribe()
		go sqlWriter.Run(ctx, cfg.Symbol, cfg.Interval, storeIn)
	}
	go fanout.Run(ctx, candleCh)
	go reportSaturation(ctx, fanout, prom)
	go eng.Run(ctx, engineIn)

	signalsDone := make(chan struct{})
	go func() {
		defer close(signalsDone)
		for res := range eng.Signals() {
			if !res.Actionable() {
				continue
			}
			sctx := logger.WithTraceID(ctx, logger.GenerateTraceID(res.Symbol, res.Timestamp))
			logger.Ctx(sctx).Info().
				Str("signal", string(res.Signal)).
				Float64("confidence", res.Confidence).
				Str("regime", string(res.Regime)).
				Str("reason", res.Reason).
				Msg("signal")
			for _, p := range publishers {
				if err := p.PublishSignal(sctx, res); err != nil {
					logger.Ctx(sctx).Error().Err(err).Msg("publish signal failed")
				}
			}
			if res.Confidence >= cfg.Notify.MinConfidence {
				alert(notification.SignalAlert(res))
			}
		}
	}()

	// ---- Feed ----
	health.SetFeedConnected(true)
	go func() {
		defer health.SetFeedConnected(false)
		switch cfg.Feed.Source {
		case "redis":
			host, _ := os.Hostname()
			consumer := redisstore.NewCandleConsumer(rdb, redisstore.ConsumerConfig{Group: "signald", Consumer: host})
			if err := consumer.Consume(ctx, cfg.Symbol, cfg.Interval, candleCh); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis feed stopped")
			}
		default:
			from := cfg.Feed.FromTS
			if resumeAfter > 0 && from <= resumeAfter {
				from = resumeAfter + 1
			}
			n, err := replay.New(reader, nil).Run(ctx, cfg.Symbol, cfg.Interval, from, 0, cfg.Feed.Speed, candleCh)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("replay feed stopped")
			}
			log.Info().Int("candles", n).Msg("replay feed exhausted")
		}
	}()

	// ---- HTTP: metrics, health, trades ----
	var metricsSrv *metrics.Server
	if cfg.Server.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.Server.MetricsAddr, health, reg)
		metricsSrv.HandleJSON("/api/summary", func() any { return tracker.Summary() })
		metricsSrv.HandleJSON("/api/trades/open", func() any { return tracker.OpenTrades() })
		metricsSrv.HandleJSON("/api/trades/closed", func() any { return tracker.ClosedTrades() })
		metricsSrv.HandleJSON("/api/trades/journal", func() any {
			trades, err := sqlWriter.Trades(cfg.Symbol, 200)
			if err != nil {
				return map[string]string{"error": err.Error()}
			}
			return trades
		})
		if redisPub != nil {
			metricsSrv.HandleJSON("/api/signals/recent", func() any {
				rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
				defer rcancel()
				sigs, err := redisPub.RecentSignals(rctx, cfg.Symbol, 50)
				if err != nil {
					return map[string]string{"error": err.Error()}
				}
				return sigs
			})
		}
		metricsSrv.Start()
	}

	log.Info().
		Str("ws", cfg.Server.WSAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Bool("redis", redisPub != nil).
		Bool("webhook", cfg.Notify.WebhookURL != "").
		Msg("pipeline ready")

	// ---- Shutdown ----
	<-sigCh
	log.Info().Msg("shutdown signal received, cleaning up...")
	cancel()
	<-signalsDone
	saveSnapshot()
	close(alertCh)
	<-alertsDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	hub.Close()
	if wsSrv != nil {
		wsSrv.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	if redisPub != nil && !redisPub.WaitFlushed(2*time.Second) {
		log.Warn().Int("pending", redisPub.PendingCount()).Msg("redis buffer not flushed")
	}

	m := tracker.CalculateMetrics()
	log.Info().
		Int("trades", m.TotalTrades).
		Float64("win_rate", m.WinRate).
		Float64("net_profit", m.NetProfit).
		Float64("max_drawdown", m.MaxDrawdown).
		Msg("signald stopped")
}

// warmup loads the candles preceding the feed start into the engine and
// returns the time of the last one (0 when none were loaded).
func warmup(eng *strategy.Engine, reader *sqlitestore.Reader, cfg *config.Config) int64 {
	toTS := int64(0)
	if cfg.Feed.Source == "sqlite" {
		if cfg.Feed.FromTS <= 0 {
			return 0
		}
		toTS = cfg.Feed.FromTS - 1
	}
	history, err := reader.ReadLastCandles(cfg.Symbol, cfg.Interval, toTS, cfg.Engine.WarmupCandles)
	if err != nil {
		log.Error().Err(err).Msg("warmup read failed")
		return 0
	}
	if len(history) == 0 {
		return 0
	}
	eng.Warmup(history)
	return history[len(history)-1].Time
}

// restoreSnapshot applies the newest stored detector snapshot unless it is
// older than the warmup data. It returns the time of the last candle the
// engine has seen, from the snapshot or the warmup, so the feed resumes
// after it.
func restoreSnapshot(eng *strategy.Engine, symbol string, warmEnd int64, stores ...model.RegimeSnapshotStore) int64 {
	for _, s := range stores {
		data, err := s.ReadLatestRegimeSnapshot(symbol)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot read failed")
			continue
		}
		if data == nil {
			continue
		}
		var snap regime.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn().Err(err).Msg("snapshot decode failed")
			continue
		}
		if n := len(snap.Window); n == 0 || snap.Window[n-1].Time < warmEnd {
			log.Info().Msg("stale snapshot ignored")
			return warmEnd
		}
		if last := eng.Restore(snap); last > warmEnd {
			return last
		}
		return warmEnd
	}
	return warmEnd
}

func runAlerts(n notification.Notifier, alerts <-chan notification.Alert, done chan<- struct{}) {
	defer close(done)
	for a := range alerts {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := n.Send(ctx, a); err != nil {
			log.Warn().Err(err).Str("kind", a.Kind).Msg("alert failed")
		}
		cancel()
	}
}

func reportSaturation(ctx context.Context, f *bus.FanOut[model.Candle], prom *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, s := range f.ChannelStats() {
				prom.ChannelSaturationPct.WithLabelValues(fmt.Sprintf("candles_%d", i)).Set(s.Saturation())
			}
		}
	}
}
