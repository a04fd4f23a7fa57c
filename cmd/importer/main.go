// cmd/importer loads OHLCV candles from a CSV file into SQLite, optionally
// also appending them to the Redis candle stream consumed by signald.
//
// Usage:
//
//	go run ./cmd/importer --file=BTCUSDT-1m.csv --symbol=BTCUSDT --interval=1m
//	go run ./cmd/importer --file=klines.csv --redis
//	go run ./cmd/importer --file=BTCUSDT-1m.csv --resample=5m,15m,1h
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/marketdata/csvload"
	"trading-signalsv1/internal/marketdata/resample"
	"trading-signalsv1/internal/model"
	redisstore "trading-signalsv1/internal/store/redis"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	file := flag.String("file", "", "CSV file to import (required)")
	dbPath := flag.String("db", "", "Path to SQLite database (default from config)")
	symbol := flag.String("symbol", "", "Symbol (default from config)")
	interval := flag.String("interval", "", "Candle interval (default from config)")
	toRedis := flag.Bool("redis", false, "Also append candles to the Redis candle stream")
	resampleTo := flag.String("resample", "", "Comma-separated higher intervals to derive and store (e.g. 5m,1h)")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "importer: --file is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		os.Exit(1)
	}
	if _, err := logger.Init("importer", cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Storage.SQLitePath = *dbPath
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *interval != "" {
		cfg.Interval = *interval
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("open csv failed")
	}
	res, err := csvload.Parse(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("parse csv failed")
	}
	log.Info().
		Int("candles", len(res.Candles)).
		Int("skipped", res.Skipped).
		Int("duplicates", res.Duplicates).
		Msg("csv parsed")
	if len(res.Candles) == 0 {
		return
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Storage.SQLitePath})
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer w.Close()

	last, err := w.GetLastTimestamp(cfg.Symbol, cfg.Interval)
	if err != nil {
		log.Fatal().Err(err).Msg("read last timestamp failed")
	}
	if err := w.InsertCandles(cfg.Symbol, cfg.Interval, res.Candles); err != nil {
		log.Fatal().Err(err).Msg("insert candles failed")
	}
	log.Info().
		Str("symbol", cfg.Symbol).
		Str("interval", cfg.Interval).
		Int64("previous_last", last).
		Str("db", cfg.Storage.SQLitePath).
		Msg("candles stored")

	if *resampleTo != "" {
		storeResampled(w, cfg.Symbol, cfg.Interval, *resampleTo, res.Candles)
	}

	if !*toRedis {
		return
	}

	client, err := redisstore.Connect(redisstore.Config{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer client.Close()

	pub := redisstore.NewPublisher(client, redisstore.NewCircuitBreaker(5, 10*time.Second, nil), cfg.Storage.LatestTTL, 0)
	ctx := context.Background()
	sent := 0
	for _, c := range res.Candles {
		if c.Time <= last {
			continue
		}
		if err := pub.PublishCandle(ctx, cfg.Symbol, cfg.Interval, c); err != nil {
			log.Fatal().Err(err).Int64("time", c.Time).Msg("publish candle failed")
		}
		sent++
	}
	if !pub.WaitFlushed(30 * time.Second) {
		log.Warn().Int("pending", pub.PendingCount()).Msg("redis buffer not fully flushed")
	}
	log.Info().Int("candles", sent).Str("stream", redisstore.CandleStream(cfg.Symbol, cfg.Interval)).Msg("candles streamed")
}

// storeResampled derives each target interval from candles and stores the
// complete buckets.
func storeResampled(w *sqlitestore.Writer, symbol, interval, targets string, candles []model.Candle) {
	src, err := resample.ParseInterval(interval)
	if err != nil {
		log.Fatal().Err(err).Msg("source interval")
	}
	for _, label := range strings.Split(targets, ",") {
		label = strings.TrimSpace(label)
		width, err := resample.ParseInterval(label)
		if err != nil {
			log.Fatal().Err(err).Msg("resample interval")
		}
		if width <= src || width%src != 0 {
			log.Fatal().Str("from", interval).Str("to", label).Msg("resample target must be a multiple of the source interval")
		}
		out := resample.Series(candles, width, src, true)
		if err := w.InsertCandles(symbol, label, out); err != nil {
			log.Fatal().Err(err).Str("interval", label).Msg("insert resampled candles failed")
		}
		log.Info().Str("interval", label).Int("candles", len(out)).Msg("resampled candles stored")
	}
}
