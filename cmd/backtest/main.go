// cmd/backtest runs the signal policy over historical candles stored in
// SQLite and reports trade statistics for one or all presets.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTCUSDT --interval=1m --preset=balanced
//	go run ./cmd/backtest --compare --json
//	go run ./cmd/backtest --interval=1m --resample=15m
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/backtest"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/marketdata/resample"
	"trading-signalsv1/internal/model"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	dbPath := flag.String("db", "", "Path to SQLite database (default from config)")
	symbol := flag.String("symbol", "", "Symbol to backtest (default from config)")
	interval := flag.String("interval", "", "Candle interval (default from config)")
	fromTS := flag.Int64("from", 0, "Unix seconds of the first candle to load (0=all)")
	toTS := flag.Int64("to", 0, "Unix seconds of the last candle to load (0=all)")
	preset := flag.String("preset", "", "Preset: conservative, balanced, aggressive")
	compare := flag.Bool("compare", false, "Run every preset and compare")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	save := flag.Bool("save", false, "Record closed trades in the SQLite journal")
	list := flag.Bool("list", false, "List stored symbol/interval series and exit")
	resampleTo := flag.String("resample", "", "Resample loaded candles to a higher interval before running")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	if _, err := logger.Init("backtest", cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}

	override(&cfg.Storage.SQLitePath, *dbPath)
	override(&cfg.Symbol, *symbol)
	override(&cfg.Interval, *interval)
	override(&cfg.Backtest.Preset, *preset)

	reader, err := sqlitestore.NewReader(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer reader.Close()

	if *list {
		pairs, err := reader.Symbols()
		if err != nil {
			log.Fatal().Err(err).Msg("list series failed")
		}
		for _, p := range pairs {
			fmt.Printf("%s\t%s\n", p[0], p[1])
		}
		return
	}

	candles, err := reader.ReadCandles(cfg.Symbol, cfg.Interval, *fromTS, *toTS)
	if err != nil {
		log.Fatal().Err(err).Msg("read candles failed")
	}
	if *resampleTo != "" {
		candles = resampleCandles(candles, cfg.Interval, *resampleTo)
	}
	if len(candles) == 0 {
		log.Fatal().Str("symbol", cfg.Symbol).Str("interval", cfg.Interval).Msg("no candles in range")
	}
	log.Info().
		Str("symbol", cfg.Symbol).
		Int("candles", len(candles)).
		Time("first", candles[0].Timestamp()).
		Time("last", candles[len(candles)-1].Timestamp()).
		Msg("candles loaded")

	start := time.Now()
	results := make(map[string]model.BacktestResult)
	if *compare {
		results, err = backtest.Compare(cfg.Backtest, candles)
	} else {
		var res model.BacktestResult
		res, err = backtest.Run(cfg.Backtest, candles)
		results[res.Preset] = res
	}
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
	log.Info().Dur("took", time.Since(start)).Int("runs", len(results)).Msg("backtest complete")

	if *save {
		saveTrades(cfg.Storage.SQLitePath, cfg.Symbol, results)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatal().Err(err).Msg("encode results")
		}
		return
	}

	for _, name := range backtest.PresetNames() {
		if res, ok := results[name]; ok {
			printSummary(cfg.Symbol, res)
		}
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func resampleCandles(candles []model.Candle, from, to string) []model.Candle {
	src, err := resample.ParseInterval(from)
	if err != nil {
		log.Fatal().Err(err).Msg("source interval")
	}
	width, err := resample.ParseInterval(to)
	if err != nil {
		log.Fatal().Err(err).Msg("resample interval")
	}
	if width <= src || width%src != 0 {
		log.Fatal().Str("from", from).Str("to", to).Msg("resample target must be a multiple of the source interval")
	}
	out := resample.Series(candles, width, src, true)
	log.Info().Str("interval", to).Int("from", len(candles)).Int("to", len(out)).Msg("candles resampled")
	return out
}

func saveTrades(dbPath, symbol string, results map[string]model.BacktestResult) {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		log.Error().Err(err).Msg("open journal failed")
		return
	}
	defer w.Close()

	saved := 0
	for _, res := range results {
		for _, t := range res.Trades {
			t.Symbol = symbol
			if err := w.RecordTrade(t); err != nil {
				log.Error().Err(err).Str("trade", t.ID).Msg("record trade failed")
				continue
			}
			saved++
		}
	}
	log.Info().Int("trades", saved).Msg("trades journaled")
}

func printSummary(symbol string, res model.BacktestResult) {
	m := res.Metrics
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Printf("║  BACKTEST %-26s ║\n", symbol+" / "+res.Preset)
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles:        %-19d ║\n", res.Candles)
	fmt.Printf("║  Trades:         %-19d ║\n", m.TotalTrades)
	fmt.Printf("║  Win rate:       %-19s ║\n", fmt.Sprintf("%.2f%%", m.WinRate))
	fmt.Printf("║  Profit factor:  %-19s ║\n", formatPF(m.ProfitFactor))
	fmt.Printf("║  Net profit:     %-19.2f ║\n", m.NetProfit)
	fmt.Printf("║  Max drawdown:   %-19s ║\n", fmt.Sprintf("%.2f%%", m.MaxDrawdown))
	fmt.Printf("║  Wins/losses:    %-19s ║\n", fmt.Sprintf("%d / %d", m.Wins, m.Losses))
	fmt.Printf("║  Gross +/-:      %-19s ║\n", fmt.Sprintf("%.2f%% / %.2f%%", m.GrossProfit, m.GrossLoss))
	fmt.Println("╚══════════════════════════════════════╝")
}

func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
