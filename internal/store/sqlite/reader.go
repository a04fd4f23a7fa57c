package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
)

// Reader provides read-only access to SQLite for backtests, replay and
// snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Info().Str("component", "sqlite-reader").Str("path", dbPath).Msg("opened database")
	return &Reader{db: db}, nil
}

// ReadCandles returns candles with fromTS <= time <= toTS ordered by time.
// toTS <= 0 means no upper bound.
func (r *Reader) ReadCandles(symbol, interval string, fromTS, toTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT time, open, high, low, close, volume,
		       COALESCE(close_time, 0), COALESCE(quote_volume, 0), COALESCE(trade_count, 0),
		       COALESCE(taker_buy_base, 0), COALESCE(taker_buy_quote, 0)
		FROM candles
		WHERE symbol = ? AND interval = ? AND time >= ? AND (? <= 0 OR time <= ?)
		ORDER BY time ASC
	`, symbol, interval, fromTS, toTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	return scanCandles(rows)
}

// ReadLastCandles returns up to n candles with time <= toTS (no bound when
// toTS <= 0), ordered by time ascending.
func (r *Reader) ReadLastCandles(symbol, interval string, toTS int64, n int) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT * FROM (
			SELECT time, open, high, low, close, volume,
			       COALESCE(close_time, 0), COALESCE(quote_volume, 0), COALESCE(trade_count, 0),
			       COALESCE(taker_buy_base, 0), COALESCE(taker_buy_quote, 0)
			FROM candles
			WHERE symbol = ? AND interval = ? AND (? <= 0 OR time <= ?)
			ORDER BY time DESC
			LIMIT ?
		) ORDER BY time ASC
	`, symbol, interval, toTS, toTS, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query last candles: %w", err)
	}
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	defer rows.Close()
	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
			&c.CloseTime, &c.QuoteVolume, &c.TradeCount, &c.TakerBuyBaseVolume, &c.TakerBuyQuoteVolume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Symbols lists the stored symbol/interval pairs.
func (r *Reader) Symbols() ([][2]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol, interval FROM candles ORDER BY symbol, interval`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReadLatestRegimeSnapshot returns nil, nil when symbol has no snapshot.
func (r *Reader) ReadLatestRegimeSnapshot(symbol string) ([]byte, error) {
	return latestSnapshot(r.db, symbol)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
