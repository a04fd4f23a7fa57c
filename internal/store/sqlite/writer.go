package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-signalsv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
// It stores candles, closed trades and regime detector snapshots.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := log.With().Str("component", "sqlite").Logger()
	l.Info().Str("path", cfg.DBPath).Msg("opened database")
	return &Writer{db: db, log: l}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol          TEXT    NOT NULL,
			interval        TEXT    NOT NULL,
			time            INTEGER NOT NULL,
			open            REAL    NOT NULL,
			high            REAL    NOT NULL,
			low             REAL    NOT NULL,
			close           REAL    NOT NULL,
			volume          REAL    NOT NULL,
			close_time      INTEGER,
			quote_volume    REAL,
			trade_count     INTEGER,
			taker_buy_base  REAL,
			taker_buy_quote REAL,
			PRIMARY KEY (symbol, interval, time)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id              TEXT PRIMARY KEY,
			entry_signal_id TEXT,
			symbol          TEXT,
			direction       TEXT    NOT NULL,
			entry_price     REAL    NOT NULL,
			entry_time      INTEGER NOT NULL,
			position_size   REAL,
			stop_loss       REAL,
			take_profit     REAL,
			exit_price      REAL,
			exit_time       INTEGER,
			exit_reason     TEXT,
			status          TEXT    NOT NULL,
			pnl_percent     REAL,
			pnl_absolute    REAL
		);

		CREATE TABLE IF NOT EXISTS regime_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, symbol, interval string, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertCandles(symbol, interval, batch); err != nil {
			w.log.Error().Err(err).Msg("batch insert failed")
		} else {
			w.log.Debug().Int("candles", len(batch)).Dur("took", time.Since(start)).Msg("committed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertCandles upserts candles in a single transaction.
func (w *Writer) InsertCandles(symbol, interval string, candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles
			(symbol, interval, time, open, high, low, close, volume,
			 close_time, quote_volume, trade_count, taker_buy_base, taker_buy_quote)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(symbol, interval, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume,
			c.CloseTime, c.QuoteVolume, c.TradeCount, c.TakerBuyBaseVolume, c.TakerBuyQuoteVolume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle %d: %w", c.Time, err)
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored candle time for symbol/interval.
// Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol, interval string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(time) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// RecordTrade upserts a trade. It satisfies model.TradeJournal.
func (w *Writer) RecordTrade(t model.Trade) error {
	_, err := w.db.Exec(`
		INSERT OR REPLACE INTO trades
			(id, entry_signal_id, symbol, direction, entry_price, entry_time, position_size,
			 stop_loss, take_profit, exit_price, exit_time, exit_reason, status, pnl_percent, pnl_absolute)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.EntrySignalID, t.Symbol, string(t.Direction), t.EntryPrice, t.EntryTime.UnixMilli(), t.PositionSize,
		t.StopLoss, t.TakeProfit, t.ExitPrice, unixOrNull(t.ExitTime), t.ExitReason, string(t.Status), t.PnLPercent, t.PnLAbsolute)
	if err != nil {
		return fmt.Errorf("sqlite record trade %s: %w", t.ID, err)
	}
	return nil
}

// Trades returns the most recent trades for symbol (all symbols when empty),
// oldest first. limit <= 0 returns everything.
func (w *Writer) Trades(symbol string, limit int) ([]model.Trade, error) {
	q := `SELECT id, entry_signal_id, symbol, direction, entry_price, entry_time, position_size,
			stop_loss, take_profit, exit_price, exit_time, exit_reason, status, pnl_percent, pnl_absolute
		FROM trades WHERE (? = '' OR symbol = ?) ORDER BY entry_time DESC, id DESC`
	args := []any{symbol, symbol}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := w.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t        model.Trade
			dir, st  string
			entryMs  int64
			exitMs   sql.NullInt64
			signalID sql.NullString
			sym      sql.NullString
			exitWhy  sql.NullString
		)
		if err := rows.Scan(&t.ID, &signalID, &sym, &dir, &t.EntryPrice, &entryMs, &t.PositionSize,
			&t.StopLoss, &t.TakeProfit, &t.ExitPrice, &exitMs, &exitWhy, &st, &t.PnLPercent, &t.PnLAbsolute); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.EntrySignalID = signalID.String
		t.Symbol = sym.String
		t.ExitReason = exitWhy.String
		t.Direction = model.Direction(dir)
		t.Status = model.TradeStatus(st)
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		if exitMs.Valid {
			t.ExitTime = time.UnixMilli(exitMs.Int64).UTC()
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveRegimeSnapshot stores a detector snapshot and keeps the latest few per symbol.
func (w *Writer) SaveRegimeSnapshot(symbol string, data []byte) error {
	_, err := w.db.Exec(`INSERT INTO regime_snapshots (symbol, data, created_at) VALUES (?, ?, ?)`,
		symbol, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`
		DELETE FROM regime_snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM regime_snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?
		)`, symbol, symbol, keepSnapshots)
	if err != nil {
		w.log.Warn().Err(err).Msg("prune snapshots failed")
	}
	return nil
}

// ReadLatestRegimeSnapshot returns nil, nil when symbol has no snapshot.
func (w *Writer) ReadLatestRegimeSnapshot(symbol string) ([]byte, error) {
	return latestSnapshot(w.db, symbol)
}

func latestSnapshot(db *sql.DB, symbol string) ([]byte, error) {
	var data string
	err := db.QueryRow(`
		SELECT data FROM regime_snapshots
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
