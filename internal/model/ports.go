package model

import "context"

// ── Port Interfaces ──
// These decouple the engine from the concrete adapters (SQLite, Redis,
// WebSocket). Each adapter satisfies one or more of them.

// CandleReader reads stored candles for backtests and replay.
type CandleReader interface {
	// ReadCandles returns candles for symbol/interval with fromTS <= time <= toTS,
	// ordered by time ascending. toTS <= 0 means no upper bound.
	ReadCandles(symbol, interval string, fromTS, toTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// TradeJournal persists closed trades.
type TradeJournal interface {
	RecordTrade(trade Trade) error
}

// SignalPublisher pushes engine output to an external transport.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig SignalResult) error
	PublishRegime(ctx context.Context, symbol string, state RegimeState) error
}

// RegimeSnapshotStore saves and loads detector snapshots as raw JSON.
// Using []byte avoids a model→regime import cycle.
type RegimeSnapshotStore interface {
	// SaveRegimeSnapshot persists a JSON-encoded detector snapshot for symbol.
	SaveRegimeSnapshot(symbol string, data []byte) error

	// ReadLatestRegimeSnapshot returns nil, nil if no snapshot exists.
	ReadLatestRegimeSnapshot(symbol string) ([]byte, error)
}
