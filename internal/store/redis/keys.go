package redis

// Key and channel layout. Everything is namespaced by symbol.
//
//	signal:{symbol}                     PUBLISH  SignalResult JSON
//	regime:{symbol}                     PUBLISH  regime change JSON
//	latest:signal:{symbol}              SET      last SignalResult (TTL)
//	latest:regime:{symbol}              SET      current regime (TTL)
//	stream:signals:{symbol}             XADD     signal history (capped)
//	snapshot:regime:{symbol}            SET      detector snapshot (no TTL)
//	stream:candles:{symbol}:{interval}  XADD     closed candles fed to signald
func SignalChannel(symbol string) string   { return "signal:" + symbol }
func RegimeChannel(symbol string) string   { return "regime:" + symbol }
func LatestSignalKey(symbol string) string { return "latest:signal:" + symbol }
func LatestRegimeKey(symbol string) string { return "latest:regime:" + symbol }
func SignalStream(symbol string) string    { return "stream:signals:" + symbol }

func RegimeSnapshotKey(symbol string) string { return "snapshot:regime:" + symbol }

func CandleStream(symbol, interval string) string {
	return "stream:candles:" + symbol + ":" + interval
}
