// Package csvload parses OHLCV candles from CSV exports.
//
// Two layouts are accepted, with or without a header row:
//
//	time,open,high,low,close,volume
//	Binance klines: openTime,open,high,low,close,volume,closeTime,
//	    quoteVolume,trades,takerBuyBase,takerBuyQuote,ignore
//
// Times may be unix seconds, unix milliseconds or RFC3339.
package csvload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"trading-signalsv1/internal/model"
)

// msThreshold separates unix seconds from unix milliseconds.
const msThreshold = 1_000_000_000_000

// Result is the outcome of a Parse.
type Result struct {
	Candles    []model.Candle
	Skipped    int // invalid rows
	Duplicates int // rows sharing a time with an earlier row
}

// Parse reads every row from r. Invalid rows are counted and skipped; the
// returned candles are sorted by time with duplicates removed (first wins).
func Parse(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var res Result
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("csvload: line %d: %w", line+1, err)
		}
		line++
		if line == 1 && isHeader(rec) {
			continue
		}
		c, err := parseRecord(rec)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Candles = append(res.Candles, c)
	}

	sort.SliceStable(res.Candles, func(i, j int) bool { return res.Candles[i].Time < res.Candles[j].Time })
	out := res.Candles[:0]
	for i, c := range res.Candles {
		if i > 0 && c.Time == res.Candles[i-1].Time {
			res.Duplicates++
			continue
		}
		out = append(out, c)
	}
	res.Candles = out
	return res, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := parseTime(rec[0])
	return err != nil
}

func parseRecord(rec []string) (model.Candle, error) {
	if len(rec) < 6 {
		return model.Candle{}, fmt.Errorf("csvload: %d fields, want at least 6", len(rec))
	}
	ts, err := parseTime(rec[0])
	if err != nil {
		return model.Candle{}, err
	}
	var f [5]float64
	for i := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("csvload: field %d: %w", i+1, err)
		}
		f[i] = v
	}
	c := model.Candle{Time: ts, Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4]}

	if len(rec) >= 11 {
		if ct, err := parseTime(rec[6]); err == nil {
			c.CloseTime = ct
		}
		c.QuoteVolume, _ = strconv.ParseFloat(rec[7], 64)
		c.TradeCount, _ = strconv.ParseInt(rec[8], 10, 64)
		c.TakerBuyBaseVolume, _ = strconv.ParseFloat(rec[9], 64)
		c.TakerBuyQuoteVolume, _ = strconv.ParseFloat(rec[10], 64)
	}
	return c, c.Validate()
}

// parseTime returns unix seconds.
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= msThreshold {
			return n / 1000, nil
		}
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("csvload: bad time %q", s)
	}
	return t.Unix(), nil
}
