package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCandle is wrapped by Validate failures.
var ErrInvalidCandle = errors.New("invalid candle")

// Candle is a fixed-interval OHLCV aggregate. Time is the bucket open in unix
// seconds; callers normalize exchange millisecond timestamps before handing
// candles to the engine.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	// Optional exchange metadata.
	CloseTime           int64   `json:"closeTime,omitempty"`
	QuoteVolume         float64 `json:"quoteVolume,omitempty"`
	TradeCount          int64   `json:"tradeCount,omitempty"`
	TakerBuyBaseVolume  float64 `json:"takerBuyBaseVolume,omitempty"`
	TakerBuyQuoteVolume float64 `json:"takerBuyQuoteVolume,omitempty"`
}

// Timestamp returns the candle open time in UTC.
func (c Candle) Timestamp() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// TypicalPrice is (high + low + close) / 3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Validate checks the OHLCV invariants.
func (c Candle) Validate() error {
	switch {
	case c.High < c.Open || c.High < c.Close:
		return fmt.Errorf("%w: high %.8g below open/close at %d", ErrInvalidCandle, c.High, c.Time)
	case c.Low > c.Open || c.Low > c.Close:
		return fmt.Errorf("%w: low %.8g above open/close at %d", ErrInvalidCandle, c.Low, c.Time)
	case c.Volume < 0:
		return fmt.Errorf("%w: negative volume at %d", ErrInvalidCandle, c.Time)
	}
	return nil
}

// ValidateSeries checks every candle and that times strictly ascend.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Time <= candles[i-1].Time {
			return fmt.Errorf("%w: time %d not after %d", ErrInvalidCandle, c.Time, candles[i-1].Time)
		}
	}
	return nil
}
