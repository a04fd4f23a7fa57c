package strategy

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is matched by every *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoDirection is returned when price targets are requested for HOLD.
	ErrNoDirection = errors.New("signal has no direction")
)

// InsufficientDataError reports a call made with fewer candles than the
// operation requires. This is caller misuse, unlike the sentinel values the
// indicator functions return for short windows.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d candles, got %d", e.Op, e.Need, e.Got)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }
