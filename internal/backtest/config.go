package backtest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/creasty/defaults"

	"trading-signalsv1/internal/regime"
	"trading-signalsv1/internal/strategy"
)

var (
	ErrUnknownPreset = errors.New("backtest: unknown preset")
	ErrInvalidRange  = errors.New("backtest: invalid candle range")
)

// Preset is the fixed-percentage trade policy of a backtest. It is
// independent of the generator's ATR targets so runs stay reproducible.
type Preset struct {
	Name            string  `yaml:"name" json:"name"`
	StopLossPct     float64 `yaml:"stopLossPct" json:"stopLossPct"`
	TakeProfitPct   float64 `yaml:"takeProfitPct" json:"takeProfitPct"`
	MinConfidence   float64 `yaml:"minConfidence" json:"minConfidence"`
	BreakevenAfter  int     `yaml:"breakevenAfter" json:"breakevenAfter"`   // candles
	CooldownCandles int     `yaml:"cooldownCandles" json:"cooldownCandles"` // after each exit
}

// Presets are the built-in policies.
var Presets = map[string]Preset{
	"conservative": {Name: "conservative", StopLossPct: 1, TakeProfitPct: 2, MinConfidence: 70, BreakevenAfter: 4, CooldownCandles: 6},
	"balanced":     {Name: "balanced", StopLossPct: 1.5, TakeProfitPct: 3, MinConfidence: 60, BreakevenAfter: 6, CooldownCandles: 3},
	"aggressive":   {Name: "aggressive", StopLossPct: 2, TakeProfitPct: 5, MinConfidence: 50, BreakevenAfter: 8, CooldownCandles: 1},
}

// PresetNames returns the built-in preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns a built-in preset by name.
func LookupPreset(name string) (Preset, error) {
	p, ok := Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Config drives one backtest run. EndIndex 0 means the last candle.
// Candles before StartIndex only warm up the detector.
type Config struct {
	InitialBalance float64         `yaml:"initialBalance" json:"initialBalance" default:"10000" validate:"gt=0"`
	StartIndex     int             `yaml:"startIndex" json:"startIndex" validate:"gte=0"`
	EndIndex       int             `yaml:"endIndex" json:"endIndex" validate:"gte=0"`
	Preset         string          `yaml:"preset" json:"preset" default:"balanced" validate:"oneof=conservative balanced aggressive"`
	Signal         strategy.Config `yaml:"-" json:"signal"`
	Regime         regime.Config   `yaml:"-" json:"regime"`
}

// DefaultConfig returns the balanced preset over the whole series.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
