package regime

import "github.com/creasty/defaults"

// Config tunes the regime detector. Zero periods fall back to 14.
type Config struct {
	ADXPeriod      int `yaml:"adxPeriod" json:"adxPeriod" default:"14" validate:"gte=0"`
	RSIPeriod      int `yaml:"rsiPeriod" json:"rsiPeriod" default:"14" validate:"gte=0"`
	EMAPeriod      int `yaml:"emaPeriod" json:"emaPeriod" default:"14" validate:"gte=0"`
	VolumeLookback int `yaml:"volumeLookback" json:"volumeLookback" default:"14" validate:"gte=0"`

	// ADX at or above StrongTrendADX with a DI spread of at least MinDISpread
	// is a strong trend; at or above WeakTrendADX it is a weak trend.
	StrongTrendADX float64 `yaml:"strongTrendAdx" json:"strongTrendAdx" default:"25" validate:"gte=0,lte=100"`
	WeakTrendADX   float64 `yaml:"weakTrendAdx" json:"weakTrendAdx" default:"15" validate:"gte=0,lte=100,ltefield=StrongTrendADX"`
	MinDISpread    float64 `yaml:"minDiSpread" json:"minDiSpread" default:"5" validate:"gte=0,lte=100"`
}

const defaultPeriod = 14

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

func (c Config) normalized() Config {
	for _, p := range []*int{&c.ADXPeriod, &c.RSIPeriod, &c.EMAPeriod, &c.VolumeLookback} {
		if *p <= 0 {
			*p = defaultPeriod
		}
	}
	return c
}

// MinCandles is the shortest window that defines every reading.
func (c Config) MinCandles() int {
	c = c.normalized()
	need := 2 * c.ADXPeriod
	for _, n := range []int{c.RSIPeriod + 1, c.EMAPeriod + 1, c.VolumeLookback + 1} {
		if n > need {
			need = n
		}
	}
	return need
}

// WindowSize is the rolling buffer capacity: twice the minimum so Wilder
// smoothing has history to settle.
func (c Config) WindowSize() int {
	return 2 * c.MinCandles()
}
