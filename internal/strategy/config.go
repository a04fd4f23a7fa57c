package strategy

import (
	"time"

	"github.com/creasty/defaults"
)

// Config is the signal policy. RSI thresholds, cooldown and volume threshold
// are taken as given (zero is meaningful); zero lookbacks and ATR parameters
// fall back to their defaults.
type Config struct {
	RSIBuy     float64 `yaml:"rsiBuy" json:"rsiBuy" default:"30" validate:"gte=0,lte=100"`
	RSISell    float64 `yaml:"rsiSell" json:"rsiSell" default:"70" validate:"gte=0,lte=100"`
	CooldownMs int64   `yaml:"cooldownMs" json:"cooldownMs" default:"900000" validate:"gte=0"`

	// VolumeThreshold gates signals on latest volume / trailing mean volume.
	// 0 disables the gate.
	VolumeThreshold float64 `yaml:"volumeThreshold" json:"volumeThreshold" default:"1.2" validate:"gte=0"`
	VolumeLookback  int     `yaml:"volumeLookback" json:"volumeLookback" default:"20" validate:"gte=0"`

	BollingerPeriod int     `yaml:"bollingerPeriod" json:"bollingerPeriod" default:"20" validate:"gte=0"`
	BollingerK      float64 `yaml:"bollingerK" json:"bollingerK" default:"2" validate:"gte=0"`
	FastEMA         int     `yaml:"fastEma" json:"fastEma" default:"12" validate:"gte=0"`
	SlowEMA         int     `yaml:"slowEma" json:"slowEma" default:"26" validate:"gte=0"`

	ATRPeriod       int     `yaml:"atrPeriod" json:"atrPeriod" default:"14" validate:"gte=0"`
	ATRMultiplier   float64 `yaml:"atrMultiplier" json:"atrMultiplier" default:"2.5" validate:"gte=0"`
	RiskRewardRatio float64 `yaml:"riskRewardRatio" json:"riskRewardRatio" default:"2" validate:"gte=0"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	fixInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fixFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	fixInt(&c.VolumeLookback, d.VolumeLookback)
	fixInt(&c.BollingerPeriod, d.BollingerPeriod)
	fixInt(&c.FastEMA, d.FastEMA)
	fixInt(&c.SlowEMA, d.SlowEMA)
	fixInt(&c.ATRPeriod, d.ATRPeriod)
	fixFloat(&c.BollingerK, d.BollingerK)
	fixFloat(&c.ATRMultiplier, d.ATRMultiplier)
	fixFloat(&c.RiskRewardRatio, d.RiskRewardRatio)
	return c
}

// Cooldown is CooldownMs as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// MinCandles is the shortest window on which every decision input is defined.
func (c Config) MinCandles() int {
	c = c.normalized()
	need := c.SlowEMA + 1
	for _, n := range []int{c.FastEMA + 1, c.BollingerPeriod, c.VolumeLookback + 1, c.ATRPeriod + 1, 15} {
		if n > need {
			need = n
		}
	}
	return need
}
