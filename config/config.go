// Package config loads the YAML configuration shared by the commands.
//
// Load order: .env (if present), struct defaults, the YAML file, environment
// overrides, validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"trading-signalsv1/internal/backtest"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/portfolio"
	"trading-signalsv1/internal/regime"
	"trading-signalsv1/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Symbol   string `yaml:"symbol" default:"BTCUSDT" validate:"required"`
	Interval string `yaml:"interval" default:"1m" validate:"required"`

	Log      logger.Config   `yaml:"log"`
	Regime   regime.Config   `yaml:"regime"`
	Signal   strategy.Config `yaml:"signal"`
	Backtest backtest.Config `yaml:"backtest"`

	Engine  EngineConfig  `yaml:"engine"`
	Tracker TrackerConfig `yaml:"tracker"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Notify  NotifyConfig  `yaml:"notify"`
	Feed    FeedConfig    `yaml:"feed"`
}

// EngineConfig sizes the live strategy engine.
type EngineConfig struct {
	WindowSize    int `yaml:"windowSize" default:"500" validate:"gte=1"`
	SignalBuffer  int `yaml:"signalBuffer" default:"256" validate:"gte=1"`
	WarmupCandles int `yaml:"warmupCandles" default:"500" validate:"gte=0"`
}

// TrackerConfig configures live paper trading.
type TrackerConfig struct {
	InitialBalance float64              `yaml:"initialBalance" default:"10000" validate:"gt=0"`
	MinConfidence  float64              `yaml:"minConfidence" default:"60" validate:"gte=0,lte=100"`
	Risk           portfolio.RiskLimits `yaml:"risk"`
}

// StorageConfig locates SQLite and Redis.
type StorageConfig struct {
	SQLitePath    string        `yaml:"sqlitePath" default:"data/candles.db" validate:"required"`
	RedisAddr     string        `yaml:"redisAddr" default:"localhost:6379"` // empty disables Redis
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDb" validate:"gte=0"`
	LatestTTL     time.Duration `yaml:"latestTtl" default:"24h"`
	SnapshotEvery int           `yaml:"snapshotEvery" default:"60" validate:"gte=0"` // candles; 0 disables
}

// ServerConfig holds listen addresses. Empty disables a server.
type ServerConfig struct {
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	WSAddr      string `yaml:"wsAddr" default:":8080"`
}

// NotifyConfig configures outbound alerts.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhookUrl" validate:"omitempty,url"`
	RatePerMinute int           `yaml:"ratePerMinute" default:"30" validate:"gte=1"`
	MaxRetries    uint64        `yaml:"maxRetries" default:"3"`
	Timeout       time.Duration `yaml:"timeout" default:"5s"`
	MinConfidence float64       `yaml:"minConfidence" default:"60" validate:"gte=0,lte=100"`
}

// FeedConfig selects where live candles come from.
type FeedConfig struct {
	Source string  `yaml:"source" default:"sqlite" validate:"oneof=sqlite redis"`
	FromTS int64   `yaml:"fromTs"`
	Speed  float64 `yaml:"speed" default:"0" validate:"gte=0"` // replay speed; 0 is as fast as possible
}

var validate = validator.New()

// Default returns a config with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	cfg.inherit()
	return cfg, nil
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.inherit()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config invalid: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config invalid: %w", err)
	}
	return nil
}

// inherit copies the top-level signal and regime policy into the backtest.
func (c *Config) inherit() {
	c.Backtest.Signal = c.Signal
	c.Backtest.Regime = c.Regime
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"SYMBOL":         &c.Symbol,
		"INTERVAL":       &c.Interval,
		"SQLITE_PATH":    &c.Storage.SQLitePath,
		"REDIS_ADDR":     &c.Storage.RedisAddr,
		"REDIS_PASSWORD": &c.Storage.RedisPassword,
		"METRICS_ADDR":   &c.Server.MetricsAddr,
		"WS_ADDR":        &c.Server.WSAddr,
		"LOG_LEVEL":      &c.Log.Level,
		"WEBHOOK_URL":    &c.Notify.WebhookURL,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config env REDIS_DB: %w", err)
		}
		c.Storage.RedisDB = n
	}
	return nil
}
