package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/shared/env"
	"github.com/timebankhq/timebank-go/shared/logging"
)

// ReconnectConfig is the explicit retry policy for the realtime connection.
type ReconnectConfig struct {
	Interval      time.Duration `validate:"min=0"`
	BackoffFactor float64       `validate:"min=0"`
	MaxInterval   time.Duration `validate:"min=0"`
	MaxAttempts   int           `validate:"min=0"`
}

// Policy converts the configuration into a realtime policy.
func (r ReconnectConfig) Policy() realtime.Policy {
	return realtime.Policy{
		Interval:      r.Interval,
		BackoffFactor: r.BackoffFactor,
		MaxInterval:   r.MaxInterval,
		MaxAttempts:   r.MaxAttempts,
	}
}

// Config holds everything the realtime client needs.
type Config struct {
	APIBaseURL string `validate:"required,url"`
	WSBaseURL  string `validate:"required"`
	Token      string

	// Exactly one of these selects the exchange view to attach to.
	ExchangeID string `validate:"required_without=OfferID"`
	OfferID    string `validate:"required_without=ExchangeID"`

	LogLevel    logging.LogLevel
	PrettyLog   bool
	Environment string
	SentryDSN   string
	MetricsAddr string

	Reconnect ReconnectConfig
}

// NewConfig loads configuration from the environment, reading a local .env
// file first when one exists.
func NewConfig() Config {
	_ = godotenv.Load()

	environment := env.GetString("ENVIRONMENT", "development")

	return Config{
		APIBaseURL:  env.GetString("TIMEBANK_API_URL", "http://localhost:8000"),
		WSBaseURL:   env.GetString("TIMEBANK_WS_URL", "ws://localhost:8000"),
		Token:       env.GetString("TIMEBANK_TOKEN", ""),
		ExchangeID:  env.GetString("TIMEBANK_EXCHANGE_ID", ""),
		OfferID:     env.GetString("TIMEBANK_OFFER_ID", ""),
		LogLevel:    logging.LogLevel(env.GetString("LOG_LEVEL", "info")),
		PrettyLog:   env.GetBool("LOG_PRETTY", environment == "development"),
		Environment: environment,
		SentryDSN:   env.GetString("SENTRY_DSN", ""),
		MetricsAddr: env.GetString("METRICS_ADDR", ":9190"),
		Reconnect:   loadReconnectConfig(),
	}
}

func loadReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Interval:      env.GetDuration("WS_RECONNECT_INTERVAL", 3*time.Second),
		BackoffFactor: env.GetFloat("WS_RECONNECT_BACKOFF", 0),
		MaxInterval:   env.GetDuration("WS_RECONNECT_MAX_INTERVAL", 0),
		MaxAttempts:   env.GetInt("WS_RECONNECT_MAX_ATTEMPTS", 0),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
