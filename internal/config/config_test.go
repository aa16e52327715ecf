package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		APIBaseURL: "http://localhost:8000",
		WSBaseURL:  "ws://localhost:8000",
		ExchangeID: "42",
		Reconnect:  ReconnectConfig{Interval: 3 * time.Second},
	}
}

func TestValidateAcceptsExchangeOrOffer(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.ExchangeID = ""
	cfg.OfferID = "offer-9"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresSomeTarget(t *testing.T) {
	cfg := validConfig()
	cfg.ExchangeID = ""
	cfg.OfferID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresAPIURL(t *testing.T) {
	cfg := validConfig()
	cfg.APIBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg.APIBaseURL = "not a url"
	assert.Error(t, cfg.Validate())
}

func TestReconnectPolicyConversion(t *testing.T) {
	rc := ReconnectConfig{
		Interval:      time.Second,
		BackoffFactor: 2,
		MaxInterval:   30 * time.Second,
		MaxAttempts:   5,
	}
	p := rc.Policy()
	assert.Equal(t, time.Second, p.Interval)
	assert.Equal(t, 2.0, p.BackoffFactor)
	assert.Equal(t, 30*time.Second, p.MaxInterval)
	assert.Equal(t, 5, p.MaxAttempts)
}

func TestNewConfigReadsEnvironment(t *testing.T) {
	t.Setenv("TIMEBANK_API_URL", "http://api.test:9000")
	t.Setenv("TIMEBANK_OFFER_ID", "offer-9")
	t.Setenv("WS_RECONNECT_INTERVAL", "500ms")
	t.Setenv("WS_RECONNECT_MAX_ATTEMPTS", "7")

	cfg := NewConfig()

	assert.Equal(t, "http://api.test:9000", cfg.APIBaseURL)
	assert.Equal(t, "offer-9", cfg.OfferID)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.Interval)
	assert.Equal(t, 7, cfg.Reconnect.MaxAttempts)
}

func TestPrettyLogToggle(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	assert.False(t, NewConfig().PrettyLog)

	t.Setenv("LOG_PRETTY", "true")
	assert.True(t, NewConfig().PrettyLog)

	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("LOG_PRETTY", "false")
	assert.False(t, NewConfig().PrettyLog)
}
