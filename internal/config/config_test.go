package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v-starostin/tacbridge/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.New(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, uint64(100), cfg.Rate)
	assert.Equal(t, config.DefaultCustody, cfg.Custody)
	assert.Equal(t, "tac.conversions", cfg.KafkaTopic)
	assert.Equal(t, 2*time.Second, cfg.PublishInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.KafkaBrokers)

	initial, err := cfg.InitialSubunits()
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), initial)

	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingSecret)
}

func TestEnv(t *testing.T) {
	custody := uuid.New()
	t.Setenv("RUN_ADDRESS", ":9999")
	t.Setenv("SECRET", "secret")
	t.Setenv("CONVERSION_RATE", "250")
	t.Setenv("CUSTODY_ACCOUNT", custody.String())
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.New(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, uint64(250), cfg.Rate)
	assert.Equal(t, custody, cfg.Custody)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":9999")
	t.Setenv("DATABASE_URI", "postgres://env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-a", ":7070", "--kafka-brokers", "a:1,b:2"}))

	cfg, err := config.New(fs)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Address)
	assert.Equal(t, "postgres://env", cfg.DatabaseURI)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
}

func TestInvalidInitialBalance(t *testing.T) {
	t.Setenv("SECRET", "secret")
	t.Setenv("INITIAL_BALANCE", "-5")

	cfg, err := config.New(nil)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestZeroRateIsValid(t *testing.T) {
	t.Setenv("SECRET", "secret")
	t.Setenv("CONVERSION_RATE", "0")

	cfg, err := config.New(nil)
	require.NoError(t, err)
	assert.Zero(t, cfg.Rate)
	assert.NoError(t, cfg.Validate())
}

func TestNonPositivePublishInterval(t *testing.T) {
	for _, interval := range []string{"0s", "-1s"} {
		t.Run(interval, func(t *testing.T) {
			t.Setenv("SECRET", "secret")
			t.Setenv("PUBLISH_INTERVAL", interval)

			cfg, err := config.New(nil)
			require.NoError(t, err)
			assert.ErrorIs(t, cfg.Validate(), config.ErrNonPositiveInterval)
		})
	}
}
