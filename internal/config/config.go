package config

import (
	"errors"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/v-starostin/tacbridge/internal/currency"
)

var (
	ErrMissingSecret       = errors.New("SECRET is required")
	ErrNonPositiveInterval = errors.New("PUBLISH_INTERVAL must be positive")
)

type Config struct {
	Address         string        `env:"RUN_ADDRESS" envDefault:":8080"`
	GRPCAddress     string        `env:"GRPC_ADDRESS" envDefault:":9090"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	Migrations      string        `env:"MIGRATIONS" envDefault:"file://db/migrations"`
	StoreDir        string        `env:"STORE_DIR" envDefault:"data/ledger"`
	Secret          string        `env:"SECRET"`
	Rate            uint64        `env:"CONVERSION_RATE" envDefault:"100"`
	Custody         uuid.UUID     `env:"CUSTODY_ACCOUNT"`
	InitialBalance  string        `env:"INITIAL_BALANCE" envDefault:"100"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"tac.conversions"`
	PublishInterval time.Duration `env:"PUBLISH_INTERVAL" envDefault:"2s"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"100"`
	LogLevel        slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
}

// RegisterFlags declares the command line overrides understood by New.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("address", "a", "", "HTTP server address")
	fs.String("grpc-address", "", "gRPC health server address")
	fs.StringP("database", "d", "", "DB URI, the embedded store is used when empty")
	fs.String("store", "", "directory of the embedded store")
	fs.StringSlice("kafka-brokers", nil, "Kafka brokers for conversion events")
	fs.String("kafka-topic", "", "Kafka topic for conversion events")
}

// New reads the environment and then applies the flags that were set
// explicitly on fs. fs may be nil.
func New(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if fs != nil {
		if err := applyFlags(cfg, fs); err != nil {
			return nil, err
		}
	}

	if cfg.Custody == uuid.Nil {
		cfg.Custody = DefaultCustody
	}

	return cfg, nil
}

// DefaultCustody is the bridge account used when CUSTODY_ACCOUNT is not set.
var DefaultCustody = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tacbridge/custody"))

// InitialSubunits is the opening balance of a new account in source subunits.
func (c *Config) InitialSubunits() (uint64, error) {
	return currency.TAC.ToSubunit(c.InitialBalance)
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if c.PublishInterval <= 0 {
		return ErrNonPositiveInterval
	}
	if _, err := c.InitialSubunits(); err != nil {
		return err
	}
	return nil
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	flags := map[string]*string{
		"address":      &cfg.Address,
		"grpc-address": &cfg.GRPCAddress,
		"database":     &cfg.DatabaseURI,
		"store":        &cfg.StoreDir,
		"kafka-topic":  &cfg.KafkaTopic,
	}
	for name, dst := range flags {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("kafka-brokers") != nil && fs.Changed("kafka-brokers") {
		brokers, err := fs.GetStringSlice("kafka-brokers")
		if err != nil {
			return err
		}
		cfg.KafkaBrokers = brokers
	}

	return nil
}
