package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tickstats/tickstats-go"
)

// EnvPrefix prefixes the environment variable of each Config field.
const EnvPrefix = "TICKSTATS"

var ErrInvalid = errors.New("invalid config")

// Config is the configuration of the tickstats process.
type Config struct {
	MaxSymbols      int  `yaml:"max_symbols" envconfig:"MAX_SYMBOLS"`
	MaxKExponent    int  `yaml:"max_k_exponent" envconfig:"MAX_K_EXPONENT"`
	MaxBatchSize    int  `yaml:"max_batch_size" envconfig:"MAX_BATCH_SIZE"`
	ConsistentReads bool `yaml:"consistent_reads" envconfig:"CONSISTENT_READS"`

	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" envconfig:"GRPC_ADDR"`
	// The max number of requests handled at once by each server, else 0 for no limit
	MaxInFlight int64 `yaml:"max_in_flight" envconfig:"MAX_IN_FLIGHT"`

	LogDevelopment bool `yaml:"log_development" envconfig:"LOG_DEVELOPMENT"`
}

// Default returns a Config with the default engine limits and listen addresses.
func Default() Config {
	return Config{
		MaxSymbols:      tickstats.DefaultMaxSymbols,
		MaxKExponent:    tickstats.DefaultMaxKExponent,
		MaxBatchSize:    tickstats.DefaultMaxBatchSize,
		ConsistentReads: true,
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
	}
}

// Load returns the Default config overlaid with the YAML file at path, if path is not empty, and then with TICKSTATS_
// environment variables. Variables are first loaded from the envFiles, else from a .env file in the working directory
// if one exists. Variables that are already set are not overridden by env files. The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns an error wrapping ErrInvalid or tickstats.ErrInvalidConfig if the config is unusable.
func (c Config) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return fmt.Errorf("%w: at least one of http_addr and grpc_addr is required", ErrInvalid)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%w: max in flight must be >= 0, got %d", ErrInvalid, c.MaxInFlight)
	}
	return nil
}

// Engine returns the engine limits of the config.
func (c Config) Engine() tickstats.Config {
	return tickstats.Config{
		MaxSymbols:      c.MaxSymbols,
		MaxKExponent:    c.MaxKExponent,
		MaxBatchSize:    c.MaxBatchSize,
		ConsistentReads: c.ConsistentReads,
	}
}

// EngineBuilder returns a tickstats.Builder configured with the engine limits of the config.
func (c Config) EngineBuilder() tickstats.Builder {
	return tickstats.NewBuilder().
		WithMaxSymbols(c.MaxSymbols).
		WithMaxKExponent(c.MaxKExponent).
		WithMaxBatchSize(c.MaxBatchSize).
		WithConsistentReads(c.ConsistentReads)
}
