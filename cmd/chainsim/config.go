package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"Scorekeeper/internal/chain"
)

// Config holds the development chain configuration.
type Config struct {
	// ListenAddr is the QUIC listen address.
	ListenAddr string `env:"LISTEN" envDefault:"127.0.0.1:9100"`

	// KeyPath is the endpoint's Ed25519 key file. Empty generates an ephemeral key.
	KeyPath string `env:"KEY"`

	// NetUID is the served subnet.
	NetUID uint16 `env:"NETUID" envDefault:"1"`

	// MaxSize caps the topology.
	MaxSize int `env:"MAX_SIZE" envDefault:"256"`

	// Miners is the number of synthetic identities registered at startup.
	Miners int `env:"MINERS" envDefault:"64"`

	// BatchSize is the number of uids rewarded per block.
	BatchSize int `env:"BATCH_SIZE" envDefault:"16"`

	// BlockTime is the block period.
	BlockTime time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Seed makes identities and rewards reproducible.
	Seed uint64 `env:"SEED" envDefault:"1"`

	// Register lists hex hotkeys registered after the synthetic identities.
	Register []string `env:"REGISTER" envSeparator:","`

	// MinAllowedWeights is the published minimum number of non-zero weights.
	MinAllowedWeights int `env:"MIN_ALLOWED_WEIGHTS" envDefault:"1"`

	// MaxWeightLimit is the published cap on any single normalized weight.
	MaxWeightLimit float64 `env:"MAX_WEIGHT_LIMIT" envDefault:"1"`

	// VersionKey is the minimum accepted submission version.
	VersionKey uint64 `env:"VERSION_KEY" envDefault:"0"`

	// LogLevel is the minimum log level.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// loadConfig reads CHAINSIM_* variables, then applies command-line overrides.
func loadConfig(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CHAINSIM_"}); err != nil {
		return nil, fmt.Errorf("parse env:\n%w", err)
	}

	register := strings.Join(cfg.Register, ",")

	fs := flag.NewFlagSet("chainsim", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "QUIC listen address")
	fs.StringVar(&cfg.KeyPath, "key", cfg.KeyPath, "Ed25519 key path (ephemeral if empty)")
	fs.IntVar(&cfg.Miners, "miners", cfg.Miners, "Synthetic identities to register")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Uids rewarded per block")
	fs.DurationVar(&cfg.BlockTime, "block-time", cfg.BlockTime, "Block period")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.StringVar(&register, "register", register, "Comma-separated hex hotkeys to register")
	fs.IntVar(&cfg.MinAllowedWeights, "min-weights", cfg.MinAllowedWeights, "Minimum non-zero weights per submission")
	fs.Float64Var(&cfg.MaxWeightLimit, "max-weight", cfg.MaxWeightLimit, "Maximum normalized weight")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Register = nil
	for _, k := range strings.Split(register, ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.Register = append(cfg.Register, k)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	return cfg, nil
}

// validate rejects unusable settings.
func (c *Config) validate() error {
	if c.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive, got %v", c.BlockTime)
	}

	if c.Miners < 0 || c.Miners > c.MaxSize {
		return fmt.Errorf("miners must be in [0, %d], got %d", c.MaxSize, c.Miners)
	}

	if !(c.MaxWeightLimit > 0 && c.MaxWeightLimit <= 1) {
		return fmt.Errorf("max weight must be in (0, 1], got %v", c.MaxWeightLimit)
	}

	for _, k := range c.Register {
		if b, err := hex.DecodeString(k); err != nil || len(b) != 32 {
			return fmt.Errorf("invalid hotkey %q", k)
		}
	}

	return nil
}

// params returns the published hyperparameters.
func (c *Config) params() chain.Params {
	return chain.Params{
		MinAllowedWeights: c.MinAllowedWeights,
		MaxWeightLimit:    c.MaxWeightLimit,
		VersionKey:        c.VersionKey,
	}
}
