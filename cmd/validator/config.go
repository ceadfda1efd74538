package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"Scorekeeper/internal/storage"
)

// Config holds the validator configuration.
type Config struct {
	// DataPath is the directory for checkpoint storage.
	DataPath string `env:"DATA" envDefault:"./data"`

	// CacheSize is the storage block cache size in bytes.
	CacheSize int64 `env:"CACHE_SIZE" envDefault:"8388608"`

	// SyncInterval is the period of background storage WAL syncs.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"100ms"`

	// KeyPath is the path to the Ed25519 hotkey file.
	KeyPath string `env:"KEY"`

	// ChainAddr is the QUIC address of the chain endpoint.
	ChainAddr string `env:"CHAIN_ADDR" envDefault:"127.0.0.1:9100"`

	// HTTPAddress is the status API listen address. Empty disables it.
	HTTPAddress string `env:"HTTP" envDefault:":8080"`

	// NetUID selects the subnet.
	NetUID uint16 `env:"NETUID" envDefault:"1"`

	// Alpha is the score smoothing factor.
	Alpha float64 `env:"ALPHA" envDefault:"0.1"`

	// NumConcurrentForwards is the number of evaluation tasks per step.
	NumConcurrentForwards int `env:"CONCURRENT_FORWARDS" envDefault:"1"`

	// StepInterval is the pause between steps.
	StepInterval time.Duration `env:"STEP_INTERVAL" envDefault:"12s"`

	// EpochLength is the minimum block distance between weight commits.
	EpochLength uint64 `env:"EPOCH_LENGTH" envDefault:"100"`

	// CheckpointEvery saves state every N steps. 0 disables periodic saves.
	CheckpointEvery uint64 `env:"CHECKPOINT_EVERY" envDefault:"10"`

	// CheckpointRetain is how many checkpoints are kept on disk.
	CheckpointRetain int `env:"CHECKPOINT_RETAIN" envDefault:"3"`

	// SubmitTimeout bounds one weight submission.
	SubmitTimeout time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`

	// RequestTimeout bounds one chain request.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// HistorySize is the per-uid reward lookback.
	HistorySize int `env:"HISTORY_SIZE" envDefault:"32"`

	// RewardBuffer is how many pushed reward batches are queued.
	RewardBuffer int `env:"REWARD_BUFFER" envDefault:"64"`

	// StopTimeout bounds the wait for the run loop on shutdown.
	StopTimeout time.Duration `env:"STOP_TIMEOUT" envDefault:"5s"`

	// LogLevel is the minimum log level.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// PrivateKey is the validator hotkey, loaded from KeyPath.
	PrivateKey ed25519.PrivateKey
}

// loadConfig reads SCOREKEEPER_* variables, then applies command-line
// overrides from args.
func loadConfig(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "SCOREKEEPER_"}); err != nil {
		return nil, fmt.Errorf("parse env:\n%w", err)
	}

	fs := flag.NewFlagSet("validator", flag.ContinueOnError)
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Data directory path")
	fs.Int64Var(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Storage block cache size in bytes")
	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "Storage WAL sync period")
	fs.StringVar(&cfg.KeyPath, "key", cfg.KeyPath, "Ed25519 hotkey path (generates new if missing)")
	fs.StringVar(&cfg.ChainAddr, "chain", cfg.ChainAddr, "Chain endpoint QUIC address")
	fs.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "HTTP API address (empty disables)")
	netuid := fs.Uint("netuid", uint(cfg.NetUID), "Subnet uid")
	fs.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Score smoothing factor in (0, 1]")
	fs.IntVar(&cfg.NumConcurrentForwards, "forwards", cfg.NumConcurrentForwards, "Evaluation tasks per step")
	fs.DurationVar(&cfg.StepInterval, "step-interval", cfg.StepInterval, "Pause between steps")
	fs.Uint64Var(&cfg.EpochLength, "epoch-length", cfg.EpochLength, "Blocks between weight commits")
	fs.Uint64Var(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Steps between checkpoints (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *netuid > 0xFFFF {
		return nil, fmt.Errorf("netuid %d out of range", *netuid)
	}
	cfg.NetUID = uint16(*netuid)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	return cfg, nil
}

// validate rejects settings the run loop cannot work with.
func (c *Config) validate() error {
	var errs []error

	if !(c.Alpha > 0 && c.Alpha <= 1) {
		errs = append(errs, fmt.Errorf("alpha must be in (0, 1], got %v", c.Alpha))
	}

	if c.NumConcurrentForwards < 1 {
		errs = append(errs, fmt.Errorf("forwards must be at least 1, got %d", c.NumConcurrentForwards))
	}

	if c.StepInterval < 0 {
		errs = append(errs, fmt.Errorf("negative step interval %v", c.StepInterval))
	}

	if c.ChainAddr == "" {
		errs = append(errs, errors.New("chain address is required"))
	}

	if c.DataPath == "" {
		errs = append(errs, errors.New("data path is required"))
	}

	if c.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.CacheSize))
	}

	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync interval must be positive, got %v", c.SyncInterval))
	}

	if c.CheckpointRetain < 1 {
		errs = append(errs, fmt.Errorf("checkpoint retain must be at least 1, got %d", c.CheckpointRetain))
	}

	return errors.Join(errs...)
}

// storageOptions returns the Pebble tuning for the checkpoint store.
func (c *Config) storageOptions() storage.Options {
	return storage.Options{
		CacheSize:    c.CacheSize,
		SyncInterval: c.SyncInterval,
	}
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
