// Command chainsim runs a development chain endpoint: it serves a synthetic
// topology, pushes reward batches every block and verifies weight submissions.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeebo/blake3"

	"Scorekeeper/internal/chain"
	"Scorekeeper/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level)

	key, err := loadKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	srv, err := chain.NewServer(chain.ServerConfig{
		PrivateKey: key,
		ListenAddr: cfg.ListenAddr,
		NetUID:     cfg.NetUID,
		MaxSize:    cfg.MaxSize,
		BatchSize:  cfg.BatchSize,
		Params:     cfg.params(),
		Seed:       cfg.Seed,
	})
	if err != nil {
		return fmt.Errorf("create server:\n%w", err)
	}

	populate(srv, cfg)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server:\n%w", err)
	}
	defer srv.Close()

	logger.Info("chainsim started",
		"addr", srv.Addr(),
		"netuid", cfg.NetUID,
		"size", srv.Snapshot().Len(),
		"block_time", cfg.BlockTime,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.Run(ctx, cfg.BlockTime)
	logger.Info("shutting down")

	return nil
}

// populate registers the synthetic identities and the configured hotkeys.
func populate(srv *chain.Server, cfg *Config) {
	rng := mrand.New(mrand.NewPCG(cfg.Seed, cfg.Seed+1))

	for i := range cfg.Miners {
		srv.Register(syntheticIdentity(cfg.Seed, i), 1+rng.Float64()*999)
	}

	for _, hotkey := range cfg.Register {
		uid, replaced := srv.Register(hotkey, 1000)
		logger.Info("registered hotkey", "uid", uid, "replaced", replaced, "hotkey", hotkey[:16])
	}
}

// syntheticIdentity derives a stable 32-byte hex identity from seed and index.
func syntheticIdentity(seed uint64, i int) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seed)
	binary.BigEndian.PutUint64(buf[8:], uint64(i))

	sum := blake3.Sum256(buf[:])

	return hex.EncodeToString(sum[:])
}

// loadKey reads the endpoint key, or generates an ephemeral one.
func loadKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate key:\n%w", err)
		}
		return priv, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}
