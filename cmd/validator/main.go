package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

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

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	printStartupInfo(cfg)

	app, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("create validator:\n%w", err)
	}

	return app.Run()
}

// printStartupInfo displays the configuration at startup.
func printStartupInfo(cfg *Config) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)

	logger.Info("starting scorekeeper validator",
		"hotkey", hex.EncodeToString(pubKey),
		"chain", cfg.ChainAddr,
		"netuid", cfg.NetUID,
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"alpha", cfg.Alpha,
		"forwards", cfg.NumConcurrentForwards,
	)
}
