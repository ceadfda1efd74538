package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Scorekeeper/internal/api"
	"Scorekeeper/internal/chain"
	"Scorekeeper/internal/checkpoint"
	"Scorekeeper/internal/logger"
	"Scorekeeper/internal/score"
	"Scorekeeper/internal/storage"
	"Scorekeeper/internal/telemetry"
	"Scorekeeper/internal/validator"
)

// App owns every component of a running validator.
type App struct {
	cfg         *Config
	storage     *storage.Storage
	checkpoints *checkpoint.Store
	client      *chain.Client
	validator   *validator.Validator
	api         *api.Server
	started     bool
}

// newApp opens storage, dials the chain and restores the last checkpoint.
func newApp(cfg *Config) (_ *App, err error) {
	a := &App{cfg: cfg}

	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir:\n%w", err)
	}

	a.storage, err = storage.Open(cfg.DataPath, cfg.storageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage:\n%w", err)
	}
	a.checkpoints = checkpoint.NewStore(a.storage, cfg.CheckpointRetain)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	a.client, err = chain.Dial(ctx, chain.ClientConfig{
		PrivateKey:     cfg.PrivateKey,
		ChainAddr:      cfg.ChainAddr,
		NetUID:         cfg.NetUID,
		RequestTimeout: cfg.RequestTimeout,
		RewardBuffer:   cfg.RewardBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("dial chain:\n%w", err)
	}

	initial, err := a.client.CurrentSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch topology:\n%w", err)
	}

	scores, err := score.New(initial.Len(), cfg.Alpha)
	if err != nil {
		return nil, fmt.Errorf("create score store:\n%w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg, scores.Snapshot)

	a.validator, err = validator.New(validator.Config{
		NumConcurrentForwards: cfg.NumConcurrentForwards,
		StepInterval:          cfg.StepInterval,
		EpochLength:           cfg.EpochLength,
		CheckpointEvery:       cfg.CheckpointEvery,
		SubmitTimeout:         cfg.SubmitTimeout,
		HistorySize:           cfg.HistorySize,
		Hotkey:                a.client.Hotkey(),
	}, validator.Deps{
		Scores:       scores,
		Source:       a.client,
		Evaluator:    a.client,
		Ledger:       a.client,
		Checkpoints:  a.checkpoints,
		Observer:     metrics,
		OnDeregister: onDeregister,
	}, initial)
	if err != nil {
		return nil, err
	}

	if err := a.restore(); err != nil {
		return nil, err
	}

	if cfg.HTTPAddress != "" {
		a.api = api.New(cfg.HTTPAddress, a.validator, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return a, nil
}

// restore loads the newest checkpoint, if any.
func (a *App) restore() error {
	st, err := a.checkpoints.Load()
	if errors.Is(err, checkpoint.ErrNotFound) {
		logger.Info("no checkpoint, starting fresh")
		return nil
	}

	if err != nil {
		return fmt.Errorf("load checkpoint:\n%w", err)
	}

	a.validator.Restore(st)
	logger.Info("checkpoint restored", "step", st.Step, "size", len(st.Scores))

	return nil
}

// Run starts the loop and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if a.api != nil {
		if err := a.api.Start(); err != nil {
			a.Close()
			return fmt.Errorf("start api:\n%w", err)
		}
	}

	a.validator.Start()
	a.started = true

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return a.Close()
}

// Close stops the loop, saves a final checkpoint and releases resources.
func (a *App) Close() error {
	var errs []error

	if a.api != nil {
		if err := a.api.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop api:\n%w", err))
		}
	}

	if a.validator != nil && a.started {
		if err := stopValidator(a.validator, a.cfg.StopTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if a.client != nil {
		a.client.Close()
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage:\n%w", err))
		}
	}

	return errors.Join(errs...)
}

// stopValidator stops the loop and saves a final checkpoint, all within
// timeout. A step that outlives timeout keeps its state unsaved; the last
// periodic checkpoint stands.
func stopValidator(v *validator.Validator, timeout time.Duration) error {
	start := time.Now()

	if !v.Stop(timeout) {
		logger.Warn("run loop did not stop in time", "timeout", timeout)
	}

	v.Wait()

	err := v.TryCheckpoint(max(timeout-time.Since(start), 0))
	if errors.Is(err, validator.ErrStepInProgress) {
		logger.Warn("final checkpoint skipped, step still running", "step", v.Step())
		return nil
	}

	if err != nil {
		return fmt.Errorf("final checkpoint:\n%w", err)
	}

	return nil
}

// onDeregister logs uids whose occupant changed.
func onDeregister(uid int) error {
	logger.Info("uid deregistered", "uid", uid)
	return nil
}
