package main

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Alpha != 0.1 {
		t.Errorf("alpha = %v, want 0.1", cfg.Alpha)
	}

	if cfg.StepInterval != 12*time.Second {
		t.Errorf("step interval = %v, want 12s", cfg.StepInterval)
	}

	if o := cfg.storageOptions(); o.CacheSize != 8<<20 || o.SyncInterval != 100*time.Millisecond {
		t.Errorf("storage options = %+v", o)
	}

	if cfg.NetUID != 1 || cfg.CheckpointRetain != 3 {
		t.Errorf("netuid/retain = %d/%d", cfg.NetUID, cfg.CheckpointRetain)
	}
}

func TestLoadConfigEnvThenFlags(t *testing.T) {
	t.Setenv("SCOREKEEPER_ALPHA", "0.5")
	t.Setenv("SCOREKEEPER_NETUID", "7")
	t.Setenv("SCOREKEEPER_STEP_INTERVAL", "3s")

	cfg, err := loadConfig([]string{"-alpha", "0.25", "-forwards", "4"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Alpha != 0.25 {
		t.Errorf("flag should override env: alpha = %v", cfg.Alpha)
	}

	if cfg.NetUID != 7 {
		t.Errorf("netuid = %d, want 7", cfg.NetUID)
	}

	if cfg.StepInterval != 3*time.Second {
		t.Errorf("step interval = %v, want 3s", cfg.StepInterval)
	}

	if cfg.NumConcurrentForwards != 4 {
		t.Errorf("forwards = %d, want 4", cfg.NumConcurrentForwards)
	}
}

func TestStorageOptionsFromEnvAndFlags(t *testing.T) {
	t.Setenv("SCOREKEEPER_SYNC_INTERVAL", "250ms")

	cfg, err := loadConfig([]string{"-cache-size", "1048576"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	o := cfg.storageOptions()
	if o.CacheSize != 1<<20 || o.SyncInterval != 250*time.Millisecond {
		t.Errorf("storage options = %+v", o)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero alpha", []string{"-alpha", "0"}},
		{"alpha above one", []string{"-alpha", "1.5"}},
		{"no forwards", []string{"-forwards", "0"}},
		{"no chain", []string{"-chain", ""}},
		{"zero cache", []string{"-cache-size", "0"}},
		{"zero sync interval", []string{"-sync-interval", "0s"}},
		{"netuid overflow", []string{"-netuid", "70000"}},
		{"unknown flag", []string{"-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("SCOREKEEPER_EPOCH_LENGTH", "soon")

	if _, err := loadConfig(nil); err == nil {
		t.Error("expected env parse error")
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotkey")

	first, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	second, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !first.Equal(second) {
		t.Error("reloaded key differs from generated key")
	}

	if len(first) != ed25519.PrivateKeySize {
		t.Errorf("key size = %d", len(first))
	}
}

func TestLoadKeyRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotkey")
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadOrGenerateKey(path); err == nil {
		t.Error("expected size error")
	}
}
