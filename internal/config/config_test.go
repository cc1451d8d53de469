package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: "localhost:6379"
  db: 2
quiz:
  sessionCode: "demo"
  durationSeconds: 45
  pollInterval: 100ms
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Quiz.SessionCode != "demo" || cfg.Quiz.DurationSeconds != 45 {
		t.Fatalf("unexpected quiz config: %+v", cfg.Quiz)
	}
	if got := Duration(cfg.Quiz.PollInterval, time.Second); got != 100*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("empty must fall back, got %v", got)
	}
	if got := Duration("garbage", 2*time.Second); got != 2*time.Second {
		t.Fatalf("malformed must fall back, got %v", got)
	}
	if got := Duration("1m", time.Second); got != time.Minute {
		t.Fatalf("expected parsed value, got %v", got)
	}
}
