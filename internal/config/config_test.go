package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jzx17/wtpool/pkg/types"
	"github.com/jzx17/wtpool/pkg/wtp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "pool.yaml", `
pool:
  label: main-queue
  max_workers: 8
  idle_shutdown_timeout: 30s
  shutdown_timeout: 2s
queue:
  batch_size: 16
  items_per_worker: 100
  rate_limit:
    per_second: 500
    burst: 50
  retry:
    max_attempts: 3
    initial_delay: 50ms
    max_delay: 1s
    jitter: 0.1
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Pool.Label != "main-queue" {
		t.Errorf("expected label 'main-queue', got '%s'", cfg.Pool.Label)
	}
	if cfg.Queue.BatchSize != 16 {
		t.Errorf("expected batch_size 16, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.RateLimit.Burst != 50 {
		t.Errorf("expected burst 50, got %d", cfg.Queue.RateLimit.Burst)
	}

	pc, err := cfg.ToPoolConfig()
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}
	if pc.MaxWorkers != 8 {
		t.Errorf("expected 8 workers, got %d", pc.MaxWorkers)
	}
	if pc.IdleShutdownTimeout != 30*time.Second {
		t.Errorf("expected idle timeout 30s, got %v", pc.IdleShutdownTimeout)
	}
	if pc.ShutdownTimeout != 2*time.Second {
		t.Errorf("expected shutdown timeout 2s, got %v", pc.ShutdownTimeout)
	}

	if n := len(cfg.QueueOptions()); n != 5 {
		t.Errorf("expected 5 queue options, got %d", n)
	}

	policy, err := cfg.Queue.Retry.policy()
	if err != nil {
		t.Fatalf("failed to build retry policy: %v", err)
	}
	if policy.MaxAttempts != 3 || policy.InitialDelay != 50*time.Millisecond || policy.MaxDelay != time.Second {
		t.Errorf("unexpected retry policy: %+v", policy)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "pool.json", `{
  "pool": {
    "max_workers": 2,
    "idle_shutdown_timeout": "never"
  }
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	pc, err := cfg.ToPoolConfig()
	if err != nil {
		t.Fatalf("failed to convert config: %v", err)
	}
	if pc.MaxWorkers != 2 {
		t.Errorf("expected 2 workers, got %d", pc.MaxWorkers)
	}
	if pc.IdleShutdownTimeout != wtp.IdleForever {
		t.Errorf("expected idle forever, got %v", pc.IdleShutdownTimeout)
	}
	if pc.ShutdownTimeout != wtp.DefaultConfig().ShutdownTimeout {
		t.Errorf("expected default shutdown timeout, got %v", pc.ShutdownTimeout)
	}

	// pool.max_workers caps the queue advice when the queue sets none
	if n := len(cfg.QueueOptions()); n != 1 {
		t.Errorf("expected 1 queue option, got %d", n)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported format", "pool.toml", "pool = 1"},
		{"invalid yaml", "pool.yaml", "pool: [unclosed"},
		{"invalid json", "pool.json", "{"},
		{"negative workers", "pool.yaml", "pool:\n  max_workers: -1\n"},
		{"negative rate", "pool.yaml", "queue:\n  rate_limit:\n    per_second: -5\n"},
		{"bad retry delay", "pool.yaml", "queue:\n  retry:\n    max_attempts: 3\n    initial_delay: soon\n"},
		{"bad retry jitter", "pool.yaml", "queue:\n  retry:\n    jitter: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeFile(t, tt.file, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseIdleTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"never", wtp.IdleForever, false},
		{"NEVER", wtp.IdleForever, false},
		{"-1", wtp.IdleForever, false},
		{"0", 0, false},
		{"0s", 0, false},
		{"1m30s", 90 * time.Second, false},
		{"-5s", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := parseIdleTimeout(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestToPoolConfigErrors(t *testing.T) {
	cfg := &FileConfig{Pool: PoolConfig{ShutdownTimeout: "later"}}
	if _, err := cfg.ToPoolConfig(); err == nil {
		t.Error("expected error for invalid shutdown timeout")
	}

	cfg = &FileConfig{Pool: PoolConfig{ShutdownTimeout: "-1s"}}
	_, err := cfg.ToPoolConfig()
	if !types.IsConfigurationError(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
