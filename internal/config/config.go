// Package config loads pool and queue settings from YAML or JSON files
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jzx17/wtpool/pkg/queue"
	"github.com/jzx17/wtpool/pkg/wtp"
	"gopkg.in/yaml.v3"
)

// FileConfig is the layout of a configuration file
type FileConfig struct {
	Pool  PoolConfig  `yaml:"pool" json:"pool"`
	Queue QueueConfig `yaml:"queue" json:"queue"`
}

// PoolConfig holds the worker pool settings. Durations are strings such as
// "30s"; the idle timeout also accepts "never" or "-1".
type PoolConfig struct {
	Label               string `yaml:"label" json:"label"`
	MaxWorkers          int    `yaml:"max_workers" json:"max_workers"`
	IdleShutdownTimeout string `yaml:"idle_shutdown_timeout" json:"idle_shutdown_timeout"`
	ShutdownTimeout     string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// QueueConfig holds the settings of the in-memory queue
type QueueConfig struct {
	BatchSize      int             `yaml:"batch_size" json:"batch_size"`
	MaxWorkers     int             `yaml:"max_workers" json:"max_workers"`
	ItemsPerWorker int             `yaml:"items_per_worker" json:"items_per_worker"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry          RetryConfig     `yaml:"retry" json:"retry"`
}

// RateLimitConfig limits how many batches the workers dequeue per second
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// RetryConfig retries failed items with exponential backoff. Retries are
// off while max_attempts is below 2.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	Jitter       float64 `yaml:"jitter" json:"jitter"`
}

// LoadFile reads a configuration file, the format is chosen by extension
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values that do not need parsing
func (f *FileConfig) Validate() error {
	if f.Pool.MaxWorkers < 0 {
		return fmt.Errorf("pool.max_workers must be non-negative")
	}
	if f.Queue.BatchSize < 0 {
		return fmt.Errorf("queue.batch_size must be non-negative")
	}
	if f.Queue.MaxWorkers < 0 {
		return fmt.Errorf("queue.max_workers must be non-negative")
	}
	if f.Queue.ItemsPerWorker < 0 {
		return fmt.Errorf("queue.items_per_worker must be non-negative")
	}
	if f.Queue.RateLimit.PerSecond < 0 || f.Queue.RateLimit.Burst < 0 {
		return fmt.Errorf("queue.rate_limit must be non-negative")
	}
	if _, err := f.Queue.Retry.policy(); err != nil {
		return err
	}
	return nil
}

// ToPoolConfig converts the pool section to a wtp.Config, starting from
// wtp.DefaultConfig for unset values
func (f *FileConfig) ToPoolConfig() (*wtp.Config, error) {
	pc := f.Pool
	config := wtp.DefaultConfig()

	if pc.Label != "" {
		config.Label = pc.Label
	}
	if pc.MaxWorkers > 0 {
		config.MaxWorkers = pc.MaxWorkers
	}
	if pc.IdleShutdownTimeout != "" {
		d, err := parseIdleTimeout(pc.IdleShutdownTimeout)
		if err != nil {
			return nil, err
		}
		config.IdleShutdownTimeout = d
	}
	if pc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(pc.ShutdownTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
		}
		config.ShutdownTimeout = d
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// QueueOptions converts the queue section to queue options
func (f *FileConfig) QueueOptions() []queue.Option {
	qc := f.Queue
	var opts []queue.Option

	if qc.BatchSize > 0 {
		opts = append(opts, queue.WithBatchSize(qc.BatchSize))
	}
	if qc.MaxWorkers > 0 {
		opts = append(opts, queue.WithMaxWorkers(qc.MaxWorkers))
	} else if f.Pool.MaxWorkers > 0 {
		opts = append(opts, queue.WithMaxWorkers(f.Pool.MaxWorkers))
	}
	if qc.ItemsPerWorker > 0 {
		opts = append(opts, queue.WithItemsPerWorker(qc.ItemsPerWorker))
	}
	if qc.RateLimit.PerSecond > 0 {
		burst := qc.RateLimit.Burst
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, queue.WithRateLimit(qc.RateLimit.PerSecond, burst))
	}
	if policy, err := qc.Retry.policy(); err == nil && policy != nil {
		opts = append(opts, queue.WithRetry(policy))
	}
	return opts
}

// policy builds the retry policy, nil when retries are off
func (r RetryConfig) policy() (*queue.ExponentialBackoff, error) {
	if r.MaxAttempts < 0 {
		return nil, fmt.Errorf("queue.retry.max_attempts must be non-negative")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return nil, fmt.Errorf("queue.retry.jitter must be between 0 and 1")
	}
	if r.MaxAttempts < 2 {
		return nil, nil
	}

	initial := 100 * time.Millisecond
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid queue.retry.initial_delay: %q", r.InitialDelay)
		}
		initial = d
	}

	b := queue.NewExponentialBackoff(r.MaxAttempts, initial)
	b.Jitter = r.Jitter
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid queue.retry.max_delay: %q", r.MaxDelay)
		}
		b.MaxDelay = d
	}
	return b, nil
}

// parseIdleTimeout accepts a duration, "never" or "-1"
func parseIdleTimeout(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "-1":
		return wtp.IdleForever, nil
	case "0":
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid idle shutdown timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid idle shutdown timeout: %s", s)
	}
	return d, nil
}
