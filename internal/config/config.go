// Package config loads and validates panebridge configuration from TOML or
// YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Tmux     TmuxConfig     `toml:"tmux" yaml:"tmux"`
	Capture  CaptureConfig  `toml:"capture" yaml:"capture"`
	Throttle ThrottleConfig `toml:"throttle" yaml:"throttle"`
	Stream   StreamConfig   `toml:"stream" yaml:"stream"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
}

// ServerConfig configures the listening endpoint.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
	// AuthToken is the shared credential clients must present. Empty means
	// open mode: clients are auto-accepted after the challenge.
	AuthToken string `toml:"auth_token" yaml:"auth_token"`
}

// TmuxConfig configures external command execution.
type TmuxConfig struct {
	CommandTimeoutSec int `toml:"command_timeout_sec" yaml:"command_timeout_sec"`
}

// CaptureConfig configures the session connector.
type CaptureConfig struct {
	SnapshotIntervalMS int    `toml:"snapshot_interval_ms" yaml:"snapshot_interval_ms"`
	SnapshotLines      int    `toml:"snapshot_lines" yaml:"snapshot_lines"`
	RingSize           int    `toml:"ring_size" yaml:"ring_size"`
	FIFODir            string `toml:"fifo_dir" yaml:"fifo_dir"`
}

// ThrottleConfig configures delivery batching.
type ThrottleConfig struct {
	FlushIntervalMS int `toml:"flush_interval_ms" yaml:"flush_interval_ms"`
	MaxBatch        int `toml:"max_batch" yaml:"max_batch"`
}

// StreamConfig configures the wire protocol server.
type StreamConfig struct {
	ReplayCount    int `toml:"replay_count" yaml:"replay_count"`
	ReplayAgeSec   int `toml:"replay_age_sec" yaml:"replay_age_sec"`
	ChatPerMinute  int `toml:"chat_per_minute" yaml:"chat_per_minute"`
	TypingPerMin   int `toml:"typing_per_minute" yaml:"typing_per_minute"`
	AuthTimeoutSec int `toml:"auth_timeout_sec" yaml:"auth_timeout_sec"`
	PingIntervalS  int `toml:"ping_interval_sec" yaml:"ping_interval_sec"`
}

// StorageConfig configures persistence locations.
type StorageConfig struct {
	DataDir string `toml:"data_dir" yaml:"data_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8377,
		},
		Tmux: TmuxConfig{
			CommandTimeoutSec: 30,
		},
		Capture: CaptureConfig{
			SnapshotIntervalMS: 1500,
			SnapshotLines:      500,
			RingSize:           200,
			FIFODir:            filepath.Join(os.TempDir(), "panebridge_streams"),
		},
		Throttle: ThrottleConfig{
			FlushIntervalMS: 100,
			MaxBatch:        50,
		},
		Stream: StreamConfig{
			ReplayCount:    1000,
			ReplayAgeSec:   3600,
			ChatPerMinute:  60,
			TypingPerMin:   30,
			AuthTimeoutSec: 10,
			PingIntervalS:  30,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
	}
}

// defaultDataDir follows XDG conventions, falling back to a temp directory
// so the path is always absolute.
func defaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return filepath.Join(os.TempDir(), "panebridge")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "panebridge")
}

// Load reads a config file, decoding by extension (.toml, .yaml, .yml).
// Missing file returns defaults. Loaded values are merged over defaults and
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension %q (use .toml, .yaml, or .yml)", filepath.Ext(path))
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Tmux.CommandTimeoutSec == 0 {
		cfg.Tmux.CommandTimeoutSec = def.Tmux.CommandTimeoutSec
	}
	if cfg.Capture.SnapshotIntervalMS == 0 {
		cfg.Capture.SnapshotIntervalMS = def.Capture.SnapshotIntervalMS
	}
	if cfg.Capture.SnapshotLines == 0 {
		cfg.Capture.SnapshotLines = def.Capture.SnapshotLines
	}
	if cfg.Capture.RingSize == 0 {
		cfg.Capture.RingSize = def.Capture.RingSize
	}
	if cfg.Capture.FIFODir == "" {
		cfg.Capture.FIFODir = def.Capture.FIFODir
	}
	if cfg.Throttle.FlushIntervalMS == 0 {
		cfg.Throttle.FlushIntervalMS = def.Throttle.FlushIntervalMS
	}
	if cfg.Throttle.MaxBatch == 0 {
		cfg.Throttle.MaxBatch = def.Throttle.MaxBatch
	}
	if cfg.Stream.ReplayCount == 0 {
		cfg.Stream.ReplayCount = def.Stream.ReplayCount
	}
	if cfg.Stream.ReplayAgeSec == 0 {
		cfg.Stream.ReplayAgeSec = def.Stream.ReplayAgeSec
	}
	if cfg.Stream.ChatPerMinute == 0 {
		cfg.Stream.ChatPerMinute = def.Stream.ChatPerMinute
	}
	if cfg.Stream.TypingPerMin == 0 {
		cfg.Stream.TypingPerMin = def.Stream.TypingPerMin
	}
	if cfg.Stream.AuthTimeoutSec == 0 {
		cfg.Stream.AuthTimeoutSec = def.Stream.AuthTimeoutSec
	}
	if cfg.Stream.PingIntervalS == 0 {
		cfg.Stream.PingIntervalS = def.Stream.PingIntervalS
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
}

// Validate checks configuration for sanity.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Tmux.CommandTimeoutSec < 1 {
		return fmt.Errorf("command timeout must be at least 1s, got %d", c.Tmux.CommandTimeoutSec)
	}
	if c.Capture.SnapshotIntervalMS < 100 {
		return fmt.Errorf("snapshot interval must be at least 100ms, got %d", c.Capture.SnapshotIntervalMS)
	}
	if c.Capture.SnapshotLines < 10 {
		return fmt.Errorf("snapshot window must be at least 10 lines, got %d", c.Capture.SnapshotLines)
	}
	if c.Capture.RingSize < 1 {
		return fmt.Errorf("ring size must be positive, got %d", c.Capture.RingSize)
	}
	if c.Throttle.MaxBatch < 1 {
		return fmt.Errorf("max batch must be positive, got %d", c.Throttle.MaxBatch)
	}
	if c.Stream.ReplayCount < 1 {
		return fmt.Errorf("replay count must be positive, got %d", c.Stream.ReplayCount)
	}
	return nil
}

// CommandTimeout returns the tmux timeout as a duration.
func (c TmuxConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

// SnapshotInterval returns the capture interval as a duration.
func (c CaptureConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMS) * time.Millisecond
}

// FlushInterval returns the throttle interval as a duration.
func (c ThrottleConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// ReplayAge returns the replay retention as a duration.
func (c StreamConfig) ReplayAge() time.Duration {
	return time.Duration(c.ReplayAgeSec) * time.Second
}

// AuthTimeout returns the handshake deadline as a duration.
func (c StreamConfig) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSec) * time.Second
}

// PingInterval returns the keepalive interval as a duration.
func (c StreamConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalS) * time.Second
}
