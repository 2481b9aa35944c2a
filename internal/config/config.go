// Package config loads the engine's on-disk YAML configuration: storage
// layout, commit log tuning, and subscription backpressure knobs. Grounded
// on cmd/warren's flag surface (data-dir, bind-addr, ...), generalized to a
// loadable file using gopkg.in/yaml.v3 rather than one-off cobra flags,
// since an embedded engine is more often configured by a file shipped next
// to it than invoked with a long flag line every time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig controls the page store and on-disk layout.
type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	PageSize int    `yaml:"page_size"`
}

// CommitlogConfig controls the append-only commit log.
type CommitlogConfig struct {
	SegmentMaxBytes    int64 `yaml:"segment_max_bytes"`
	OffsetIndexInterval int  `yaml:"offset_index_interval"`
}

// SubscriptionConfig controls per-connection delivery behavior.
type SubscriptionConfig struct {
	OutboundQueueDepth       int `yaml:"outbound_queue_depth"`
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`
	BrotliQuality            int `yaml:"brotli_quality"`
	BrotliWindowBits          int `yaml:"brotli_window_bits"`
}

// ServerConfig controls listener addresses.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HealthAddr string `yaml:"health_addr"`
}

// LogConfig controls the zerolog wrapper in pkg/log.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the engine's complete loaded configuration.
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Commitlog    CommitlogConfig    `yaml:"commitlog"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// Default returns the configuration used when no file is supplied,
// matching the constants already baked into internal/page, internal/
// commitlog and internal/protocol as their zero-value defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:  "./data",
			PageSize: 64 * 1024,
		},
		Commitlog: CommitlogConfig{
			SegmentMaxBytes:     1024 * 1024 * 1024,
			OffsetIndexInterval: 4096,
		},
		Subscription: SubscriptionConfig{
			OutboundQueueDepth:        128,
			CompressionThresholdBytes: 1024,
			BrotliQuality:             1,
			BrotliWindowBits:          22,
		},
		Server: ServerConfig{
			ListenAddr: ":3000",
			HealthAddr: ":3001",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads and parses a YAML configuration file, starting from Default
// and overriding whatever the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot start with.
func (c Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("config: storage.data_dir must not be empty")
	}
	if c.Storage.PageSize <= 0 {
		return fmt.Errorf("config: storage.page_size must be positive")
	}
	if c.Commitlog.SegmentMaxBytes <= 0 {
		return fmt.Errorf("config: commitlog.segment_max_bytes must be positive")
	}
	if c.Commitlog.OffsetIndexInterval <= 0 {
		return fmt.Errorf("config: commitlog.offset_index_interval must be positive")
	}
	if c.Subscription.OutboundQueueDepth <= 0 {
		return fmt.Errorf("config: subscription.outbound_queue_depth must be positive")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must not be empty")
	}
	return nil
}

// ShutdownGracePeriod bounds how long Stop waits for in-flight
// connections to drain before forcing listener closure.
const ShutdownGracePeriod = 10 * time.Second
