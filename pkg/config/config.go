// Package config loads the streaming core's YAML configuration, following
// the keys the core recognizes per its external interface contract.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the core's configuration schema. Unset durations fall back to
// their documented defaults via the accessor methods below rather than at
// unmarshal time, so a zero value in YAML is distinguishable from an
// absent key only where that distinction matters (it doesn't, here).
type Config struct {
	CheckpointDir   string         `yaml:"checkpointDir"`
	BatchIntervalMs int64          `yaml:"batchIntervalMs"`
	MinBatchGapMs   int64          `yaml:"minBatchGapMs"`
	Receiver        ReceiverConfig `yaml:"receiver"`
	UI              UIConfig       `yaml:"ui"`
}

// ReceiverConfig groups receiver-tracker options.
type ReceiverConfig struct {
	WriteAheadLog WriteAheadLogConfig `yaml:"writeAheadLog"`
}

// WriteAheadLogConfig gates durable receiver-block logging.
type WriteAheadLogConfig struct {
	Enable bool `yaml:"enable"`
}

// UIConfig groups options that were originally UI-facing but are also
// consumed by the ambient batch-history ring buffer (see the execution
// loop's history type).
type UIConfig struct {
	MaxBatches int `yaml:"maxBatches"`
}

const (
	// DefaultMinBatchGapMs is used when minBatchGapMs is absent or zero.
	DefaultMinBatchGapMs = 10
	// DefaultMaxBatches is used when ui.maxBatches is absent or zero.
	DefaultMaxBatches = 100
)

// Load reads and parses the YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// IsS3Checkpoint reports whether CheckpointDir names an S3 archival
// destination rather than a plain filesystem path.
func (c Config) IsS3Checkpoint() bool {
	return strings.HasPrefix(c.CheckpointDir, "s3://")
}

// CheckpointingEnabled reports whether checkpointDir was configured at
// all; when false, both the receiver WAL and the state store run
// in-memory only.
func (c Config) CheckpointingEnabled() bool {
	return c.CheckpointDir != ""
}

// BatchInterval returns the configured wall-clock batch cadence target.
// Zero means "as fast as MinBatchGap allows" — the loop has no separate
// target-interval throttle beyond the floor.
func (c Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}

// MinBatchGap returns the configured floor between batches, defaulting
// to 10ms.
func (c Config) MinBatchGap() time.Duration {
	if c.MinBatchGapMs <= 0 {
		return DefaultMinBatchGapMs * time.Millisecond
	}
	return time.Duration(c.MinBatchGapMs) * time.Millisecond
}

// MaxBatches returns the configured retained-batch-history bound,
// defaulting to 100.
func (c Config) MaxBatches() int {
	if c.UI.MaxBatches <= 0 {
		return DefaultMaxBatches
	}
	return c.UI.MaxBatches
}

// WALEnabled reports whether receiver.writeAheadLog.enable gates durable
// block logging on.
func (c Config) WALEnabled() bool {
	return c.Receiver.WriteAheadLog.Enable
}
