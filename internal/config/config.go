// Package config provides configuration management for ledgerd.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds the ledgerd configuration.
type Config struct {
	// Storage
	DataDir string `json:"data_dir"`

	// Logging
	LogLevel string `json:"log_level"`

	// Interest accrual
	InterestRateBasisPoints int64  `json:"interest_rate_basis_points"`
	InterestCronSpec        string `json:"interest_cron_spec"`

	// Snapshot triggers
	SnapshotInterval time.Duration `json:"snapshot_interval"`
	SnapshotWALBytes int64         `json:"snapshot_wal_bytes"`
	SnapshotKeep     int           `json:"snapshot_keep"`

	// Password hashing
	BcryptCost int `json:"bcrypt_cost"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:                 "data",
		LogLevel:                "info",
		InterestRateBasisPoints: 800, // 8% annual
		InterestCronSpec:        "0 0 * * *",
		SnapshotInterval:        5 * time.Minute,
		SnapshotWALBytes:        4 << 20,
		SnapshotKeep:            3,
		BcryptCost:              0, // engine default
	}
}

// Load loads configuration from a JSON file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
