package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	DSN            string        `yaml:"dsn"`
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type EncryptionConfig struct {
	KeyFile string `yaml:"key_file"`
}

type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
}

type NetworkConfig struct {
	IPv4Enabled   bool          `yaml:"ipv4_enabled"`
	IPv6Enabled   bool          `yaml:"ipv6_enabled"`
	IPv4URL       string        `yaml:"ipv4_url"`
	IPv6URL       string        `yaml:"ipv6_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
}

type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type DNSConfig struct {
	DefaultTTL int `yaml:"default_ttl"`
}

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Provider   ProviderConfig   `yaml:"provider"`
	Network    NetworkConfig    `yaml:"network"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	DNS        DNSConfig        `yaml:"dns"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider.base_url is required")
	}
	if cfg.Database.PoolSize <= 0 {
		return nil, fmt.Errorf("database.pool_size must be positive")
	}
	if !cfg.Network.IPv4Enabled && !cfg.Network.IPv6Enabled {
		return nil, fmt.Errorf("at least one of network.ipv4_enabled and network.ipv6_enabled must be set")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			PoolSize:       5,
			AcquireTimeout: 10 * time.Second,
		},
		Encryption: EncryptionConfig{
			KeyFile: "dyndnsd.key",
		},
		Provider: ProviderConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Network: NetworkConfig{
			IPv4Enabled:   true,
			IPv6Enabled:   true,
			IPv4URL:       "https://api.ipify.org",
			IPv6URL:       "https://api6.ipify.org",
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
		},
		Daemon: DaemonConfig{
			Interval:    60 * time.Second,
			StopTimeout: 30 * time.Second,
		},
		DNS: DNSConfig{
			DefaultTTL: 3600,
		},
	}
}
