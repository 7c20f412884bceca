package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/todochain/internal/infra/storage"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultLogLevel = "info"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = storage.DriverMemory
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)

	for chain, envs := range cfg.Networks {
		for env, nc := range envs {
			if nc.Timeout == 0 {
				nc.Timeout = DefaultTimeout
			}
			envs[env] = nc
		}
		cfg.Networks[chain] = envs
	}

	switch cfg.Storage.Driver {
	case storage.DriverMemory:
	case storage.DriverPostgres, storage.DriverRedis:
		if cfg.Storage.URL == "" {
			return nil, fmt.Errorf("storage: url is required for driver %s", cfg.Storage.Driver)
		}
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
	}

	// Unknown chain or environment keys are rejected here; missing or
	// incomplete entries only fail when the network is requested.
	if _, err := cfg.NetworkConfigs(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
