package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, PORTKEY_CONFIG env, ./portkey.yaml,
//     ~/.config/portkey/config.yaml, /etc/portkey/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
//  1. Explicit configPath argument
//  2. PORTKEY_CONFIG environment variable
//  3. ./portkey.yaml in the current directory
//  4. ~/.config/portkey/config.yaml
//  5. /etc/portkey/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check PORTKEY_CONFIG env var.
	if envPath := os.Getenv("PORTKEY_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{"portkey.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "portkey", "config.yaml"))
	}
	candidates = append(candidates, "/etc/portkey/config.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The
// same variables the adapter honors (PORTKEY_API_KEY, PORTKEY_BASE_URL)
// override the gateway section here so CLI and library agree.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTKEY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("PORTKEY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("PORTKEY_MODE"); v != "" {
		cfg.Gateway.Mode = v
	}
	if v := os.Getenv("PORTKEY_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("PORTKEY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORTKEY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PORTKEY_DEBUG"); v != "" {
		cfg.Log.Debug = v
	}
	if v := os.Getenv("PORTKEY_MOCK_ADDR"); v != "" {
		cfg.Mock.Addr = v
	}
	if v := os.Getenv("PORTKEY_MOCK_FAIL_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mock.FailRate = rate
		}
	}
	if v := os.Getenv("PORTKEY_MOCK_LATENCY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mock.Latency = d
		}
	}
	if v := os.Getenv("PORTKEY_MOCK_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mock.RateLimit = n
		}
	}

	// PORTKEY_TARGETS: JSON array of target configs.
	if v := os.Getenv("PORTKEY_TARGETS"); v != "" {
		targets, err := parseTargetsJSON(v)
		if err == nil && len(targets) > 0 {
			cfg.Targets = targets
		}
	}
}

// parseTargetsJSON parses a JSON array of target configurations.
func parseTargetsJSON(jsonStr string) ([]TargetConfig, error) {
	var targets []TargetConfig
	if err := json.Unmarshal([]byte(jsonStr), &targets); err != nil {
		return nil, fmt.Errorf("parsing targets JSON: %w", err)
	}
	return targets, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// gateway.api_key_file -> gateway.api_key
	if cfg.Gateway.APIKeyFile != "" && cfg.Gateway.APIKey == "" {
		val, err := readSecretFile(cfg.Gateway.APIKeyFile)
		if err != nil {
			return fmt.Errorf("gateway.api_key_file: %w", err)
		}
		cfg.Gateway.APIKey = val
	}

	// targets[*].api_key_file -> targets[*].api_key
	for i := range cfg.Targets {
		if cfg.Targets[i].APIKeyFile != "" && cfg.Targets[i].APIKey == "" {
			val, err := readSecretFile(cfg.Targets[i].APIKeyFile)
			if err != nil {
				return fmt.Errorf("targets[%d].api_key_file: %w", i, err)
			}
			cfg.Targets[i].APIKey = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
