package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
//
// The gateway API key is deliberately not validated here: the adapter
// resolves it from config or environment at construction time and
// reports its own error when both are missing.
func (c *Config) Validate() error {
	var errs []error

	// gateway.base_url is required.
	if c.Gateway.BaseURL == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url is required"))
	}

	// gateway.mode must be a known value.
	switch c.Gateway.Mode {
	case "single", "fallback", "loadbalance":
		// valid
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be \"single\", \"fallback\", or \"loadbalance\", got %q", c.Gateway.Mode))
	}

	if c.Gateway.Timeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be >= 0, got %s", c.Gateway.Timeout))
	}

	// Each target must be addressable through a virtual key or a
	// provider (with or without a raw API key).
	for i, t := range c.Targets {
		if t.VirtualKey == "" && t.Provider == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: provider or virtual_key is required", i))
		}
		if t.Weight < 0 {
			errs = append(errs, fmt.Errorf("targets[%d].weight must be >= 0, got %v", i, t.Weight))
		}
		if t.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("targets[%d].max_retries must be >= 0, got %d", i, t.MaxRetries))
		}
		switch t.CacheMode {
		case "", "simple", "semantic":
			// valid
		default:
			errs = append(errs, fmt.Errorf("targets[%d].cache_mode must be \"simple\" or \"semantic\", got %q", i, t.CacheMode))
		}
		if t.Temperature != nil && (*t.Temperature < 0 || *t.Temperature > 2) {
			errs = append(errs, fmt.Errorf("targets[%d].temperature must be between 0 and 2, got %v", i, *t.Temperature))
		}
	}

	if c.Chat.Temperature != nil && (*c.Chat.Temperature < 0 || *c.Chat.Temperature > 2) {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2, got %v", *c.Chat.Temperature))
	}
	if c.Chat.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens must be >= 0, got %d", c.Chat.MaxTokens))
	}

	// log.format must be a known value if set.
	switch c.Log.Format {
	case "", "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	if c.Mock.Addr == "" {
		errs = append(errs, fmt.Errorf("mock.addr is required"))
	}
	if c.Mock.FailRate < 0 || c.Mock.FailRate > 1 {
		errs = append(errs, fmt.Errorf("mock.fail_rate must be between 0 and 1, got %v", c.Mock.FailRate))
	}
	if c.Mock.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("mock.rate_limit must be >= 0, got %d", c.Mock.RateLimit))
	}
	if c.Mock.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("mock.cache_size must be >= 0, got %d", c.Mock.CacheSize))
	}

	return errors.Join(errs...)
}
