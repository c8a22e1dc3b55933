package config

import "time"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		TaskDir:         "tasks",
		ScopeMatching:   "exact",
		BottleneckLimit: 10,
		Concurrency:     4,
		LogLevel:        "warn",
		Retry:           DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns sensible retry defaults for task handlers.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: Duration(500 * time.Millisecond),
		MaxInterval:     Duration(10 * time.Second),
		Multiplier:      2.0,
		MaxElapsed:      Duration(time.Minute),
		BreakerFailures: 5,
		BreakerTimeout:  Duration(30 * time.Second),
	}
}
