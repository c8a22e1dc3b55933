package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("500ms", "2m"). Plain JSON numbers are taken as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"1s\" or nanoseconds: %s", data)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// RetryConfig controls how the runner retries a failing task handler and when
// its circuit breaker opens.
type RetryConfig struct {
	MaxRetries      int      `json:"max_retries"`      // Attempts after the first; 0 disables retries
	InitialInterval Duration `json:"initial_interval"` // First backoff delay
	MaxInterval     Duration `json:"max_interval"`     // Backoff ceiling
	Multiplier      float64  `json:"multiplier"`       // Growth factor between attempts
	MaxElapsed      Duration `json:"max_elapsed"`      // Give up after this long; 0 means no limit
	BreakerFailures int      `json:"breaker_failures"` // Consecutive failures that open the breaker
	BreakerTimeout  Duration `json:"breaker_timeout"`  // How long the breaker stays open
}

// Config is the top-level configuration. Command-line flags override it.
type Config struct {
	TaskDir         string      `json:"task_dir"`         // Directory scanned for task files
	Database        string      `json:"database"`         // SQLite path; empty means task files only
	ScopeMatching   string      `json:"scope_matching"`   // "exact" or "pattern"
	BottleneckLimit int         `json:"bottleneck_limit"` // Default N for bottlenecks; 0 lists all
	Concurrency     int         `json:"concurrency"`      // Runner worker limit
	LogLevel        string      `json:"log_level"`        // debug, info, warn, error
	Retry           RetryConfig `json:"retry"`
}
