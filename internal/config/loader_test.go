package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		check         func(t *testing.T, cfg *Config)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.TaskDir != "tasks" || cfg.ScopeMatching != "exact" || cfg.Concurrency != 4 {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
			},
		},
		{
			name:         "Global only - overrides task dir",
			globalConfig: `{"task_dir": "backlog"}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.TaskDir != "backlog" {
					t.Errorf("expected task_dir backlog, got %q", cfg.TaskDir)
				}
				if cfg.Concurrency != 4 {
					t.Errorf("absent keys should keep defaults, got concurrency %d", cfg.Concurrency)
				}
			},
		},
		{
			name:          "Both with merge - project wins",
			globalConfig:  `{"task_dir": "backlog", "concurrency": 8}`,
			projectConfig: `{"task_dir": "sprint", "scope_matching": "pattern"}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.TaskDir != "sprint" {
					t.Errorf("expected project task_dir, got %q", cfg.TaskDir)
				}
				if cfg.Concurrency != 8 {
					t.Errorf("expected global concurrency 8, got %d", cfg.Concurrency)
				}
				if cfg.ScopeMatching != "pattern" {
					t.Errorf("expected pattern matching, got %q", cfg.ScopeMatching)
				}
			},
		},
		{
			name:          "Nested retry keys merge field by field",
			projectConfig: `{"retry": {"max_retries": 5, "initial_interval": "2s"}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Retry.MaxRetries != 5 {
					t.Errorf("expected 5 retries, got %d", cfg.Retry.MaxRetries)
				}
				if time.Duration(cfg.Retry.InitialInterval) != 2*time.Second {
					t.Errorf("expected 2s initial interval, got %v", time.Duration(cfg.Retry.InitialInterval))
				}
				if cfg.Retry.Multiplier != 2.0 {
					t.Errorf("expected default multiplier, got %v", cfg.Retry.Multiplier)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			globalPath := filepath.Join(tmpDir, "global", "config.json")
			projectPath := filepath.Join(tmpDir, "project", "config.json")

			if tt.globalConfig != "" {
				writeJSON(t, globalPath, tt.globalConfig)
			}
			if tt.projectConfig != "" {
				writeJSON(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")
	writeJSON(t, path, `{"task_dir": `)

	if _, err := Load(path, ""); err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown scope matching", `{"scope_matching": "fuzzy"}`},
		{"zero concurrency", `{"concurrency": 0}`},
		{"bad log level", `{"log_level": "chatty"}`},
		{"shrinking multiplier", `{"retry": {"multiplier": 0.5}}`},
		{"bad duration", `{"retry": {"max_interval": "soon"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeJSON(t, path, tt.content)

			_, err := Load("", path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}

	t.Run("validation errors wrap ErrInvalidConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		writeJSON(t, path, `{"concurrency": -1}`)
		_, err := Load("", path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestDurationAcceptsNanoseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSON(t, path, `{"retry": {"breaker_timeout": 1500000000}}`)

	cfg, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if time.Duration(cfg.Retry.BreakerTimeout) != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", time.Duration(cfg.Retry.BreakerTimeout))
	}
}

func TestDefaultPaths(t *testing.T) {
	global, project, err := DefaultPaths()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	if filepath.Base(filepath.Dir(global)) != ".taskgraph" {
		t.Errorf("unexpected global path %q", global)
	}
	if project != filepath.Join(".taskgraph", "config.json") {
		t.Errorf("unexpected project path %q", project)
	}
}
