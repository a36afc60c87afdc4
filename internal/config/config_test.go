package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv(EnvFileVar, "")
	t.Chdir(t.TempDir())
	t.Setenv("DAYFLOW_INTERVAL", "10")
	t.Setenv("DAYFLOW_OUTPUT_DIR", "/tmp/dayflow-out")
	t.Setenv("DAYFLOW_CAMERA", "false")
	t.Setenv("DAYFLOW_POLL_INTERVAL", "2s")
	t.Setenv("DAYFLOW_MAX_RETRIES", "4")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Session.Interval != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", cfg.Session.Interval)
	}
	if cfg.Session.OutputDir != "/tmp/dayflow-out" {
		t.Errorf("OutputDir = %s, want /tmp/dayflow-out", cfg.Session.OutputDir)
	}
	if cfg.Capture.Camera {
		t.Error("Camera = true, want false")
	}
	if cfg.Remote.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Remote.PollInterval)
	}
	if cfg.Remote.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.Remote.MaxRetries)
	}
	if cfg.Remote.APIKey != "google-key" {
		t.Errorf("APIKey = %q, want google-key", cfg.Remote.APIKey)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.env")
	content := "GEMINI_API_KEY=from-file\nDAYFLOW_MODEL=gemini-2.5-pro\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvFileVar, envPath)
	t.Setenv("DAYFLOW_MODEL", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Remote.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.Remote.APIKey)
	}
	if cfg.Remote.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q, want gemini-2.5-pro", cfg.Remote.Model)
	}
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	t.Setenv(EnvFileVar, filepath.Join(t.TempDir(), "nope.env"))

	_, err := Load()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want ConfigurationError", err)
	}
	if cfgErr.Key != EnvFileVar {
		t.Errorf("Key = %s, want %s", cfgErr.Key, EnvFileVar)
	}
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv(EnvFileVar, "")
	t.Chdir(t.TempDir())
	t.Setenv("DAYFLOW_CRF", "high")

	_, err := Load()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want ConfigurationError", err)
	}
	if cfgErr.Key != "DAYFLOW_CRF" {
		t.Errorf("Key = %s, want DAYFLOW_CRF", cfgErr.Key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "interval too low", mutate: func(c *Config) { c.Session.Interval = 100 * time.Millisecond }, wantKey: "DAYFLOW_INTERVAL"},
		{name: "interval too high", mutate: func(c *Config) { c.Session.Interval = time.Hour }, wantKey: "DAYFLOW_INTERVAL"},
		{name: "empty output", mutate: func(c *Config) { c.Session.OutputDir = "" }, wantKey: "DAYFLOW_OUTPUT_DIR"},
		{name: "zero fps", mutate: func(c *Config) { c.Capture.FPS = 0 }, wantKey: "DAYFLOW_CAPTURE_FPS"},
		{name: "huge fps", mutate: func(c *Config) { c.Capture.FPS = 5e9 }, wantKey: "DAYFLOW_CAPTURE_FPS"},
		{name: "nan fps", mutate: func(c *Config) { c.Capture.FPS = math.NaN() }, wantKey: "DAYFLOW_CAPTURE_FPS"},
		{name: "max fps", mutate: func(c *Config) { c.Capture.FPS = MaxCaptureFPS }},
		{name: "odd height", mutate: func(c *Config) { c.Capture.FrameHeight = 481 }, wantKey: "DAYFLOW_FRAME_HEIGHT"},
		{name: "camera scale", mutate: func(c *Config) { c.Capture.CameraScale = 1.5 }, wantKey: "DAYFLOW_CAMERA_SCALE"},
		{name: "timeout below poll", mutate: func(c *Config) { c.Remote.WaitTimeout = time.Second }, wantKey: "DAYFLOW_WAIT_TIMEOUT"},
		{name: "negative retries", mutate: func(c *Config) { c.Remote.MaxRetries = -1 }, wantKey: "DAYFLOW_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Session.OutputDir = t.TempDir()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want ConfigurationError", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("Key = %s, want %s", cfgErr.Key, tt.wantKey)
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("RequireAPIKey() with no key should fail")
	}

	cfg.Remote.APIKey = "secret"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey() error: %v", err)
	}
	if strings.Contains(cfg.String(), "secret") {
		t.Error("String() leaks the API key")
	}
}

func TestDirectories(t *testing.T) {
	cfg := Default()
	cfg.Session.OutputDir = "out"

	if got := cfg.LogsDir(); got != filepath.Join("out", "logs") {
		t.Errorf("LogsDir() = %s", got)
	}
	if got := cfg.VideosDir(); got != filepath.Join("out", "videos") {
		t.Errorf("VideosDir() = %s", got)
	}
	if got := cfg.ReportsDir(); got != filepath.Join("out", "reports") {
		t.Errorf("ReportsDir() = %s", got)
	}
	if got := cfg.DatabasePath(); got != filepath.Join("out", "dayflow.db") {
		t.Errorf("DatabasePath() = %s", got)
	}

	cfg.Database.Path = "/var/lib/dayflow.db"
	if got := cfg.DatabasePath(); got != "/var/lib/dayflow.db" {
		t.Errorf("DatabasePath() = %s, want override", got)
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"5", 5 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{"1m30s", 90 * time.Second},
		{" 3s ", 3 * time.Second},
	}
	for _, tt := range tests {
		got, err := parseSeconds(tt.in)
		if err != nil {
			t.Errorf("parseSeconds(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSeconds(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := parseSeconds("soon"); err == nil {
		t.Error("parseSeconds(soon) should fail")
	}
}
