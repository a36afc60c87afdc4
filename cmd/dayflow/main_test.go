package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/internal/remote"
	"github.com/dayflow/dayflow/pkg/window"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"upload", &remote.UploadError{Path: "a.mp4", Err: errors.New("boom")}, "The video didn't upload"},
		{"timeout", fmt.Errorf("export: %w", &remote.TimeoutError{Name: "files/a"}), "The model never finished processing the video"},
		{"service", &remote.ServiceError{Op: "process", Name: "files/a", Message: "file is FAILED"}, "The remote service reported a failure"},
		{"unreachable", fmt.Errorf("analyze: %w", &remote.ServiceError{Op: "generate", Code: 503, Transient: true}), "The remote service is unreachable, retries exhausted"},
		{"upload unreachable", &remote.UploadError{Path: "a.mp4", Err: &remote.ServiceError{Op: "upload", Transient: true}}, "The video didn't upload"},
		{"config", &config.ConfigurationError{Key: "GEMINI_API_KEY", Message: "missing"}, "Invalid configuration"},
		{"device", window.Unavailable("display", "no X display", nil), "A required device is unavailable"},
		{"canceled", context.Canceled, "Interrupted"},
		{"other", errors.New("disk full"), "Command failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeError(tt.err); got != tt.want {
				t.Errorf("describeError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnalyzeRequestFlags(t *testing.T) {
	handleFlag, promptFlag, startFlag, endFlag, fpsFlag, waitFlag = "files/abc", "summarize", "01:30", "2:00:00", 0.5, true
	t.Cleanup(func() {
		handleFlag, promptFlag, startFlag, endFlag, fpsFlag, waitFlag = "", "", "", "", 0, false
	})

	req, err := analyzeRequest()
	if err != nil {
		t.Fatalf("analyzeRequest() error: %v", err)
	}
	if req.Name != "files/abc" || req.Prompt != "summarize" || !req.Wait || req.FPS != 0.5 {
		t.Errorf("request = %+v", req)
	}
	if req.Start != 90*time.Second || req.End != 2*time.Hour {
		t.Errorf("offsets = %v..%v, want 1m30s..2h0m0s", req.Start, req.End)
	}

	startFlag = "1:75"
	if _, err := analyzeRequest(); err == nil {
		t.Error("analyzeRequest() accepted 75 seconds")
	}

	startFlag, fpsFlag = "", -1
	if _, err := analyzeRequest(); err == nil {
		t.Error("analyzeRequest() accepted negative fps")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0b6c9f2e-1111-2222"); got != "0b6c9f2e" {
		t.Errorf("shortID() = %s", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %s", got)
	}
}

func TestAPIKeyFlagOverridesEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvFileVar, "")
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("DAYFLOW_OUTPUT_DIR", dir)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Remote.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.Remote.APIKey)
	}

	apiKeyFlag = "from-flag"
	t.Cleanup(func() { apiKeyFlag = "" })

	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Remote.APIKey != "from-flag" {
		t.Errorf("APIKey = %q, want from-flag", cfg.Remote.APIKey)
	}
	if rootCmd.PersistentFlags().Lookup("api-key") == nil {
		t.Error("--api-key is not a persistent flag")
	}
}

func TestFormatFailureCounts(t *testing.T) {
	counts := map[string]int64{
		models.SourceCamera: 2,
		models.SourceWindow: 3,
		"encoder":           1,
		models.SourceScreen: 0,
	}
	if got, want := formatFailureCounts(counts), "window 3, camera 2, encoder 1"; got != want {
		t.Errorf("formatFailureCounts() = %q, want %q", got, want)
	}
}

func TestRecentSampleErrors(t *testing.T) {
	var errs []*models.SampleError
	for i := 0; i < 5; i++ {
		errs = append(errs, &models.SampleError{ID: uint(i + 1)})
	}

	got := recentSampleErrors(errs, 3)
	if len(got) != 3 || got[0].ID != 3 || got[2].ID != 5 {
		t.Errorf("recentSampleErrors() kept IDs %v", ids(got))
	}
	if got := recentSampleErrors(errs[:2], 3); len(got) != 2 {
		t.Errorf("recentSampleErrors() = %d errors, want 2", len(got))
	}
}

func ids(errs []*models.SampleError) []uint {
	out := make([]uint, len(errs))
	for i, e := range errs {
		out[i] = e.ID
	}
	return out
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"start-session", "stop-session", "status", "list-sessions", "export-session",
		"analyze-log", "clear-sessions", "upload-asset", "list-assets", "get-asset",
		"analyze-asset", "version",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not registered", name)
		}
	}
}
