package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Session configuration
	Session SessionConfig

	// Capture configuration
	Capture CaptureConfig

	// Remote analysis configuration
	Remote RemoteConfig

	// Database configuration
	Database DatabaseConfig

	// Daemon configuration
	Daemon DaemonConfig

	// Log configuration
	Log LogConfig
}

// SessionConfig holds the sampling loop configuration
type SessionConfig struct {
	Interval    time.Duration // How often to sample the focused window
	MinInterval time.Duration // Minimum allowed sample interval
	MaxInterval time.Duration // Maximum allowed sample interval
	OutputDir   string        // Root directory for logs, videos and reports
}

// CaptureConfig holds screen capture and encoding configuration
type CaptureConfig struct {
	FPS          float64 // Frames captured per second (0.2 = one frame every 5s)
	FrameHeight  int     // Output frame height, width follows the aspect ratio
	Encoder      string  // ffmpeg video encoder identifier
	CRF          int     // Constant rate factor
	Preset       string  // Encoder speed/size preset
	Camera       bool    // Composite a camera overlay onto each frame
	CameraDevice string  // V4L2 device used for the overlay
	CameraScale  float64 // Overlay size relative to the camera frame
	CameraMargin int     // Overlay distance from the top-right corner, in pixels
}

// RemoteConfig holds the remote analysis service configuration
type RemoteConfig struct {
	APIKey       string
	Model        string
	Prompt       string
	PollInterval time.Duration // Delay between status checks
	WaitTimeout  time.Duration // Budget for an asset to become ready
	MaxRetries   int           // Consecutive transient failures tolerated per poll loop
	RetryBackoff time.Duration // First backoff delay, doubled on each retry
}

// DatabaseConfig holds session index configuration
type DatabaseConfig struct {
	Path string // Path to SQLite database file
}

// DaemonConfig holds single-session guard configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file of the running session
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string
}

// DefaultPrompt asks for a timeline of activity with a focus assessment based on the camera overlay.
const DefaultPrompt = "请分析视频中我在做什么，按时间轴总结关键活动。" +
	"右上角有我的webcam：评估是否专注（如是否注视屏幕、明显分心动作）。" +
	"webcam下方显示现实时间：请识别关键片段的时间戳并在报告中标注，时间格式统一为MM:SS。" +
	"输出结构：\n1) 总览\n2) 关键事件（含时间戳）\n3) 专注度评估\n4) 其他观察\n5) 总结与建议。"

// MaxCaptureFPS keeps the frame interval at or above one millisecond.
const MaxCaptureFPS = 1000

// DefaultModel is the Gemini model used for video analysis.
const DefaultModel = "gemini-2.5-flash"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Interval:    5 * time.Second,
			MinInterval: 1 * time.Second,
			MaxInterval: 300 * time.Second,
			OutputDir:   "output",
		},
		Capture: CaptureConfig{
			FPS:          0.2,
			FrameHeight:  480,
			Encoder:      "libx265",
			CRF:          28,
			Preset:       "medium",
			Camera:       true,
			CameraDevice: "/dev/video0",
			CameraScale:  0.35,
			CameraMargin: 20,
		},
		Remote: RemoteConfig{
			Model:        DefaultModel,
			Prompt:       DefaultPrompt,
			PollInterval: 3 * time.Second,
			WaitTimeout:  300 * time.Second,
			MaxRetries:   10,
			RetryBackoff: 1 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "", // Empty means <output>/dayflow.db
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("%s/dayflow-%d.pid", os.TempDir(), os.Getuid()),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Session.Interval < c.Session.MinInterval {
		return configErrorf("DAYFLOW_INTERVAL", "sample interval (%v) cannot be less than minimum (%v)",
			c.Session.Interval, c.Session.MinInterval)
	}

	if c.Session.Interval > c.Session.MaxInterval {
		return configErrorf("DAYFLOW_INTERVAL", "sample interval (%v) cannot be greater than maximum (%v)",
			c.Session.Interval, c.Session.MaxInterval)
	}

	if c.Session.OutputDir == "" {
		return configErrorf("DAYFLOW_OUTPUT_DIR", "output directory cannot be empty")
	}

	if info, err := os.Stat(c.Session.OutputDir); err == nil && !info.IsDir() {
		return configErrorf("DAYFLOW_OUTPUT_DIR", "output path %s is not a directory", c.Session.OutputDir)
	}

	if !(c.Capture.FPS > 0) || c.Capture.FPS > MaxCaptureFPS {
		return configErrorf("DAYFLOW_CAPTURE_FPS", "capture fps must be in (0, %v], got %v", MaxCaptureFPS, c.Capture.FPS)
	}

	if c.Capture.FrameHeight < 2 || c.Capture.FrameHeight%2 != 0 {
		return configErrorf("DAYFLOW_FRAME_HEIGHT", "frame height must be an even number >= 2, got %d", c.Capture.FrameHeight)
	}

	if c.Capture.Encoder == "" {
		return configErrorf("DAYFLOW_ENCODER", "video encoder cannot be empty")
	}

	if c.Capture.CameraScale <= 0 || c.Capture.CameraScale > 1 {
		return configErrorf("DAYFLOW_CAMERA_SCALE", "camera scale must be in (0, 1], got %v", c.Capture.CameraScale)
	}

	if c.Remote.PollInterval <= 0 {
		return configErrorf("DAYFLOW_POLL_INTERVAL", "poll interval must be positive")
	}

	if c.Remote.WaitTimeout < c.Remote.PollInterval {
		return configErrorf("DAYFLOW_WAIT_TIMEOUT", "wait timeout (%v) cannot be shorter than the poll interval (%v)",
			c.Remote.WaitTimeout, c.Remote.PollInterval)
	}

	if c.Remote.MaxRetries < 0 {
		return configErrorf("DAYFLOW_MAX_RETRIES", "max retries cannot be negative")
	}

	if c.Daemon.PIDFile == "" {
		return configErrorf("DAYFLOW_PID_FILE", "PID file path cannot be empty")
	}

	return nil
}

// RequireAPIKey reports a ConfigurationError when no remote credential is configured.
func (c *Config) RequireAPIKey() error {
	if c.Remote.APIKey == "" {
		return configErrorf("GEMINI_API_KEY", "missing API key, set GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	return nil
}

// SetInterval sets the sample interval with validation
func (c *Config) SetInterval(interval time.Duration) error {
	if interval < c.Session.MinInterval {
		return fmt.Errorf("sample interval cannot be less than %v", c.Session.MinInterval)
	}
	if interval > c.Session.MaxInterval {
		return fmt.Errorf("sample interval cannot be greater than %v", c.Session.MaxInterval)
	}
	c.Session.Interval = interval
	return nil
}

// CaptureInterval returns the delay between two captured frames
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(math.Round(float64(time.Second) / c.Capture.FPS))
}

// LogsDir returns the directory holding activity logs
func (c *Config) LogsDir() string {
	return filepath.Join(c.Session.OutputDir, "logs")
}

// VideosDir returns the directory holding session videos
func (c *Config) VideosDir() string {
	return filepath.Join(c.Session.OutputDir, "videos")
}

// ReportsDir returns the directory holding analysis reports
func (c *Config) ReportsDir() string {
	return filepath.Join(c.Session.OutputDir, "reports")
}

// DatabasePath returns the session index path, defaulting under the output directory
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Session.OutputDir, "dayflow.db")
}

// String returns a string representation of the config
func (c *Config) String() string {
	apiKey := "(unset)"
	if c.Remote.APIKey != "" {
		apiKey = "(set)"
	}
	return fmt.Sprintf(`Configuration:
  Session:
    Interval: %v
    Output Dir: %s
  Capture:
    FPS: %v
    Frame Height: %d
    Encoder: %s (crf %d, preset %s)
    Camera: %v (%s)
  Remote:
    Model: %s
    API Key: %s
    Poll Interval: %v
    Wait Timeout: %v
    Max Retries: %d
  Database:
    Path: %s
  Daemon:
    PID File: %s`,
		c.Session.Interval,
		c.Session.OutputDir,
		c.Capture.FPS,
		c.Capture.FrameHeight,
		c.Capture.Encoder,
		c.Capture.CRF,
		c.Capture.Preset,
		c.Capture.Camera,
		c.Capture.CameraDevice,
		c.Remote.Model,
		apiKey,
		c.Remote.PollInterval,
		c.Remote.WaitTimeout,
		c.Remote.MaxRetries,
		c.DatabasePath(),
		c.Daemon.PIDFile,
	)
}
