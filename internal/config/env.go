package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvFileVar names the variable that points at an alternative .env file.
const EnvFileVar = "DAYFLOW_ENV_FILE"

// Load builds a Config from defaults, an optional .env file and the environment.
// A missing .env is ignored; environment variables override values from the file.
func Load() (*Config, error) {
	v := viper.New()

	envFile := os.Getenv(EnvFileVar)
	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && os.Getenv(EnvFileVar) != "" {
		return nil, &ConfigurationError{Key: EnvFileVar, Message: "cannot read " + envFile, Err: err}
	}

	v.AutomaticEnv()

	cfg := Default()
	if err := LoadFromViper(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromViper overrides cfg with every key present in v
func LoadFromViper(v *viper.Viper, cfg *Config) error {
	// Session configuration
	if v.IsSet("DAYFLOW_INTERVAL") {
		d, err := parseSeconds(v.GetString("DAYFLOW_INTERVAL"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_INTERVAL", Message: "invalid interval", Err: err}
		}
		cfg.Session.Interval = d
	}

	if dir := v.GetString("DAYFLOW_OUTPUT_DIR"); dir != "" {
		cfg.Session.OutputDir = dir
	}

	// Capture configuration
	if v.IsSet("DAYFLOW_CAPTURE_FPS") {
		fps, err := strconv.ParseFloat(v.GetString("DAYFLOW_CAPTURE_FPS"), 64)
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_CAPTURE_FPS", Message: "invalid fps", Err: err}
		}
		cfg.Capture.FPS = fps
	}

	if v.IsSet("DAYFLOW_FRAME_HEIGHT") {
		h, err := strconv.Atoi(v.GetString("DAYFLOW_FRAME_HEIGHT"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_FRAME_HEIGHT", Message: "invalid frame height", Err: err}
		}
		cfg.Capture.FrameHeight = h
	}

	if encoder := v.GetString("DAYFLOW_ENCODER"); encoder != "" {
		cfg.Capture.Encoder = encoder
	}

	if v.IsSet("DAYFLOW_CRF") {
		crf, err := strconv.Atoi(v.GetString("DAYFLOW_CRF"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_CRF", Message: "invalid crf", Err: err}
		}
		cfg.Capture.CRF = crf
	}

	if preset := v.GetString("DAYFLOW_PRESET"); preset != "" {
		cfg.Capture.Preset = preset
	}

	if v.IsSet("DAYFLOW_CAMERA") {
		enabled, err := strconv.ParseBool(v.GetString("DAYFLOW_CAMERA"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_CAMERA", Message: "expected true or false", Err: err}
		}
		cfg.Capture.Camera = enabled
	}

	if device := v.GetString("DAYFLOW_CAMERA_DEVICE"); device != "" {
		cfg.Capture.CameraDevice = device
	}

	if v.IsSet("DAYFLOW_CAMERA_SCALE") {
		scale, err := strconv.ParseFloat(v.GetString("DAYFLOW_CAMERA_SCALE"), 64)
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_CAMERA_SCALE", Message: "invalid scale", Err: err}
		}
		cfg.Capture.CameraScale = scale
	}

	// Remote configuration
	if key := v.GetString("GEMINI_API_KEY"); key != "" {
		cfg.Remote.APIKey = key
	} else if key := v.GetString("GOOGLE_API_KEY"); key != "" {
		cfg.Remote.APIKey = key
	}

	if model := v.GetString("DAYFLOW_MODEL"); model != "" {
		cfg.Remote.Model = model
	}

	if prompt := v.GetString("DAYFLOW_PROMPT"); prompt != "" {
		cfg.Remote.Prompt = prompt
	}

	if v.IsSet("DAYFLOW_POLL_INTERVAL") {
		d, err := parseSeconds(v.GetString("DAYFLOW_POLL_INTERVAL"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_POLL_INTERVAL", Message: "invalid poll interval", Err: err}
		}
		cfg.Remote.PollInterval = d
	}

	if v.IsSet("DAYFLOW_WAIT_TIMEOUT") {
		d, err := parseSeconds(v.GetString("DAYFLOW_WAIT_TIMEOUT"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_WAIT_TIMEOUT", Message: "invalid wait timeout", Err: err}
		}
		cfg.Remote.WaitTimeout = d
	}

	if v.IsSet("DAYFLOW_MAX_RETRIES") {
		n, err := strconv.Atoi(v.GetString("DAYFLOW_MAX_RETRIES"))
		if err != nil {
			return &ConfigurationError{Key: "DAYFLOW_MAX_RETRIES", Message: "invalid retry count", Err: err}
		}
		cfg.Remote.MaxRetries = n
	}

	// Database and daemon configuration
	if dbPath := v.GetString("DAYFLOW_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if pidFile := v.GetString("DAYFLOW_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	if level := v.GetString("DAYFLOW_LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}

	return nil
}

// parseSeconds accepts either a bare number of seconds ("5", "0.5") or a Go duration ("1m30s").
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
