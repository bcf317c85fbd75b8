package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIBaseURL    = "http://localhost:8000"
	DefaultViewerBaseURL = "http://localhost:9092/"
	DefaultConsolePort   = 5173
)

type Config struct {
	DataDir  string `json:"data_dir" validate:"required"`
	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile  string `json:"log_file"`
	API      struct {
		BaseURL string   `json:"base_url" validate:"required,url"`
		Timeout Duration `json:"timeout"`
	} `json:"api"`
	Viewer struct {
		BaseURL string `json:"base_url" validate:"required,url"`
	} `json:"viewer"`
	Streaming Streaming `json:"streaming"`
	Console   struct {
		Host string `json:"host"`
		Port int    `json:"port" validate:"min=1,max=65535"`
	} `json:"console"`
	Heartbeat struct {
		Interval Duration `json:"interval"`
	} `json:"heartbeat"`
	Catalog struct {
		// TTL of the console catalog cache; zero disables caching.
		TTL Duration `json:"ttl"`
	} `json:"catalog"`
}

// Streaming carries the viewer's incremental fetch tuning. These values are
// passed through to the viewer integration untouched.
type Streaming struct {
	Enabled         bool    `json:"enabled"`
	BatchSize       int     `json:"batch_size" validate:"min=1"`
	BufferThreshold int     `json:"buffer_threshold" validate:"min=0,ltefield=BatchSize"`
	MaxCachedFrames int     `json:"max_cached_frames" validate:"min=1"`
	KeepWindowRatio float64 `json:"keep_window_ratio" validate:"gte=1"`
}

// KeepWindow is the number of frames retained around the playhead:
// BatchSize * KeepWindowRatio, capped at MaxCachedFrames.
func (s Streaming) KeepWindow() int {
	w := int(float64(s.BatchSize) * s.KeepWindowRatio)
	if w > s.MaxCachedFrames {
		return s.MaxCachedFrames
	}
	return w
}

// ConsoleAddr is the listen address of the local console.
func (c *Config) ConsoleAddr() string {
	return c.Console.Host + ":" + strconv.Itoa(c.Console.Port)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir: filepath.Join(os.Getenv("HOME"), ".rerunctl"),
	}
	cfg.LogLevel = "info"
	cfg.API.BaseURL = DefaultAPIBaseURL
	cfg.API.Timeout = Seconds(10)
	cfg.Viewer.BaseURL = DefaultViewerBaseURL
	cfg.Streaming = Streaming{
		BatchSize:       100,
		BufferThreshold: 50,
		MaxCachedFrames: 1000,
		KeepWindowRatio: 2.0,
	}
	cfg.Console.Host = "0.0.0.0"
	cfg.Console.Port = DefaultConsolePort
	cfg.Heartbeat.Interval = Seconds(10)
	cfg.Catalog.TTL = Seconds(30)
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	loadDotEnv(".env")
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads a .env file into the process environment without
// overriding variables that are already set.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("ignoring unreadable env file", "path", path, "error", err)
	}
}

// applyEnv overrides cfg from the environment (highest precedence). The
// VITE_* names are accepted for deployments that share one .env with the
// web frontend.
func applyEnv(cfg *Config) {
	if v := getEnv("RERUN_API_BASE_URL", "VITE_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := getEnv("RERUN_VIEWER_BASE", "VITE_RERUN_VIEWER_BASE"); v != "" {
		cfg.Viewer.BaseURL = v
	}
	if v := getEnv("RERUN_STREAMING_MODE", "VITE_RERUN_STREAMING_MODE"); v != "" {
		cfg.Streaming.Enabled = v == "true"
	}
	if v := getEnv("RERUN_CONSOLE_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Console.Port = port
		} else {
			slog.Warn("ignoring invalid console port", "value", v)
		}
	}
	if v := getEnv("RERUN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// getEnv returns the first non-empty variable among keys.
func getEnv(keys ...string) string {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
	}
	return ""
}

var validate = validator.New()

// Validate checks field ranges and URL shapes.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, d := range map[string]Duration{
		"api.timeout":        c.API.Timeout,
		"heartbeat.interval": c.Heartbeat.Interval,
		"catalog.ttl":        c.Catalog.TTL,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("invalid config: %s must not be negative", name)
		}
	}
	return nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeDefaults(path string, cfg *Config) error {
	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg flattened to dot-separated keys.
func ListValues(cfg *Config) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	return Flatten(m), nil
}

// GetValue loads the config at path and returns the value of a
// dot-separated key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg)
	if err != nil {
		return nil, err
	}
	// Keys outside the struct live only in the raw file.
	for k, v := range Flatten(raw) {
		if _, ok := flat[k]; !ok {
			flat[k] = v
		}
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates one dot-separated key in the config file at path. The
// value is parsed as JSON when possible (numbers, booleans) and stored as a
// string otherwise. The result must still validate.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(raw)
	flat[key] = parsed
	nested := Unflatten(flat)

	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	check := Default()
	if err := json.Unmarshal(data, check); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return writeFileAtomic(path, append(data, '\n'))
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}
