package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config holds all application configuration
type Config struct {
	// Analysis defaults, overridable per run
	Analysis AnalysisConfig `yaml:"analysis"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Session persistence
	Store StoreConfig `yaml:"store"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// File exports
	Export ExportConfig `yaml:"export"`
}

type AnalysisConfig struct {
	IntervalSec   float64 `yaml:"interval_sec"`
	Sensitivity   float64 `yaml:"sensitivity"`
	Workers       int     `yaml:"workers"`
	MaxFrameWidth int     `yaml:"max_frame_width"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	ProbePath   string `yaml:"probe_path"`
	Threads     int    `yaml:"threads"`
	DecodeWidth int    `yaml:"decode_width"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	// Password is overridden by EnvPGPassword when set
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// DSN returns the connection string for pgx
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.DBName,
	}
	return u.String()
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	CacheSize int    `yaml:"cache_size"`
	// MaxUploadMB caps multipart uploads to POST /api/analyze
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

type ExportConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks values that would make every analysis fail
func (c *Config) Validate() error {
	var errs []error

	a := c.Analysis
	if a.IntervalSec <= 0 || math.IsNaN(a.IntervalSec) || math.IsInf(a.IntervalSec, 0) {
		errs = append(errs, fmt.Errorf("analysis.interval_sec must be positive, got %v", a.IntervalSec))
	}
	if math.IsNaN(a.Sensitivity) || math.IsInf(a.Sensitivity, 0) {
		errs = append(errs, fmt.Errorf("analysis.sensitivity must be finite"))
	}
	if a.Workers < 0 {
		errs = append(errs, fmt.Errorf("analysis.workers cannot be negative, got %d", a.Workers))
	}
	if a.MaxFrameWidth < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_frame_width cannot be negative, got %d", a.MaxFrameWidth))
	}
	if c.FFmpeg.Threads < 0 || c.FFmpeg.DecodeWidth < 0 {
		errs = append(errs, fmt.Errorf("ffmpeg.threads and ffmpeg.decode_width cannot be negative"))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Store.Postgres.Host == "" || c.Store.Postgres.DBName == "" {
			errs = append(errs, fmt.Errorf("store.postgres.host and store.postgres.dbname are required"))
		}
	case DriverNone, "":
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Server.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("server.cache_size cannot be negative, got %d", c.Server.CacheSize))
	}

	return errors.Join(errs...)
}

// Environment variables applied over the config file by Load
const (
	EnvStoreDriver = "CUTRHYTHM_STORE_DRIVER"
	EnvPGPassword  = "CUTRHYTHM_PG_PASSWORD"
	EnvWorkers     = "CUTRHYTHM_WORKERS"
)

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(EnvPGPassword); v != "" {
		c.Store.Postgres.Password = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analysis.Workers = n
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			IntervalSec:   1.0,
			Sensitivity:   6,
			Workers:       0,
			MaxFrameWidth: 320,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(homeDir(), ".cutrhythm", "sessions.db"),
			Postgres: PostgresConfig{
				Host:   "localhost",
				Port:   5432,
				User:   "postgres",
				DBName: "cutrhythm",
			},
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8788",
			CacheSize:   32,
			MaxUploadMB: 2048,
		},
		Export: ExportConfig{
			Dir:     "./exports",
			Formats: []string{"json", "scenes-csv", "shots-csv"},
		},
	}
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// DefaultPath is where `config init` writes a new file
func DefaultPath() string {
	return filepath.Join(homeDir(), ".cutrhythm", "config.yaml")
}

func findConfigFile() string {
	candidates := []string{
		"./cutrhythm.yaml",
		"./cutrhythm.yml",
		DefaultPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
