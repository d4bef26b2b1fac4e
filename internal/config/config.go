package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the pawketeer service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	// Dir is where imported capture files are copied to.
	Dir string `yaml:"dir"`
	// MaxFileBytes rejects captures larger than this on import. Zero means no limit.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// AllowedExtensions lists the capture file extensions accepted on import.
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Allowed reports whether ext (lowercased, with leading dot) is an
// accepted capture extension.
func (s StorageConfig) Allowed(ext string) bool {
	for _, allowed := range s.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

type AnalysisConfig struct {
	// Workers is the number of concurrent analysis jobs.
	Workers int `yaml:"workers"`
	// QueueSize bounds how many analysis requests may wait behind the workers.
	QueueSize int `yaml:"queue_size"`
	// MaxPackets stops a run after this many packets. Zero means read the whole file.
	MaxPackets int `yaml:"max_packets"`
}

type RetentionConfig struct {
	// MaxAge prunes analyses older than this. Zero disables pruning.
	MaxAge time.Duration `yaml:"max_age"`
	// Interval is how often the pruning pass runs.
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with sensible values for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8787",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "pawketeer.db",
		},
		Storage: StorageConfig{
			Dir:               "captures",
			MaxFileBytes:      100 << 20,
			AllowedExtensions: []string{".pcap", ".pcapng", ".cap"},
		},
		Analysis: AnalysisConfig{
			Workers:    2,
			QueueSize:  32,
			MaxPackets: 0,
		},
		Retention: RetentionConfig{
			MaxAge:   0,
			Interval: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, falling back to defaults for anything unset.
// Environment variables override the file, so the same file works across
// deployments. An empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAWKETEER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PAWKETEER_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PAWKETEER_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("PAWKETEER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Workers = n
		}
	}
	if v := os.Getenv("PAWKETEER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1, got %d", c.Analysis.Workers)
	}
	if c.Analysis.QueueSize < 1 {
		return fmt.Errorf("analysis.queue_size must be at least 1, got %d", c.Analysis.QueueSize)
	}
	if len(c.Storage.AllowedExtensions) == 0 {
		return fmt.Errorf("storage.allowed_extensions must not be empty")
	}
	return nil
}

// EnsureDirs creates the storage and database directories if missing.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	if dir := filepath.Dir(c.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	return nil
}
