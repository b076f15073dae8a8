package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime surface. Every field has a documented default
// and an environment override; SMELT_CONFIG may point at a YAML file that is
// loaded first, with environment variables taking precedence.
type Config struct {
	Host string `yaml:"host"` // SMELT_HOST, default ""
	Port int    `yaml:"port"` // SMELT_PORT, default 5009

	FFmpegPath  string `yaml:"ffmpeg_path"`  // SMELT_FFMPEG_PATH, default "ffmpeg"
	FFprobePath string `yaml:"ffprobe_path"` // SMELT_FFPROBE_PATH, default "ffprobe"

	MaxUploadSizeMB  int `yaml:"max_upload_size_mb"`  // SMELT_MAX_UPLOAD_SIZE_MB, default 1000
	MaxOutputSizeMB  int `yaml:"max_output_size_mb"`  // SMELT_MAX_OUTPUT_SIZE_MB, default 2048
	MaxJobSeconds    int `yaml:"max_job_seconds"`     // SMELT_MAX_JOB_SECONDS, default 300
	MaxSourceSeconds int `yaml:"max_source_seconds"`  // SMELT_MAX_SOURCE_SECONDS, default 7200
	WorkerSlots      int `yaml:"worker_slots"`        // SMELT_WORKER_SLOTS, default 4
	QueueCapacity    int `yaml:"queue_capacity"`      // SMELT_QUEUE_CAPACITY, default 64
	RetentionMinutes int `yaml:"retention_minutes"`   // SMELT_RETENTION_MINUTES, default 60

	DataDir      string `yaml:"data_dir"`      // SMELT_DATA_DIR, default "/data"
	StoreBackend string `yaml:"store_backend"` // SMELT_STORE_BACKEND, sqlite|memory, default sqlite
}

func defaults() *Config {
	return &Config{
		Port:             5009,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		MaxUploadSizeMB:  1000,
		MaxOutputSizeMB:  2048,
		MaxJobSeconds:    300,
		MaxSourceSeconds: 7200,
		WorkerSlots:      4,
		QueueCapacity:    64,
		RetentionMinutes: 60,
		DataDir:          "/data",
		StoreBackend:     "sqlite",
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("SMELT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Host = getEnv("SMELT_HOST", cfg.Host)
	cfg.FFmpegPath = getEnv("SMELT_FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = getEnv("SMELT_FFPROBE_PATH", cfg.FFprobePath)
	cfg.DataDir = getEnv("SMELT_DATA_DIR", cfg.DataDir)
	cfg.StoreBackend = getEnv("SMELT_STORE_BACKEND", cfg.StoreBackend)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"SMELT_PORT", &cfg.Port},
		{"SMELT_MAX_UPLOAD_SIZE_MB", &cfg.MaxUploadSizeMB},
		{"SMELT_MAX_OUTPUT_SIZE_MB", &cfg.MaxOutputSizeMB},
		{"SMELT_MAX_JOB_SECONDS", &cfg.MaxJobSeconds},
		{"SMELT_MAX_SOURCE_SECONDS", &cfg.MaxSourceSeconds},
		{"SMELT_WORKER_SLOTS", &cfg.WorkerSlots},
		{"SMELT_QUEUE_CAPACITY", &cfg.QueueCapacity},
		{"SMELT_RETENTION_MINUTES", &cfg.RetentionMinutes},
	} {
		if err := getEnvInt(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WorkerSlots < 1 {
		return fmt.Errorf("worker_slots must be at least 1, got %d", c.WorkerSlots)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.MaxUploadSizeMB < 1 {
		return fmt.Errorf("max_upload_size_mb must be at least 1, got %d", c.MaxUploadSizeMB)
	}
	switch c.StoreBackend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

func (c *Config) MaxOutputBytes() int64 {
	return int64(c.MaxOutputSizeMB) * 1024 * 1024
}

func (c *Config) MaxJobDuration() time.Duration {
	return time.Duration(c.MaxJobSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
