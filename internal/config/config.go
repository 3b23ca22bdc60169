// Package config loads the service configuration from a YAML file and lets
// environment variables override individual values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Detector DetectorConfig `yaml:"detector"`
	Engine   EngineConfig   `yaml:"engine"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	GinMode         string        `yaml:"gin_mode"`
}

// RedisConfig controls the packet window and attack store. With Enabled false
// the service runs stateless: the analysis endpoints work, ingestion and the
// periodic engine are off.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Retention time.Duration `yaml:"retention"`
	History   int           `yaml:"history"`
}

type DetectorConfig struct {
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
	Trees         int     `yaml:"trees"`
	MaxSamples    int     `yaml:"max_samples"`
}

type EngineConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Window     time.Duration `yaml:"window"`
	BatchLimit int           `yaml:"batch_limit"`
	MinPackets int           `yaml:"min_packets"`
}

type AlertsConfig struct {
	DDoSLabelThreshold     int           `yaml:"ddos_label_threshold"`
	PortScanLabelThreshold int           `yaml:"portscan_label_threshold"`
	PortScanDistinctPorts  int           `yaml:"portscan_distinct_ports"`
	SYNFloodThreshold      int           `yaml:"syn_flood_threshold"`
	RateThreshold          float64       `yaml:"rate_threshold"`
	DedupWindow            time.Duration `yaml:"dedup_window"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8888",
			ShutdownTimeout: 10 * time.Second,
			GinMode:         "release",
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			Retention: 5 * time.Minute,
			History:   100,
		},
		Detector: DetectorConfig{
			Contamination: 0.1,
			Seed:          42,
			Trees:         100,
			MaxSamples:    256,
		},
		Engine: EngineConfig{
			Interval:   5 * time.Second,
			Window:     time.Minute,
			BatchLimit: 100,
			MinPackets: 10,
		},
		Alerts: AlertsConfig{
			DDoSLabelThreshold:     30,
			PortScanLabelThreshold: 20,
			PortScanDistinctPorts:  15,
			SYNFloodThreshold:      100,
			RateThreshold:          200,
			DedupWindow:            time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = GetEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.GinMode = GetEnv("GIN_MODE", c.Server.GinMode)

	c.Redis.Enabled = GetEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)

	c.Engine.Interval = GetEnvDuration("ENGINE_INTERVAL", c.Engine.Interval)
	c.Engine.Window = GetEnvDuration("ENGINE_WINDOW", c.Engine.Window)

	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
}

// Validate rejects values the detector or engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Detector.Contamination <= 0 || c.Detector.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("detector.contamination must be in (0, 0.5], got %v", c.Detector.Contamination))
	}
	if c.Detector.Trees <= 0 {
		errs = append(errs, fmt.Errorf("detector.trees must be positive, got %d", c.Detector.Trees))
	}
	if c.Detector.MaxSamples <= 0 {
		errs = append(errs, fmt.Errorf("detector.max_samples must be positive, got %d", c.Detector.MaxSamples))
	}
	if c.Engine.Interval <= 0 {
		errs = append(errs, fmt.Errorf("engine.interval must be positive, got %v", c.Engine.Interval))
	}
	if c.Engine.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("engine.batch_limit must be positive, got %d", c.Engine.BatchLimit))
	}
	if c.Engine.MinPackets > c.Engine.BatchLimit {
		errs = append(errs, fmt.Errorf("engine.min_packets (%d) exceeds engine.batch_limit (%d)", c.Engine.MinPackets, c.Engine.BatchLimit))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvInt returns the integer for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvBool returns the boolean for key, or defaultValue if unset/invalid.
func GetEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return b
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}
