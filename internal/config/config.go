package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Source  SourceConfig
	Region  RegionConfig
	Queue   QueueConfig
	DB      DatabaseConfig
	API     APIConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type SourceConfig struct {
	BaseURL        string
	PollEnabled    bool
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// RegionConfig is the monitored bounding box in decimal degrees. The box is
// split into GridSize x GridSize tiles, fetched independently.
type RegionConfig struct {
	Bottom   float64
	Left     float64
	Top      float64
	Right    float64
	GridSize int
}

// Center returns the midpoint of the region, used as the fallback position
// for alerts that arrive without coordinates.
func (r RegionConfig) Center() (lat, lon float64) {
	return (r.Bottom + r.Top) / 2, (r.Left + r.Right) / 2
}

type QueueConfig struct {
	BufferSize int
}

type DatabaseConfig struct {
	Path string
}

// APIConfig shapes the per-route token buckets. Routes that trigger an
// upstream fan-out run at half of RateLimitRPS; snapshot reads get the
// full rate. Burst is shared by both buckets.
type APIConfig struct {
	RateLimitRPS   int
	RateLimitBurst int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Source: SourceConfig{
			BaseURL:        getEnv("WAZE_URL", "https://www.waze.com/live-map/api/georss"),
			PollEnabled:    getEnvBool("POLL_ENABLED", true),
			PollInterval:   getEnvDuration("POLL_INTERVAL", 15*time.Second),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		},
		// Warsaw and its close surroundings.
		Region: RegionConfig{
			Bottom:   getEnvFloat("REGION_BOTTOM", 52.1397),
			Left:     getEnvFloat("REGION_LEFT", 20.8662),
			Top:      getEnvFloat("REGION_TOP", 52.3197),
			Right:    getEnvFloat("REGION_RIGHT", 21.1582),
			GridSize: getEnvInt("REGION_GRID", 2),
		},
		Queue: QueueConfig{
			BufferSize: getEnvInt("QUEUE_BUFFER_SIZE", 8),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", ":memory:"),
		},
		API: APIConfig{
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("WAZE_URL must not be empty")
	}
	if c.Source.PollInterval < 5*time.Second {
		return fmt.Errorf("poll interval must be at least 5 seconds")
	}
	if c.Source.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.Region.Top <= c.Region.Bottom {
		return fmt.Errorf("region top (%f) must be above bottom (%f)", c.Region.Top, c.Region.Bottom)
	}
	if c.Region.Right <= c.Region.Left {
		return fmt.Errorf("region right (%f) must be east of left (%f)", c.Region.Right, c.Region.Left)
	}
	if c.Region.GridSize < 1 || c.Region.GridSize > 8 {
		return fmt.Errorf("region grid size must be between 1 and 8, got %d", c.Region.GridSize)
	}

	if c.Queue.BufferSize < 1 {
		return fmt.Errorf("queue buffer size must be at least 1")
	}
	if c.API.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}
	if c.API.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
