package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"callsheet/internal/models"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
// Values come from defaults, then the optional YAML file, then environment variables.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`

	// Remote store
	MongoURI      string        `yaml:"mongodb_uri"` // Empty runs on the in-memory store
	MongoDatabase string        `yaml:"mongodb_database"`
	RedisURL      string        `yaml:"redis_url"`     // Optional change-notification fallback
	PollInterval  time.Duration `yaml:"poll_interval"` // Last-resort change detection

	// Identity
	JWTSecret string `yaml:"jwt_secret"`

	// Forecast provider
	ForecastBaseURL       string        `yaml:"forecast_base_url"`
	ForecastDays          int           `yaml:"forecast_days"`
	ForecastRatePerSecond float64       `yaml:"forecast_rate_per_second"`
	ForecastTimeout       time.Duration `yaml:"forecast_timeout"`
	PrefetchCron          string        `yaml:"prefetch_cron"` // Empty disables prefetching
	PrefetchDays          int           `yaml:"prefetch_days"`

	// Schedule
	Timezone          string `yaml:"timezone"`
	DayAnchorHour     int    `yaml:"day_anchor_hour"`
	ConditionalWrites bool   `yaml:"conditional_writes"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Port:                  "3001",
		Environment:           "development",
		MongoDatabase:         "callsheet",
		PollInterval:          5 * time.Second,
		ForecastBaseURL:       "https://api.open-meteo.com",
		ForecastDays:          16,
		ForecastRatePerSecond: 1,
		ForecastTimeout:       15 * time.Second,
		PrefetchCron:          "0 5 * * *",
		PrefetchDays:          7,
		Timezone:              "Local",
		DayAnchorHour:         models.DefaultAnchorHour,
	}
}

// Load loads configuration. CALLSHEET_CONFIG_PATH names an optional YAML file.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CALLSHEET_CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.PollInterval = getDurationEnv("POLL_INTERVAL", c.PollInterval)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.ForecastBaseURL = getEnv("FORECAST_BASE_URL", c.ForecastBaseURL)
	c.ForecastDays = getIntEnv("FORECAST_DAYS", c.ForecastDays)
	c.ForecastRatePerSecond = getFloatEnv("FORECAST_RATE_PER_SECOND", c.ForecastRatePerSecond)
	c.ForecastTimeout = getDurationEnv("FORECAST_TIMEOUT", c.ForecastTimeout)
	c.PrefetchCron = getEnv("PREFETCH_CRON", c.PrefetchCron)
	c.PrefetchDays = getIntEnv("PREFETCH_DAYS", c.PrefetchDays)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.DayAnchorHour = getIntEnv("DAY_ANCHOR_HOUR", c.DayAnchorHour)
	c.ConditionalWrites = getBoolEnv("CONDITIONAL_WRITES", c.ConditionalWrites)
}

// Location resolves the configured time zone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Calendar builds the calendar used for day matching
func (c *Config) Calendar() models.Calendar {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return models.NewCalendar(loc, c.DayAnchorHour)
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
