package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultGTFSURL = "https://ssl.renfe.com/ftransit/Fichero_CER_FOMENTO/fomento_transit.zip"

// Config holds all configuration for the ingester and the API server
type Config struct {
	// Database
	DatabaseURL string `yaml:"database_url" validate:"required"`
	TablePrefix string `yaml:"table_prefix" validate:"omitempty,max=32"`

	// Static feed
	GTFSStaticURL     string        `yaml:"gtfs_static_url" validate:"required,url"`
	GTFSFallbackURL   string        `yaml:"gtfs_fallback_url" validate:"omitempty,url"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	FetchRetries      int           `yaml:"fetch_retries" validate:"gte=0,lte=10"`
	IngestInterval    time.Duration `yaml:"ingest_interval" validate:"gt=0"`
	StaticRefreshDays int           `yaml:"static_refresh_days" validate:"gte=0"`
	RunRetentionDays  int           `yaml:"run_retention_days" validate:"gte=1"`

	// API
	Port             string        `yaml:"port" validate:"required,numeric"`
	Timezone         string        `yaml:"timezone" validate:"required"`
	CORSOrigins      []string      `yaml:"cors_origins" validate:"dive,required"`
	StationsCacheTTL time.Duration `yaml:"stations_cache_ttl" validate:"gte=0"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		DatabaseURL:       "sqlite:horarios.db",
		GTFSStaticURL:     DefaultGTFSURL,
		FetchTimeout:      120 * time.Second,
		FetchRetries:      0,
		IngestInterval:    time.Hour,
		StaticRefreshDays: 1,
		RunRetentionDays:  30,
		Port:              "8080",
		Timezone:          "Local",
		CORSOrigins:       []string{"*"},
		StationsCacheTTL:  60 * time.Second,
	}
}

// LoadDotEnv loads .env then .env.local (which overrides) from dir.
// Missing files are ignored.
func LoadDotEnv(dir string) {
	_ = godotenv.Load(dir + "/.env")
	_ = godotenv.Overload(dir + "/.env.local")
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order, then
// validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
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
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.TablePrefix = getEnv("TABLE_PREFIX", c.TablePrefix)

	c.GTFSStaticURL = getEnv("GTFS_STATIC_URL", c.GTFSStaticURL)
	c.GTFSFallbackURL = getEnv("GTFS_FALLBACK_URL", c.GTFSFallbackURL)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.FetchRetries = getEnvInt("FETCH_RETRIES", c.FetchRetries)
	c.IngestInterval = getEnvDuration("INGEST_INTERVAL", c.IngestInterval)
	c.StaticRefreshDays = getEnvInt("STATIC_REFRESH_DAYS", c.StaticRefreshDays)
	c.RunRetentionDays = getEnvInt("RUN_RETENTION_DAYS", c.RunRetentionDays)

	c.Port = getEnv("PORT", c.Port)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitList(origins)
	}
	c.StationsCacheTTL = getEnvDuration("STATIONS_CACHE_TTL", c.StationsCacheTTL)
}

// Validate checks field constraints and that the timezone exists
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the timezone used for the departure reference time
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RunRetention returns how long ingest run records are kept
func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.RunRetentionDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "6h") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
