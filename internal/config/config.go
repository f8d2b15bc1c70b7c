package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ridestore/internal/utils"
)

type Config struct {
	App      *AppConfig      `yaml:"app"`
	Database *DatabaseConfig `yaml:"database"`
	Redis    *RedisConfig    `yaml:"redis"`
	RabbitMQ *RabbitMQConfig `yaml:"rabbitmq"`
	Store    *StoreConfig    `yaml:"store"`
	Events   *EventsConfig   `yaml:"events"`
}

type AppConfig struct {
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	Environment    string        `yaml:"environment"`
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	Debug          bool          `yaml:"debug"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	AuditLogOutput string        `yaml:"audit_log_output"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Load reads the environment, then overlays the YAML file named by
// CONFIG_FILE when set.
func Load() (*Config, error) {
	config := &Config{
		App:      loadAppConfig(),
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(),
		RabbitMQ: loadRabbitMQConfig(),
		Store:    loadStoreConfig(),
		Events:   loadEventsConfig(),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.ConsistencyMode {
	case utils.ConsistencyStrict, utils.ConsistencyWarn:
	default:
		return fmt.Errorf("invalid store consistency mode %q", c.Store.ConsistencyMode)
	}
	switch c.Store.JournalBackend {
	case utils.JournalNone, utils.JournalFile, utils.JournalMongoDB:
	default:
		return fmt.Errorf("invalid store journal backend %q", c.Store.JournalBackend)
	}
	if c.Store.JournalBackend == utils.JournalFile && strings.TrimSpace(c.Store.JournalDir) == "" {
		return fmt.Errorf("store journal dir is required for the file backend")
	}
	switch c.Events.Publisher {
	case utils.PublisherNone, utils.PublisherRedis, utils.PublisherRabbitMQ:
	default:
		return fmt.Errorf("invalid events publisher %q", c.Events.Publisher)
	}
	if c.Store.SnapshotEvery < 0 {
		return fmt.Errorf("store snapshot interval must not be negative")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app port %d", c.App.Port)
	}
	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:           getEnv("APP_NAME", utils.AppName),
		Version:        getEnv("APP_VERSION", utils.AppVersion),
		Environment:    getEnv("APP_ENV", "development"),
		Port:           getEnvAsInt("APP_PORT", 8080),
		Host:           getEnv("APP_HOST", "0.0.0.0"),
		Debug:          getEnvAsBool("APP_DEBUG", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		AuditLogOutput: getEnv("AUDIT_LOG_OUTPUT", "stdout"),
		ReadTimeout:    getEnvAsDuration("APP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getEnvAsDuration("APP_WRITE_TIMEOUT", 15*time.Second),
		AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
