// Package config collects the call service's environment configuration in
// one place. Secrets support the Docker-secret _FILE convention via pkg/env.
package config

import (
	"time"

	"github.com/Loonyc-c/flint-sub001/pkg/database"
	"github.com/Loonyc-c/flint-sub001/pkg/env"
)

// Config holds the call service configuration
type Config struct {
	Env  string
	Port string

	JWTSecret string

	DB    *database.CockroachConfig
	Redis *database.RedisConfig

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetString("PORT", "8084"),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		DB: &database.CockroachConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "flint"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
		},

		Redis: &database.RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},

		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
