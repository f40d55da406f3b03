package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/user-permission/pkg/app"
	"github.com/tendant/user-permission/pkg/identity"
)

type PersistenceConfig struct {
	Type      string `env:"PERSISTENCE_TYPE" env-default:"memory"`
	DataDir   string `env:"FILE_DATA_DIR" env-default:"./data"`
	SQLiteDSN string `env:"SQLITE_DSN" env-default:"file:userperm.db"`
}

type PasswordConfig struct {
	HashScheme string `env:"PASSWORD_HASH_SCHEME" env-default:"sha256"`
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" env-default:"true"`
}

type Config struct {
	App         app.AppConfig
	Persistence PersistenceConfig
	Postgres    PostgresConfig
	Password    PasswordConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
}

// Load reads envFile into the process environment when it exists, then
// reads the configuration from the environment. An empty envFile skips the
// first step.
func Load(envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		slog.Debug("No .env file found (using environment variables or defaults)", "path", envFile)
		return nil
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// StoreConfig returns the settings identity.NewStore needs for the
// configured persistence type.
func (c Config) StoreConfig() identity.StoreConfig {
	return identity.StoreConfig{
		PostgresURL: c.Postgres.ConnString(),
		AutoMigrate: c.Postgres.AutoMigrate,
		SQLiteDSN:   c.Persistence.SQLiteDSN,
		DataDir:     c.Persistence.DataDir,
	}
}
