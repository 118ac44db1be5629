package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix  = "HYDROPOOL_"
	EnvConfig  = EnvPrefix + "CONFIG"
	EnvEnvFile = EnvPrefix + "ENV_FILE"
)

var validate = validator.New()

// Load builds a Config by layering defaults, an optional .env file, an
// optional YAML file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env file named by HYDROPOOL_ENV_FILE, exported into the environment
//  3. YAML file named by HYDROPOOL_CONFIG
//  4. env (prefix HYDROPOOL_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if path := os.Getenv(EnvEnvFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("%w: env file %s: %w", ErrLoadConfig, path, err)
		}
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: config file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HYDROPOOL_SOURCE__KIND -> source.kind, HYDROPOOL_QUEUE_SIZE -> queue_size.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrLoadConfig, err)
	}
	// The control variables are not settings.
	k.Delete("config")
	k.Delete("env_file")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the source settings each kind needs. The
// evaluation declaration is validated when a factory is built from it.
func (c *Config) Validate() error {
	if err := validate.StructExcept(c, "Evaluation"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Source.Kind {
	case SourcePostgres, SourceClickHouse:
		if c.Source.DSN == "" {
			return fmt.Errorf("%w: source kind %s needs a dsn", ErrInvalidConfig, c.Source.Kind)
		}
	case SourceSQLite, SourceArchive:
		if c.Source.Path == "" {
			return fmt.Errorf("%w: source kind %s needs a path", ErrInvalidConfig, c.Source.Kind)
		}
	}
	return nil
}
