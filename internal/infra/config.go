package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for both the access-broker process and
// the admin API process. Loaded with viper: a YAML file if present,
// overridden by environment variables, matching spec.md §6's ENV surface.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Credential CredentialConfig `mapstructure:"credential"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig is optional: an empty Addr means the RateLimiter runs in
// memory-only mode, per spec.md §6 ("absence switches RateLimiter to
// in-memory only").
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig bootstraps the SecretStore when no external keystore is
// configured: a single HMAC signing key from JWT_SECRET_KEY.
type AuthConfig struct {
	SigningKeySource string `mapstructure:"signing_key_source"` // "env" | "postgres"
	BcryptCost       int    `mapstructure:"bcrypt_cost"`
	JWTSecretKey     string
}

type RateLimitConfig struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type CredentialConfig struct {
	AccessTokenExpireSeconds     int `mapstructure:"access_token_expire_seconds"`
	GlobalMaxLifetimeSeconds     int `mapstructure:"global_max_lifetime_seconds"`
	CleanupIntervalSeconds       int `mapstructure:"cleanup_interval_seconds"`
	CleanupRetentionSeconds      int `mapstructure:"cleanup_retention_seconds"`
}

// ApprovalConfig governs the human-in-the-loop AccessRequest lifecycle.
type ApprovalConfig struct {
	ExpirySweepIntervalSeconds int `mapstructure:"expiry_sweep_interval_seconds"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig merges config.yaml (if present) with environment overrides,
// following the teacher's SetEnvKeyReplacer/AutomaticEnv/defaults shape.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// ENV names in spec.md §6 don't follow the "."->"_" mapstructure
	// convention (DATABASE_URL, not DATABASE_URL via database.url), so
	// they're applied explicitly on top of the viper-mapped values.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		cfg.Redis.Addr = addr
	}
	cfg.Auth.JWTSecretKey = os.Getenv("JWT_SECRET_KEY")
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_SECONDS"); v != "" {
		cfg.Credential.AccessTokenExpireSeconds = atoiDefault(v, cfg.Credential.AccessTokenExpireSeconds)
	}
	if v := os.Getenv("GLOBAL_MAX_CREDENTIAL_LIFETIME_SECONDS"); v != "" {
		cfg.Credential.GlobalMaxLifetimeSeconds = atoiDefault(v, cfg.Credential.GlobalMaxLifetimeSeconds)
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		cfg.RateLimit.Limit = atoiDefault(v, cfg.RateLimit.Limit)
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		cfg.RateLimit.WindowSeconds = atoiDefault(v, cfg.RateLimit.WindowSeconds)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Logger.Level = lvl
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("auth.signing_key_source", "env")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("credential.access_token_expire_seconds", 1800)
	v.SetDefault("credential.global_max_lifetime_seconds", 86400)
	v.SetDefault("credential.cleanup_interval_seconds", 300)
	v.SetDefault("credential.cleanup_retention_seconds", 86400)
	v.SetDefault("approval.expiry_sweep_interval_seconds", 3600)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func atoiDefault(s string, def int) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 && s != "0" {
		return def
	}
	return n
}
