package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

type Config struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	DatabaseURL     string        `mapstructure:"database_url"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTIssuer          string        `mapstructure:"jwt_issuer"`
	MFAJWTSecret       string        `mapstructure:"mfa_jwt_secret"`
	ChallengeTokenTTL  time.Duration `mapstructure:"challenge_token_ttl"`
	TOTPIssuer         string        `mapstructure:"totp_issuer"`
	IdentityTimeout    time.Duration `mapstructure:"identity_timeout"`
	BcryptCost         int           `mapstructure:"bcrypt_cost"`
	RecoveryCodeCount  int           `mapstructure:"recovery_code_count"`
	RecoveryCodeLength int           `mapstructure:"recovery_code_length"`
	AuditQueryLimit    int           `mapstructure:"audit_query_limit"`

	RateLimitSetupMax        int           `mapstructure:"rate_limit_setup_max"`
	RateLimitSetupWindow     time.Duration `mapstructure:"rate_limit_setup_window"`
	RateLimitConfirmMax      int           `mapstructure:"rate_limit_confirm_max"`
	RateLimitConfirmWindow   time.Duration `mapstructure:"rate_limit_confirm_window"`
	RateLimitChallengeMax    int           `mapstructure:"rate_limit_challenge_max"`
	RateLimitChallengeWindow time.Duration `mapstructure:"rate_limit_challenge_window"`
	RateLimitRedeemMax       int           `mapstructure:"rate_limit_redeem_max"`
	RateLimitRedeemWindow    time.Duration `mapstructure:"rate_limit_redeem_window"`
	RateLimitDisableMax      int           `mapstructure:"rate_limit_disable_max"`
	RateLimitDisableWindow   time.Duration `mapstructure:"rate_limit_disable_window"`

	LedgerBackend   string        `mapstructure:"ledger_backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisKeyPrefix  string        `mapstructure:"redis_key_prefix"`
	LedgerRetention time.Duration `mapstructure:"ledger_retention"`

	ResendAPIKey string `mapstructure:"resend_api_key"`
	EmailFrom    string `mapstructure:"email_from"`
	AppName      string `mapstructure:"app_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("body_limit", "64K")
	v.SetDefault("shutdown_timeout", 15*time.Second)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("mfa_jwt_secret", "")
	v.SetDefault("challenge_token_ttl", 5*time.Minute)
	v.SetDefault("totp_issuer", "MFA Guard")
	v.SetDefault("identity_timeout", 5*time.Second)
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("recovery_code_count", 10)
	v.SetDefault("recovery_code_length", 10)
	v.SetDefault("audit_query_limit", 50)

	v.SetDefault("rate_limit_setup_max", 5)
	v.SetDefault("rate_limit_setup_window", time.Hour)
	v.SetDefault("rate_limit_confirm_max", 10)
	v.SetDefault("rate_limit_confirm_window", 15*time.Minute)
	v.SetDefault("rate_limit_challenge_max", 10)
	v.SetDefault("rate_limit_challenge_window", 15*time.Minute)
	v.SetDefault("rate_limit_redeem_max", 5)
	v.SetDefault("rate_limit_redeem_window", time.Hour)
	v.SetDefault("rate_limit_disable_max", 5)
	v.SetDefault("rate_limit_disable_window", time.Hour)

	v.SetDefault("ledger_backend", LedgerPostgres)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key_prefix", "mfa")
	v.SetDefault("ledger_retention", 24*time.Hour)

	v.SetDefault("resend_api_key", "")
	v.SetDefault("email_from", "")
	v.SetDefault("app_name", "MFA Guard")
}

// Load reads .env when present, then the process environment. Keys map to
// upper-case env names, e.g. jwt_secret is JWT_SECRET.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	if cfg.MFAJWTSecret == "" {
		cfg.MFAJWTSecret = cfg.JWTSecret
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.LedgerBackend {
	case LedgerPostgres:
	case LedgerRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis ledger")
		}
		if c.LedgerRetention < c.longestWindow() {
			return fmt.Errorf("LEDGER_RETENTION %s is shorter than the widest rate limit window", c.LedgerRetention)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if c.IdentityTimeout <= 0 {
		return errors.New("IDENTITY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) longestWindow() time.Duration {
	longest := c.RateLimitSetupWindow
	for _, window := range []time.Duration{c.RateLimitConfirmWindow, c.RateLimitChallengeWindow, c.RateLimitRedeemWindow, c.RateLimitDisableWindow} {
		if window > longest {
			longest = window
		}
	}
	return longest
}
