package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read from the working directory when neither an
// explicit path nor CONFIG_PATH is given.
const DefaultConfigFile = "pulse.yaml"

// Avatar storage drivers.
const (
	AvatarDriverLocal = "local"
	AvatarDriverMinio = "minio"
	AvatarDriverS3    = "s3"
)

// MaxAccessTTL caps the access token lifetime. Revocation is enforced by the
// watermark, but a short TTL bounds how long a stolen token is useful.
const MaxAccessTTL = time.Hour

type Config struct {
	Env                  string        `yaml:"env" env:"ENV" env-default:"dev"`                                        // dev, staging, prod
	LogLevel             string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`                           // debug, info, warn, error
	LogFormat            string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`                         // json, text
	Port                 int           `yaml:"port" env:"PORT" env-default:"8080"`                                     // HTTP server port
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`    // Graceful shutdown timeout
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" env:"HOUSEKEEPING_INTERVAL" env-default:"1h"`     // Refresh token cleanup interval

	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Notify    NotifyConfig    `yaml:"notify"`
	Avatar    AvatarConfig    `yaml:"avatar"`
}

type DatabaseConfig struct {
	// URL is a postgres:// URL or a sqlite DSN.
	URL         string `yaml:"url" env:"DATABASE_URL" env-default:"pulse.db"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// Postgres reports whether URL selects the postgres driver.
func (d DatabaseConfig) Postgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}

type AuthConfig struct {
	Secret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer     string        `yaml:"issuer" env:"AUTH_ISSUER" env-default:"pulse"`
	AccessTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
}

type RateLimitConfig struct {
	GeneralRequests int           `yaml:"general_requests" env:"RATELIMIT_GENERAL_REQUESTS" env-default:"300"`
	GeneralWindow   time.Duration `yaml:"general_window" env:"RATELIMIT_GENERAL_WINDOW" env-default:"1m"`
	AuthRequests    int           `yaml:"auth_requests" env:"RATELIMIT_AUTH_REQUESTS" env-default:"10"`
	AuthWindow      time.Duration `yaml:"auth_window" env:"RATELIMIT_AUTH_WINDOW" env-default:"1m"`
	IPv6Prefix      int           `yaml:"ipv6_prefix" env:"RATELIMIT_IPV6_PREFIX" env-default:"64"`
	TrustProxy      bool          `yaml:"trust_proxy" env:"RATELIMIT_TRUST_PROXY" env-default:"false"`
}

type NotifyConfig struct {
	Enabled       bool          `yaml:"enabled" env:"NOTIFY_ENABLED" env-default:"true"`
	SendBuffer    int           `yaml:"send_buffer" env:"NOTIFY_SEND_BUFFER" env-default:"16"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env:"NOTIFY_WRITE_TIMEOUT" env-default:"10s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"NOTIFY_SWEEP_INTERVAL" env-default:"30s"`

	// Origins are host patterns allowed to open a websocket from a browser
	// on another origin. Empty means same origin only.
	Origins []string `yaml:"origins" env:"NOTIFY_ORIGINS" env-separator:","`
}

type AvatarConfig struct {
	Driver        string `yaml:"driver" env:"AVATAR_DRIVER" env-default:"local"`
	MaxBytes      int64  `yaml:"max_bytes" env:"AVATAR_MAX_BYTES" env-default:"2097152"`
	Dir           string `yaml:"dir" env:"AVATAR_DIR" env-default:"media"`
	Bucket        string `yaml:"bucket" env:"AVATAR_BUCKET"`
	Endpoint      string `yaml:"endpoint" env:"AVATAR_ENDPOINT"`
	AccessKey     string `yaml:"access_key" env:"AVATAR_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" env:"AVATAR_SECRET_KEY"`
	Region        string `yaml:"region" env:"AVATAR_REGION" env-default:"us-east-1"`
	PublicBaseURL string `yaml:"public_base_url" env:"AVATAR_PUBLIC_BASE_URL"`
}

// LoadConfig reads the configuration, in order of priority, from:
//  1. the explicit path
//  2. CONFIG_PATH
//  3. ./pulse.yaml
//  4. the environment alone
//
// Environment variables always override values read from a file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port <= 65535, "port must be a valid TCP port (1..65535)")
	check(c.ShutdownGracePeriod >= 0, "shutdown_grace_period must be >= 0")
	check(c.HousekeepingInterval > 0, "housekeeping_interval must be > 0")

	check(c.Database.URL != "", "database.url is required")

	check(c.Auth.Secret != "", "auth.jwt_secret is required")
	check(c.Auth.Secret == "" || len(c.Auth.Secret) >= jwtx.MinSecretBytes,
		"auth.jwt_secret must be at least %d bytes", jwtx.MinSecretBytes)
	check(c.Auth.Issuer != "", "auth.issuer is required")
	check(c.Auth.AccessTTL > 0 && c.Auth.AccessTTL <= MaxAccessTTL,
		"auth.access_token_ttl must be in (0, %s]", MaxAccessTTL)
	check(c.Auth.RefreshTTL > c.Auth.AccessTTL, "auth.refresh_token_ttl must be longer than the access token ttl")

	rl := c.RateLimit
	check(rl.GeneralRequests > 0 && rl.GeneralWindow > 0, "ratelimit.general_* must be > 0")
	check(rl.AuthRequests > 0 && rl.AuthWindow > 0, "ratelimit.auth_* must be > 0")
	check(rl.IPv6Prefix > 0 && rl.IPv6Prefix <= 128, "ratelimit.ipv6_prefix must be in 1..128")

	if c.Notify.Enabled {
		check(c.Notify.SendBuffer > 0, "notify.send_buffer must be > 0")
		check(c.Notify.WriteTimeout > 0, "notify.write_timeout must be > 0")
		check(c.Notify.SweepInterval > 0, "notify.sweep_interval must be > 0")
	}

	check(c.Avatar.MaxBytes > 0, "avatar.max_bytes must be > 0")
	switch c.Avatar.Driver {
	case AvatarDriverLocal:
		check(c.Avatar.Dir != "", "avatar.dir is required for the local driver")
	case AvatarDriverMinio:
		check(c.Avatar.Endpoint != "", "avatar.endpoint is required for the minio driver")
		check(c.Avatar.Bucket != "", "avatar.bucket is required for the minio driver")
		check(c.Avatar.AccessKey != "" && c.Avatar.SecretKey != "", "avatar access and secret keys are required for the minio driver")
	case AvatarDriverS3:
		check(c.Avatar.Bucket != "", "avatar.bucket is required for the s3 driver")
		check(c.Avatar.Region != "", "avatar.region is required for the s3 driver")
	default:
		errs = append(errs, fmt.Errorf("avatar.driver %q is not one of local, minio, s3", c.Avatar.Driver))
	}

	return errors.Join(errs...)
}
