package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	SigningSecret   string        `env:"SESSION_SIGNING_SECRET,required,notEmpty,unset"`
	Issuer          string        `env:"SESSION_ISSUER"        envDefault:"sessionauth"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"      envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"     envDefault:"168h"`
	BcryptCost      int           `env:"PASSWORD_BCRYPT_COST"  envDefault:"10"`

	StoreDriver  string `env:"STORE_DRIVER"         envDefault:"sqlite"`
	DatabaseFile string `env:"SQLITE_DATABASE_FILE" envDefault:"auth.db"`
	PostgresDSN  string `env:"POSTGRES_DSN,unset"`

	// RefreshStore moves refresh tokens off the user store. Empty keeps them
	// next to the users.
	RefreshStore string      `env:"REFRESH_STORE"`
	Redis        RedisConfig `envPrefix:"REDIS_"`

	Bootstrap BootstrapConfig `envPrefix:"BOOTSTRAP_"`

	// HousekeepingInterval of 0 disables the expired token reaper.
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"0s"`

	Port                int           `env:"PORT"                  envDefault:"8080"`
	Env                 string        `env:"ENV"                   envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT"            envDefault:"json"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	LoginRateLimit   httpx.RateLimitConfig `envPrefix:"RATELIMIT_LOGIN_"`
	SessionRateLimit httpx.RateLimitConfig `envPrefix:"RATELIMIT_SESSION_"`

	// TrustedProxies are the peers allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means rate limits key on the socket address only.
	TrustedProxies []string `env:"RATELIMIT_TRUSTED_PROXIES" envSeparator:","`
}

type RedisConfig struct {
	Addr      string `env:"ADDR"       envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD,unset"`
	DB        int    `env:"DB"         envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"sessionauth:"`
}

// BootstrapConfig seeds the first ADMIN user into an empty directory.
type BootstrapConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD,unset"`
	Name     string `env:"NAME" envDefault:"Administrator"`
}

// Enabled reports whether a bootstrap admin was configured.
func (b BootstrapConfig) Enabled() bool { return b.Email != "" }

// LoadConfig reads Config from the process environment. A missing signing
// secret or an inconsistent store selection is an error.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom reads Config from environ instead of the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules env tags cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("SQLITE_DATABASE_FILE is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of sqlite, postgres", c.StoreDriver))
	}

	switch c.RefreshStore {
	case "", c.StoreDriver:
	case DriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis refresh store"))
		}
	default:
		errs = append(errs, fmt.Errorf("REFRESH_STORE %q must be empty, %q or redis", c.RefreshStore, c.StoreDriver))
	}

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.HousekeepingInterval < 0 {
		errs = append(errs, errors.New("HOUSEKEEPING_INTERVAL must not be negative"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_TRUSTED_PROXIES: %w", err))
	}
	if c.Bootstrap.Enabled() != (c.Bootstrap.Password != "") {
		errs = append(errs, errors.New("BOOTSTRAP_EMAIL and BOOTSTRAP_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

// UsesRedis reports whether refresh tokens live in redis.
func (c Config) UsesRedis() bool { return c.RefreshStore == DriverRedis }
