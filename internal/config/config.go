package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	App       AppConfig
	Auth      AuthConfig
	Store     StoreConfig
	Lock      LockConfig
	Redis     RedisConfig
	HTTP      HTTPConfig
	Reconcile ReconcileConfig
}

// Load reads the environment and checks cross-field requirements.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Store.Driver) {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvStoreDriver, StoreDriverPostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s", EnvStoreDriver, StoreDriverMemory, StoreDriverPostgres))
	}
	switch strings.ToLower(c.Lock.Driver) {
	case LockDriverLocal:
	case LockDriverRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=%s", EnvRedisURL, EnvLockDriver, LockDriverRedis))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %s or %s", EnvLockDriver, LockDriverLocal, LockDriverRedis))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvTokenTTL))
	}
	if (c.Auth.BootstrapAdminEmail == "") != (c.Auth.BootstrapAdminPassword == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvAdminEmail, EnvAdminPassword))
	}
	if c.HTTP.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvRateLimitRPS))
	}
	return errors.Join(errs...)
}

type AppConfig struct {
	Env             string        `envconfig:"STOCKROOM_APP_ENV" default:"dev"`
	Port            string        `envconfig:"STOCKROOM_APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"STOCKROOM_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"STOCKROOM_LOG_FORMAT" default:"json"`
	LogWarnStack    bool          `envconfig:"STOCKROOM_LOG_WARN_STACK" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"STOCKROOM_SHUTDOWN_TIMEOUT" default:"15s"`
	Version         string        `envconfig:"STOCKROOM_VERSION" default:"dev"`
	Commit          string        `envconfig:"STOCKROOM_COMMIT" default:"none"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Addr is the listen address derived from Port.
func (a AppConfig) Addr() string {
	if strings.Contains(a.Port, ":") {
		return a.Port
	}
	return ":" + a.Port
}

type AuthConfig struct {
	JWTSecret              string        `envconfig:"STOCKROOM_JWT_SECRET" required:"true"`
	Issuer                 string        `envconfig:"STOCKROOM_JWT_ISSUER" default:"stockroom"`
	TokenTTL               time.Duration `envconfig:"STOCKROOM_TOKEN_TTL" default:"12h"`
	BootstrapAdminEmail    string        `envconfig:"STOCKROOM_BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string        `envconfig:"STOCKROOM_BOOTSTRAP_ADMIN_PASSWORD"`
}

type StoreConfig struct {
	Driver          string        `envconfig:"STOCKROOM_STORE_DRIVER" default:"memory"`
	DSN             string        `envconfig:"STOCKROOM_DB_DSN"`
	MaxOpenConns    int           `envconfig:"STOCKROOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKROOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"STOCKROOM_DB_AUTO_MIGRATE" default:"false"`
	// MigrationsDir overrides the embedded migrations when set.
	MigrationsDir string `envconfig:"STOCKROOM_MIGRATIONS_DIR"`
}

type LockConfig struct {
	Driver string        `envconfig:"STOCKROOM_LOCK_DRIVER" default:"local"`
	Prefix string        `envconfig:"STOCKROOM_LOCK_PREFIX" default:"stockroom:lock:"`
	TTL    time.Duration `envconfig:"STOCKROOM_LOCK_TTL" default:"30s"`
	Retry  time.Duration `envconfig:"STOCKROOM_LOCK_RETRY" default:"50ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKROOM_REDIS_URL"`
	PoolSize     int           `envconfig:"STOCKROOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKROOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKROOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Options parses URL and applies the pool settings.
func (r RedisConfig) Options() (*redis.Options, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if r.PoolSize > 0 {
		opts.PoolSize = r.PoolSize
	}
	if r.MinIdleConns > 0 {
		opts.MinIdleConns = r.MinIdleConns
	}
	if r.DialTimeout > 0 {
		opts.DialTimeout = r.DialTimeout
	}
	if r.ReadTimeout > 0 {
		opts.ReadTimeout = r.ReadTimeout
	}
	if r.WriteTimeout > 0 {
		opts.WriteTimeout = r.WriteTimeout
	}
	return opts, nil
}

type HTTPConfig struct {
	RateLimitRPS      float64       `envconfig:"STOCKROOM_RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst    int           `envconfig:"STOCKROOM_RATE_LIMIT_BURST" default:"40"`
	MaxBodyBytes      int64         `envconfig:"STOCKROOM_MAX_BODY_BYTES" default:"1048576"`
	CORSOrigins       []string      `envconfig:"STOCKROOM_CORS_ORIGINS" default:"*"`
	ReadHeaderTimeout time.Duration `envconfig:"STOCKROOM_READ_HEADER_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `envconfig:"STOCKROOM_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout       time.Duration `envconfig:"STOCKROOM_IDLE_TIMEOUT" default:"120s"`
}

type ReconcileConfig struct {
	Enabled  bool          `envconfig:"STOCKROOM_RECONCILE_ENABLED" default:"true"`
	Schedule string        `envconfig:"STOCKROOM_RECONCILE_SCHEDULE" default:"@every 30s"`
	Timeout  time.Duration `envconfig:"STOCKROOM_RECONCILE_TIMEOUT" default:"20s"`
}
