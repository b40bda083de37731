package config

const EnvPrefix = "STOCKROOM"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"

	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

const (
	EnvAppEnv        = "STOCKROOM_APP_ENV"
	EnvPort          = "STOCKROOM_APP_PORT"
	EnvLogLevel      = "STOCKROOM_LOG_LEVEL"
	EnvLogFormat     = "STOCKROOM_LOG_FORMAT"
	EnvJWTSecret     = "STOCKROOM_JWT_SECRET"
	EnvJWTIssuer     = "STOCKROOM_JWT_ISSUER"
	EnvTokenTTL      = "STOCKROOM_TOKEN_TTL"
	EnvAdminEmail    = "STOCKROOM_BOOTSTRAP_ADMIN_EMAIL"
	EnvAdminPassword = "STOCKROOM_BOOTSTRAP_ADMIN_PASSWORD"
	EnvStoreDriver   = "STOCKROOM_STORE_DRIVER"
	EnvDBDSN         = "STOCKROOM_DB_DSN"
	EnvLockDriver    = "STOCKROOM_LOCK_DRIVER"
	EnvRedisURL      = "STOCKROOM_REDIS_URL"
	EnvRateLimitRPS  = "STOCKROOM_RATE_LIMIT_RPS"
	EnvCORSOrigins   = "STOCKROOM_CORS_ORIGINS"
	EnvReconcileCron = "STOCKROOM_RECONCILE_SCHEDULE"
)
