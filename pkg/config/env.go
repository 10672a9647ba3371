package config

const (
	EnvPrefix = "STOCKFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:stockflow.db?_busy_timeout=5000"
)

const (
	EnvAppEnv    = "STOCKFLOW_APP_ENV"
	EnvPort      = "STOCKFLOW_APP_PORT"
	EnvLogLevel  = "STOCKFLOW_LOG_LEVEL"
	EnvDBDSN     = "STOCKFLOW_DB_DSN"
	EnvDBHost    = "STOCKFLOW_DB_HOST"
	EnvDBUser    = "STOCKFLOW_DB_USER"
	EnvDBName    = "STOCKFLOW_DB_NAME"
	EnvUseSQLite = "STOCKFLOW_USE_SQLITE"
	EnvRedisURL  = "STOCKFLOW_REDIS_URL"
	EnvJWTSecret = "STOCKFLOW_JWT_SECRET"
	EnvJWTIssuer = "STOCKFLOW_JWT_ISSUER"

	EnvReservationMaxRetries = "STOCKFLOW_RESERVATION_MAX_RETRIES"
	EnvCacheReportTTL        = "STOCKFLOW_CACHE_REPORT_TTL"
	EnvPubSubOrdersTopic     = "STOCKFLOW_PUBSUB_ORDERS_TOPIC"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
