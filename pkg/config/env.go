package config

// envconfig resolves every field through its explicit envconfig tag, so the
// prefix only matters for fields that lack one.
const EnvPrefix = "CARTSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "CARTSYNC_APP_ENV"
	EnvPort     = "CARTSYNC_APP_PORT"
	EnvLogLevel = "CARTSYNC_LOG_LEVEL"

	EnvDBDSN  = "CARTSYNC_DB_DSN"
	EnvDBHost = "CARTSYNC_DB_HOST"
	EnvDBUser = "CARTSYNC_DB_USER"
	EnvDBName = "CARTSYNC_DB_NAME"

	EnvRedisURL = "CARTSYNC_REDIS_URL"

	EnvJWTSecret  = "CARTSYNC_JWT_SECRET"
	EnvJWTIssuer  = "CARTSYNC_JWT_ISSUER"
	EnvJWTExpMins = "CARTSYNC_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite = "CARTSYNC_USE_SQLITE"

	EnvClientAPIURL   = "CARTSYNC_CLIENT_API_URL"
	EnvClientSlotPath = "CARTSYNC_CLIENT_SLOT_PATH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
