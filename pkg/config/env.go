package config

const (
	EnvPrefix = "SPLITPAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "SPLITPAY_APP_ENV"
	EnvPort        = "SPLITPAY_APP_PORT"
	EnvLogLevel    = "SPLITPAY_LOG_LEVEL"
	EnvCORSOrigins = "SPLITPAY_CORS_ORIGINS"

	EnvDBDSN  = "SPLITPAY_DB_DSN"
	EnvDBHost = "SPLITPAY_DB_HOST"
	EnvDBUser = "SPLITPAY_DB_USER"
	EnvDBName = "SPLITPAY_DB_NAME"
	EnvDBPort = "SPLITPAY_DB_PORT"

	EnvRedisURL = "SPLITPAY_REDIS_URL"

	EnvUseSQLite   = "SPLITPAY_USE_SQLITE"
	EnvAutoMigrate = "SPLITPAY_AUTO_MIGRATE"

	EnvGCPProjectID          = "SPLITPAY_GCP_PROJECT_ID"
	EnvPubSubTableEventTopic = "SPLITPAY_PUBSUB_TABLE_EVENTS_TOPIC"

	EnvStripeAPIKey = "SPLITPAY_STRIPE_API_KEY"
	EnvStripeSecret = "SPLITPAY_STRIPE_SECRET"
	EnvStripeEnv    = "SPLITPAY_STRIPE_ENV"

	EnvRealtimeHeartbeat = "SPLITPAY_REALTIME_HEARTBEAT"
	EnvRealtimeRelay     = "SPLITPAY_REALTIME_RELAY"

	EnvJoinCodeRateWindow = "SPLITPAY_RATE_LIMIT_JOIN_CODE_WINDOW"
	EnvJoinCodeRateLimit  = "SPLITPAY_RATE_LIMIT_JOIN_CODE_LIMIT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
