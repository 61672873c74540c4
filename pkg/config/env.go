package config

// EnvPrefix is the envconfig prefix; tags carry the full variable name so
// lookups resolve through envconfig's alt-name fallback.
const EnvPrefix = "STOCKCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"

	PublisherBackendPubSub = "pubsub"
	PublisherBackendKafka  = "kafka"
)

const (
	EnvAppEnv           = "STOCKCORE_APP_ENV"
	EnvLogLevel         = "STOCKCORE_LOG_LEVEL"
	EnvDBDSN            = "STOCKCORE_DB_DSN"
	EnvDBDriver         = "STOCKCORE_DB_DRIVER"
	EnvDBHost           = "STOCKCORE_DB_HOST"
	EnvDBUser           = "STOCKCORE_DB_USER"
	EnvDBName           = "STOCKCORE_DB_NAME"
	EnvDBPassword       = "STOCKCORE_DB_PASSWORD"
	EnvUseSQLite        = "STOCKCORE_USE_SQLITE"
	EnvSQLitePath       = "STOCKCORE_SQLITE_PATH"
	EnvRedisURL         = "STOCKCORE_REDIS_URL"
	EnvPricingStrict    = "STOCKCORE_PRICING_STRICT"
	EnvPricingTolerance = "STOCKCORE_PRICING_TOLERANCE"
	EnvCacheBackend     = "STOCKCORE_CACHE_BACKEND"
	EnvCachePriceTTL    = "STOCKCORE_CACHE_PRICE_TTL"
	EnvOperationTimeout = "STOCKCORE_OPERATION_TIMEOUT"
	EnvPublisherBackend = "STOCKCORE_PUBLISHER_BACKEND"
	EnvKafkaBrokers     = "STOCKCORE_KAFKA_BROKERS"
	EnvGCPProjectID     = "STOCKCORE_GCP_PROJECT_ID"
	EnvTracingEnabled   = "STOCKCORE_TRACING_ENABLED"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
