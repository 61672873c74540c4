package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Cache        CacheConfig
	Orders       OrdersConfig
	Payments     PaymentsConfig
	Reconcile    ReconcileConfig
	Outbox       OutboxConfig
	Publisher    PublisherConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Tracing      TracingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Cache.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Publisher.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKCORE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"STOCKCORE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOCKCORE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOCKCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKCORE_SERVICE_KIND" default:"stockctl"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKCORE_DB_DSN"`
	Driver string `envconfig:"STOCKCORE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOCKCORE_DB_HOST"`
	Port     int    `envconfig:"STOCKCORE_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKCORE_DB_USER"`
	Password string `envconfig:"STOCKCORE_DB_PASSWORD"`
	Name     string `envconfig:"STOCKCORE_DB_NAME"`
	SSLMode  string `envconfig:"STOCKCORE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOCKCORE_SQLITE_PATH" default:"stockcore.db"`

	MaxOpenConns    int           `envconfig:"STOCKCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOCKCORE_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the sqlite driver should back the connection.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKCORE_REDIS_URL"`
	Address      string        `envconfig:"STOCKCORE_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKCORE_AUTO_MIGRATE" default:"false"`
}

type PricingConfig struct {
	Strict          bool    `envconfig:"STOCKCORE_PRICING_STRICT" default:"false"`
	Tolerance       float64 `envconfig:"STOCKCORE_PRICING_TOLERANCE" default:"0.02"`
	DefaultCurrency string  `envconfig:"STOCKCORE_PRICING_CURRENCY" default:"USD"`
}

type CacheConfig struct {
	Backend  string        `envconfig:"STOCKCORE_CACHE_BACKEND" default:"memory"`
	PriceTTL time.Duration `envconfig:"STOCKCORE_CACHE_PRICE_TTL" default:"5m"`
}

func (c CacheConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendNone:
		return nil
	default:
		return fmt.Errorf("%s must be one of memory|redis|none, got %q", EnvCacheBackend, c.Backend)
	}
}

type OrdersConfig struct {
	OperationTimeout time.Duration `envconfig:"STOCKCORE_OPERATION_TIMEOUT" default:"15s"`
}

type PaymentsConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOCKCORE_PAYMENT_IDEMPOTENCY_TTL" default:"720h"`
}

type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"STOCKCORE_RECONCILE_INTERVAL" default:"1h"`
	LockTTL   time.Duration `envconfig:"STOCKCORE_RECONCILE_LOCK_TTL" default:"55m"`
	Retention int           `envconfig:"STOCKCORE_OUTBOX_RETENTION_DAYS" default:"30"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	InventoryTopic string `envconfig:"STOCKCORE_OUTBOX_INVENTORY_TOPIC" default:"stockcore-inventory-events"`
	OrdersTopic    string `envconfig:"STOCKCORE_OUTBOX_ORDERS_TOPIC" default:"stockcore-order-events"`
}

type PublisherConfig struct {
	Backend string `envconfig:"STOCKCORE_PUBLISHER_BACKEND" default:"pubsub"`
}

func (p PublisherConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Backend)) {
	case PublisherBackendPubSub, PublisherBackendKafka:
		return nil
	default:
		return fmt.Errorf("%s must be pubsub or kafka, got %q", EnvPublisherBackend, p.Backend)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKCORE_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"STOCKCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	VerifyTopics bool `envconfig:"STOCKCORE_PUBSUB_VERIFY_TOPICS" default:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"STOCKCORE_KAFKA_BROKERS"`
	ClientID     string        `envconfig:"STOCKCORE_KAFKA_CLIENT_ID" default:"stockcore-outbox"`
	BatchSize    int           `envconfig:"STOCKCORE_KAFKA_BATCH_SIZE" default:"100"`
	BatchTimeout time.Duration `envconfig:"STOCKCORE_KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

type TracingConfig struct {
	Enabled       bool          `envconfig:"STOCKCORE_TRACING_ENABLED" default:"false"`
	Endpoint      string        `envconfig:"STOCKCORE_OTLP_ENDPOINT" default:"localhost:4318"`
	URLPath       string        `envconfig:"STOCKCORE_OTLP_TRACES_PATH" default:"/v1/traces"`
	Insecure      bool          `envconfig:"STOCKCORE_OTLP_INSECURE" default:"true"`
	AuthHeader    string        `envconfig:"STOCKCORE_OTLP_AUTH_HEADER"`
	SampleRatio   float64       `envconfig:"STOCKCORE_TRACING_SAMPLE_RATIO" default:"1"`
	ExportTimeout time.Duration `envconfig:"STOCKCORE_TRACING_EXPORT_TIMEOUT" default:"10s"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
