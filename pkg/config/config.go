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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Realtime     RealtimeConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SPLITPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"SPLITPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPLITPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPLITPAY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"SPLITPAY_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	origins := []string{}
	for _, part := range strings.Split(a.CORSOrigins, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

type DBConfig struct {
	DSN    string `envconfig:"SPLITPAY_DB_DSN"`
	Driver string `envconfig:"SPLITPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPLITPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"SPLITPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPLITPAY_DB_USER"`
	LegacyPassword string `envconfig:"SPLITPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPLITPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPLITPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPLITPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPLITPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPLITPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPLITPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPLITPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPLITPAY_REDIS_ADDR"`
	Password     string        `envconfig:"SPLITPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPLITPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPLITPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPLITPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPLITPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPLITPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPLITPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SPLITPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SPLITPAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPLITPAY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SPLITPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPLITPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TableEventsTopic string `envconfig:"SPLITPAY_PUBSUB_TABLE_EVENTS_TOPIC" default:"sp-table-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SPLITPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SPLITPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SPLITPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SPLITPAY_STRIPE_API_KEY"`
	Secret string `envconfig:"SPLITPAY_STRIPE_SECRET"`
	Env    string `envconfig:"SPLITPAY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type RealtimeConfig struct {
	HeartbeatInterval time.Duration `envconfig:"SPLITPAY_REALTIME_HEARTBEAT" default:"25s"`
	WriteWait         time.Duration `envconfig:"SPLITPAY_REALTIME_WRITE_WAIT" default:"10s"`
	SendBuffer        int           `envconfig:"SPLITPAY_REALTIME_SEND_BUFFER" default:"64"`
	MaxMessageBytes   int64         `envconfig:"SPLITPAY_REALTIME_MAX_MESSAGE_BYTES" default:"8192"`
	Relay             bool          `envconfig:"SPLITPAY_REALTIME_RELAY" default:"false"`
}

// PongWait is how long a connection may stay silent before it is considered dead.
func (r RealtimeConfig) PongWait() time.Duration {
	if r.HeartbeatInterval <= 0 {
		return 60 * time.Second
	}
	return r.HeartbeatInterval * 2
}

type RateLimitConfig struct {
	JoinCodeWindow time.Duration `envconfig:"SPLITPAY_RATE_LIMIT_JOIN_CODE_WINDOW" default:"1m"`
	JoinCodeLimit  int           `envconfig:"SPLITPAY_RATE_LIMIT_JOIN_CODE_LIMIT" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
