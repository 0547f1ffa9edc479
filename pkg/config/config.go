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
	Scheduler    SchedulerConfig
	Permissions  PermissionsConfig
	Publishers   PublishersConfig
	Security     SecurityConfig
	Ops          OpsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduler.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POSTPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"POSTPILOT_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"POSTPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POSTPILOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POSTPILOT_SERVICE_KIND" default:"scheduler-worker"`
}

type DBConfig struct {
	DSN        string `envconfig:"POSTPILOT_DB_DSN"`
	Driver     string `envconfig:"POSTPILOT_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"POSTPILOT_DB_SQLITE_PATH" default:"postpilot.db"`

	LegacyHost     string `envconfig:"POSTPILOT_DB_HOST"`
	LegacyPort     int    `envconfig:"POSTPILOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POSTPILOT_DB_USER"`
	LegacyPassword string `envconfig:"POSTPILOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"POSTPILOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"POSTPILOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POSTPILOT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"POSTPILOT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"POSTPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSTPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; when URL and Address are empty the permission
// cache is disabled.
type RedisConfig struct {
	URL          string        `envconfig:"POSTPILOT_REDIS_URL"`
	Address      string        `envconfig:"POSTPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"POSTPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSTPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSTPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POSTPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POSTPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSTPILOT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"POSTPILOT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POSTPILOT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POSTPILOT_AUTO_MIGRATE" default:"false"`
}

type SchedulerConfig struct {
	PollInterval        time.Duration `envconfig:"POSTPILOT_SCHEDULER_POLL_INTERVAL" default:"60s"`
	BatchSize           int           `envconfig:"POSTPILOT_SCHEDULER_BATCH_SIZE" default:"100"`
	ClaimLease          time.Duration `envconfig:"POSTPILOT_SCHEDULER_CLAIM_LEASE" default:"10m"`
	DispatchConcurrency int           `envconfig:"POSTPILOT_SCHEDULER_DISPATCH_CONCURRENCY" default:"1"`
	AutoStart           bool          `envconfig:"POSTPILOT_SCHEDULER_AUTO_START" default:"true"`
	RecentLimit         int           `envconfig:"POSTPILOT_SCHEDULER_RECENT_LIMIT" default:"5"`
}

func (s SchedulerConfig) validate() error {
	if s.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvSchedulerPollInterval)
	}
	if s.ClaimLease > 0 && s.ClaimLease < s.PollInterval {
		return fmt.Errorf("%s must be at least %s", EnvSchedulerClaimLease, EnvSchedulerPollInterval)
	}
	return nil
}

type PermissionsConfig struct {
	CacheTTL time.Duration `envconfig:"POSTPILOT_PERMISSIONS_CACHE_TTL" default:"30s"`
}

type PublishersConfig struct {
	Timeout      time.Duration `envconfig:"POSTPILOT_PUBLISHER_TIMEOUT" default:"30s"`
	MaxRetries   int           `envconfig:"POSTPILOT_PUBLISHER_MAX_RETRIES" default:"2"`
	BaseDelay    time.Duration `envconfig:"POSTPILOT_PUBLISHER_BASE_DELAY" default:"250ms"`
	MaxDelay     time.Duration `envconfig:"POSTPILOT_PUBLISHER_MAX_DELAY" default:"5s"`
	RatePerSec   float64       `envconfig:"POSTPILOT_PUBLISHER_RATE_PER_SEC" default:"5"`
	Burst        int           `envconfig:"POSTPILOT_PUBLISHER_BURST" default:"5"`
	FacebookURL  string        `envconfig:"POSTPILOT_PUBLISHER_FACEBOOK_URL"`
	TwitterURL   string        `envconfig:"POSTPILOT_PUBLISHER_TWITTER_URL"`
	RedditURL    string        `envconfig:"POSTPILOT_PUBLISHER_REDDIT_URL"`
	LinkedInURL  string        `envconfig:"POSTPILOT_PUBLISHER_LINKEDIN_URL"`
	InstagramURL string        `envconfig:"POSTPILOT_PUBLISHER_INSTAGRAM_URL"`
}

// Endpoints returns the configured base URL per platform name. Platforms
// without a URL are omitted.
func (p PublishersConfig) Endpoints() map[string]string {
	out := map[string]string{}
	for name, raw := range map[string]string{
		"facebook":  p.FacebookURL,
		"twitter":   p.TwitterURL,
		"reddit":    p.RedditURL,
		"linkedin":  p.LinkedInURL,
		"instagram": p.InstagramURL,
	} {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out[name] = strings.TrimRight(trimmed, "/")
		}
	}
	return out
}

type SecurityConfig struct {
	// TokenKey is a base64-encoded 32 byte key used to open stored OAuth tokens.
	TokenKey string `envconfig:"POSTPILOT_TOKEN_KEY"`
}

type OpsConfig struct {
	JWTSecret string `envconfig:"POSTPILOT_OPS_JWT_SECRET"`
	JWTIssuer string `envconfig:"POSTPILOT_OPS_JWT_ISSUER" default:"postpilot"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"POSTPILOT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PostEventsTopic string `envconfig:"POSTPILOT_PUBSUB_POST_EVENTS_TOPIC" default:"post-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"POSTPILOT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"POSTPILOT_OUTBOX_PUBLISH_POLL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"POSTPILOT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	RetentionDays int           `envconfig:"POSTPILOT_OUTBOX_RETENTION_DAYS" default:"30"`
	PruneInterval time.Duration `envconfig:"POSTPILOT_OUTBOX_PRUNE_INTERVAL" default:"1h"`
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
