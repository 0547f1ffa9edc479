package config

// EnvPrefix is passed to envconfig; every field carries an explicit name so
// it only matters for error messages.
const EnvPrefix = "POSTPILOT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                = "POSTPILOT_APP_ENV"
	EnvDBDSN                 = "POSTPILOT_DB_DSN"
	EnvDBHost                = "POSTPILOT_DB_HOST"
	EnvDBUser                = "POSTPILOT_DB_USER"
	EnvDBName                = "POSTPILOT_DB_NAME"
	EnvUseSQLite             = "POSTPILOT_USE_SQLITE"
	EnvSchedulerPollInterval = "POSTPILOT_SCHEDULER_POLL_INTERVAL"
	EnvSchedulerClaimLease   = "POSTPILOT_SCHEDULER_CLAIM_LEASE"
	EnvSchedulerConcurrency  = "POSTPILOT_SCHEDULER_DISPATCH_CONCURRENCY"
	EnvPublisherTwitterURL   = "POSTPILOT_PUBLISHER_TWITTER_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
