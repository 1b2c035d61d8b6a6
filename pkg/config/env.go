package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "COURSEFORGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "COURSEFORGE_APP_ENV"
	EnvPort     = "COURSEFORGE_APP_PORT"
	EnvLogLevel = "COURSEFORGE_LOG_LEVEL"

	EnvDBDSN  = "COURSEFORGE_DB_DSN"
	EnvDBHost = "COURSEFORGE_DB_HOST"
	EnvDBUser = "COURSEFORGE_DB_USER"
	EnvDBName = "COURSEFORGE_DB_NAME"

	EnvRedisURL = "COURSEFORGE_REDIS_URL"

	EnvJWTSecret = "COURSEFORGE_JWT_SECRET"
	EnvJWTIssuer = "COURSEFORGE_JWT_ISSUER"

	EnvSquareAccessToken   = "COURSEFORGE_SQUARE_ACCESS_TOKEN"
	EnvSquareEnv           = "COURSEFORGE_SQUARE_ENV"
	EnvSquareWebhookSecret = "COURSEFORGE_SQUARE_WEBHOOK_SECRET"

	EnvGCPProjectID      = "COURSEFORGE_GCP_PROJECT_ID"
	EnvGCSBucket         = "COURSEFORGE_GCS_BUCKET_NAME"
	EnvGCSUploadExpiry   = "COURSEFORGE_GCS_UPLOAD_URL_EXPIRY"
	EnvGCSDownloadExpiry = "COURSEFORGE_GCS_DOWNLOAD_URL_EXPIRY"

	EnvPubSubNotificationTopic = "COURSEFORGE_PUBSUB_NOTIFICATION_TOPIC"

	EnvCronInterval = "COURSEFORGE_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
