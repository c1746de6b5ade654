package config

const EnvPrefix = "FRESHORA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv            = "FRESHORA_APP_ENV"
	EnvPort              = "FRESHORA_APP_PORT"
	EnvDBDSN             = "FRESHORA_DB_DSN"
	EnvDBHost            = "FRESHORA_DB_HOST"
	EnvDBUser            = "FRESHORA_DB_USER"
	EnvDBName            = "FRESHORA_DB_NAME"
	EnvDBPassword        = "FRESHORA_DB_PASSWORD"
	EnvRedisURL          = "FRESHORA_REDIS_URL"
	EnvJWTSecret         = "FRESHORA_JWT_SECRET"
	EnvJWTIssuer         = "FRESHORA_JWT_ISSUER"
	EnvStripeAPIKey      = "FRESHORA_STRIPE_API_KEY"
	EnvStripeSecret      = "FRESHORA_STRIPE_WEBHOOK_SECRET"
	EnvStorefrontURL     = "FRESHORA_STOREFRONT_URL"
	EnvCORSOrigins       = "FRESHORA_CORS_ALLOWED_ORIGINS"
	EnvPendingPaymentAge = "FRESHORA_PENDING_PAYMENT_AGE"
	EnvPubSubOrdersTopic = "FRESHORA_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
