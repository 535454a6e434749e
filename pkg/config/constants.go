package config

const EnvPrefix = "CAMPUSDIGS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "CAMPUSDIGS_APP_ENV"
	EnvPort      = "CAMPUSDIGS_APP_PORT"
	EnvLogLevel  = "CAMPUSDIGS_LOG_LEVEL"
	EnvDBDSN     = "CAMPUSDIGS_DB_DSN"
	EnvDBHost    = "CAMPUSDIGS_DB_HOST"
	EnvDBUser    = "CAMPUSDIGS_DB_USER"
	EnvDBName    = "CAMPUSDIGS_DB_NAME"
	EnvRedisURL  = "CAMPUSDIGS_REDIS_URL"
	EnvJWTSecret = "CAMPUSDIGS_JWT_SECRET"
	EnvJWTIssuer = "CAMPUSDIGS_JWT_ISSUER"

	EnvBookingMinLease       = "CAMPUSDIGS_BOOKING_MIN_LEASE_MONTHS"
	EnvBookingMaxLease       = "CAMPUSDIGS_BOOKING_MAX_LEASE_MONTHS"
	EnvBookingCommissionRate = "CAMPUSDIGS_BOOKING_DEFAULT_COMMISSION_RATE"

	EnvCancelFullRefundWindow   = "CAMPUSDIGS_CANCEL_FULL_REFUND_WINDOW"
	EnvCancelPartialPercent     = "CAMPUSDIGS_CANCEL_PARTIAL_REFUND_PERCENT"
	EnvCancelAfterMoveInPercent = "CAMPUSDIGS_CANCEL_AFTER_MOVE_IN_REFUND_PERCENT"

	EnvPaymentTolerance = "CAMPUSDIGS_PAYMENT_AMOUNT_TOLERANCE"
	EnvPaymentIntentTTL = "CAMPUSDIGS_PAYMENT_INTENT_TTL"

	EnvPaystackSecretKey = "CAMPUSDIGS_PAYSTACK_SECRET_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
