package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvCancellationWindowHours = "CANCELLATION_WINDOW_HOURS"
	EnvRescheduleLimit         = "RESCHEDULE_LIMIT"

	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvReminderWindow = "REMINDER_WINDOW"

	EnvGatewayTimeout      = "GATEWAY_TIMEOUT"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvPaymobAPIKey        = "PAYMOB_API_KEY"
	EnvPaymobIntegrationID = "PAYMOB_INTEGRATION_ID"
	EnvPaymobIframeID      = "PAYMOB_IFRAME_ID"
	EnvPayPalClientID      = "PAYPAL_CLIENT_ID"
	EnvPayPalClientSecret  = "PAYPAL_CLIENT_SECRET"
	EnvPayPalBaseURL       = "PAYPAL_BASE_URL"

	EnvTwilioAccountSID   = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken    = "TWILIO_AUTH_TOKEN"
	EnvTwilioWhatsAppFrom = "TWILIO_WHATSAPP_FROM"
	EnvMailAPIURL         = "MAIL_API_URL"
	EnvMailAPIKey         = "MAIL_API_KEY"
	EnvMailFrom           = "MAIL_FROM"

	EnvFrontendURL = "FRONTEND_URL"

	EnvEventsEnabled  = "EVENTS_ENABLED"
	EnvEventsBrokers  = "EVENTS_BROKERS"
	EnvEventsTopic    = "EVENTS_TOPIC"
	EnvEventsDLQTopic = "EVENTS_DLQ_TOPIC"
)
