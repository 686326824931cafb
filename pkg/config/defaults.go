package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "clinicbook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultCancellationWindowHours = 24
	DefaultRescheduleLimit         = 2

	DefaultSweepInterval  = 10 * time.Minute
	DefaultReminderWindow = 5 * time.Minute

	DefaultGatewayTimeout = 10 * time.Second

	DefaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

	DefaultFrontendURL = "http://localhost:3000"

	DefaultEventsTopic    = "appointment-events"
	DefaultEventsDLQTopic = "appointment-events-dlq"

	DefaultPaginationLimit = 100
)
