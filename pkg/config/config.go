package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clinicbook/pkg/client"
	"clinicbook/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// CancellationWindowHours is the per-clinic default snapshotted onto each
	// appointment at booking time. Changing it never affects existing rows.
	CancellationWindowHours int
	RescheduleLimit         int

	SweepInterval  time.Duration
	ReminderWindow time.Duration

	GatewayTimeout      time.Duration
	StripeSecretKey     string
	StripeWebhookSecret string
	PaymobAPIKey        string
	PaymobIntegrationID string
	PaymobIframeID      string
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalBaseURL       string

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string
	MailAPIURL         string
	MailAPIKey         string
	MailFrom           string

	FrontendURL string

	EventsEnabled  bool
	EventsBrokers  []string
	EventsTopic    string
	EventsDLQTopic string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		CancellationWindowHours: getEnvNum(EnvCancellationWindowHours, DefaultCancellationWindowHours),
		RescheduleLimit:         getEnvNum(EnvRescheduleLimit, DefaultRescheduleLimit),

		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		ReminderWindow: getEnvDuration(EnvReminderWindow, DefaultReminderWindow),

		GatewayTimeout:      getEnvDuration(EnvGatewayTimeout, DefaultGatewayTimeout),
		StripeSecretKey:     getEnvStr(EnvStripeSecretKey, ""),
		StripeWebhookSecret: getEnvStr(EnvStripeWebhookSecret, ""),
		PaymobAPIKey:        getEnvStr(EnvPaymobAPIKey, ""),
		PaymobIntegrationID: getEnvStr(EnvPaymobIntegrationID, ""),
		PaymobIframeID:      getEnvStr(EnvPaymobIframeID, ""),
		PayPalClientID:      getEnvStr(EnvPayPalClientID, ""),
		PayPalClientSecret:  getEnvStr(EnvPayPalClientSecret, ""),
		PayPalBaseURL:       getEnvStr(EnvPayPalBaseURL, DefaultPayPalBaseURL),

		TwilioAccountSID:   getEnvStr(EnvTwilioAccountSID, ""),
		TwilioAuthToken:    getEnvStr(EnvTwilioAuthToken, ""),
		TwilioWhatsAppFrom: getEnvStr(EnvTwilioWhatsAppFrom, ""),
		MailAPIURL:         getEnvStr(EnvMailAPIURL, ""),
		MailAPIKey:         getEnvStr(EnvMailAPIKey, ""),
		MailFrom:           getEnvStr(EnvMailFrom, ""),

		FrontendURL: getEnvStr(EnvFrontendURL, DefaultFrontendURL),

		EventsEnabled:  getEnvBool(EnvEventsEnabled, false),
		EventsBrokers:  getEnvList(EnvEventsBrokers, []string{"localhost:9092"}),
		EventsTopic:    getEnvStr(EnvEventsTopic, DefaultEventsTopic),
		EventsDLQTopic: getEnvStr(EnvEventsDLQTopic, DefaultEventsDLQTopic),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.CancellationWindowHours < 0 {
		errors = append(errors, fmt.Sprintf("CancellationWindowHours cannot be negative, got: %d", cfg.CancellationWindowHours))
	}
	if cfg.RescheduleLimit < 0 {
		errors = append(errors, fmt.Sprintf("RescheduleLimit cannot be negative, got: %d", cfg.RescheduleLimit))
	}

	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.ReminderWindow <= 0 {
		errors = append(errors, fmt.Sprintf("ReminderWindow must be positive, got: %s", cfg.ReminderWindow))
	}
	if cfg.ReminderWindow < cfg.SweepInterval/2 {
		// A reminder window much narrower than the sweep cadence would skip
		// appointments whose reminder moment falls between two sweeps.
		errors = append(errors, fmt.Sprintf("ReminderWindow (%s) is too narrow for SweepInterval (%s)", cfg.ReminderWindow, cfg.SweepInterval))
	}

	if cfg.GatewayTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("GatewayTimeout must be positive, got: %s", cfg.GatewayTimeout))
	}

	if cfg.EventsEnabled && len(cfg.EventsBrokers) == 0 {
		errors = append(errors, "EventsBrokers cannot be empty when events are enabled")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"cancellation_window_hours", cfg.CancellationWindowHours,
		"reschedule_limit", cfg.RescheduleLimit,
		"sweep_interval", cfg.SweepInterval,
		"reminder_window", cfg.ReminderWindow,
		"gateway_timeout", cfg.GatewayTimeout,
		"stripe_key_set", cfg.StripeSecretKey != "",
		"stripe_webhook_secret_set", cfg.StripeWebhookSecret != "",
		"paymob_key_set", cfg.PaymobAPIKey != "",
		"paypal_credentials_set", cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "",
		"twilio_credentials_set", cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "",
		"mail_api_set", cfg.MailAPIURL != "",
		"frontend_url", cfg.FrontendURL,
		"events_enabled", cfg.EventsEnabled,
		"events_topic", cfg.EventsTopic,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
