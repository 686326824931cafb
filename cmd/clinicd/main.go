package main

import (
	"context"
	"time"

	appthandler "clinicbook/internal/appointments/handler"
	apptrepository "clinicbook/internal/appointments/repository"
	apptservice "clinicbook/internal/appointments/service"
	apptvalidator "clinicbook/internal/appointments/validator"
	dirhandler "clinicbook/internal/directory/handler"
	dirrepository "clinicbook/internal/directory/repository"
	dirservice "clinicbook/internal/directory/service"
	"clinicbook/internal/notify"
	"clinicbook/internal/payments/gateway"
	pmthandler "clinicbook/internal/payments/handler"
	pmtrepository "clinicbook/internal/payments/repository"
	pmtservice "clinicbook/internal/payments/service"
	"clinicbook/internal/scheduler"
	"clinicbook/pkg/app"
	"clinicbook/pkg/client"
	"clinicbook/pkg/config"
	"clinicbook/pkg/contracts"
	"clinicbook/pkg/events"
	"clinicbook/pkg/kafka"
	kafka_config "clinicbook/pkg/kafka/config"
	kafka_middleware "clinicbook/pkg/kafka/middleware"

	"github.com/julienschmidt/httprouter"
)

const ServiceName = "clinicbook"

// apiRouter registers every feature handler on the shared router.
type apiRouter struct {
	handlers []contracts.Handler
}

func (r *apiRouter) RegisterRoutes(router *httprouter.Router) {
	for _, h := range r.handlers {
		h.RegisterRoutes(router)
	}
}

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}
	cfg.LogConfiguration()

	cfg.Log.Info("Starting clinic booking service")
	cfg.SetMongo()

	publisher := initPublisher(cfg)

	apptRepo := apptrepository.NewMongoAppointmentRepository(cfg)
	pmtRepo := pmtrepository.NewMongoPaymentRepository(cfg)
	ensureIndexes(cfg, apptRepo, pmtRepo)

	directoryService := initDirectory(cfg)
	availabilityService := dirservice.NewAvailabilityService(directoryService, apptRepo, cfg)
	dispatcher := initDispatcher(cfg)

	apptValidator := apptvalidator.NewAppointmentValidator(cfg.Log)
	appointmentService := apptservice.NewAppointmentService(
		apptRepo,
		directoryService,
		apptValidator,
		dispatcher,
		publisher,
		cfg,
	)

	paymentService := pmtservice.NewPaymentService(
		pmtRepo,
		initGateways(cfg),
		appointmentService,
		publisher,
		cfg,
	)

	// The two services reference each other; the refund side is attached
	// after both exist.
	appointmentService.SetRefundCoordinator(paymentService)

	sched := initScheduler(cfg, apptRepo, dispatcher, publisher)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, &apiRouter{handlers: []contracts.Handler{
		appthandler.NewAppointmentHandler(appointmentService, availabilityService, paymentService, cfg.Log),
		dirhandler.NewDirectoryHandler(directoryService, cfg.Log),
		pmthandler.NewPaymentHandler(paymentService, cfg.StripeWebhookSecret, cfg.Log),
		scheduler.NewJobsHandler(sched, cfg.Log),
	}})

	sched.Start()
	serverApp.OnShutdown(sched.Stop)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})
	serverApp.OnShutdown(cfg.GracefulShutdown)

	serverApp.Run()
}

func initDirectory(cfg *config.Config) dirservice.DirectoryService {
	doctorRepo := dirrepository.NewMongoDoctorRepository(cfg)
	serviceRepo := dirrepository.NewMongoServiceRepository(cfg)
	userRepo := dirrepository.NewMongoUserRepository(cfg)

	cfg.Log.Info("Directory service initialized", "database", cfg.MongoDatabaseName)
	return dirservice.NewDirectoryService(doctorRepo, serviceRepo, userRepo, cfg)
}

func initGateways(cfg *config.Config) []gateway.Client {
	var clients []gateway.Client

	if cfg.StripeSecretKey != "" {
		stripeHTTP := client.NewHttpClient("https://api.stripe.com", cfg.GatewayTimeout)
		clients = append(clients, gateway.NewStripeClient(stripeHTTP, cfg.StripeSecretKey, cfg.Log))
	}
	if cfg.PaymobAPIKey != "" {
		paymobHTTP := client.NewHttpClient("https://accept.paymob.com", cfg.GatewayTimeout)
		clients = append(clients, gateway.NewPaymobClient(paymobHTTP, cfg.PaymobAPIKey, cfg.PaymobIntegrationID, cfg.PaymobIframeID, cfg.Log))
	}
	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		paypalHTTP := client.NewHttpClient(cfg.PayPalBaseURL, cfg.GatewayTimeout).
			WithBasicAuth(cfg.PayPalClientID, cfg.PayPalClientSecret)
		clients = append(clients, gateway.NewPayPalClient(paypalHTTP, cfg.Log))
	}

	cfg.Log.Info("Payment gateways initialized", "count", len(clients))
	return clients
}

func initDispatcher(cfg *config.Config) notify.Dispatcher {
	var channels []notify.Channel

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioHTTP := client.NewHttpClient("https://api.twilio.com", cfg.GatewayTimeout).
			WithBasicAuth(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		channels = append(channels, notify.NewWhatsAppChannel(twilioHTTP, cfg.TwilioAccountSID, cfg.TwilioWhatsAppFrom, cfg.Log))
	}
	if cfg.MailAPIURL != "" && cfg.MailAPIKey != "" {
		mailHTTP := client.NewHttpClient(cfg.MailAPIURL, cfg.GatewayTimeout)
		channels = append(channels, notify.NewMailChannel(mailHTTP, cfg.MailAPIKey, cfg.MailFrom, cfg.Log))
	}

	cfg.Log.Info("Notification channels initialized", "count", len(channels))
	return notify.NewMultiDispatcher(cfg.Log, channels...)
}

func initPublisher(cfg *config.Config) *events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Event publishing disabled")
		return nil
	}

	kafkaCfg := kafka_config.Load().WithBrokers(cfg.EventsBrokers)
	producer, err := kafka.NewProducer(kafkaCfg, cfg.EventsTopic, cfg.EventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware())

	cfg.Log.Info("Event publisher initialized",
		"topic", cfg.EventsTopic,
		"brokers", cfg.EventsBrokers,
	)
	return events.NewPublisher(producer, ServiceName, cfg.Log)
}

func initScheduler(
	cfg *config.Config,
	repo apptrepository.AppointmentRepository,
	dispatcher notify.Dispatcher,
	publisher *events.Publisher,
) *scheduler.Scheduler {
	sched := scheduler.New(cfg.Log)
	sched.Register("auto-expire", cfg.SweepInterval, scheduler.AutoExpireJob(repo, publisher, cfg))
	sched.Register("auto-complete", cfg.SweepInterval, scheduler.AutoCompleteJob(repo, cfg))
	sched.Register("send-reminders", cfg.ReminderWindow, scheduler.ReminderJob(repo, dispatcher, cfg))
	return sched
}

func ensureIndexes(cfg *config.Config, apptRepo apptrepository.AppointmentRepository, pmtRepo pmtrepository.PaymentRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apptRepo.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to create appointment indexes", "error", err)
	}
	if err := pmtRepo.EnsureIndexes(ctx); err != nil {
		cfg.Log.Fatal("Failed to create payment indexes", "error", err)
	}
	cfg.Log.Info("Database indexes ensured")
}
