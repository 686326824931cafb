package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pmterrors "clinicbook/internal/payments/errors"
	"clinicbook/internal/payments/gateway"
	"clinicbook/internal/payments/repository"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/events"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// AppointmentMarker is the slice of the appointments service the payments
// side needs: recording that an appointment's payment was captured.
type AppointmentMarker interface {
	MarkPaid(ctx context.Context, appointmentID, paymentID string) error
}

type PaymentService interface {
	// InitiateCheckout creates the payment record and opens a
	// provider-hosted checkout session for an online booking.
	InitiateCheckout(ctx context.Context, appt *model.Appointment, gw model.Gateway) (*model.Payment, *gateway.CheckoutSession, error)

	GetByAppointment(ctx context.Context, appointmentID string) (*model.Payment, error)

	// VerifyPayment polls the gateway for an online payment still pending
	// locally and settles it when the provider reports it captured. Covers
	// delayed or missed webhooks; settling is replay safe either way.
	VerifyPayment(ctx context.Context, appointmentID string) (*model.Payment, error)

	// RecordCashPayment marks a cash appointment as paid at the desk.
	RecordCashPayment(ctx context.Context, appt *model.Appointment) (*model.Payment, error)

	// RefundForAppointment refunds the appointment's captured payment and
	// returns the payment status the appointment should record. Safe to
	// retry: an already-refunded payment converges without a second charge
	// reversal.
	RefundForAppointment(ctx context.Context, appointmentID, actorID string) (model.PaymentStatus, error)

	// HandleStripeWebhook processes a verified Stripe event payload.
	HandleStripeWebhook(ctx context.Context, payload []byte) error
}

type paymentService struct {
	repo         repository.PaymentRepository
	gateways     map[model.Gateway]gateway.Client
	appointments AppointmentMarker
	publisher    *events.Publisher
	cfg          *config.Config
}

func NewPaymentService(
	repo repository.PaymentRepository,
	clients []gateway.Client,
	appointments AppointmentMarker,
	publisher *events.Publisher,
	cfg *config.Config,
) PaymentService {
	gateways := make(map[model.Gateway]gateway.Client, len(clients))
	for _, c := range clients {
		gateways[c.Gateway()] = c
	}
	return &paymentService{
		repo:         repo,
		gateways:     gateways,
		appointments: appointments,
		publisher:    publisher,
		cfg:          cfg,
	}
}

func (s *paymentService) InitiateCheckout(ctx context.Context, appt *model.Appointment, gw model.Gateway) (*model.Payment, *gateway.CheckoutSession, error) {
	client, ok := s.gateways[gw]
	if !ok {
		return nil, nil, apperrors.InvalidInput(fmt.Sprintf("Unsupported payment gateway: %s", gw))
	}

	// Reuse an existing pending payment so a patient retrying checkout does
	// not pile up records.
	payment, err := s.repo.FindByAppointmentID(ctx, appt.ID)
	if err != nil && !errors.Is(err, pmterrors.ErrNotFound) {
		return nil, nil, apperrors.Internal("Failed to look up payment", err)
	}
	if payment != nil && payment.Status == model.PaymentPaid {
		return nil, nil, apperrors.Conflict("Appointment is already paid")
	}

	if payment == nil {
		payment = &model.Payment{
			PatientID:     appt.PatientID,
			ServiceID:     appt.ServiceID,
			AppointmentID: appt.ID,
			Amount:        appt.Amount,
			Method:        model.MethodOnline,
			Gateway:       gw,
			Status:        model.PaymentPending,
		}
		if err := s.repo.Create(ctx, payment); err != nil {
			return nil, nil, apperrors.Internal("Failed to create payment record", err)
		}
	}

	description := fmt.Sprintf("Clinic appointment on %s", appt.StartTime.Format("2 Jan 2006 15:04"))
	successURL := s.cfg.FrontendURL + "/payments/success?appointment_id=" + appt.ID
	cancelURL := s.cfg.FrontendURL + "/payments/cancelled?appointment_id=" + appt.ID

	session, err := client.CreateCheckout(ctx, payment, description, successURL, cancelURL)
	if err != nil {
		s.cfg.Log.Error("Failed to open checkout session",
			"appointment_id", appt.ID,
			"gateway", gw,
			"error", err,
		)
		return nil, nil, err
	}

	if err := s.repo.UpdateFields(ctx, payment.ID, bson.M{
		"transaction_id": session.TransactionID,
		"gateway":        gw,
	}); err != nil {
		return nil, nil, apperrors.Internal("Failed to store checkout reference", err)
	}
	payment.TransactionID = session.TransactionID
	payment.Gateway = gw

	s.cfg.Log.Info("Checkout session opened",
		"appointment_id", appt.ID,
		"payment_id", payment.ID,
		"gateway", gw,
	)

	return payment, session, nil
}

func (s *paymentService) GetByAppointment(ctx context.Context, appointmentID string) (*model.Payment, error) {
	payment, err := s.repo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pmterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Payment", appointmentID)
		}
		return nil, apperrors.Internal("Failed to retrieve payment", err)
	}
	return payment, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, appointmentID string) (*model.Payment, error) {
	payment, err := s.repo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pmterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Payment", appointmentID)
		}
		return nil, apperrors.Internal("Failed to retrieve payment", err)
	}

	if payment.Status != model.PaymentPending || payment.Method != model.MethodOnline || payment.TransactionID == "" {
		return payment, nil
	}

	client, ok := s.gateways[payment.Gateway]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unsupported payment gateway: %s", payment.Gateway))
	}

	status, err := client.CheckoutStatus(ctx, payment.TransactionID)
	if err != nil {
		return nil, err
	}

	switch status.State {
	case gateway.StatePaid:
		transactionID := status.TransactionID
		if transactionID == "" {
			transactionID = payment.TransactionID
		}
		if err := s.settlePaid(ctx, payment, transactionID); err != nil {
			return nil, err
		}
	case gateway.StateFailed:
		if err := s.repo.UpdateFields(ctx, payment.ID, bson.M{"status": model.PaymentFailed}); err != nil {
			return nil, apperrors.Internal("Failed to record payment failure", err)
		}
		payment.Status = model.PaymentFailed
	}

	return payment, nil
}

// settlePaid marks the payment captured and propagates it to the
// appointment. Shared by the webhook and the polling path.
func (s *paymentService) settlePaid(ctx context.Context, payment *model.Payment, transactionID string) error {
	if err := s.repo.MarkPaid(ctx, payment.ID, transactionID, time.Now()); err != nil {
		return apperrors.Internal("Failed to mark payment paid", err)
	}
	payment.Status = model.PaymentPaid
	payment.TransactionID = transactionID

	if err := s.appointments.MarkPaid(ctx, payment.AppointmentID, payment.ID); err != nil {
		return err
	}

	s.publisher.PaymentChanged(ctx, events.TypePaymentReceived, payment)
	return nil
}

func (s *paymentService) RecordCashPayment(ctx context.Context, appt *model.Appointment) (*model.Payment, error) {
	existing, err := s.repo.FindByAppointmentID(ctx, appt.ID)
	if err != nil && !errors.Is(err, pmterrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to look up payment", err)
	}
	if existing != nil && existing.Status == model.PaymentPaid {
		return existing, nil
	}

	now := time.Now()
	if existing == nil {
		existing = &model.Payment{
			PatientID:     appt.PatientID,
			ServiceID:     appt.ServiceID,
			AppointmentID: appt.ID,
			Amount:        appt.Amount,
			Method:        model.MethodCash,
			Status:        model.PaymentPaid,
			PaymentDate:   now,
		}
		if err := s.repo.Create(ctx, existing); err != nil {
			return nil, apperrors.Internal("Failed to create payment record", err)
		}
	} else {
		if err := s.repo.MarkPaid(ctx, existing.ID, "", now); err != nil {
			return nil, apperrors.Internal("Failed to mark payment paid", err)
		}
		existing.Status = model.PaymentPaid
		existing.PaymentDate = now
	}

	if err := s.appointments.MarkPaid(ctx, appt.ID, existing.ID); err != nil {
		return nil, err
	}

	s.publisher.PaymentChanged(ctx, events.TypePaymentReceived, existing)
	s.cfg.Log.Info("Cash payment recorded", "appointment_id", appt.ID, "payment_id", existing.ID)

	return existing, nil
}

func (s *paymentService) RefundForAppointment(ctx context.Context, appointmentID, actorID string) (model.PaymentStatus, error) {
	payment, err := s.repo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pmterrors.ErrNotFound) {
			return "", apperrors.NotFoundWithID("Payment", appointmentID)
		}
		return "", apperrors.Internal("Failed to retrieve payment", err)
	}

	if payment.Status == model.PaymentRefunded {
		return model.PaymentRefunded, nil
	}
	if payment.Status == model.PaymentRefundPending {
		return model.PaymentRefundPending, nil
	}
	if !payment.Status.IsRefundEligible() {
		return "", apperrors.PolicyViolation("Payment is not in a refundable state")
	}

	// Cash refunds happen at the desk; the record just needs to say so.
	if payment.Method == model.MethodCash {
		if err := s.repo.MarkRefunded(ctx, payment.ID, "", model.PaymentRefundPending, time.Now()); err != nil {
			return "", apperrors.Internal("Failed to record cash refund", err)
		}
		return model.PaymentRefundPending, nil
	}

	if payment.TransactionID == "" {
		return "", apperrors.Internal("Payment has no gateway transaction reference", pmterrors.ErrMissingTransaction)
	}

	client, ok := s.gateways[payment.Gateway]
	if !ok {
		return "", apperrors.InvalidInput(fmt.Sprintf("Unsupported payment gateway: %s", payment.Gateway))
	}

	result, err := client.Refund(ctx, payment.TransactionID, payment.Amount)
	if err != nil {
		s.cfg.Log.Error("Gateway refund failed",
			"payment_id", payment.ID,
			"gateway", payment.Gateway,
			"error", err,
		)
		return "", err
	}

	status := result.Outcome.PaymentStatus()
	if err := s.repo.MarkRefunded(ctx, payment.ID, result.RefundID, status, time.Now()); err != nil {
		return "", apperrors.Internal("Failed to record refund outcome", err)
	}
	payment.Status = status

	s.publisher.PaymentChanged(ctx, events.TypePaymentRefunded, payment)
	s.cfg.Log.Info("Payment refunded",
		"payment_id", payment.ID,
		"gateway", payment.Gateway,
		"outcome", result.Outcome,
		"actor", actorID,
	)

	return status, nil
}

// stripeEvent is the envelope Stripe posts to the webhook endpoint. Only
// checkout.session.completed is acted on; everything else is acknowledged
// and dropped.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			PaymentStatus string `json:"payment_status"`
			Metadata      struct {
				AppointmentID string `json:"appointment_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (s *paymentService) HandleStripeWebhook(ctx context.Context, payload []byte) error {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apperrors.InvalidInput("Malformed webhook payload")
	}

	if event.Type != "checkout.session.completed" {
		s.cfg.Log.Info("Ignoring Stripe event", "type", event.Type)
		return nil
	}

	session := event.Data.Object
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		s.cfg.Log.Info("Ignoring unpaid checkout session", "session_id", session.ID)
		return nil
	}

	payment, err := s.findWebhookPayment(ctx, session.ID, session.Metadata.AppointmentID)
	if err != nil {
		return err
	}

	// Replays are acknowledged without touching the record again.
	if payment.Status == model.PaymentPaid {
		s.cfg.Log.Info("Webhook replay for paid payment", "payment_id", payment.ID)
		return nil
	}

	// The session id served for checkout; the payment intent is what a
	// later refund needs, so it replaces the stored reference.
	transactionID := session.PaymentIntent
	if transactionID == "" {
		transactionID = session.ID
	}

	if err := s.settlePaid(ctx, payment, transactionID); err != nil {
		return err
	}

	s.cfg.Log.Info("Stripe payment captured",
		"payment_id", payment.ID,
		"appointment_id", payment.AppointmentID,
	)

	return nil
}

func (s *paymentService) findWebhookPayment(ctx context.Context, sessionID, appointmentID string) (*model.Payment, error) {
	if strings.HasPrefix(sessionID, "cs_") {
		payment, err := s.repo.FindByTransactionID(ctx, sessionID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, pmterrors.ErrNotFound) {
			return nil, apperrors.Internal("Failed to look up payment by transaction", err)
		}
	}

	if appointmentID == "" {
		return nil, apperrors.NotFound("Payment for webhook event")
	}

	payment, err := s.repo.FindByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pmterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Payment", appointmentID)
		}
		return nil, apperrors.Internal("Failed to look up payment by appointment", err)
	}
	return payment, nil
}
