// Package events publishes appointment lifecycle events to the clinic's
// Kafka stream. Publishing is best-effort: a broker outage must never fail
// the booking operation that triggered the event.
package events

import (
	"context"
	"time"

	"clinicbook/pkg/kafka"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

const SchemaVersion = "1"

const (
	TypeAppointmentBooked      = "appointment.booked"
	TypeAppointmentConfirmed   = "appointment.confirmed"
	TypeAppointmentCancelled   = "appointment.cancelled"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeAppointmentCompleted   = "appointment.completed"
	TypeAppointmentExpired     = "appointment.expired"
	TypeAppointmentNoShow      = "appointment.no_show"
	TypeAppointmentDelayed     = "appointment.delayed"
	TypePaymentReceived        = "payment.received"
	TypePaymentRefunded        = "payment.refunded"
)

// AppointmentEvent is the payload for every appointment lifecycle event.
type AppointmentEvent struct {
	AppointmentID string                  `json:"appointment_id"`
	PatientID     string                  `json:"patient_id"`
	DoctorID      string                  `json:"doctor_id"`
	Status        model.AppointmentStatus `json:"status"`
	StartTime     time.Time               `json:"start_time"`
	EndTime       time.Time               `json:"end_time"`
	Actor         string                  `json:"actor,omitempty"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// PaymentEvent is the payload for payment events.
type PaymentEvent struct {
	PaymentID     string              `json:"payment_id"`
	AppointmentID string              `json:"appointment_id"`
	Gateway       model.Gateway       `json:"gateway"`
	Status        model.PaymentStatus `json:"status"`
	Amount        float64             `json:"amount"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Publisher emits events for downstream consumers (analytics, audit trail).
// A nil Publisher is valid and drops every event.
type Publisher struct {
	producer producer
	source   string
	log      *logger.Logger
}

func NewPublisher(p *kafka.Producer, source string, log *logger.Logger) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{producer: p, source: source, log: log}
}

// AppointmentChanged publishes a lifecycle event keyed by appointment ID so
// events for one appointment stay ordered within a partition.
func (pub *Publisher) AppointmentChanged(ctx context.Context, eventType string, appt *model.Appointment, actor string) {
	if pub == nil || appt == nil {
		return
	}

	payload := AppointmentEvent{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Status:        appt.Status,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Actor:         actor,
		OccurredAt:    time.Now(),
	}

	msg := kafka.NewMessage().
		WithKey(appt.ID).
		WithValue(payload).
		WithEventType(eventType).
		WithSchemaVersion(SchemaVersion).
		WithSource(pub.source).
		Build()

	if err := pub.producer.Publish(ctx, msg); err != nil {
		pub.log.Warn("Failed to publish appointment event",
			"event_type", eventType,
			"appointment_id", appt.ID,
			"error", err,
		)
	}
}

// PaymentChanged publishes a payment event keyed by appointment ID.
func (pub *Publisher) PaymentChanged(ctx context.Context, eventType string, payment *model.Payment) {
	if pub == nil || payment == nil {
		return
	}

	payload := PaymentEvent{
		PaymentID:     payment.ID,
		AppointmentID: payment.AppointmentID,
		Gateway:       payment.Gateway,
		Status:        payment.Status,
		Amount:        payment.Amount,
		OccurredAt:    time.Now(),
	}

	msg := kafka.NewMessage().
		WithKey(payment.AppointmentID).
		WithValue(payload).
		WithEventType(eventType).
		WithSchemaVersion(SchemaVersion).
		WithSource(pub.source).
		Build()

	if err := pub.producer.Publish(ctx, msg); err != nil {
		pub.log.Warn("Failed to publish payment event",
			"event_type", eventType,
			"payment_id", payment.ID,
			"error", err,
		)
	}
}

// Close flushes and closes the underlying producer.
func (pub *Publisher) Close() error {
	if pub == nil {
		return nil
	}
	return pub.producer.Close()
}
