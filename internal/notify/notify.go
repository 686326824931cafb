// Package notify delivers appointment messages to patients over WhatsApp
// and email. Delivery is best-effort everywhere: a failed send is logged
// and surfaced as a note on the appointment, never as an operation error.
package notify

import (
	"context"

	"clinicbook/pkg/model"
)

// Dispatcher sends patient-facing messages for appointment lifecycle
// changes. Implementations must be safe for concurrent use.
type Dispatcher interface {
	AppointmentBooked(ctx context.Context, appt *model.Appointment) error
	AppointmentConfirmed(ctx context.Context, appt *model.Appointment) error
	AppointmentCancelled(ctx context.Context, appt *model.Appointment) error
	AppointmentRescheduled(ctx context.Context, old, replacement *model.Appointment) error
	AppointmentDelayed(ctx context.Context, appt *model.Appointment, minutes int) error
	Reminder(ctx context.Context, appt *model.Appointment, label model.ReminderLabel) error
}

// Channel is a single transport (WhatsApp, email) that can deliver a
// rendered message to a patient.
type Channel interface {
	Name() string
	Send(ctx context.Context, patient model.PatientInfo, msg Message) error
	CanReach(patient model.PatientInfo) bool
}

// Message is a rendered notification ready for any channel.
type Message struct {
	Subject string
	Body    string
}
