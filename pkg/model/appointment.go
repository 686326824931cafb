package model

import (
	"time"
)

// AppointmentStatus is the closed set of lifecycle states an appointment
// moves through. Transitions are guarded by the appointments service; the
// repository only ever filters on the predicates below, never on ad hoc
// status lists.
type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusExpired     AppointmentStatus = "expired"
	StatusNoShow      AppointmentStatus = "no-show"
)

// IsTerminal reports whether no further transition is permitted on this row.
// Rescheduling never reopens a terminal row; it creates a new one.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusExpired, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// HoldsSlot reports whether an appointment in this status still occupies its
// time slot for conflict detection purposes.
func (s AppointmentStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ActiveStatuses is the set of statuses that hold a slot. Used to build the
// partial unique index filter and every conflict query.
func ActiveStatuses() []AppointmentStatus {
	return []AppointmentStatus{StatusPending, StatusConfirmed}
}

// BlockingStatuses is the set excluded from "already booked" checks in the
// original policy: everything except cancelled, expired and no-show still
// blocks a same-day duplicate.
func BlockingStatuses() []AppointmentStatus {
	return []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusRescheduled}
}

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodOnline PaymentMethod = "online"
)

// PatientInfo is the denormalized snapshot captured at booking time. Profile
// edits after booking must not alter historical appointment records.
type PatientInfo struct {
	FirstName string `json:"first_name" bson:"first_name" validate:"required,min=1,max=60"`
	LastName  string `json:"last_name" bson:"last_name" validate:"omitempty,max=60"`
	Email     string `json:"email" bson:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" bson:"phone" validate:"omitempty,e164"`
	Age       int    `json:"age,omitempty" bson:"age,omitempty" validate:"omitempty,min=0,max=130"`
}

// HistoryEntry is one line of the append-only audit trail. Actor is a user ID
// or the literal "system" for scheduler-driven transitions.
type HistoryEntry struct {
	Action string    `json:"action" bson:"action"`
	Actor  string    `json:"actor" bson:"actor"`
	At     time.Time `json:"at" bson:"at"`
}

// ReminderLabel identifies a configured reminder lead time.
type ReminderLabel string

const (
	Reminder24h ReminderLabel = "24h"
	Reminder2h  ReminderLabel = "2h"
)

// ReminderRecord marks a reminder as dispatched so a sweep never sends the
// same label twice for one appointment.
type ReminderRecord struct {
	Label  ReminderLabel `json:"label" bson:"label"`
	SentAt time.Time     `json:"sent_at" bson:"sent_at"`
	Status string        `json:"status" bson:"status"`
}

type Appointment struct {
	ID        string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	PatientID string `json:"patient_id,omitempty" bson:"patient_id,omitempty" validate:"omitempty,mongodb"`
	DoctorID  string `json:"doctor_id" bson:"doctor_id" validate:"required,mongodb"`
	ServiceID string `json:"service_id" bson:"service_id" validate:"required,mongodb"`
	BookedBy  string `json:"booked_by,omitempty" bson:"booked_by,omitempty" validate:"omitempty,mongodb"`

	PatientInfo PatientInfo `json:"patient_info" bson:"patient_info"`

	Date      time.Time `json:"date" bson:"date" validate:"required"`
	StartTime time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`

	Status AppointmentStatus `json:"status" bson:"status" validate:"required,oneof=pending confirmed completed cancelled rescheduled expired no-show"`

	PaymentMethod PaymentMethod `json:"payment_method,omitempty" bson:"payment_method,omitempty" validate:"omitempty,oneof=cash online"`
	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status" validate:"omitempty,oneof=pending paid failed refunded refund-pending"`
	Amount        float64       `json:"amount" bson:"amount" validate:"gte=0"`
	PaymentID     string        `json:"payment_id,omitempty" bson:"payment_id,omitempty" validate:"omitempty,mongodb"`

	History   []HistoryEntry   `json:"history" bson:"history"`
	Reminders []ReminderRecord `json:"reminders,omitempty" bson:"reminders,omitempty"`

	Attended      bool `json:"attended" bson:"attended"`
	NoShowHandled bool `json:"no_show_handled" bson:"no_show_handled"`

	RescheduleCount int    `json:"reschedule_count" bson:"reschedule_count" validate:"min=0,max=2"`
	RescheduledFrom string `json:"rescheduled_from,omitempty" bson:"rescheduled_from,omitempty" validate:"omitempty,mongodb"`

	CancellationWindowHours int    `json:"cancellation_window_hours" bson:"cancellation_window_hours" validate:"min=0"`
	CancellationReason      string `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`

	ConfirmedBy string `json:"confirmed_by,omitempty" bson:"confirmed_by,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`

	Notes string `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=500"`

	// NotificationNote records a best-effort delivery failure reason, e.g. a
	// recipient that has not opted in to WhatsApp. Never an error condition.
	NotificationNote string `json:"notification_note,omitempty" bson:"notification_note,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// CancelDeadline is the latest instant at which a non-staff actor may still
// cancel or reschedule this appointment.
func (a *Appointment) CancelDeadline() time.Time {
	return a.StartTime.Add(-time.Duration(a.CancellationWindowHours) * time.Hour)
}

// HasReminder reports whether a reminder with the given label was already sent.
func (a *Appointment) HasReminder(label ReminderLabel) bool {
	for _, r := range a.Reminders {
		if r.Label == label {
			return true
		}
	}
	return false
}
