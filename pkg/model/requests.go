package model

import "time"

// BookAppointmentRequest carries everything needed to place a booking.
// Either PatientID or PatientInfo must identify the patient; staff actors
// may book on behalf of patients that have no account yet.
type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,mongodb"`
	ServiceID string `json:"service_id" validate:"required,mongodb"`

	PatientID   string       `json:"patient_id,omitempty" validate:"omitempty,mongodb"`
	PatientInfo *PatientInfo `json:"patient_info,omitempty"`

	StartTime time.Time `json:"start_time" validate:"required"`

	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash online"`
	Gateway       Gateway       `json:"gateway,omitempty" validate:"omitempty,oneof=stripe paymob paypal"`

	ActorID string `json:"actor_id" validate:"required,mongodb"`

	Notes string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// RescheduleRequest moves an appointment to a new start time.
type RescheduleRequest struct {
	NewStartTime time.Time `json:"new_start_time" validate:"required"`
	ActorID      string    `json:"actor_id" validate:"required,mongodb"`
}

// CancelRequest cancels an appointment, optionally recording a reason.
type CancelRequest struct {
	ActorID string `json:"actor_id" validate:"required,mongodb"`
	Reason  string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// DelayRequest shifts an appointment's start and end by whole minutes.
type DelayRequest struct {
	Minutes int    `json:"minutes" validate:"required,min=1,max=1440"`
	ActorID string `json:"actor_id" validate:"required,mongodb"`
}
