package model

import (
	"time"
)

// User is a patient or staff account. The appointments service only reads
// contact fields to build PatientInfo snapshots; account management itself
// lives outside this service.
type User struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	FirstName string    `json:"first_name" bson:"first_name" validate:"required,min=1,max=60"`
	LastName  string    `json:"last_name" bson:"last_name" validate:"omitempty,max=60"`
	Email     string    `json:"email" bson:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,e164"`
	Age       int       `json:"age,omitempty" bson:"age,omitempty" validate:"omitempty,min=0,max=130"`
	Role      string    `json:"role" bson:"role" validate:"required,oneof=client staff"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// IsStaff reports whether the user may bypass patient-facing booking policies
// (cancellation window, pending confirmation).
func (u *User) IsStaff() bool {
	return u.Role == "staff"
}

// Snapshot builds the denormalized patient info stored on an appointment.
func (u *User) Snapshot() PatientInfo {
	return PatientInfo{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Age:       u.Age,
	}
}
