package model

import (
	"time"
)

// ClinicService is a bookable service from the clinic catalog. The price is
// snapshotted onto the appointment at booking time.
type ClinicService struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name        string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Price       float64   `json:"price" bson:"price" validate:"required,gt=0"`
	DurationMin int       `json:"duration_min" bson:"duration_min" validate:"required,min=5,max=480"`
	CategoryID  string    `json:"category_id,omitempty" bson:"category_id,omitempty" validate:"omitempty,mongodb"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
