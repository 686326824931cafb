package model

import (
	"time"
)

// Window is a doctor-configured time-of-day range in "HH:MM" form.
type Window struct {
	From string `json:"from" bson:"from" validate:"required,valid_clock"`
	To   string `json:"to" bson:"to" validate:"required,valid_clock"`
}

// DayAvailability is the set of working windows for one weekday. Day uses the
// English weekday name produced by time.Weekday.String.
type DayAvailability struct {
	Day     string   `json:"day" bson:"day" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	Windows []Window `json:"windows" bson:"windows" validate:"required,min=1,dive"`
}

type Doctor struct {
	ID             string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID         string            `json:"user_id" bson:"user_id" validate:"required,mongodb"`
	Name           string            `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Specialization []string          `json:"specialization" bson:"specialization" validate:"omitempty,dive,min=2,max=60"`
	ServiceIDs     []string          `json:"service_ids" bson:"service_ids" validate:"omitempty,dive,mongodb"`
	AvailableTimes []DayAvailability `json:"available_times" bson:"available_times" validate:"omitempty,dive"`
	CreatedAt      time.Time         `json:"created_at" bson:"created_at"`
}

// WindowsFor returns the doctor's working windows for a weekday, or nil when
// the doctor does not work that day.
func (d *Doctor) WindowsFor(day time.Weekday) []Window {
	for _, avail := range d.AvailableTimes {
		if avail.Day == day.String() {
			return avail.Windows
		}
	}
	return nil
}
