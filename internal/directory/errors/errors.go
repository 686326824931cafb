package errors

import "errors"

var (
	ErrDoctorNotFound = errors.New("doctor not found")

	ErrServiceNotFound = errors.New("service not found")

	ErrUserNotFound = errors.New("user not found")

	ErrInvalidID = errors.New("invalid ID format")

	ErrNoAvailability = errors.New("doctor has no availability for this day")
)
