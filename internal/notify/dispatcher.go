package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

// MultiDispatcher fans a rendered message out to every channel able to
// reach the patient. Per-channel failures are joined so the caller can
// record them; one dead channel never blocks the others.
type MultiDispatcher struct {
	channels []Channel
	log      *logger.Logger
	now      func() time.Time
}

func NewMultiDispatcher(log *logger.Logger, channels ...Channel) *MultiDispatcher {
	return &MultiDispatcher{
		channels: channels,
		log:      log,
		now:      time.Now,
	}
}

func (d *MultiDispatcher) AppointmentBooked(ctx context.Context, appt *model.Appointment) error {
	return d.dispatch(ctx, appt, bookedMessage(appt))
}

func (d *MultiDispatcher) AppointmentConfirmed(ctx context.Context, appt *model.Appointment) error {
	return d.dispatch(ctx, appt, confirmedMessage(appt))
}

func (d *MultiDispatcher) AppointmentCancelled(ctx context.Context, appt *model.Appointment) error {
	return d.dispatch(ctx, appt, cancelledMessage(appt))
}

func (d *MultiDispatcher) AppointmentRescheduled(ctx context.Context, old, replacement *model.Appointment) error {
	return d.dispatch(ctx, replacement, rescheduledMessage(old, replacement))
}

func (d *MultiDispatcher) AppointmentDelayed(ctx context.Context, appt *model.Appointment, minutes int) error {
	return d.dispatch(ctx, appt, delayedMessage(appt, minutes))
}

func (d *MultiDispatcher) Reminder(ctx context.Context, appt *model.Appointment, label model.ReminderLabel) error {
	if !upcoming(appt, d.now()) {
		d.log.Warn("Skipping reminder for appointment already started",
			"appointment_id", appt.ID,
			"label", label,
		)
		return nil
	}
	return d.dispatch(ctx, appt, reminderMessage(appt, label))
}

func (d *MultiDispatcher) dispatch(ctx context.Context, appt *model.Appointment, msg Message) error {
	var errs []error
	reached := 0

	for _, ch := range d.channels {
		if !ch.CanReach(appt.PatientInfo) {
			continue
		}
		reached++

		if err := ch.Send(ctx, appt.PatientInfo, msg); err != nil {
			d.log.Warn("Notification channel failed",
				"channel", ch.Name(),
				"appointment_id", appt.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}

		d.log.Info("Notification sent",
			"channel", ch.Name(),
			"appointment_id", appt.ID,
			"subject", msg.Subject,
		)
	}

	if reached == 0 {
		return errors.New("patient has no reachable contact details")
	}

	return errors.Join(errs...)
}
