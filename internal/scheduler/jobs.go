package scheduler

import (
	"context"
	"time"

	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/notify"
	"clinicbook/pkg/config"
	"clinicbook/pkg/events"
	"clinicbook/pkg/model"
)

// AutoExpireJob moves unpaid pending appointments whose end time has
// passed to expired, releasing their slots.
func AutoExpireJob(repo repository.AppointmentRepository, publisher *events.Publisher, cfg *config.Config) JobFunc {
	return func(ctx context.Context) (int64, error) {
		count, err := repo.ExpirePendingBefore(ctx, time.Now())
		if err != nil {
			return 0, err
		}
		if count > 0 {
			cfg.Log.Info("Expired unpaid pending appointments", "count", count)
		}
		return count, nil
	}
}

// AutoCompleteJob moves confirmed appointments past their end time to
// completed. Staff later flip actual no-shows from the completed set.
func AutoCompleteJob(repo repository.AppointmentRepository, cfg *config.Config) JobFunc {
	return func(ctx context.Context) (int64, error) {
		return repo.CompleteConfirmedBefore(ctx, time.Now())
	}
}

// reminderLead maps each reminder label to how far before the appointment
// it fires.
var reminderLead = map[model.ReminderLabel]time.Duration{
	model.Reminder24h: 24 * time.Hour,
	model.Reminder2h:  2 * time.Hour,
}

// ReminderJob sends due reminders. For each label it scans appointments
// starting inside [now+lead, now+lead+window) that have not received that
// label yet, where window matches the sweep cadence so consecutive runs
// tile the timeline without gaps. The stored reminder record keeps replays
// out even when sweeps overlap.
func ReminderJob(repo repository.AppointmentRepository, dispatcher notify.Dispatcher, cfg *config.Config) JobFunc {
	return func(ctx context.Context) (int64, error) {
		var sent int64
		var firstErr error

		for label, lead := range reminderLead {
			now := time.Now()
			windowStart := now.Add(lead)
			windowEnd := windowStart.Add(cfg.ReminderWindow)

			due, err := repo.FindNeedingReminder(ctx, label, windowStart, windowEnd)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			for _, appt := range due {
				// Claim the reminder before sending so two overlapping
				// sweeps never deliver the same label twice. A send failure
				// after the claim costs the patient one reminder, which is
				// preferable to duplicates.
				record := model.ReminderRecord{
					Label:  label,
					SentAt: now,
					Status: "sent",
				}
				if err := repo.MarkReminderSent(ctx, appt.ID, record); err != nil {
					cfg.Log.Warn("Failed to claim reminder",
						"appointment_id", appt.ID,
						"label", label,
						"error", err,
					)
					continue
				}

				if err := dispatcher.Reminder(ctx, appt, label); err != nil {
					cfg.Log.Warn("Reminder delivery failed",
						"appointment_id", appt.ID,
						"label", label,
						"error", err,
					)
					continue
				}
				sent++
			}
		}

		return sent, firstErr
	}
}
