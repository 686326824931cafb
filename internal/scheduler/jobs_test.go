package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinicbook/internal/appointments/repository"
	"clinicbook/pkg/config"
	"clinicbook/pkg/model"
)

func testJobConfig() *config.Config {
	return &config.Config{Log: testLogger(), ReminderWindow: 5 * time.Minute}
}

// reminderRepo stubs only the methods the reminder sweep touches.
type reminderRepo struct {
	repository.AppointmentRepository

	due     map[model.ReminderLabel][]*model.Appointment
	markErr error

	claimed []string
	windows map[model.ReminderLabel][2]time.Time
}

func (r *reminderRepo) FindNeedingReminder(ctx context.Context, label model.ReminderLabel, windowStart, windowEnd time.Time) ([]*model.Appointment, error) {
	if r.windows == nil {
		r.windows = make(map[model.ReminderLabel][2]time.Time)
	}
	r.windows[label] = [2]time.Time{windowStart, windowEnd}
	return r.due[label], nil
}

func (r *reminderRepo) MarkReminderSent(ctx context.Context, id string, record model.ReminderRecord) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.claimed = append(r.claimed, id)
	return nil
}

type reminderDispatcher struct {
	err    error
	calls  int
	labels []model.ReminderLabel
}

func (d *reminderDispatcher) AppointmentBooked(ctx context.Context, appt *model.Appointment) error {
	return nil
}

func (d *reminderDispatcher) AppointmentConfirmed(ctx context.Context, appt *model.Appointment) error {
	return nil
}

func (d *reminderDispatcher) AppointmentCancelled(ctx context.Context, appt *model.Appointment) error {
	return nil
}

func (d *reminderDispatcher) AppointmentRescheduled(ctx context.Context, old, replacement *model.Appointment) error {
	return nil
}

func (d *reminderDispatcher) AppointmentDelayed(ctx context.Context, appt *model.Appointment, minutes int) error {
	return nil
}

func (d *reminderDispatcher) Reminder(ctx context.Context, appt *model.Appointment, label model.ReminderLabel) error {
	d.calls++
	d.labels = append(d.labels, label)
	return d.err
}

func dueAppointment(id string) *model.Appointment {
	return &model.Appointment{
		ID:        id,
		StartTime: time.Now().Add(90 * time.Minute),
		Status:    model.StatusConfirmed,
	}
}

func TestReminderJob_ClaimsBeforeSending(t *testing.T) {
	repo := &reminderRepo{
		due: map[model.ReminderLabel][]*model.Appointment{
			model.Reminder2h: {dueAppointment("64f0000000000000000000aa")},
		},
	}
	dispatcher := &reminderDispatcher{}

	sent, err := ReminderJob(repo, dispatcher, testJobConfig())(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected 1 reminder sent, got %d", sent)
	}
	if len(repo.claimed) != 1 || repo.claimed[0] != "64f0000000000000000000aa" {
		t.Errorf("expected the reminder claimed in storage, got %v", repo.claimed)
	}
	if dispatcher.calls != 1 {
		t.Errorf("expected 1 dispatch, got %d", dispatcher.calls)
	}
	if dispatcher.labels[0] != model.Reminder2h {
		t.Errorf("expected 2h label, got %s", dispatcher.labels[0])
	}
}

func TestReminderJob_ScansLeadOffsetWindow(t *testing.T) {
	// The 2h sweep must look at appointments starting around now+2h, not at
	// ones starting right now, and the window width must match the sweep
	// cadence so consecutive runs tile the timeline.
	cfg := testJobConfig()
	repo := &reminderRepo{}
	dispatcher := &reminderDispatcher{}

	before := time.Now()
	if _, err := ReminderJob(repo, dispatcher, cfg)(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := time.Now()

	for label, lead := range map[model.ReminderLabel]time.Duration{
		model.Reminder24h: 24 * time.Hour,
		model.Reminder2h:  2 * time.Hour,
	} {
		window, ok := repo.windows[label]
		if !ok {
			t.Fatalf("expected a sweep for label %s", label)
		}
		start, end := window[0], window[1]
		if start.Before(before.Add(lead)) || start.After(after.Add(lead)) {
			t.Errorf("label %s: window start %v not offset by the %v lead", label, start, lead)
		}
		if got := end.Sub(start); got != cfg.ReminderWindow {
			t.Errorf("label %s: window width %v, want %v", label, got, cfg.ReminderWindow)
		}
	}
}

func TestReminderJob_ClaimFailureSkipsSend(t *testing.T) {
	repo := &reminderRepo{
		due: map[model.ReminderLabel][]*model.Appointment{
			model.Reminder24h: {dueAppointment("64f0000000000000000000ab")},
		},
		markErr: errors.New("write conflict"),
	}
	dispatcher := &reminderDispatcher{}

	sent, err := ReminderJob(repo, dispatcher, testJobConfig())(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("expected nothing sent, got %d", sent)
	}
	if dispatcher.calls != 0 {
		t.Errorf("expected no dispatch when the claim fails, got %d", dispatcher.calls)
	}
}

func TestReminderJob_DeliveryFailureStillClaimed(t *testing.T) {
	// A failed send after the claim costs one reminder but never produces
	// duplicates on the next sweep.
	repo := &reminderRepo{
		due: map[model.ReminderLabel][]*model.Appointment{
			model.Reminder24h: {dueAppointment("64f0000000000000000000ac")},
		},
	}
	dispatcher := &reminderDispatcher{err: errors.New("provider down")}

	sent, err := ReminderJob(repo, dispatcher, testJobConfig())(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 {
		t.Errorf("expected sent count 0 on delivery failure, got %d", sent)
	}
	if len(repo.claimed) != 1 {
		t.Errorf("expected the reminder still claimed, got %v", repo.claimed)
	}
}
