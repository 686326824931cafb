package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
}

type mockChannel struct {
	name     string
	canReach bool
	sendErr  error

	sent []Message
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) CanReach(patient model.PatientInfo) bool { return m.canReach }

func (m *mockChannel) Send(ctx context.Context, patient model.PatientInfo, msg Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func testAppointment(start time.Time) *model.Appointment {
	return &model.Appointment{
		ID:        "64f000000000000000000005",
		StartTime: start,
		PatientInfo: model.PatientInfo{
			FirstName: "Omar",
			Phone:     "+201001234567",
			Email:     "omar@example.com",
		},
	}
}

func TestDispatch_FansOutToReachableChannels(t *testing.T) {
	whatsapp := &mockChannel{name: "whatsapp", canReach: true}
	mail := &mockChannel{name: "mail", canReach: true}
	unreachable := &mockChannel{name: "sms", canReach: false}

	d := NewMultiDispatcher(testLogger(), whatsapp, mail, unreachable)

	err := d.AppointmentConfirmed(context.Background(), testAppointment(time.Now().Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(whatsapp.sent) != 1 {
		t.Errorf("expected 1 whatsapp message, got %d", len(whatsapp.sent))
	}
	if len(mail.sent) != 1 {
		t.Errorf("expected 1 mail message, got %d", len(mail.sent))
	}
	if len(unreachable.sent) != 0 {
		t.Errorf("expected no messages on unreachable channel, got %d", len(unreachable.sent))
	}
}

func TestDispatch_NoReachableChannelIsAnError(t *testing.T) {
	d := NewMultiDispatcher(testLogger(), &mockChannel{name: "whatsapp", canReach: false})

	err := d.AppointmentBooked(context.Background(), testAppointment(time.Now().Add(24*time.Hour)))
	if err == nil {
		t.Fatal("expected error when no channel can reach the patient")
	}
}

func TestDispatch_OneFailingChannelDoesNotBlockOthers(t *testing.T) {
	failing := &mockChannel{name: "whatsapp", canReach: true, sendErr: errors.New("provider down")}
	mail := &mockChannel{name: "mail", canReach: true}

	d := NewMultiDispatcher(testLogger(), failing, mail)

	err := d.AppointmentCancelled(context.Background(), testAppointment(time.Now().Add(24*time.Hour)))
	if err == nil {
		t.Fatal("expected the channel failure to surface")
	}
	if len(mail.sent) != 1 {
		t.Errorf("expected mail delivery despite whatsapp failure, got %d", len(mail.sent))
	}
}

func TestReminder_SkippedForStartedAppointment(t *testing.T) {
	ch := &mockChannel{name: "whatsapp", canReach: true}
	d := NewMultiDispatcher(testLogger(), ch)

	now := time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	appt := testAppointment(now.Add(-10 * time.Minute))

	err := d.Reminder(context.Background(), appt, model.Reminder2h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("expected no reminder for a started appointment, got %d", len(ch.sent))
	}
}

func TestMessageWording(t *testing.T) {
	start := time.Date(2026, 9, 7, 14, 30, 0, 0, time.UTC)
	appt := testAppointment(start)

	t.Run("cancellation mentions refund state", func(t *testing.T) {
		appt := *appt
		appt.PaymentStatus = model.PaymentRefundPending
		msg := cancelledMessage(&appt)
		if want := "Your refund is being processed."; !strings.Contains(msg.Body, want) {
			t.Errorf("expected body to mention pending refund, got %q", msg.Body)
		}
	})

	t.Run("reminder labels map to wording", func(t *testing.T) {
		msg := reminderMessage(appt, model.Reminder24h)
		if !strings.Contains(msg.Body, "tomorrow") {
			t.Errorf("expected 24h reminder to say tomorrow, got %q", msg.Body)
		}
		msg = reminderMessage(appt, model.Reminder2h)
		if !strings.Contains(msg.Body, "in 2 hours") {
			t.Errorf("expected 2h reminder wording, got %q", msg.Body)
		}
	})

	t.Run("reschedule names both times", func(t *testing.T) {
		replacement := testAppointment(start.Add(48 * time.Hour))
		msg := rescheduledMessage(appt, replacement)
		if !strings.Contains(msg.Body, start.Format(apptTimeLayout)) {
			t.Errorf("expected old time in body, got %q", msg.Body)
		}
		if !strings.Contains(msg.Body, replacement.StartTime.Format(apptTimeLayout)) {
			t.Errorf("expected new time in body, got %q", msg.Body)
		}
	})
}
