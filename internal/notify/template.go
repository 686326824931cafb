package notify

import (
	"fmt"
	"time"

	"clinicbook/pkg/model"
)

const apptTimeLayout = "Mon, 2 Jan 2006 at 15:04"

func patientName(appt *model.Appointment) string {
	if appt.PatientInfo.FirstName != "" {
		return appt.PatientInfo.FirstName
	}
	return "there"
}

func bookedMessage(appt *model.Appointment) Message {
	return Message{
		Subject: "Appointment received",
		Body: fmt.Sprintf(
			"Hi %s, we received your appointment request for %s. We will confirm it shortly.",
			patientName(appt), appt.StartTime.Format(apptTimeLayout)),
	}
}

func confirmedMessage(appt *model.Appointment) Message {
	return Message{
		Subject: "Appointment confirmed",
		Body: fmt.Sprintf(
			"Hi %s, your appointment on %s is confirmed. See you then!",
			patientName(appt), appt.StartTime.Format(apptTimeLayout)),
	}
}

func cancelledMessage(appt *model.Appointment) Message {
	body := fmt.Sprintf(
		"Hi %s, your appointment on %s has been cancelled.",
		patientName(appt), appt.StartTime.Format(apptTimeLayout))
	if appt.PaymentStatus == model.PaymentRefunded {
		body += " Your payment has been refunded."
	} else if appt.PaymentStatus == model.PaymentRefundPending {
		body += " Your refund is being processed."
	}
	return Message{Subject: "Appointment cancelled", Body: body}
}

func rescheduledMessage(old, replacement *model.Appointment) Message {
	return Message{
		Subject: "Appointment rescheduled",
		Body: fmt.Sprintf(
			"Hi %s, your appointment has been moved from %s to %s.",
			patientName(replacement),
			old.StartTime.Format(apptTimeLayout),
			replacement.StartTime.Format(apptTimeLayout)),
	}
}

func delayedMessage(appt *model.Appointment, minutes int) Message {
	return Message{
		Subject: "Appointment delayed",
		Body: fmt.Sprintf(
			"Hi %s, your appointment has been delayed by %d minutes. New time: %s.",
			patientName(appt), minutes, appt.StartTime.Format(apptTimeLayout)),
	}
}

func reminderMessage(appt *model.Appointment, label model.ReminderLabel) Message {
	lead := "soon"
	switch label {
	case model.Reminder24h:
		lead = "tomorrow"
	case model.Reminder2h:
		lead = "in 2 hours"
	}
	return Message{
		Subject: "Appointment reminder",
		Body: fmt.Sprintf(
			"Hi %s, this is a reminder that your appointment is %s, on %s.",
			patientName(appt), lead, appt.StartTime.Format(apptTimeLayout)),
	}
}

// upcoming guards against reminding for appointments already in the past,
// which can happen when a sweep runs late.
func upcoming(appt *model.Appointment, now time.Time) bool {
	return appt.StartTime.After(now)
}
