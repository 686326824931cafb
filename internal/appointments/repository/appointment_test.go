package repository

import (
	"testing"
	"time"

	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestExpireSweepDocs(t *testing.T) {
	cutoff := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	now := cutoff.Add(time.Second)

	filter, update := expireSweepDocs(cutoff, now)

	// A pending appointment keeps its slot until its end time passes, so a
	// late patient can still pay for a visit already underway.
	if _, ok := filter["start_time"]; ok {
		t.Error("expire sweep must not key on start_time")
	}
	endCond, ok := filter["end_time"].(bson.M)
	if !ok {
		t.Fatalf("expected end_time condition, got %v", filter["end_time"])
	}
	if got := endCond["$lte"]; got != cutoff {
		t.Errorf("expected end_time $lte %v, got %v", cutoff, got)
	}
	if got := filter["status"]; got != model.StatusPending {
		t.Errorf("expected pending filter, got %v", got)
	}
	payCond, ok := filter["payment_status"].(bson.M)
	if !ok || payCond["$ne"] != model.PaymentPaid {
		t.Errorf("expected paid appointments excluded, got %v", filter["payment_status"])
	}

	set := update["$set"].(bson.M)
	if got := set["status"]; got != model.StatusExpired {
		t.Errorf("expected expired status, got %v", got)
	}
	entry := update["$push"].(bson.M)["history"].(model.HistoryEntry)
	if entry.Action != "expired" || entry.Actor != "system" {
		t.Errorf("unexpected history entry %+v", entry)
	}
}

func TestCompleteSweepDocs(t *testing.T) {
	cutoff := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	now := cutoff.Add(time.Second)

	filter, update := completeSweepDocs(cutoff, now)

	if got := filter["status"]; got != model.StatusConfirmed {
		t.Errorf("expected confirmed filter, got %v", got)
	}
	endCond := filter["end_time"].(bson.M)
	if got := endCond["$lte"]; got != cutoff {
		t.Errorf("expected end_time $lte %v, got %v", cutoff, got)
	}

	set := update["$set"].(bson.M)
	if got := set["status"]; got != model.StatusCompleted {
		t.Errorf("expected completed status, got %v", got)
	}
	// Attendance is presumed on auto-completion; the no-show flow relies on
	// it being set so staff can flip it back.
	if got := set["attended"]; got != true {
		t.Errorf("expected attended set to true, got %v", got)
	}
	entry := update["$push"].(bson.M)["history"].(model.HistoryEntry)
	if entry.Action != "completed" || entry.Actor != "system" {
		t.Errorf("unexpected history entry %+v", entry)
	}
}

func TestReminderDueFilter(t *testing.T) {
	windowStart := time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(5 * time.Minute)

	filter := reminderDueFilter(model.Reminder24h, windowStart, windowEnd)

	// Only confirmed visits get reminders. Pending bookings may still expire
	// and completed ones are in the past.
	if got := filter["status"]; got != model.StatusConfirmed {
		t.Errorf("expected confirmed-only filter, got %v", got)
	}
	startCond := filter["start_time"].(bson.M)
	if startCond["$gte"] != windowStart || startCond["$lt"] != windowEnd {
		t.Errorf("unexpected window bounds %v", startCond)
	}
	labelCond := filter["reminders.label"].(bson.M)
	if labelCond["$ne"] != model.Reminder24h {
		t.Errorf("expected already-sent labels excluded, got %v", labelCond)
	}
}

func TestReminderSentDocs(t *testing.T) {
	objectID := primitive.NewObjectID()
	record := model.ReminderRecord{
		Label:  model.Reminder2h,
		SentAt: time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),
		Status: "sent",
	}

	filter, update := reminderSentDocs(objectID, record)

	if got := filter["_id"]; got != objectID {
		t.Errorf("expected filter on _id, got %v", got)
	}
	labelCond := filter["reminders.label"].(bson.M)
	if labelCond["$ne"] != model.Reminder2h {
		t.Errorf("expected guard against double claims, got %v", labelCond)
	}

	push := update["$push"].(bson.M)
	if got := push["reminders"]; got != record {
		t.Errorf("expected reminder record pushed, got %v", got)
	}
	entry, ok := push["history"].(model.HistoryEntry)
	if !ok {
		t.Fatal("expected a history entry alongside the reminder record")
	}
	if entry.Action != "reminder-sent-2h" {
		t.Errorf("expected action reminder-sent-2h, got %s", entry.Action)
	}
	if entry.Actor != "system" || !entry.At.Equal(record.SentAt) {
		t.Errorf("unexpected history entry %+v", entry)
	}
}
