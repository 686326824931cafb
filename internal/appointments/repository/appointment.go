package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	appterrors "clinicbook/internal/appointments/errors"
	"clinicbook/pkg/config"
	mongotx "clinicbook/pkg/db/mongo"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Appointments"
)

// ListFilter narrows admin appointment listings.
type ListFilter struct {
	Status    model.AppointmentStatus
	DoctorID  string
	PatientID string
	Day       *time.Time
}

type AppointmentRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	FindAll(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Appointment, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	CountByStatus(ctx context.Context) (map[model.AppointmentStatus]int64, error)
	UpdateFields(ctx context.Context, id string, set bson.M) error
	UpdateStatusGuarded(ctx context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, set bson.M, entry model.HistoryEntry) error
	AppendHistory(ctx context.Context, id string, entry model.HistoryEntry) error
	FindHoldingSlotsByDoctorAndDay(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error)
	FindConflicting(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error)
	FindBlockingSameDay(ctx context.Context, doctorID, patientID string, day time.Time, excludeID string) ([]*model.Appointment, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CompleteConfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FindNeedingReminder(ctx context.Context, label model.ReminderLabel, windowStart, windowEnd time.Time) ([]*model.Appointment, error)
	MarkReminderSent(ctx context.Context, id string, record model.ReminderRecord) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoAppointmentRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics.
func (r *mongoAppointmentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func activeStatusValues() []string {
	active := model.ActiveStatuses()
	values := make([]string, len(active))
	for i, s := range active {
		values[i] = string(s)
	}
	return values
}

// EnsureIndexes creates the partial unique index that makes double-booking
// impossible at the storage layer: only appointments still holding their
// slot participate, so a cancelled row never blocks a rebooking.
func (r *mongoAppointmentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "start_time", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_doctor_slot_active").
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": activeStatusValues()},
				}),
		},
		{
			Keys: bson.D{
				{Key: "patient_id", Value: 1},
				{Key: "start_time", Value: -1},
			},
			Options: options.Index().SetName("patient_appointments"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "start_time", Value: 1},
			},
			Options: options.Index().SetName("status_sweep"),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create appointment indexes: %w", err)
	}
	return nil
}

func (r *mongoAppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	appt.CreatedAt = now
	appt.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, appt)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appterrors.ErrSlotTaken
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		appt.ID = oid.Hex()
	}
	return nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", appterrors.ErrInvalidID, id)
	}

	var appt model.Appointment
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&appt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}

	return &appt, nil
}

func buildListFilter(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.DoctorID != "" {
		query["doctor_id"] = filter.DoctorID
	}
	if filter.PatientID != "" {
		query["patient_id"] = filter.PatientID
	}
	if filter.Day != nil {
		dayStart := time.Date(filter.Day.Year(), filter.Day.Month(), filter.Day.Day(), 0, 0, 0, 0, filter.Day.Location())
		query["start_time"] = bson.M{
			"$gte": dayStart,
			"$lt":  dayStart.AddDate(0, 0, 1),
		}
	}
	return query
}

func (r *mongoAppointmentRepository) FindAll(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildListFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err = cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}

	return appts, nil
}

func (r *mongoAppointmentRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildListFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	return count, nil
}

func (r *mongoAppointmentRepository) CountByStatus(ctx context.Context) (map[model.AppointmentStatus]int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate appointment counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.AppointmentStatus `bson:"_id"`
		Count  int64                   `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode appointment counts: %w", err)
	}

	counts := make(map[model.AppointmentStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *mongoAppointmentRepository) UpdateFields(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appterrors.ErrInvalidID, id)
	}

	set["updated_at"] = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	if result.MatchedCount == 0 {
		return appterrors.ErrNotFound
	}

	return nil
}

// UpdateStatusGuarded performs a conditional status transition: the update
// only matches while the document is still in one of the expected source
// statuses. A concurrent transition makes the filter miss, which surfaces as
// ErrStatusChanged rather than silently overwriting the newer state.
func (r *mongoAppointmentRepository) UpdateStatusGuarded(
	ctx context.Context,
	id string,
	from []model.AppointmentStatus,
	to model.AppointmentStatus,
	set bson.M,
	entry model.HistoryEntry,
) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appterrors.ErrInvalidID, id)
	}

	if set == nil {
		set = bson.M{}
	}
	set["status"] = to
	set["updated_at"] = time.Now().UTC().Truncate(time.Millisecond)

	filter := bson.M{
		"_id":    objectID,
		"status": bson.M{"$in": from},
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"history": entry},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to transition appointment: %w", err)
	}

	if result.MatchedCount == 0 {
		exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": objectID})
		if countErr == nil && exists == 0 {
			return appterrors.ErrNotFound
		}
		return appterrors.ErrStatusChanged
	}

	return nil
}

func (r *mongoAppointmentRepository) AppendHistory(ctx context.Context, id string, entry model.HistoryEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appterrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$push": bson.M{"history": entry}},
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if result.MatchedCount == 0 {
		return appterrors.ErrNotFound
	}

	return nil
}

func (r *mongoAppointmentRepository) FindHoldingSlotsByDoctorAndDay(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	filter := bson.M{
		"doctor_id": doctorID,
		"status":    bson.M{"$in": activeStatusValues()},
		"start_time": bson.M{
			"$gte": dayStart,
			"$lt":  dayStart.AddDate(0, 0, 1),
		},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find held appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err = cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode held appointments: %w", err)
	}

	return appts, nil
}

// FindConflicting returns appointments still holding their slot that
// strictly overlap [start, end) for the doctor.
func (r *mongoAppointmentRepository) FindConflicting(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"doctor_id":  doctorID,
		"status":     bson.M{"$in": activeStatusValues()},
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err = cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode conflicting appointments: %w", err)
	}

	return appts, nil
}

// FindBlockingSameDay returns the patient's appointments with this doctor on
// the given day that still count against the one-per-day policy. Cancelled,
// expired and no-show rows do not block.
func (r *mongoAppointmentRepository) FindBlockingSameDay(ctx context.Context, doctorID, patientID string, day time.Time, excludeID string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	blocking := model.BlockingStatuses()
	statusValues := make([]string, len(blocking))
	for i, s := range blocking {
		statusValues[i] = string(s)
	}

	filter := bson.M{
		"patient_id": patientID,
		"status":     bson.M{"$in": statusValues},
		"start_time": bson.M{
			"$gte": dayStart,
			"$lt":  dayStart.AddDate(0, 0, 1),
		},
	}
	if doctorID != "" {
		filter["doctor_id"] = doctorID
	}
	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find same-day appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err = cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode same-day appointments: %w", err)
	}

	return appts, nil
}

// expireSweepDocs builds the bulk filter and update for the auto-expire
// sweep. Pending appointments are only given up on once their end time has
// passed, so a patient can still pay for a visit that is already underway.
func expireSweepDocs(cutoff, now time.Time) (bson.M, bson.M) {
	filter := bson.M{
		"status":         model.StatusPending,
		"payment_status": bson.M{"$ne": model.PaymentPaid},
		"end_time":       bson.M{"$lte": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.StatusExpired,
			"updated_at": now,
		},
		"$push": bson.M{"history": model.HistoryEntry{
			Action: "expired",
			Actor:  "system",
			At:     now,
		}},
	}
	return filter, update
}

// ExpirePendingBefore transitions pending, unpaid appointments whose end
// time has passed to expired. The update is a single bulk statement so a
// rerun after a crash simply matches nothing.
func (r *mongoAppointmentRepository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter, update := expireSweepDocs(cutoff, time.Now().UTC().Truncate(time.Millisecond))

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to expire appointments: %w", err)
	}

	return result.ModifiedCount, nil
}

// completeSweepDocs builds the bulk filter and update for the auto-complete
// sweep. Attendance is presumed for a confirmed visit that ran to its end;
// staff flip it back through the no-show flow when the patient never showed.
func completeSweepDocs(cutoff, now time.Time) (bson.M, bson.M) {
	filter := bson.M{
		"status":   model.StatusConfirmed,
		"end_time": bson.M{"$lte": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     model.StatusCompleted,
			"attended":   true,
			"updated_at": now,
		},
		"$push": bson.M{"history": model.HistoryEntry{
			Action: "completed",
			Actor:  "system",
			At:     now,
		}},
	}
	return filter, update
}

// CompleteConfirmedBefore transitions confirmed appointments whose end time
// has passed to completed.
func (r *mongoAppointmentRepository) CompleteConfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter, update := completeSweepDocs(cutoff, time.Now().UTC().Truncate(time.Millisecond))

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to complete appointments: %w", err)
	}

	return result.ModifiedCount, nil
}

// reminderDueFilter matches confirmed appointments starting inside the
// window that have not yet received the labeled reminder. Pending bookings
// are excluded: nobody gets reminded of a visit that was never confirmed.
func reminderDueFilter(label model.ReminderLabel, windowStart, windowEnd time.Time) bson.M {
	return bson.M{
		"status": model.StatusConfirmed,
		"start_time": bson.M{
			"$gte": windowStart,
			"$lt":  windowEnd,
		},
		"reminders.label": bson.M{"$ne": label},
	}
}

// FindNeedingReminder returns confirmed appointments starting inside the
// window that have not yet received the labeled reminder.
func (r *mongoAppointmentRepository) FindNeedingReminder(ctx context.Context, label model.ReminderLabel, windowStart, windowEnd time.Time) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := reminderDueFilter(label, windowStart, windowEnd)

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments needing reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var appts []*model.Appointment
	if err = cursor.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode appointments needing reminders: %w", err)
	}

	return appts, nil
}

// reminderSentDocs builds the guarded claim for a dispatched reminder. The
// filter repeats the not-yet-sent condition so two racing sweeps cannot both
// record the same label, and the history entry keeps the send auditable
// alongside the rest of the appointment's timeline.
func reminderSentDocs(objectID primitive.ObjectID, record model.ReminderRecord) (bson.M, bson.M) {
	filter := bson.M{
		"_id":             objectID,
		"reminders.label": bson.M{"$ne": record.Label},
	}
	update := bson.M{
		"$push": bson.M{
			"reminders": record,
			"history": model.HistoryEntry{
				Action: "reminder-sent-" + string(record.Label),
				Actor:  "system",
				At:     record.SentAt,
			},
		},
	}
	return filter, update
}

// MarkReminderSent records a dispatched reminder. The filter repeats the
// not-yet-sent condition so two racing sweeps cannot both record the same
// label.
func (r *mongoAppointmentRepository) MarkReminderSent(ctx context.Context, id string, record model.ReminderRecord) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appterrors.ErrInvalidID, id)
	}

	filter, update := reminderSentDocs(objectID, record)

	_, err = r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	return nil
}

func (r *mongoAppointmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
