package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appterrors "clinicbook/internal/appointments/errors"
	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/appointments/validator"
	directoryservice "clinicbook/internal/directory/service"
	"clinicbook/internal/notify"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/events"
	"clinicbook/pkg/model"
	"clinicbook/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const systemActor = "system"

// RefundCoordinator is implemented by the payments service. Cancelling a
// paid appointment delegates the money movement here; the returned status
// tells the lifecycle layer where the payment record landed.
type RefundCoordinator interface {
	RefundForAppointment(ctx context.Context, appointmentID, actorID string) (model.PaymentStatus, error)
}

type AppointmentService interface {
	// SetRefundCoordinator attaches the payments service after construction;
	// the two services reference each other.
	SetRefundCoordinator(rc RefundCoordinator)

	Book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error)
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	List(ctx context.Context, filter repository.ListFilter, limit int, offset int64) ([]*model.Appointment, int64, error)
	Stats(ctx context.Context) (map[model.AppointmentStatus]int64, error)
	Confirm(ctx context.Context, id, actorID string) (*model.Appointment, error)
	Cancel(ctx context.Context, id string, req *model.CancelRequest) (*model.Appointment, error)
	Reschedule(ctx context.Context, id string, req *model.RescheduleRequest) (*model.Appointment, error)
	Delay(ctx context.Context, id string, req *model.DelayRequest) (*model.Appointment, error)
	MarkCompleted(ctx context.Context, id, actorID string) (*model.Appointment, error)
	MarkNoShow(ctx context.Context, id, actorID string) (*model.Appointment, error)
	MarkPaid(ctx context.Context, id, paymentID string) error
}

type appointmentService struct {
	repo      repository.AppointmentRepository
	directory directoryservice.DirectoryService
	validator *validator.AppointmentValidator
	notifier  notify.Dispatcher
	publisher *events.Publisher
	cfg       *config.Config

	mu      sync.RWMutex
	refunds RefundCoordinator
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	directory directoryservice.DirectoryService,
	v *validator.AppointmentValidator,
	notifier notify.Dispatcher,
	publisher *events.Publisher,
	cfg *config.Config,
) AppointmentService {
	return &appointmentService{
		repo:      repo,
		directory: directory,
		validator: v,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Booking works without a coordinator; cancellation of paid appointments
// parks the payment at refund-pending when none is present.
func (s *appointmentService) SetRefundCoordinator(rc RefundCoordinator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = rc
}

func (s *appointmentService) refundCoordinator() RefundCoordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refunds
}

func (s *appointmentService) Book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if err := s.validator.ValidateBookRequest(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	actor, err := s.directory.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	staff := actor.IsStaff()

	patient, err := s.resolvePatient(ctx, req, staff)
	if err != nil {
		return nil, err
	}

	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	svc, err := s.directory.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	start := req.StartTime
	end := start.Add(time.Duration(svc.DurationMin) * time.Minute)

	if err := withinWorkingWindows(doctor, start, end); err != nil {
		return nil, err
	}

	if err := s.verifySameDayPolicy(ctx, req.DoctorID, patient.ID, start, staff, ""); err != nil {
		return nil, err
	}

	status := model.StatusPending
	confirmedBy := ""
	if staff {
		// Staff bookings skip the pending stage; the clinic itself vouches
		// for the slot.
		status = model.StatusConfirmed
		confirmedBy = actor.ID
	}

	now := time.Now()
	appt := &model.Appointment{
		PatientID:               patient.ID,
		DoctorID:                req.DoctorID,
		ServiceID:               req.ServiceID,
		BookedBy:                actor.ID,
		PatientInfo:             patient.Snapshot(),
		Date:                    dayOf(start),
		StartTime:               start,
		EndTime:                 end,
		Status:                  status,
		PaymentMethod:           req.PaymentMethod,
		PaymentStatus:           model.PaymentPending,
		Amount:                  svc.Price,
		RescheduleCount:         0,
		CancellationWindowHours: s.cfg.CancellationWindowHours,
		ConfirmedBy:             confirmedBy,
		Notes:                   sanitizer.NormalizeNote(req.Notes),
		History: []model.HistoryEntry{{
			Action: "booked",
			Actor:  actor.ID,
			At:     now,
		}},
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoConflict(sessCtx, appt.DoctorID, appt.StartTime, appt.EndTime, ""); err != nil {
			return err
		}
		if err := s.repo.Create(sessCtx, appt); err != nil {
			if errors.Is(err, appterrors.ErrSlotTaken) {
				return apperrors.Conflict("This slot was just booked by another request")
			}
			return apperrors.Internal("Failed to create appointment", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to book appointment", "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Appointment booked",
		"id", appt.ID,
		"doctor_id", appt.DoctorID,
		"patient_id", appt.PatientID,
		"start_time", appt.StartTime,
		"status", appt.Status,
	)

	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentBooked, appt, actor.ID)
	s.notifyBestEffort(ctx, appt, func(nctx context.Context) error {
		return s.notifier.AppointmentBooked(nctx, appt)
	})

	return appt, nil
}

func (s *appointmentService) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	return s.findByID(ctx, id)
}

func (s *appointmentService) List(ctx context.Context, filter repository.ListFilter, limit int, offset int64) ([]*model.Appointment, int64, error) {
	var count int64
	var appts []*model.Appointment
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count appointments", "error", errCount)
			errCount = apperrors.Internal("Failed to count appointments", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		appts, errFind = s.repo.FindAll(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list appointments", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve appointments", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return appts, count, nil
}

func (s *appointmentService) Stats(ctx context.Context) (map[model.AppointmentStatus]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to compute appointment stats", err)
	}
	return counts, nil
}

func (s *appointmentService) Confirm(ctx context.Context, id, actorID string) (*model.Appointment, error) {
	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != model.StatusPending {
		return nil, apperrors.InvalidTransition("Only pending appointments can be confirmed", string(appt.Status))
	}

	actor, err := s.directory.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, apperrors.Forbidden("Only staff can confirm appointments")
	}

	err = s.transition(ctx, id, []model.AppointmentStatus{model.StatusPending}, model.StatusConfirmed,
		bson.M{"confirmed_by": actorID},
		model.HistoryEntry{Action: "confirmed", Actor: actorID, At: time.Now()},
	)
	if err != nil {
		return nil, err
	}

	updated, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Appointment confirmed", "id", id, "actor", actorID)
	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentConfirmed, updated, actorID)
	s.notifyBestEffort(ctx, updated, func(nctx context.Context) error {
		return s.notifier.AppointmentConfirmed(nctx, updated)
	})

	return updated, nil
}

func (s *appointmentService) Cancel(ctx context.Context, id string, req *model.CancelRequest) (*model.Appointment, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("Cancel validation failed", map[string]any{"error": err.Error()})
	}

	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !appt.Status.HoldsSlot() {
		return nil, apperrors.InvalidTransition("Appointment can no longer be cancelled", string(appt.Status))
	}

	actor, err := s.directory.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	// Staff bypass the cancellation window; patients must act before the
	// deadline snapshotted at booking time.
	if !actor.IsStaff() && time.Now().After(appt.CancelDeadline()) {
		return nil, apperrors.PolicyViolation(fmt.Sprintf(
			"Cancellation window of %d hours has passed", appt.CancellationWindowHours))
	}

	set := bson.M{
		"cancelled_by":        req.ActorID,
		"cancellation_reason": sanitizer.NormalizeNote(req.Reason),
	}
	err = s.transition(ctx, id, []model.AppointmentStatus{model.StatusPending, model.StatusConfirmed}, model.StatusCancelled,
		set,
		model.HistoryEntry{Action: "cancelled", Actor: req.ActorID, At: time.Now()},
	)
	if err != nil {
		return nil, err
	}

	if appt.PaymentStatus == model.PaymentPaid {
		s.settleRefund(ctx, id, req.ActorID)
	}

	updated, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Appointment cancelled", "id", id, "actor", req.ActorID)
	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentCancelled, updated, req.ActorID)
	s.notifyBestEffort(ctx, updated, func(nctx context.Context) error {
		return s.notifier.AppointmentCancelled(nctx, updated)
	})

	return updated, nil
}

// settleRefund delegates the refund and records where the payment landed.
// Refund problems never fail the cancellation: the slot is already released
// and the money can be chased separately.
func (s *appointmentService) settleRefund(ctx context.Context, id, actorID string) {
	rc := s.refundCoordinator()
	if rc == nil {
		s.cfg.Log.Warn("No refund coordinator wired, payment left for manual refund", "appointment_id", id)
		if err := s.repo.UpdateFields(ctx, id, bson.M{"payment_status": model.PaymentRefundPending}); err != nil {
			s.cfg.Log.Error("Failed to record refund-pending state", "appointment_id", id, "error", err)
		}
		return
	}

	status, err := rc.RefundForAppointment(ctx, id, actorID)
	if err != nil {
		s.cfg.Log.Error("Refund failed during cancellation", "appointment_id", id, "error", err)
		if updErr := s.repo.UpdateFields(ctx, id, bson.M{"payment_status": model.PaymentRefundPending}); updErr != nil {
			s.cfg.Log.Error("Failed to record refund-pending state", "appointment_id", id, "error", updErr)
		}
		return
	}

	if err := s.repo.UpdateFields(ctx, id, bson.M{"payment_status": status}); err != nil {
		s.cfg.Log.Error("Failed to record refund outcome", "appointment_id", id, "error", err)
	}
}

func (s *appointmentService) Reschedule(ctx context.Context, id string, req *model.RescheduleRequest) (*model.Appointment, error) {
	if err := s.validator.ValidateReschedule(req); err != nil {
		return nil, apperrors.Validation("Reschedule validation failed", map[string]any{"error": err.Error()})
	}

	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !appt.Status.HoldsSlot() {
		return nil, apperrors.InvalidTransition("Appointment can no longer be rescheduled", string(appt.Status))
	}

	if appt.RescheduleCount >= s.cfg.RescheduleLimit {
		return nil, apperrors.PolicyViolation(fmt.Sprintf(
			"Reschedule limit of %d reached", s.cfg.RescheduleLimit))
	}

	actor, err := s.directory.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && time.Now().After(appt.CancelDeadline()) {
		return nil, apperrors.PolicyViolation(fmt.Sprintf(
			"Reschedule window of %d hours has passed", appt.CancellationWindowHours))
	}

	doctor, err := s.directory.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}

	duration := appt.EndTime.Sub(appt.StartTime)
	newStart := req.NewStartTime
	newEnd := newStart.Add(duration)

	if err := withinWorkingWindows(doctor, newStart, newEnd); err != nil {
		return nil, err
	}

	if err := s.verifySameDayPolicy(ctx, appt.DoctorID, appt.PatientID, newStart, actor.IsStaff(), appt.ID); err != nil {
		return nil, err
	}

	now := time.Now()

	// Copy-on-reschedule: the original row becomes a terminal audit record
	// and a fresh row takes over the new slot. The new row keeps the prior
	// status so a confirmed appointment stays confirmed after the move.
	replacement := &model.Appointment{
		PatientID:               appt.PatientID,
		DoctorID:                appt.DoctorID,
		ServiceID:               appt.ServiceID,
		BookedBy:                appt.BookedBy,
		PatientInfo:             appt.PatientInfo,
		Date:                    dayOf(newStart),
		StartTime:               newStart,
		EndTime:                 newEnd,
		Status:                  appt.Status,
		PaymentMethod:           appt.PaymentMethod,
		PaymentStatus:           appt.PaymentStatus,
		Amount:                  appt.Amount,
		PaymentID:               appt.PaymentID,
		RescheduleCount:         appt.RescheduleCount + 1,
		RescheduledFrom:         appt.ID,
		CancellationWindowHours: appt.CancellationWindowHours,
		ConfirmedBy:             appt.ConfirmedBy,
		Notes:                   appt.Notes,
		History: append(append([]model.HistoryEntry{}, appt.History...), model.HistoryEntry{
			Action: "rescheduled",
			Actor:  req.ActorID,
			At:     now,
		}),
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoConflict(sessCtx, appt.DoctorID, newStart, newEnd, appt.ID); err != nil {
			return err
		}

		err := s.repo.UpdateStatusGuarded(sessCtx, appt.ID,
			[]model.AppointmentStatus{model.StatusPending, model.StatusConfirmed},
			model.StatusRescheduled,
			nil,
			model.HistoryEntry{Action: "rescheduled", Actor: req.ActorID, At: now},
		)
		if err != nil {
			return s.mapTransitionError(err, appt.ID)
		}

		if err := s.repo.Create(sessCtx, replacement); err != nil {
			if errors.Is(err, appterrors.ErrSlotTaken) {
				return apperrors.Conflict("This slot was just booked by another request")
			}
			return apperrors.Internal("Failed to create rescheduled appointment", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reschedule appointment", "id", id, "error", err)
		return nil, err
	}

	s.cfg.Log.Info("Appointment rescheduled",
		"old_id", appt.ID,
		"new_id", replacement.ID,
		"new_start", newStart,
		"reschedule_count", replacement.RescheduleCount,
	)

	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentRescheduled, replacement, req.ActorID)
	s.notifyBestEffort(ctx, replacement, func(nctx context.Context) error {
		return s.notifier.AppointmentRescheduled(nctx, appt, replacement)
	})

	return replacement, nil
}

func (s *appointmentService) Delay(ctx context.Context, id string, req *model.DelayRequest) (*model.Appointment, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("Delay validation failed", map[string]any{"error": err.Error()})
	}

	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !appt.Status.HoldsSlot() {
		return nil, apperrors.InvalidTransition("Only pending or confirmed appointments can be delayed", string(appt.Status))
	}

	actor, err := s.directory.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, apperrors.Forbidden("Only staff can delay appointments")
	}

	shift := time.Duration(req.Minutes) * time.Minute
	newStart := appt.StartTime.Add(shift)
	newEnd := appt.EndTime.Add(shift)

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoConflict(sessCtx, appt.DoctorID, newStart, newEnd, appt.ID); err != nil {
			return err
		}
		if err := s.repo.UpdateFields(sessCtx, id, bson.M{
			"start_time": newStart,
			"end_time":   newEnd,
			"date":       dayOf(newStart),
		}); err != nil {
			return apperrors.Internal("Failed to delay appointment", err)
		}
		return s.repo.AppendHistory(sessCtx, id, model.HistoryEntry{
			Action: fmt.Sprintf("delayed %dm", req.Minutes),
			Actor:  req.ActorID,
			At:     time.Now(),
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to delay appointment", "id", id, "error", err)
		return nil, err
	}

	updated, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Appointment delayed", "id", id, "minutes", req.Minutes)
	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentDelayed, updated, req.ActorID)
	s.notifyBestEffort(ctx, updated, func(nctx context.Context) error {
		return s.notifier.AppointmentDelayed(nctx, updated, req.Minutes)
	})

	return updated, nil
}

func (s *appointmentService) MarkCompleted(ctx context.Context, id, actorID string) (*model.Appointment, error) {
	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != model.StatusConfirmed {
		return nil, apperrors.InvalidTransition("Only confirmed appointments can be completed", string(appt.Status))
	}
	if time.Now().Before(appt.EndTime) {
		return nil, apperrors.PolicyViolation("Appointment cannot be completed before its end time")
	}

	err = s.transition(ctx, id, []model.AppointmentStatus{model.StatusConfirmed}, model.StatusCompleted,
		bson.M{"attended": true},
		model.HistoryEntry{Action: "completed", Actor: actorID, At: time.Now()},
	)
	if err != nil {
		return nil, err
	}

	updated, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Appointment completed", "id", id, "actor", actorID)
	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentCompleted, updated, actorID)

	return updated, nil
}

// MarkNoShow corrects a completed appointment where the patient never
// showed up. The auto-complete sweep moves confirmed rows to completed
// after their end time; staff reviewing the day flips the truants here.
func (s *appointmentService) MarkNoShow(ctx context.Context, id, actorID string) (*model.Appointment, error) {
	appt, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != model.StatusCompleted {
		return nil, apperrors.InvalidTransition("Only completed appointments can be marked as no-show", string(appt.Status))
	}
	if appt.NoShowHandled {
		return appt, nil
	}

	err = s.transition(ctx, id, []model.AppointmentStatus{model.StatusCompleted}, model.StatusNoShow,
		bson.M{"attended": false, "no_show_handled": true},
		model.HistoryEntry{Action: "no-show", Actor: actorID, At: time.Now()},
	)
	if err != nil {
		return nil, err
	}

	// A patient charged for a visit that never happened gets the money back.
	if appt.PaymentStatus == model.PaymentPaid {
		s.settleRefund(ctx, id, actorID)
	}

	updated, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Appointment marked as no-show", "id", id, "actor", actorID)
	s.publisher.AppointmentChanged(ctx, events.TypeAppointmentNoShow, updated, actorID)

	return updated, nil
}

// MarkPaid records a captured payment. A pending appointment confirms
// automatically; a webhook replay for an already-paid appointment is a
// no-op.
func (s *appointmentService) MarkPaid(ctx context.Context, id, paymentID string) error {
	appt, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	if appt.PaymentStatus == model.PaymentPaid {
		return nil
	}

	if appt.Status == model.StatusPending {
		err = s.transition(ctx, id, []model.AppointmentStatus{model.StatusPending}, model.StatusConfirmed,
			bson.M{
				"payment_status": model.PaymentPaid,
				"payment_id":     paymentID,
				"confirmed_by":   systemActor,
			},
			model.HistoryEntry{Action: "paid", Actor: systemActor, At: time.Now()},
		)
		if err != nil {
			return err
		}
	} else {
		if err := s.repo.UpdateFields(ctx, id, bson.M{
			"payment_status": model.PaymentPaid,
			"payment_id":     paymentID,
		}); err != nil {
			return apperrors.Internal("Failed to record payment", err)
		}
	}

	updated, findErr := s.findByID(ctx, id)
	if findErr == nil {
		s.publisher.AppointmentChanged(ctx, events.TypeAppointmentConfirmed, updated, systemActor)
		s.notifyBestEffort(ctx, updated, func(nctx context.Context) error {
			return s.notifier.AppointmentConfirmed(nctx, updated)
		})
	}

	s.cfg.Log.Info("Appointment marked paid", "id", id, "payment_id", paymentID)
	return nil
}

// --- Helpers ---

func (s *appointmentService) findByID(ctx context.Context, id string) (*model.Appointment, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, appterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Appointment", id)
		}
		if errors.Is(err, appterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid appointment ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve appointment", err)
	}

	return appt, nil
}

func (s *appointmentService) resolvePatient(ctx context.Context, req *model.BookAppointmentRequest, staff bool) (*model.User, error) {
	if req.PatientID != "" {
		return s.directory.GetUser(ctx, req.PatientID)
	}
	if !staff {
		return nil, apperrors.Forbidden("Only staff can book for unregistered patients")
	}
	return s.directory.EnsurePatient(ctx, *req.PatientInfo)
}

func (s *appointmentService) transition(
	ctx context.Context,
	id string,
	from []model.AppointmentStatus,
	to model.AppointmentStatus,
	set bson.M,
	entry model.HistoryEntry,
) error {
	err := s.repo.UpdateStatusGuarded(ctx, id, from, to, set, entry)
	if err != nil {
		return s.mapTransitionError(err, id)
	}
	return nil
}

func (s *appointmentService) mapTransitionError(err error, id string) error {
	if errors.Is(err, appterrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Appointment", id)
	}
	if errors.Is(err, appterrors.ErrStatusChanged) {
		return apperrors.Conflict("Appointment status changed concurrently, please retry")
	}
	if errors.Is(err, appterrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid appointment ID format")
	}
	return apperrors.Internal("Failed to transition appointment", err)
}

func (s *appointmentService) verifyNoConflict(ctx context.Context, doctorID string, start, end time.Time, excludeID string) error {
	conflicting, err := s.repo.FindConflicting(ctx, doctorID, start, end, excludeID)
	if err != nil {
		return apperrors.Internal("Failed to check conflicting appointments", err)
	}

	if len(conflicting) > 0 {
		c := conflicting[0]
		return apperrors.Conflict(fmt.Sprintf(
			"Doctor already has an appointment from %s to %s",
			c.StartTime.Format(time.RFC3339),
			c.EndTime.Format(time.RFC3339),
		))
	}
	return nil
}

// verifySameDayPolicy enforces the duplicate-booking rules: a staff booking
// is rejected when the patient already has any appointment that day, a
// patient booking only when they already see the same doctor that day.
func (s *appointmentService) verifySameDayPolicy(ctx context.Context, doctorID, patientID string, start time.Time, staff bool, excludeID string) error {
	filterDoctor := doctorID
	if staff {
		filterDoctor = ""
	}

	existing, err := s.repo.FindBlockingSameDay(ctx, filterDoctor, patientID, start, excludeID)
	if err != nil {
		return apperrors.Internal("Failed to check same-day appointments", err)
	}

	if len(existing) > 0 {
		if staff {
			return apperrors.Conflict("Patient already has an appointment on this day")
		}
		return apperrors.Conflict("Patient already has an appointment with this doctor on this day")
	}
	return nil
}

func (s *appointmentService) notifyBestEffort(ctx context.Context, appt *model.Appointment, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}

	if err := send(ctx); err != nil {
		s.cfg.Log.Warn("Notification delivery failed",
			"appointment_id", appt.ID,
			"error", err,
		)
		note := fmt.Sprintf("notification failed: %v", err)
		if updErr := s.repo.UpdateFields(ctx, appt.ID, bson.M{"notification_note": note}); updErr != nil {
			s.cfg.Log.Error("Failed to record notification note", "appointment_id", appt.ID, "error", updErr)
		}
	}
}

func withinWorkingWindows(doctor *model.Doctor, start, end time.Time) error {
	windows := doctor.WindowsFor(start.Weekday())
	if len(windows) == 0 {
		return apperrors.Validation("Doctor does not work on this day", nil)
	}

	for _, w := range windows {
		winStart, winEnd, err := windowBoundsOn(start, w)
		if err != nil {
			continue
		}
		// Boundary-inclusive containment: a slot ending exactly at the
		// window's end is still inside it.
		if !start.Before(winStart) && !end.After(winEnd) {
			return nil
		}
	}

	return apperrors.Validation("Requested time is outside the doctor's working hours", nil)
}

func windowBoundsOn(day time.Time, w model.Window) (time.Time, time.Time, error) {
	start, err := parseClockOn(day, w.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseClockOn(day, w.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseClockOn(day time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
