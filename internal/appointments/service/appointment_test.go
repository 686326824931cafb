package service

import (
	"context"
	"testing"
	"time"

	appterrors "clinicbook/internal/appointments/errors"
	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/appointments/validator"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
	mongotx "clinicbook/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func testConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return &config.Config{
		Log:                     log,
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            5 * time.Second,
		CancellationWindowHours: 24,
		RescheduleLimit:         2,
	}
}

const (
	staffID   = "64f000000000000000000001"
	patientID = "64f000000000000000000002"
	doctorID  = "64f000000000000000000003"
	serviceID = "64f000000000000000000004"
	apptID    = "64f000000000000000000005"
)

// Stateful repository mock: transitions and field updates mutate the stored
// appointment so post-operation reads see the new state.
type mockAppointmentRepo struct {
	store map[string]*model.Appointment

	created          []*model.Appointment
	conflicting      []*model.Appointment
	blockingSameDay  []*model.Appointment
	sameDayDoctorArg string
	guardedErr       error
}

func newMockRepo(appts ...*model.Appointment) *mockAppointmentRepo {
	store := make(map[string]*model.Appointment)
	for _, a := range appts {
		store[a.ID] = a
	}
	return &mockAppointmentRepo{store: store}
}

func (m *mockAppointmentRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (m *mockAppointmentRepo) Create(ctx context.Context, appt *model.Appointment) error {
	appt.ID = "64f0000000000000000000ff"
	m.store[appt.ID] = appt
	m.created = append(m.created, appt)
	return nil
}

func (m *mockAppointmentRepo) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	appt, ok := m.store[id]
	if !ok {
		return nil, appterrors.ErrNotFound
	}
	copied := *appt
	return &copied, nil
}

func (m *mockAppointmentRepo) FindAll(ctx context.Context, filter repository.ListFilter, limit int, offset int64) ([]*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentRepo) Count(ctx context.Context, filter repository.ListFilter) (int64, error) {
	return 0, nil
}

func (m *mockAppointmentRepo) CountByStatus(ctx context.Context) (map[model.AppointmentStatus]int64, error) {
	return nil, nil
}

func (m *mockAppointmentRepo) UpdateFields(ctx context.Context, id string, set bson.M) error {
	appt, ok := m.store[id]
	if !ok {
		return appterrors.ErrNotFound
	}
	if v, ok := set["payment_status"]; ok {
		appt.PaymentStatus = v.(model.PaymentStatus)
	}
	if v, ok := set["payment_id"]; ok {
		appt.PaymentID = v.(string)
	}
	if v, ok := set["notification_note"]; ok {
		appt.NotificationNote = v.(string)
	}
	if v, ok := set["start_time"]; ok {
		appt.StartTime = v.(time.Time)
	}
	if v, ok := set["end_time"]; ok {
		appt.EndTime = v.(time.Time)
	}
	return nil
}

func (m *mockAppointmentRepo) UpdateStatusGuarded(ctx context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, set bson.M, entry model.HistoryEntry) error {
	if m.guardedErr != nil {
		return m.guardedErr
	}
	appt, ok := m.store[id]
	if !ok {
		return appterrors.ErrNotFound
	}
	matched := false
	for _, s := range from {
		if appt.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return appterrors.ErrStatusChanged
	}
	appt.Status = to
	appt.History = append(appt.History, entry)
	if v, ok := set["confirmed_by"]; ok {
		appt.ConfirmedBy = v.(string)
	}
	if v, ok := set["cancelled_by"]; ok {
		appt.CancelledBy = v.(string)
	}
	if v, ok := set["payment_status"]; ok {
		appt.PaymentStatus = v.(model.PaymentStatus)
	}
	if v, ok := set["payment_id"]; ok {
		appt.PaymentID = v.(string)
	}
	if v, ok := set["attended"]; ok {
		appt.Attended = v.(bool)
	}
	if v, ok := set["no_show_handled"]; ok {
		appt.NoShowHandled = v.(bool)
	}
	return nil
}

func (m *mockAppointmentRepo) AppendHistory(ctx context.Context, id string, entry model.HistoryEntry) error {
	if appt, ok := m.store[id]; ok {
		appt.History = append(appt.History, entry)
	}
	return nil
}

func (m *mockAppointmentRepo) FindHoldingSlotsByDoctorAndDay(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentRepo) FindConflicting(ctx context.Context, doctorID string, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
	return m.conflicting, nil
}

func (m *mockAppointmentRepo) FindBlockingSameDay(ctx context.Context, doctorID, patientID string, day time.Time, excludeID string) ([]*model.Appointment, error) {
	m.sameDayDoctorArg = doctorID
	return m.blockingSameDay, nil
}

func (m *mockAppointmentRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockAppointmentRepo) CompleteConfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockAppointmentRepo) FindNeedingReminder(ctx context.Context, label model.ReminderLabel, windowStart, windowEnd time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentRepo) MarkReminderSent(ctx context.Context, id string, record model.ReminderRecord) error {
	return nil
}

func (m *mockAppointmentRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	var sessCtx mongo.SessionContext
	return fn(sessCtx)
}

// Directory mock serving a staff user, a patient, a Monday-to-Sunday doctor
// and a 30 minute service.
type mockDirectory struct {
	users   map[string]*model.User
	doctor  *model.Doctor
	service *model.ClinicService
}

func newMockDirectory() *mockDirectory {
	windows := []model.Window{{From: "00:00", To: "23:59"}}
	var avail []model.DayAvailability
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		avail = append(avail, model.DayAvailability{Day: wd.String(), Windows: windows})
	}
	return &mockDirectory{
		users: map[string]*model.User{
			staffID: {
				ID: staffID, FirstName: "Nadia", Email: "nadia@clinic.test",
				Phone: "+201000000001", Role: "staff",
			},
			patientID: {
				ID: patientID, FirstName: "Omar", Email: "omar@example.test",
				Phone: "+201000000002", Role: "client",
			},
		},
		doctor:  &model.Doctor{ID: doctorID, Name: "Dr. Salah", AvailableTimes: avail},
		service: &model.ClinicService{ID: serviceID, Name: "Consultation", Price: 300, DurationMin: 30},
	}
}

func (m *mockDirectory) CreateDoctor(ctx context.Context, doctor *model.Doctor) error { return nil }

func (m *mockDirectory) GetDoctor(ctx context.Context, id string) (*model.Doctor, error) {
	return m.doctor, nil
}

func (m *mockDirectory) ListDoctors(ctx context.Context, limit int, offset int64) ([]*model.Doctor, int64, error) {
	return nil, 0, nil
}

func (m *mockDirectory) SetDoctorAvailability(ctx context.Context, doctorID string, availableTimes []model.DayAvailability) error {
	return nil
}

func (m *mockDirectory) CreateService(ctx context.Context, svc *model.ClinicService) error { return nil }

func (m *mockDirectory) GetService(ctx context.Context, id string) (*model.ClinicService, error) {
	return m.service, nil
}

func (m *mockDirectory) ListServices(ctx context.Context, limit int, offset int64) ([]*model.ClinicService, int64, error) {
	return nil, 0, nil
}

func (m *mockDirectory) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFoundWithID("User", id)
	}
	return user, nil
}

func (m *mockDirectory) EnsurePatient(ctx context.Context, info model.PatientInfo) (*model.User, error) {
	return &model.User{ID: "64f0000000000000000000ee", FirstName: info.FirstName, Role: "client"}, nil
}

type mockDispatcher struct {
	booked      int
	confirmed   int
	cancelled   int
	rescheduled int
	err         error
}

func (m *mockDispatcher) AppointmentBooked(ctx context.Context, appt *model.Appointment) error {
	m.booked++
	return m.err
}

func (m *mockDispatcher) AppointmentConfirmed(ctx context.Context, appt *model.Appointment) error {
	m.confirmed++
	return m.err
}

func (m *mockDispatcher) AppointmentCancelled(ctx context.Context, appt *model.Appointment) error {
	m.cancelled++
	return m.err
}

func (m *mockDispatcher) AppointmentRescheduled(ctx context.Context, old, replacement *model.Appointment) error {
	m.rescheduled++
	return m.err
}

func (m *mockDispatcher) AppointmentDelayed(ctx context.Context, appt *model.Appointment, minutes int) error {
	return m.err
}

func (m *mockDispatcher) Reminder(ctx context.Context, appt *model.Appointment, label model.ReminderLabel) error {
	return m.err
}

type mockRefunds struct {
	status model.PaymentStatus
	err    error
	calls  int
}

func (m *mockRefunds) RefundForAppointment(ctx context.Context, appointmentID, actorID string) (model.PaymentStatus, error) {
	m.calls++
	return m.status, m.err
}

func newTestService(repo *mockAppointmentRepo, dispatcher *mockDispatcher) *appointmentService {
	cfg := testConfig()
	return &appointmentService{
		repo:      repo,
		directory: newMockDirectory(),
		validator: validator.NewAppointmentValidator(cfg.Log),
		notifier:  dispatcher,
		publisher: nil,
		cfg:       cfg,
	}
}

// futureSlot picks a mid-day slot a few days out so it is always in the
// future and never spills past midnight.
func futureSlot() time.Time {
	day := time.Now().Add(72 * time.Hour)
	return time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.Local)
}

func bookRequest(actorID string) *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{
		DoctorID:      doctorID,
		ServiceID:     serviceID,
		PatientID:     patientID,
		StartTime:     futureSlot(),
		PaymentMethod: model.MethodCash,
		ActorID:       actorID,
	}
}

func storedAppointment(status model.AppointmentStatus, start time.Time) *model.Appointment {
	return &model.Appointment{
		ID:                      apptID,
		PatientID:               patientID,
		DoctorID:                doctorID,
		ServiceID:               serviceID,
		PatientInfo:             model.PatientInfo{FirstName: "Omar", Phone: "+201000000002"},
		Date:                    time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()),
		StartTime:               start,
		EndTime:                 start.Add(30 * time.Minute),
		Status:                  status,
		PaymentMethod:           model.MethodCash,
		PaymentStatus:           model.PaymentPending,
		Amount:                  300,
		CancellationWindowHours: 24,
	}
}

func TestBook_PatientStartsPending(t *testing.T) {
	repo := newMockRepo()
	dispatcher := &mockDispatcher{}
	svc := newTestService(repo, dispatcher)

	appt, err := svc.Book(context.Background(), bookRequest(patientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
	if appt.Amount != 300 {
		t.Errorf("expected price snapshot 300, got %.2f", appt.Amount)
	}
	if appt.CancellationWindowHours != 24 {
		t.Errorf("expected cancellation window snapshot 24, got %d", appt.CancellationWindowHours)
	}
	if len(appt.History) != 1 || appt.History[0].Action != "booked" {
		t.Errorf("expected a single booked history entry, got %+v", appt.History)
	}
	if dispatcher.booked != 1 {
		t.Errorf("expected 1 booked notification, got %d", dispatcher.booked)
	}
}

func TestBook_StaffStartsConfirmed(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockDispatcher{})

	req := bookRequest(staffID)
	appt, err := svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.Status != model.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", appt.Status)
	}
	if appt.ConfirmedBy != staffID {
		t.Errorf("expected confirmed_by %s, got %s", staffID, appt.ConfirmedBy)
	}
}

func TestBook_ConflictingSlotRejected(t *testing.T) {
	repo := newMockRepo()
	start := futureSlot()
	repo.conflicting = []*model.Appointment{storedAppointment(model.StatusConfirmed, start)}
	svc := newTestService(repo, &mockDispatcher{})

	_, err := svc.Book(context.Background(), bookRequest(patientID))
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Errorf("expected no appointment created, got %d", len(repo.created))
	}
}

func TestBook_SameDayPolicy(t *testing.T) {
	tests := []struct {
		name          string
		actorID       string
		wantDoctorArg string
	}{
		// Staff bookings block on any appointment that day, patient
		// bookings only on the same doctor.
		{name: "staff checks all doctors", actorID: staffID, wantDoctorArg: ""},
		{name: "patient checks same doctor only", actorID: patientID, wantDoctorArg: doctorID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			repo.blockingSameDay = []*model.Appointment{storedAppointment(model.StatusPending, futureSlot())}
			svc := newTestService(repo, &mockDispatcher{})

			_, err := svc.Book(context.Background(), bookRequest(tt.actorID))
			if !apperrors.HasCode(err, apperrors.CodeConflict) {
				t.Fatalf("expected conflict error, got %v", err)
			}
			if repo.sameDayDoctorArg != tt.wantDoctorArg {
				t.Errorf("expected doctor filter %q, got %q", tt.wantDoctorArg, repo.sameDayDoctorArg)
			}
		})
	}
}

func TestBook_OnlineWithoutGatewayRejected(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockDispatcher{})

	req := bookRequest(patientID)
	req.PaymentMethod = model.MethodOnline

	_, err := svc.Book(context.Background(), req)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBook_NoAvailabilityIsValidation(t *testing.T) {
	// A request outside the doctor's schedule is a bad input, not a policy
	// breach: the caller picked a slot that was never offered.
	tests := []struct {
		name    string
		windows []model.DayAvailability
	}{
		{name: "day off", windows: nil},
		{name: "outside working hours", windows: []model.DayAvailability{
			{Day: futureSlot().Weekday().String(), Windows: []model.Window{{From: "14:00", To: "15:00"}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMockRepo(), &mockDispatcher{})
			svc.directory.(*mockDirectory).doctor.AvailableTimes = tt.windows

			_, err := svc.Book(context.Background(), bookRequest(patientID))
			if !apperrors.HasCode(err, apperrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBook_NotificationFailureDoesNotFailBooking(t *testing.T) {
	repo := newMockRepo()
	dispatcher := &mockDispatcher{err: context.DeadlineExceeded}
	svc := newTestService(repo, dispatcher)

	appt, err := svc.Book(context.Background(), bookRequest(patientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.store[appt.ID]
	if stored.NotificationNote == "" {
		t.Error("expected notification failure recorded on the appointment")
	}
}

func TestCancel_WindowPolicy(t *testing.T) {
	tests := []struct {
		name     string
		actorID  string
		start    time.Time
		wantCode string
	}{
		// The deadline is start minus the snapshotted window, so the edge
		// sits exactly 24 hours before the appointment.
		{name: "patient just inside window", actorID: patientID, start: time.Now().Add(24*time.Hour + 2*time.Minute)},
		{name: "patient just past deadline", actorID: patientID, start: time.Now().Add(24*time.Hour - time.Minute), wantCode: apperrors.CodePolicyViolation},
		{name: "staff bypasses window", actorID: staffID, start: time.Now().Add(2 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo(storedAppointment(model.StatusConfirmed, tt.start))
			svc := newTestService(repo, &mockDispatcher{})

			appt, err := svc.Cancel(context.Background(), apptID, &model.CancelRequest{ActorID: tt.actorID, Reason: "schedule change"})

			if tt.wantCode != "" {
				if !apperrors.HasCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if appt.Status != model.StatusCancelled {
				t.Errorf("expected cancelled, got %s", appt.Status)
			}
			if appt.CancelledBy != tt.actorID {
				t.Errorf("expected cancelled_by %s, got %s", tt.actorID, appt.CancelledBy)
			}
		})
	}
}

func TestCancel_TerminalStatusRejected(t *testing.T) {
	repo := newMockRepo(storedAppointment(model.StatusCompleted, time.Now().Add(48*time.Hour)))
	svc := newTestService(repo, &mockDispatcher{})

	_, err := svc.Cancel(context.Background(), apptID, &model.CancelRequest{ActorID: staffID})
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancel_PaidAppointmentTriggersRefund(t *testing.T) {
	stored := storedAppointment(model.StatusConfirmed, time.Now().Add(48*time.Hour))
	stored.PaymentStatus = model.PaymentPaid
	repo := newMockRepo(stored)

	svc := newTestService(repo, &mockDispatcher{})
	refunds := &mockRefunds{status: model.PaymentRefunded}
	svc.SetRefundCoordinator(refunds)

	appt, err := svc.Cancel(context.Background(), apptID, &model.CancelRequest{ActorID: patientID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refunds.calls != 1 {
		t.Errorf("expected 1 refund call, got %d", refunds.calls)
	}
	if appt.PaymentStatus != model.PaymentRefunded {
		t.Errorf("expected refunded, got %s", appt.PaymentStatus)
	}
}

func TestCancel_RefundFailureStillCancels(t *testing.T) {
	stored := storedAppointment(model.StatusConfirmed, time.Now().Add(48*time.Hour))
	stored.PaymentStatus = model.PaymentPaid
	repo := newMockRepo(stored)

	svc := newTestService(repo, &mockDispatcher{})
	svc.SetRefundCoordinator(&mockRefunds{err: apperrors.GatewayError("provider down", nil)})

	appt, err := svc.Cancel(context.Background(), apptID, &model.CancelRequest{ActorID: staffID})
	if err != nil {
		t.Fatalf("expected cancellation to succeed despite refund failure, got %v", err)
	}
	if appt.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", appt.Status)
	}
	if appt.PaymentStatus != model.PaymentRefundPending {
		t.Errorf("expected refund-pending after failed refund, got %s", appt.PaymentStatus)
	}
}

func TestReschedule_CopiesIntoNewRecord(t *testing.T) {
	stored := storedAppointment(model.StatusConfirmed, time.Now().Add(48*time.Hour))
	stored.RescheduleCount = 1
	repo := newMockRepo(stored)
	dispatcher := &mockDispatcher{}
	svc := newTestService(repo, dispatcher)

	newStart := futureSlot().Add(24 * time.Hour)
	replacement, err := svc.Reschedule(context.Background(), apptID, &model.RescheduleRequest{
		NewStartTime: newStart,
		ActorID:      patientID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if replacement.ID == apptID {
		t.Error("expected a new record, got the original")
	}
	if replacement.Status != model.StatusConfirmed {
		t.Errorf("expected replacement to keep confirmed, got %s", replacement.Status)
	}
	if replacement.RescheduleCount != 2 {
		t.Errorf("expected reschedule count 2, got %d", replacement.RescheduleCount)
	}
	if replacement.RescheduledFrom != apptID {
		t.Errorf("expected rescheduled_from %s, got %s", apptID, replacement.RescheduledFrom)
	}

	original := repo.store[apptID]
	if original.Status != model.StatusRescheduled {
		t.Errorf("expected original marked rescheduled, got %s", original.Status)
	}
	if dispatcher.rescheduled != 1 {
		t.Errorf("expected 1 reschedule notification, got %d", dispatcher.rescheduled)
	}
}

func TestReschedule_CapEnforced(t *testing.T) {
	stored := storedAppointment(model.StatusPending, time.Now().Add(48*time.Hour))
	stored.RescheduleCount = 2
	repo := newMockRepo(stored)
	svc := newTestService(repo, &mockDispatcher{})

	_, err := svc.Reschedule(context.Background(), apptID, &model.RescheduleRequest{
		NewStartTime: time.Now().Add(72 * time.Hour),
		ActorID:      patientID,
	})
	if !apperrors.HasCode(err, apperrors.CodePolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Errorf("expected no new record, got %d", len(repo.created))
	}
}

func TestConfirm_RequiresPendingAndStaff(t *testing.T) {
	t.Run("staff confirms pending", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusPending, time.Now().Add(48*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		appt, err := svc.Confirm(context.Background(), apptID, staffID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if appt.Status != model.StatusConfirmed {
			t.Errorf("expected confirmed, got %s", appt.Status)
		}
	})

	t.Run("patient cannot confirm", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusPending, time.Now().Add(48*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.Confirm(context.Background(), apptID, patientID)
		if !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})

	t.Run("already confirmed rejected", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, time.Now().Add(48*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.Confirm(context.Background(), apptID, staffID)
		if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})
}

func TestConfirm_ConcurrentStatusChange(t *testing.T) {
	repo := newMockRepo(storedAppointment(model.StatusPending, time.Now().Add(48*time.Hour)))
	repo.guardedErr = appterrors.ErrStatusChanged
	svc := newTestService(repo, &mockDispatcher{})

	_, err := svc.Confirm(context.Background(), apptID, staffID)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict on concurrent change, got %v", err)
	}
}

func TestMarkCompleted_Guards(t *testing.T) {
	t.Run("before end time rejected", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, time.Now().Add(2*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.MarkCompleted(context.Background(), apptID, staffID)
		if !apperrors.HasCode(err, apperrors.CodePolicyViolation) {
			t.Fatalf("expected policy violation, got %v", err)
		}
	})

	t.Run("confirmed past end time completes", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, time.Now().Add(-2*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		appt, err := svc.MarkCompleted(context.Background(), apptID, staffID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if appt.Status != model.StatusCompleted {
			t.Errorf("expected completed, got %s", appt.Status)
		}
		if !appt.Attended {
			t.Error("expected attended true")
		}
	})

	t.Run("pending cannot complete", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusPending, time.Now().Add(-2*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.MarkCompleted(context.Background(), apptID, staffID)
		if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})
}

func TestMarkNoShow_RequiresCompleted(t *testing.T) {
	t.Run("completed flips to no-show", func(t *testing.T) {
		stored := storedAppointment(model.StatusCompleted, time.Now().Add(-3*time.Hour))
		stored.Attended = true
		repo := newMockRepo(stored)
		svc := newTestService(repo, &mockDispatcher{})

		appt, err := svc.MarkNoShow(context.Background(), apptID, staffID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if appt.Status != model.StatusNoShow {
			t.Errorf("expected no-show, got %s", appt.Status)
		}
		if appt.Attended {
			t.Error("expected attended false")
		}
		if !appt.NoShowHandled {
			t.Error("expected no_show_handled true")
		}
	})

	t.Run("confirmed rejected", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, time.Now().Add(-3*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.MarkNoShow(context.Background(), apptID, staffID)
		if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})

	t.Run("paid no-show refunds", func(t *testing.T) {
		stored := storedAppointment(model.StatusCompleted, time.Now().Add(-3*time.Hour))
		stored.PaymentStatus = model.PaymentPaid
		repo := newMockRepo(stored)

		svc := newTestService(repo, &mockDispatcher{})
		refunds := &mockRefunds{status: model.PaymentRefunded}
		svc.SetRefundCoordinator(refunds)

		appt, err := svc.MarkNoShow(context.Background(), apptID, staffID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if refunds.calls != 1 {
			t.Errorf("expected 1 refund call, got %d", refunds.calls)
		}
		if appt.PaymentStatus != model.PaymentRefunded {
			t.Errorf("expected refunded, got %s", appt.PaymentStatus)
		}
	})
}

func TestMarkPaid_ConfirmsPendingAndIsIdempotent(t *testing.T) {
	repo := newMockRepo(storedAppointment(model.StatusPending, time.Now().Add(48*time.Hour)))
	dispatcher := &mockDispatcher{}
	svc := newTestService(repo, dispatcher)

	paymentID := "64f000000000000000000099"
	if err := svc.MarkPaid(context.Background(), apptID, paymentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.store[apptID]
	if stored.Status != model.StatusConfirmed {
		t.Errorf("expected confirmed after payment, got %s", stored.Status)
	}
	if stored.PaymentStatus != model.PaymentPaid {
		t.Errorf("expected paid, got %s", stored.PaymentStatus)
	}
	if stored.PaymentID != paymentID {
		t.Errorf("expected payment id recorded, got %s", stored.PaymentID)
	}

	// A webhook replay must not touch the record again.
	if err := svc.MarkPaid(context.Background(), apptID, paymentID); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if dispatcher.confirmed != 1 {
		t.Errorf("expected 1 confirmation notification, got %d", dispatcher.confirmed)
	}
}

func TestDelay_ShiftsTimesAndRequiresStaff(t *testing.T) {
	t.Run("staff delays", func(t *testing.T) {
		start := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, start))
		svc := newTestService(repo, &mockDispatcher{})

		appt, err := svc.Delay(context.Background(), apptID, &model.DelayRequest{Minutes: 15, ActorID: staffID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !appt.StartTime.Equal(start.Add(15 * time.Minute)) {
			t.Errorf("expected start shifted by 15m, got %s", appt.StartTime)
		}
	})

	t.Run("patient cannot delay", func(t *testing.T) {
		repo := newMockRepo(storedAppointment(model.StatusConfirmed, time.Now().Add(48*time.Hour)))
		svc := newTestService(repo, &mockDispatcher{})

		_, err := svc.Delay(context.Background(), apptID, &model.DelayRequest{Minutes: 15, ActorID: patientID})
		if !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})
}
