package service

import (
	"context"
	"testing"
	"time"

	"clinicbook/pkg/config"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

func testConfig() *config.Config {
	log := logger.New(logger.Config{
		Level:     "info",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return &config.Config{
		Log:         log,
		ReadTimeout: 5 * time.Second,
	}
}

// Mock directory for testing
type mockDirectoryService struct {
	getDoctorFunc  func(ctx context.Context, id string) (*model.Doctor, error)
	getServiceFunc func(ctx context.Context, id string) (*model.ClinicService, error)
}

func (m *mockDirectoryService) CreateDoctor(ctx context.Context, doctor *model.Doctor) error {
	return nil
}

func (m *mockDirectoryService) GetDoctor(ctx context.Context, id string) (*model.Doctor, error) {
	if m.getDoctorFunc != nil {
		return m.getDoctorFunc(ctx, id)
	}
	return &model.Doctor{ID: id}, nil
}

func (m *mockDirectoryService) ListDoctors(ctx context.Context, limit int, offset int64) ([]*model.Doctor, int64, error) {
	return nil, 0, nil
}

func (m *mockDirectoryService) SetDoctorAvailability(ctx context.Context, doctorID string, availableTimes []model.DayAvailability) error {
	return nil
}

func (m *mockDirectoryService) CreateService(ctx context.Context, svc *model.ClinicService) error {
	return nil
}

func (m *mockDirectoryService) GetService(ctx context.Context, id string) (*model.ClinicService, error) {
	if m.getServiceFunc != nil {
		return m.getServiceFunc(ctx, id)
	}
	return &model.ClinicService{ID: id, DurationMin: 30}, nil
}

func (m *mockDirectoryService) ListServices(ctx context.Context, limit int, offset int64) ([]*model.ClinicService, int64, error) {
	return nil, 0, nil
}

func (m *mockDirectoryService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return &model.User{ID: id}, nil
}

func (m *mockDirectoryService) EnsurePatient(ctx context.Context, info model.PatientInfo) (*model.User, error) {
	return &model.User{}, nil
}

type mockBookedSlotSource struct {
	findFunc func(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error)
}

func (m *mockBookedSlotSource) FindHoldingSlotsByDoctorAndDay(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, doctorID, day)
	}
	return nil, nil
}

// day is a Monday so a Monday-only availability always matches.
var testDay = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func mondayDoctor(windows ...model.Window) *model.Doctor {
	return &model.Doctor{
		ID: "doc1",
		AvailableTimes: []model.DayAvailability{
			{Day: "Monday", Windows: windows},
		},
	}
}

func newTestAvailability(doctor *model.Doctor, durationMin int, held []*model.Appointment, now time.Time) *availabilityService {
	return &availabilityService{
		directory: &mockDirectoryService{
			getDoctorFunc: func(ctx context.Context, id string) (*model.Doctor, error) {
				return doctor, nil
			},
			getServiceFunc: func(ctx context.Context, id string) (*model.ClinicService, error) {
				return &model.ClinicService{ID: id, DurationMin: durationMin}, nil
			},
		},
		booked: &mockBookedSlotSource{
			findFunc: func(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error) {
				return held, nil
			},
		},
		cfg: testConfig(),
		now: func() time.Time { return now },
	}
}

func TestResolve_SlotGenerationWithinWindow(t *testing.T) {
	earlyMorning := testDay.Add(1 * time.Hour)

	tests := []struct {
		name        string
		window      model.Window
		durationMin int
		wantStarts  []string
	}{
		{
			name:        "exact fit produces boundary slot",
			window:      model.Window{From: "09:00", To: "10:00"},
			durationMin: 30,
			wantStarts:  []string{"09:00", "09:30"},
		},
		{
			name:        "slot spilling past window end is dropped",
			window:      model.Window{From: "09:00", To: "10:00"},
			durationMin: 45,
			wantStarts:  []string{"09:00"},
		},
		{
			name:        "duration longer than window produces nothing",
			window:      model.Window{From: "09:00", To: "09:30"},
			durationMin: 60,
			wantStarts:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAvailability(mondayDoctor(tt.window), tt.durationMin, nil, earlyMorning)

			slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(slots) != len(tt.wantStarts) {
				t.Fatalf("expected %d slots, got %d", len(tt.wantStarts), len(slots))
			}
			for i, want := range tt.wantStarts {
				got := slots[i].StartTime.Format("15:04")
				if got != want {
					t.Errorf("slot %d: expected start %s, got %s", i, want, got)
				}
			}
		})
	}
}

func TestResolve_NoWindowsReturnsEmptyNotError(t *testing.T) {
	doctor := &model.Doctor{ID: "doc1"} // no availability at all
	svc := newTestAvailability(doctor, 30, nil, testDay)

	slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots, got %d", len(slots))
	}
}

func TestResolve_OverlappingAppointmentMarksBooked(t *testing.T) {
	held := []*model.Appointment{
		{
			StartTime: testDay.Add(9 * time.Hour),
			EndTime:   testDay.Add(9*time.Hour + 30*time.Minute),
			Status:    model.StatusConfirmed,
		},
	}

	svc := newTestAvailability(mondayDoctor(model.Window{From: "09:00", To: "10:30"}), 30, held, testDay)

	slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}

	if slots[0].Status != model.SlotBooked {
		t.Errorf("expected 09:00 slot booked, got %s", slots[0].Status)
	}
	if slots[1].Status != model.SlotAvailable {
		t.Errorf("expected 09:30 slot available, got %s", slots[1].Status)
	}
	if slots[2].Status != model.SlotAvailable {
		t.Errorf("expected 10:00 slot available, got %s", slots[2].Status)
	}
}

func TestResolve_BackToBackAppointmentDoesNotConflict(t *testing.T) {
	// An appointment ending exactly at 09:30 must not mark the 09:30 slot.
	held := []*model.Appointment{
		{
			StartTime: testDay.Add(9 * time.Hour),
			EndTime:   testDay.Add(9*time.Hour + 30*time.Minute),
			Status:    model.StatusPending,
		},
	}

	svc := newTestAvailability(mondayDoctor(model.Window{From: "09:30", To: "10:00"}), 30, held, testDay)

	slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].Status != model.SlotAvailable {
		t.Errorf("expected 09:30 slot available, got %s", slots[0].Status)
	}
}

func TestResolve_PastSlotsDropped(t *testing.T) {
	// Querying mid-day drops every slot already finished.
	now := testDay.Add(9*time.Hour + 45*time.Minute)

	svc := newTestAvailability(mondayDoctor(model.Window{From: "09:00", To: "11:00"}), 30, nil, now)

	slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 09:00 and 09:30 are gone; 09:30-10:00 ends after now so it stays.
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if got := slots[0].StartTime.Format("15:04"); got != "09:30" {
		t.Errorf("expected first slot 09:30, got %s", got)
	}
}

func TestResolve_MalformedWindowSkipped(t *testing.T) {
	doctor := mondayDoctor(
		model.Window{From: "bad", To: "worse"},
		model.Window{From: "14:00", To: "15:00"},
	)
	svc := newTestAvailability(doctor, 30, nil, testDay)

	slots, err := svc.Resolve(context.Background(), "doc1", "svc1", testDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots from the valid window, got %d", len(slots))
	}
}
