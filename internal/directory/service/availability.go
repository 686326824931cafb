package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
)

var clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// BookedSlotSource reports the appointments still holding their slot for a
// doctor on a given day. Implemented by the appointments repository.
type BookedSlotSource interface {
	FindHoldingSlotsByDoctorAndDay(ctx context.Context, doctorID string, day time.Time) ([]*model.Appointment, error)
}

// AvailabilityService computes the bookable slot grid for a doctor and
// service on a calendar day.
type AvailabilityService interface {
	Resolve(ctx context.Context, doctorID, serviceID string, day time.Time) ([]model.Slot, error)
}

type availabilityService struct {
	directory DirectoryService
	booked    BookedSlotSource
	cfg       *config.Config
	now       func() time.Time
}

func NewAvailabilityService(directory DirectoryService, booked BookedSlotSource, cfg *config.Config) AvailabilityService {
	return &availabilityService{
		directory: directory,
		booked:    booked,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Resolve generates candidate slots of the service's duration inside each of
// the doctor's working windows for the day, then marks slots that overlap a
// held appointment as booked. Slots that would spill past a window's end are
// never produced; a slot ending exactly at the window boundary is valid.
// Past slots on the current day are dropped entirely.
func (s *availabilityService) Resolve(ctx context.Context, doctorID, serviceID string, day time.Time) ([]model.Slot, error) {
	doctor, err := s.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	svc, err := s.directory.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	windows := doctor.WindowsFor(day.Weekday())
	if len(windows) == 0 {
		return []model.Slot{}, nil
	}

	held, err := s.booked.FindHoldingSlotsByDoctorAndDay(ctx, doctorID, day)
	if err != nil {
		return nil, apperrors.Internal("Failed to load booked appointments", err)
	}

	duration := time.Duration(svc.DurationMin) * time.Minute
	now := s.now()

	var slots []model.Slot
	for _, w := range windows {
		windowStart, windowEnd, err := windowBounds(day, w)
		if err != nil {
			s.cfg.Log.Warn("Skipping malformed availability window",
				"doctor_id", doctorID,
				"from", w.From,
				"to", w.To,
				"error", err,
			)
			continue
		}

		for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(duration) {
			end := start.Add(duration)
			if !end.After(now) {
				continue
			}

			status := model.SlotAvailable
			for _, appt := range held {
				if start.Before(appt.EndTime) && end.After(appt.StartTime) {
					status = model.SlotBooked
					break
				}
			}

			slots = append(slots, model.Slot{
				StartTime: start,
				EndTime:   end,
				Status:    status,
			})
		}
	}

	if slots == nil {
		slots = []model.Slot{}
	}
	return slots, nil
}

func windowBounds(day time.Time, w model.Window) (time.Time, time.Time, error) {
	start, err := clockOn(day, w.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := clockOn(day, w.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %q is not after start %q", w.To, w.From)
	}
	return start, end, nil
}

func clockOn(day time.Time, clock string) (time.Time, error) {
	if !clockRegex.MatchString(clock) {
		return time.Time{}, fmt.Errorf("invalid clock value %q, want HH:MM", clock)
	}
	parts := strings.SplitN(clock, ":", 2)
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), nil
}

func canonicalWeekday(day string) string {
	lowered := strings.ToLower(strings.TrimSpace(day))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) == lowered {
			return wd.String()
		}
	}
	return ""
}

func validateWindow(w model.Window) error {
	if !clockRegex.MatchString(w.From) {
		return fmt.Errorf("window start %q must be in HH:MM format", w.From)
	}
	if !clockRegex.MatchString(w.To) {
		return fmt.Errorf("window end %q must be in HH:MM format", w.To)
	}
	if w.To <= w.From {
		return fmt.Errorf("window end %q must be after start %q", w.To, w.From)
	}
	return nil
}
