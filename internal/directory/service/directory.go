package service

import (
	"context"
	"errors"
	"sync"

	directoryerrors "clinicbook/internal/directory/errors"
	"clinicbook/internal/directory/repository"
	"clinicbook/pkg/config"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/model"
	"clinicbook/pkg/sanitizer"
)

// DirectoryService serves doctor, service and patient lookups for the
// booking flow.
type DirectoryService interface {
	CreateDoctor(ctx context.Context, doctor *model.Doctor) error
	GetDoctor(ctx context.Context, id string) (*model.Doctor, error)
	ListDoctors(ctx context.Context, limit int, offset int64) ([]*model.Doctor, int64, error)
	SetDoctorAvailability(ctx context.Context, doctorID string, availableTimes []model.DayAvailability) error
	CreateService(ctx context.Context, svc *model.ClinicService) error
	GetService(ctx context.Context, id string) (*model.ClinicService, error)
	ListServices(ctx context.Context, limit int, offset int64) ([]*model.ClinicService, int64, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	EnsurePatient(ctx context.Context, info model.PatientInfo) (*model.User, error)
}

type directoryService struct {
	doctors  repository.DoctorRepository
	services repository.ServiceRepository
	users    repository.UserRepository
	cfg      *config.Config
}

func NewDirectoryService(
	doctors repository.DoctorRepository,
	services repository.ServiceRepository,
	users repository.UserRepository,
	cfg *config.Config,
) DirectoryService {
	return &directoryService{
		doctors:  doctors,
		services: services,
		users:    users,
		cfg:      cfg,
	}
}

func (s *directoryService) CreateDoctor(ctx context.Context, doctor *model.Doctor) error {
	doctor.Name = sanitizer.NormalizeName(doctor.Name)
	if doctor.Name == "" {
		return apperrors.Validation("Doctor name is required", nil)
	}

	for i := range doctor.AvailableTimes {
		doctor.AvailableTimes[i].Day = canonicalWeekday(doctor.AvailableTimes[i].Day)
		if doctor.AvailableTimes[i].Day == "" {
			return apperrors.Validation("Invalid weekday in availability", map[string]any{"index": i})
		}
		for _, w := range doctor.AvailableTimes[i].Windows {
			if err := validateWindow(w); err != nil {
				return apperrors.Validation(err.Error(), map[string]any{"day": doctor.AvailableTimes[i].Day})
			}
		}
	}

	if err := s.doctors.Create(ctx, doctor); err != nil {
		return apperrors.Internal("Failed to create doctor", err)
	}

	s.cfg.Log.Info("Doctor created", "doctor_id", doctor.ID, "name", doctor.Name)
	return nil
}

func (s *directoryService) GetDoctor(ctx context.Context, id string) (*model.Doctor, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Doctor ID cannot be empty")
	}

	doctor, err := s.doctors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, directoryerrors.ErrDoctorNotFound) {
			return nil, apperrors.NotFoundWithID("Doctor", id)
		}
		if errors.Is(err, directoryerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid doctor ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve doctor", err)
	}

	return doctor, nil
}

func (s *directoryService) ListDoctors(ctx context.Context, limit int, offset int64) ([]*model.Doctor, int64, error) {
	var count int64
	var doctors []*model.Doctor
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.doctors.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count doctors", "error", errCount)
			errCount = apperrors.Internal("Failed to count doctors", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		doctors, errFind = s.doctors.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list doctors", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve doctors", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return doctors, count, nil
}

func (s *directoryService) SetDoctorAvailability(ctx context.Context, doctorID string, availableTimes []model.DayAvailability) error {
	if doctorID == "" {
		return apperrors.InvalidInput("Doctor ID cannot be empty")
	}

	for i := range availableTimes {
		availableTimes[i].Day = canonicalWeekday(availableTimes[i].Day)
		if availableTimes[i].Day == "" {
			return apperrors.Validation("Invalid weekday in availability", map[string]any{
				"index": i,
			})
		}
		for _, w := range availableTimes[i].Windows {
			if err := validateWindow(w); err != nil {
				return apperrors.Validation(err.Error(), map[string]any{
					"day": availableTimes[i].Day,
				})
			}
		}
	}

	err := s.doctors.UpdateAvailability(ctx, doctorID, availableTimes)
	if err != nil {
		if errors.Is(err, directoryerrors.ErrDoctorNotFound) {
			return apperrors.NotFoundWithID("Doctor", doctorID)
		}
		if errors.Is(err, directoryerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid doctor ID format")
		}
		return apperrors.Internal("Failed to update doctor availability", err)
	}

	s.cfg.Log.Info("Doctor availability updated", "doctor_id", doctorID, "days", len(availableTimes))
	return nil
}

func (s *directoryService) CreateService(ctx context.Context, svc *model.ClinicService) error {
	svc.Name = sanitizer.TrimAndNormalize(svc.Name)
	if svc.Name == "" {
		return apperrors.Validation("Service name is required", nil)
	}
	if svc.DurationMin <= 0 {
		return apperrors.Validation("Service duration must be positive", map[string]any{
			"duration_min": svc.DurationMin,
		})
	}
	if svc.Price < 0 {
		return apperrors.Validation("Service price cannot be negative", map[string]any{
			"price": svc.Price,
		})
	}

	if err := s.services.Create(ctx, svc); err != nil {
		return apperrors.Internal("Failed to create service", err)
	}

	s.cfg.Log.Info("Service created", "service_id", svc.ID, "name", svc.Name)
	return nil
}

func (s *directoryService) GetService(ctx context.Context, id string) (*model.ClinicService, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Service ID cannot be empty")
	}

	svc, err := s.services.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, directoryerrors.ErrServiceNotFound) {
			return nil, apperrors.NotFoundWithID("Service", id)
		}
		if errors.Is(err, directoryerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid service ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve service", err)
	}

	return svc, nil
}

func (s *directoryService) ListServices(ctx context.Context, limit int, offset int64) ([]*model.ClinicService, int64, error) {
	var count int64
	var services []*model.ClinicService
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.services.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count services", "error", errCount)
			errCount = apperrors.Internal("Failed to count services", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		services, errFind = s.services.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list services", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve services", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return services, count, nil
}

func (s *directoryService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, directoryerrors.ErrUserNotFound) {
			return nil, apperrors.NotFoundWithID("User", id)
		}
		if errors.Is(err, directoryerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid user ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve user", err)
	}

	return user, nil
}

// EnsurePatient resolves an existing patient by phone, then email, creating
// a client account on demand so staff can book walk-ins that never
// registered themselves.
func (s *directoryService) EnsurePatient(ctx context.Context, info model.PatientInfo) (*model.User, error) {
	info.FirstName = sanitizer.NormalizeName(info.FirstName)
	info.LastName = sanitizer.NormalizeName(info.LastName)
	info.Email = sanitizer.NormalizeEmail(info.Email)
	info.Phone = sanitizer.NormalizePhone(info.Phone)

	if info.FirstName == "" {
		return nil, apperrors.Validation("Patient first name is required", nil)
	}
	if info.Phone == "" && info.Email == "" {
		return nil, apperrors.Validation("Patient phone or email is required", nil)
	}

	if info.Phone != "" {
		user, err := s.users.FindByPhone(ctx, info.Phone)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, directoryerrors.ErrUserNotFound) {
			return nil, apperrors.Internal("Failed to look up patient by phone", err)
		}
	}

	if info.Email != "" {
		user, err := s.users.FindByEmail(ctx, info.Email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, directoryerrors.ErrUserNotFound) {
			return nil, apperrors.Internal("Failed to look up patient by email", err)
		}
	}

	user := &model.User{
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Email:     info.Email,
		Phone:     info.Phone,
		Age:       info.Age,
		Role:      "client",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.Internal("Failed to create patient account", err)
	}

	s.cfg.Log.Info("Patient account created on demand", "user_id", user.ID)
	return user, nil
}
