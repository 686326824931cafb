package validator

import (
	"testing"
	"time"

	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *AppointmentValidator {
	log := logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
	return NewAppointmentValidator(log)
}

func validBookRequest() *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{
		DoctorID:      "64f000000000000000000003",
		ServiceID:     "64f000000000000000000004",
		PatientID:     "64f000000000000000000002",
		ActorID:       "64f000000000000000000001",
		StartTime:     time.Now().Add(48 * time.Hour),
		PaymentMethod: model.MethodCash,
	}
}

func TestValidateBookRequest(t *testing.T) {
	v := newTestValidator()

	t.Run("valid request passes", func(t *testing.T) {
		require.NoError(t, v.ValidateBookRequest(validBookRequest()))
	})

	t.Run("malformed doctor id rejected", func(t *testing.T) {
		req := validBookRequest()
		req.DoctorID = "not-an-object-id"

		err := v.ValidateBookRequest(req)
		require.Error(t, err)

		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "DoctorID", verrs[0].Field)
	})

	t.Run("patient identity required", func(t *testing.T) {
		req := validBookRequest()
		req.PatientID = ""
		req.PatientInfo = nil

		err := v.ValidateBookRequest(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "patient_id or patient_info is required")
	})

	t.Run("past start time rejected", func(t *testing.T) {
		req := validBookRequest()
		req.StartTime = time.Now().Add(-time.Hour)

		err := v.ValidateBookRequest(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start_time cannot be in the past")
	})

	t.Run("online payment requires a gateway", func(t *testing.T) {
		req := validBookRequest()
		req.PaymentMethod = model.MethodOnline
		req.Gateway = ""

		err := v.ValidateBookRequest(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gateway is required for online payment")
	})

	t.Run("unknown gateway rejected", func(t *testing.T) {
		req := validBookRequest()
		req.PaymentMethod = model.MethodOnline
		req.Gateway = model.Gateway("square")

		err := v.ValidateBookRequest(req)
		require.Error(t, err)

		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "Gateway", verrs[0].Field)
	})
}

func TestValidateAppointment_EndAfterStart(t *testing.T) {
	v := newTestValidator()
	start := time.Now().Add(48 * time.Hour)

	appt := &model.Appointment{
		DoctorID:    "64f000000000000000000003",
		ServiceID:   "64f000000000000000000004",
		PatientID:   "64f000000000000000000002",
		PatientInfo: model.PatientInfo{FirstName: "Omar"},
		Date:        start.Truncate(24 * time.Hour),
		StartTime:   start,
		EndTime:     start,
		Status:      model.StatusPending,
	}

	err := v.Validate(appt)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "EndTime", verrs[0].Field)
}

func TestValidateReschedule(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateReschedule(&model.RescheduleRequest{
		NewStartTime: time.Now().Add(-time.Hour),
		ActorID:      "64f000000000000000000001",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "new_start_time cannot be in the past")

	require.NoError(t, v.ValidateReschedule(&model.RescheduleRequest{
		NewStartTime: time.Now().Add(24 * time.Hour),
		ActorID:      "64f000000000000000000001",
	}))
}
