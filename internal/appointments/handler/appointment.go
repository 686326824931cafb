package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"clinicbook/internal/appointments/repository"
	apptservice "clinicbook/internal/appointments/service"
	directoryservice "clinicbook/internal/directory/service"
	paymentservice "clinicbook/internal/payments/service"
	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AppointmentHandler struct {
	service      apptservice.AppointmentService
	availability directoryservice.AvailabilityService
	payments     paymentservice.PaymentService
	log          *logger.Logger
}

func NewAppointmentHandler(
	service apptservice.AppointmentService,
	availability directoryservice.AvailabilityService,
	payments paymentservice.PaymentService,
	log *logger.Logger,
) *AppointmentHandler {
	return &AppointmentHandler{
		service:      service,
		availability: availability,
		payments:     payments,
		log:          log,
	}
}

// bookResponse bundles the appointment with the checkout session when the
// booking pays online.
type bookResponse struct {
	Appointment *model.Appointment `json:"appointment"`
	PaymentID   string             `json:"payment_id,omitempty"`
	CheckoutURL string             `json:"checkout_url,omitempty"`
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Book", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Book(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Book", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	resp := bookResponse{Appointment: appt}

	if req.PaymentMethod == model.MethodOnline {
		payment, session, err := h.payments.InitiateCheckout(r.Context(), appt, req.Gateway)
		if err != nil {
			// The slot is held; the patient can retry payment from the
			// appointment page, so the booking is still reported.
			h.log.Warn("Checkout initiation failed after booking",
				"appointment_id", appt.ID,
				"error", err,
			)
			if writeErr := httputil.WriteSuccessWithWarning(w, resp,
				"appointment booked, but starting the payment failed; please retry payment"); writeErr != nil {
				h.log.Error("failed to write success response", "handler", "Book", "operation", "WriteSuccessWithWarning", "error", writeErr)
			}
			return
		}
		resp.PaymentID = payment.ID
		resp.CheckoutURL = session.RedirectURL
	}

	if err := httputil.WriteCreated(w, resp); err != nil {
		h.log.Error("failed to write created response", "handler", "Book", "operation", "WriteCreated", "error", err)
	}
}

func (h *AppointmentHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	appt, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	query := r.URL.Query()
	filter := repository.ListFilter{
		Status:    model.AppointmentStatus(query.Get("status")),
		DoctorID:  query.Get("doctor_id"),
		PatientID: query.Get("patient_id"),
	}
	if dayStr := query.Get("date"); dayStr != "" {
		day, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
				Error: "invalid date parameter, must be YYYY-MM-DD",
			}); writeErr != nil {
				h.log.Error("failed to write JSON response", "handler", "List", "operation", "WriteJSON", "error", writeErr)
			}
			return
		}
		filter.Day = &day
	}

	appts, total, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, appts, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *AppointmentHandler) ListByPatient(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByPatient", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	filter := repository.ListFilter{PatientID: ps.ByName("id")}
	appts, total, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByPatient", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, appts, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListByPatient", "operation", "WritePaginated", "error", err)
	}
}

func (h *AppointmentHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Stats", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, stats); err != nil {
		h.log.Error("failed to write success response", "handler", "Stats", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Confirm", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Confirm(r.Context(), ps.ByName("id"), req.ActorID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Confirm", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Confirm", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Cancel", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Cancel(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if appt.PaymentMethod == model.MethodOnline && appt.PaymentStatus == model.PaymentRefundPending {
		if err := httputil.WriteSuccessWithWarning(w, appt, "appointment cancelled, refund is still being processed"); err != nil {
			h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccessWithWarning", "error", err)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reschedule", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Reschedule(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reschedule", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, appt); err != nil {
		h.log.Error("failed to write created response", "handler", "Reschedule", "operation", "WriteCreated", "error", err)
	}
}

func (h *AppointmentHandler) Delay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.DelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Delay", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.Delay(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delay", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Delay", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Complete", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.MarkCompleted(r.Context(), ps.ByName("id"), req.ActorID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Complete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "Complete", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) NoShow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "NoShow", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	appt, err := h.service.MarkNoShow(r.Context(), ps.ByName("id"), req.ActorID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "NoShow", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, appt); err != nil {
		h.log.Error("failed to write success response", "handler", "NoShow", "operation", "WriteSuccess", "error", err)
	}
}

// CashPayment records a desk payment for a cash booking. The appointment
// confirms through the same path an online capture uses.
func (h *AppointmentHandler) CashPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	appt, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CashPayment", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	payment, err := h.payments.RecordCashPayment(r.Context(), appt)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CashPayment", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, payment); err != nil {
		h.log.Error("failed to write success response", "handler", "CashPayment", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	doctorID := query.Get("doctor_id")
	serviceID := query.Get("service_id")

	if doctorID == "" || serviceID == "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Both 'doctor_id' and 'service_id' query parameters are required",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Availability", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	day, err := httputil.ExtractDate(r, "date")
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slots, err := h.availability.Resolve(r.Context(), doctorID, serviceID, day)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AppointmentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/appointments", h.Book)
	router.GET("/api/v1/appointments", h.List)
	router.GET("/api/v1/appointments/stats", h.Stats)
	router.GET("/api/v1/appointments/id/:id", h.GetByID)
	router.POST("/api/v1/appointments/id/:id/confirm", h.Confirm)
	router.POST("/api/v1/appointments/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/appointments/id/:id/reschedule", h.Reschedule)
	router.POST("/api/v1/appointments/id/:id/delay", h.Delay)
	router.POST("/api/v1/appointments/id/:id/complete", h.Complete)
	router.POST("/api/v1/appointments/id/:id/no-show", h.NoShow)
	router.POST("/api/v1/appointments/id/:id/payment/cash", h.CashPayment)
	router.GET("/api/v1/availability", h.Availability)
	router.GET("/api/v1/patients/id/:id/appointments", h.ListByPatient)
}
