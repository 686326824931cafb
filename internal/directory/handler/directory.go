package handler

import (
	"encoding/json"
	"net/http"

	"clinicbook/internal/directory/service"
	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type DirectoryHandler struct {
	service service.DirectoryService
	log     *logger.Logger
}

func NewDirectoryHandler(service service.DirectoryService, log *logger.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		service: service,
		log:     log,
	}
}

func (h *DirectoryHandler) CreateDoctor(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var doctor model.Doctor
	if err := json.NewDecoder(r.Body).Decode(&doctor); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CreateDoctor", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.CreateDoctor(r.Context(), &doctor); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateDoctor", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, doctor); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateDoctor", "operation", "WriteCreated", "error", err)
	}
}

func (h *DirectoryHandler) GetDoctor(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	doctor, err := h.service.GetDoctor(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetDoctor", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, doctor); err != nil {
		h.log.Error("failed to write success response", "handler", "GetDoctor", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DirectoryHandler) ListDoctors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListDoctors", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	doctors, total, err := h.service.ListDoctors(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListDoctors", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, doctors, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListDoctors", "operation", "WritePaginated", "error", err)
	}
}

func (h *DirectoryHandler) SetAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var availableTimes []model.DayAvailability
	if err := json.NewDecoder(r.Body).Decode(&availableTimes); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "SetAvailability", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.SetDoctorAvailability(r.Context(), ps.ByName("id"), availableTimes); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "SetAvailability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *DirectoryHandler) CreateService(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var svc model.ClinicService
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CreateService", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.CreateService(r.Context(), &svc); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateService", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, svc); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateService", "operation", "WriteCreated", "error", err)
	}
}

func (h *DirectoryHandler) GetService(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	svc, err := h.service.GetService(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetService", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, svc); err != nil {
		h.log.Error("failed to write success response", "handler", "GetService", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DirectoryHandler) ListServices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListServices", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	services, total, err := h.service.ListServices(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListServices", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, services, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListServices", "operation", "WritePaginated", "error", err)
	}
}

func (h *DirectoryHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/doctors", h.CreateDoctor)
	router.GET("/api/v1/doctors", h.ListDoctors)
	router.GET("/api/v1/doctors/id/:id", h.GetDoctor)
	router.PUT("/api/v1/doctors/id/:id/availability", h.SetAvailability)
	router.POST("/api/v1/services", h.CreateService)
	router.GET("/api/v1/services", h.ListServices)
	router.GET("/api/v1/services/id/:id", h.GetService)
}
