package scheduler

import (
	"net/http"

	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// JobsHandler exposes the scheduler's supervision state for operators.
type JobsHandler struct {
	scheduler *Scheduler
	log       *logger.Logger
}

func NewJobsHandler(scheduler *Scheduler, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		scheduler: scheduler,
		log:       log,
	}
}

func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, h.scheduler.Status()); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "operation", "WriteSuccess", "error", err)
	}
}

func (h *JobsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/jobs", h.Status)
}
