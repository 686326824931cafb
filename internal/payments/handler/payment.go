package handler

import (
	"io"
	"net/http"

	"clinicbook/internal/payments/service"
	httputil "clinicbook/pkg/http"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type PaymentHandler struct {
	service       service.PaymentService
	webhookSecret string
	log           *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, webhookSecret string, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

func (h *PaymentHandler) GetByAppointment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payment, err := h.service.GetByAppointment(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByAppointment", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, payment); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByAppointment", "operation", "WriteSuccess", "error", err)
	}
}

// Verify polls the gateway for a pending online payment. Used by the
// frontend's return page when the webhook has not landed yet.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payment, err := h.service.VerifyPayment(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Verify", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, payment); err != nil {
		h.log.Error("failed to write success response", "handler", "Verify", "operation", "WriteSuccess", "error", err)
	}
}

// StripeWebhook processes Stripe events. The route is registered behind
// signature verification, so the payload read here is already trusted.
// Errors other than a malformed payload return 200 so Stripe does not
// retry events that will never succeed differently.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Failed to read webhook payload",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "StripeWebhook", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.HandleStripeWebhook(r.Context(), payload); err != nil {
		h.log.Error("Webhook processing failed", "error", err)
	}

	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"received": "true"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "StripeWebhook", "operation", "WriteJSON", "error", err)
	}
}

func (h *PaymentHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/appointments/id/:id/payment", h.GetByAppointment)
	router.POST("/api/v1/appointments/id/:id/payment/verify", h.Verify)

	// Signature verification wraps only this route; regular API traffic
	// never carries a Stripe-Signature header.
	verify := middleware.StripeSignatureVerification(h.webhookSecret, h.log)
	router.Handler(http.MethodPost, "/api/v1/payments/webhooks/stripe", verify(http.HandlerFunc(h.StripeWebhook)))
}
