package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"clinicbook/pkg/client"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

// StripeClient integrates Stripe Checkout. Stripe accepts only
// form-encoded requests and authenticates with a bearer secret key.
type StripeClient struct {
	http      *client.HttpClient
	secretKey string
	currency  string
	log       *logger.Logger
}

func NewStripeClient(http *client.HttpClient, secretKey string, log *logger.Logger) *StripeClient {
	return &StripeClient{
		http:      http,
		secretKey: secretKey,
		currency:  "egp",
		log:       log,
	}
}

func (c *StripeClient) Gateway() model.Gateway {
	return model.GatewayStripe
}

func (c *StripeClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.secretKey,
	}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) CreateCheckout(ctx context.Context, payment *model.Payment, description, successURL, cancelURL string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", c.currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinorUnits(payment.Amount), 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("metadata[appointment_id]", payment.AppointmentID)

	resp, err := c.http.POSTForm(ctx, "/v1/checkout/sessions", form, c.headers())
	if err != nil {
		return nil, apperrors.GatewayError("Stripe checkout request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError("create checkout session", resp)
	}

	var session stripeSession
	if err := resp.DecodeJSON(&session); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Stripe session", err)
	}

	return &CheckoutSession{
		TransactionID: session.ID,
		RedirectURL:   session.URL,
	}, nil
}

// CheckoutStatus polls the checkout session (or payment intent) directly,
// covering deployments where the webhook is delayed or not configured.
func (c *StripeClient) CheckoutStatus(ctx context.Context, transactionID string) (*CheckoutStatusResult, error) {
	if strings.HasPrefix(transactionID, "cs_") {
		resp, err := c.http.GET(ctx, "/v1/checkout/sessions/"+transactionID, c.headers())
		if err != nil {
			return nil, apperrors.GatewayError("Stripe session lookup failed", err)
		}
		if !resp.IsSuccess() {
			return nil, c.apiError("look up checkout session", resp)
		}

		var session stripeSession
		if err := resp.DecodeJSON(&session); err != nil {
			return nil, apperrors.GatewayError("Failed to decode Stripe session", err)
		}

		result := &CheckoutStatusResult{State: StatePending, TransactionID: session.PaymentIntent}
		if session.PaymentStatus == "paid" {
			result.State = StatePaid
		}
		return result, nil
	}

	resp, err := c.http.GET(ctx, "/v1/payment_intents/"+transactionID, c.headers())
	if err != nil {
		return nil, apperrors.GatewayError("Stripe payment intent lookup failed", err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError("look up payment intent", resp)
	}

	var intent struct {
		Status string `json:"status"`
	}
	if err := resp.DecodeJSON(&intent); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Stripe payment intent", err)
	}

	result := &CheckoutStatusResult{State: StatePending}
	switch intent.Status {
	case "succeeded":
		result.State = StatePaid
	case "canceled":
		result.State = StateFailed
	}
	return result, nil
}

// Refund refunds a Stripe payment idempotently. The stored reference may be
// a checkout-session id (cs_...) or a payment-intent id (pi_...); sessions
// are resolved to their intent first. Existing refunds are checked before
// creating a new one so webhook replays and cancel retries converge.
func (c *StripeClient) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	intentID, err := c.resolvePaymentIntent(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	refunded, refundID, err := c.findExistingRefund(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if refunded {
		c.log.Info("Stripe payment already refunded", "payment_intent", intentID, "refund_id", refundID)
		return &RefundResult{Outcome: OutcomeAlreadyRefunded, RefundID: refundID}, nil
	}

	result, err := c.createRefund(ctx, url.Values{"payment_intent": {intentID}})
	if err == nil {
		return result, nil
	}
	if isAlreadyRefunded(err) {
		return &RefundResult{Outcome: OutcomeAlreadyRefunded}, nil
	}

	// Older payments may predate payment-intent refunds; fall back to
	// refunding the underlying charge.
	chargeID, chargeErr := c.latestCharge(ctx, intentID)
	if chargeErr != nil || chargeID == "" {
		return nil, err
	}

	result, err = c.createRefund(ctx, url.Values{"charge": {chargeID}})
	if err != nil {
		if isAlreadyRefunded(err) {
			return &RefundResult{Outcome: OutcomeAlreadyRefunded}, nil
		}
		return nil, err
	}
	return result, nil
}

func (c *StripeClient) resolvePaymentIntent(ctx context.Context, transactionID string) (string, error) {
	if !strings.HasPrefix(transactionID, "cs_") {
		return transactionID, nil
	}

	resp, err := c.http.GET(ctx, "/v1/checkout/sessions/"+transactionID, c.headers())
	if err != nil {
		return "", apperrors.GatewayError("Stripe session lookup failed", err)
	}
	if !resp.IsSuccess() {
		return "", c.apiError("look up checkout session", resp)
	}

	var session stripeSession
	if err := resp.DecodeJSON(&session); err != nil {
		return "", apperrors.GatewayError("Failed to decode Stripe session", err)
	}
	if session.PaymentIntent == "" {
		return "", apperrors.GatewayError("Stripe session has no payment intent", nil)
	}
	return session.PaymentIntent, nil
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeRefundList struct {
	Data []stripeRefund `json:"data"`
}

func (c *StripeClient) findExistingRefund(ctx context.Context, intentID string) (bool, string, error) {
	query := url.Values{"payment_intent": {intentID}, "limit": {"1"}}
	resp, err := c.http.GET(ctx, "/v1/refunds?"+query.Encode(), c.headers())
	if err != nil {
		return false, "", apperrors.GatewayError("Stripe refund lookup failed", err)
	}
	if !resp.IsSuccess() {
		return false, "", c.apiError("list refunds", resp)
	}

	var list stripeRefundList
	if err := resp.DecodeJSON(&list); err != nil {
		return false, "", apperrors.GatewayError("Failed to decode Stripe refund list", err)
	}

	for _, r := range list.Data {
		if r.Status == "succeeded" || r.Status == "pending" {
			return true, r.ID, nil
		}
	}
	return false, "", nil
}

func (c *StripeClient) createRefund(ctx context.Context, form url.Values) (*RefundResult, error) {
	resp, err := c.http.POSTForm(ctx, "/v1/refunds", form, c.headers())
	if err != nil {
		return nil, apperrors.GatewayError("Stripe refund request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, c.apiError("create refund", resp)
	}

	var refund stripeRefund
	if err := resp.DecodeJSON(&refund); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Stripe refund", err)
	}

	outcome := OutcomeRefunded
	if refund.Status == "pending" {
		outcome = OutcomeRefundPending
	}
	return &RefundResult{Outcome: outcome, RefundID: refund.ID}, nil
}

type stripePaymentIntent struct {
	LatestCharge string `json:"latest_charge"`
}

func (c *StripeClient) latestCharge(ctx context.Context, intentID string) (string, error) {
	resp, err := c.http.GET(ctx, "/v1/payment_intents/"+intentID, c.headers())
	if err != nil {
		return "", apperrors.GatewayError("Stripe payment intent lookup failed", err)
	}
	if !resp.IsSuccess() {
		return "", c.apiError("look up payment intent", resp)
	}

	var intent stripePaymentIntent
	if err := resp.DecodeJSON(&intent); err != nil {
		return "", apperrors.GatewayError("Failed to decode Stripe payment intent", err)
	}
	return intent.LatestCharge, nil
}

// stripeAPIError keeps Stripe's machine-readable error code attached to the
// wrapped gateway error so callers can branch on the code instead of
// matching message text.
type stripeAPIError struct {
	code    string
	message string
}

func (e *stripeAPIError) Error() string {
	return e.message
}

func (c *StripeClient) apiError(operation string, resp *client.Response) error {
	cause := &stripeAPIError{message: fmt.Sprintf("Stripe returned status %d", resp.StatusCode)}
	var apiErr stripeError
	if err := resp.DecodeJSON(&apiErr); err == nil && apiErr.Error.Message != "" {
		cause.code = apiErr.Error.Code
		cause.message = apiErr.Error.Message
	}

	c.log.Warn("Stripe API call failed",
		"operation", operation,
		"status", resp.StatusCode,
		"code", cause.code,
		"message", cause.message,
	)
	return apperrors.GatewayError(fmt.Sprintf("Failed to %s: %s", operation, cause.message), cause)
}

func isAlreadyRefunded(err error) bool {
	var apiErr *stripeAPIError
	return errors.As(err, &apiErr) && apiErr.code == "charge_already_refunded"
}

// toMinorUnits converts an amount in major currency units to the integer
// minor units providers expect.
func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
