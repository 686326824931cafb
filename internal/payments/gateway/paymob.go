package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinicbook/pkg/client"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

const paymobBaseURL = "https://accept.paymob.com"

// paymobTokenTTL is kept below Paymob's one-hour token lifetime so a cached
// token is never used right at its expiry edge.
const paymobTokenTTL = 50 * time.Minute

// PaymobClient integrates Paymob's Accept API. Checkout is a three-step
// flow (auth token, order, payment key) ending in an iframe URL. The auth
// token is cached and refreshed on expiry.
type PaymobClient struct {
	http          *client.HttpClient
	apiKey        string
	integrationID string
	iframeID      string
	log           *logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPaymobClient(http *client.HttpClient, apiKey, integrationID, iframeID string, log *logger.Logger) *PaymobClient {
	return &PaymobClient{
		http:          http,
		apiKey:        apiKey,
		integrationID: integrationID,
		iframeID:      iframeID,
		log:           log,
	}
}

func (c *PaymobClient) Gateway() model.Gateway {
	return model.GatewayPaymob
}

func (c *PaymobClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	resp, err := c.http.POST(ctx, "/api/auth/tokens", map[string]string{"api_key": c.apiKey}, nil)
	if err != nil {
		return "", apperrors.GatewayError("Paymob auth request failed", err)
	}
	if !resp.IsSuccess() {
		return "", apperrors.GatewayError(fmt.Sprintf("Paymob auth returned status %d", resp.StatusCode), nil)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return "", apperrors.GatewayError("Failed to decode Paymob auth response", err)
	}

	c.token = body.Token
	c.tokenExpiry = time.Now().Add(paymobTokenTTL)
	return c.token, nil
}

func (c *PaymobClient) CreateCheckout(ctx context.Context, payment *model.Payment, description, successURL, cancelURL string) (*CheckoutSession, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	amountCents := toMinorUnits(payment.Amount)

	orderReq := map[string]any{
		"auth_token":        token,
		"amount_cents":      amountCents,
		"currency":          "EGP",
		"merchant_order_id": payment.AppointmentID,
		"items":             []any{},
	}
	resp, err := c.http.POST(ctx, "/api/ecommerce/orders", orderReq, nil)
	if err != nil {
		return nil, apperrors.GatewayError("Paymob order request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.GatewayError(fmt.Sprintf("Paymob order returned status %d", resp.StatusCode), nil)
	}

	var order struct {
		ID int64 `json:"id"`
	}
	if err := resp.DecodeJSON(&order); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Paymob order", err)
	}

	keyReq := map[string]any{
		"auth_token":     token,
		"amount_cents":   amountCents,
		"currency":       "EGP",
		"order_id":       order.ID,
		"integration_id": c.integrationID,
		"expiration":     3600,
		"billing_data":   paymobBillingData(payment),
	}
	resp, err = c.http.POST(ctx, "/api/acceptance/payment_keys", keyReq, nil)
	if err != nil {
		return nil, apperrors.GatewayError("Paymob payment key request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.GatewayError(fmt.Sprintf("Paymob payment key returned status %d", resp.StatusCode), nil)
	}

	var key struct {
		Token string `json:"token"`
	}
	if err := resp.DecodeJSON(&key); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Paymob payment key", err)
	}

	return &CheckoutSession{
		TransactionID: fmt.Sprintf("%d", order.ID),
		RedirectURL:   fmt.Sprintf("%s/api/acceptance/iframes/%s?payment_token=%s", paymobBaseURL, c.iframeID, key.Token),
	}, nil
}

// CheckoutStatus runs Paymob's order inquiry. The stored transaction
// reference is the merchant order id created during checkout.
func (c *PaymobClient) CheckoutStatus(ctx context.Context, transactionID string) (*CheckoutStatusResult, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"auth_token": token,
		"order_id":   transactionID,
	}
	resp, err := c.http.POST(ctx, "/api/ecommerce/orders/transaction_inquiry", req, nil)
	if err != nil {
		return nil, apperrors.GatewayError("Paymob inquiry request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.GatewayError(fmt.Sprintf("Paymob inquiry returned status %d", resp.StatusCode), nil)
	}

	var txn struct {
		Success bool `json:"success"`
		Pending bool `json:"pending"`
	}
	if err := resp.DecodeJSON(&txn); err != nil {
		return nil, apperrors.GatewayError("Failed to decode Paymob transaction", err)
	}

	result := &CheckoutStatusResult{State: StateFailed}
	if txn.Pending {
		result.State = StatePending
	}
	if txn.Success {
		result.State = StatePaid
	}
	return result, nil
}

// Refund is asynchronous with Paymob: the request is raised with support
// tooling and completes out of band, so the local record parks at
// refund-pending until reconciliation.
func (c *PaymobClient) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	c.log.Info("Paymob refund queued for manual processing",
		"transaction_id", transactionID,
		"amount", amount,
	)
	return &RefundResult{Outcome: OutcomeRefundPending}, nil
}

// Paymob rejects payment-key requests with empty billing fields, so absent
// values are sent as the literal "NA" per its API contract.
func paymobBillingData(payment *model.Payment) map[string]string {
	return map[string]string{
		"first_name":   "NA",
		"last_name":    "NA",
		"email":        "NA",
		"phone_number": "NA",
		"apartment":    "NA",
		"floor":        "NA",
		"street":       "NA",
		"building":     "NA",
		"city":         "NA",
		"country":      "EG",
	}
}
