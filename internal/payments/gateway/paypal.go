package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"clinicbook/pkg/client"
	apperrors "clinicbook/pkg/errors"
	"clinicbook/pkg/logger"
	"clinicbook/pkg/model"
)

// PayPalClient integrates the PayPal Orders v2 API. The OAuth access token
// is cached until shortly before the expiry PayPal reports.
type PayPalClient struct {
	http *client.HttpClient
	log  *logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPalClient expects http to carry the client ID and secret as basic
// auth; the token exchange and API calls share the same credentials.
func NewPayPalClient(http *client.HttpClient, log *logger.Logger) *PayPalClient {
	return &PayPalClient{
		http: http,
		log:  log,
	}
}

func (c *PayPalClient) Gateway() model.Gateway {
	return model.GatewayPayPal
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	resp, err := c.http.POSTForm(ctx, "/v1/oauth2/token", form, nil)
	if err != nil {
		return "", apperrors.GatewayError("PayPal token request failed", err)
	}
	if !resp.IsSuccess() {
		return "", apperrors.GatewayError(fmt.Sprintf("PayPal token endpoint returned status %d", resp.StatusCode), nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return "", apperrors.GatewayError("Failed to decode PayPal token response", err)
	}

	c.token = body.AccessToken
	// Renew a minute early so an in-flight call never carries a stale token.
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return c.token, nil
}

type paypalOrder struct {
	ID    string `json:"id"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (c *PayPalClient) CreateCheckout(ctx context.Context, payment *model.Payment, description, successURL, cancelURL string) (*CheckoutSession, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": payment.AppointmentID,
			"description":  description,
			"amount": map[string]string{
				"currency_code": "USD",
				"value":         fmt.Sprintf("%.2f", payment.Amount),
			},
		}},
		"application_context": map[string]string{
			"return_url": successURL,
			"cancel_url": cancelURL,
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := c.http.POST(ctx, "/v2/checkout/orders", req, headers)
	if err != nil {
		return nil, apperrors.GatewayError("PayPal order request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.GatewayError(fmt.Sprintf("PayPal order endpoint returned status %d", resp.StatusCode), nil)
	}

	var order paypalOrder
	if err := resp.DecodeJSON(&order); err != nil {
		return nil, apperrors.GatewayError("Failed to decode PayPal order", err)
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, apperrors.GatewayError("PayPal order has no approval link", nil)
	}

	return &CheckoutSession{
		TransactionID: order.ID,
		RedirectURL:   approveURL,
	}, nil
}

// CheckoutStatus looks up the order. COMPLETED means the payment was
// captured; an approved-but-uncaptured order still counts as pending.
func (c *PayPalClient) CheckoutStatus(ctx context.Context, transactionID string) (*CheckoutStatusResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := c.http.GET(ctx, "/v2/checkout/orders/"+transactionID, headers)
	if err != nil {
		return nil, apperrors.GatewayError("PayPal order lookup failed", err)
	}
	if !resp.IsSuccess() {
		return nil, apperrors.GatewayError(fmt.Sprintf("PayPal order lookup returned status %d", resp.StatusCode), nil)
	}

	var order struct {
		Status string `json:"status"`
	}
	if err := resp.DecodeJSON(&order); err != nil {
		return nil, apperrors.GatewayError("Failed to decode PayPal order", err)
	}

	result := &CheckoutStatusResult{State: StatePending}
	switch order.Status {
	case "COMPLETED":
		result.State = StatePaid
	case "VOIDED":
		result.State = StateFailed
	}
	return result, nil
}

// Refund parks at refund-pending: PayPal refunds need the capture ID from
// the completed order, which is reconciled by a back-office process rather
// than stored on the payment record.
func (c *PayPalClient) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	c.log.Info("PayPal refund queued for manual processing",
		"transaction_id", transactionID,
		"amount", amount,
	)
	return &RefundResult{Outcome: OutcomeRefundPending}, nil
}
