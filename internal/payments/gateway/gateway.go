// Package gateway holds the payment provider clients. Each client owns its
// own auth state (API keys, cached OAuth tokens) and speaks the provider's
// wire format; the payments service only sees the Client interface.
package gateway

import (
	"context"

	"clinicbook/pkg/model"
)

// RefundOutcome reports where a refund attempt landed.
type RefundOutcome string

const (
	// OutcomeRefunded means the provider completed the refund synchronously.
	OutcomeRefunded RefundOutcome = "refunded"

	// OutcomeRefundPending means the provider accepted the request but the
	// refund completes out of band.
	OutcomeRefundPending RefundOutcome = "refund-pending"

	// OutcomeAlreadyRefunded means the provider reports the transaction as
	// refunded already. Treated as success so retries converge.
	OutcomeAlreadyRefunded RefundOutcome = "already-refunded"

	// OutcomeFailed means the provider rejected the refund.
	OutcomeFailed RefundOutcome = "failed"
)

// PaymentStatus maps an outcome onto the payment record's status field.
func (o RefundOutcome) PaymentStatus() model.PaymentStatus {
	switch o {
	case OutcomeRefunded, OutcomeAlreadyRefunded:
		return model.PaymentRefunded
	case OutcomeRefundPending:
		return model.PaymentRefundPending
	default:
		return model.PaymentPaid
	}
}

// CheckoutState is the provider-side view of a checkout, used when the
// frontend polls instead of waiting for a webhook.
type CheckoutState string

const (
	StatePaid    CheckoutState = "paid"
	StatePending CheckoutState = "pending"
	StateFailed  CheckoutState = "failed"
)

// CheckoutStatusResult reports the provider-side state. TransactionID, when
// set, is the reference a later refund needs (Stripe resolves a session to
// its payment intent here).
type CheckoutStatusResult struct {
	State         CheckoutState
	TransactionID string
}

// CheckoutSession is the provider-hosted payment page handed to the patient.
type CheckoutSession struct {
	// TransactionID is the provider reference stored on the payment record.
	TransactionID string

	// RedirectURL is where the patient completes the payment.
	RedirectURL string
}

// RefundResult carries the outcome plus the provider's refund reference.
type RefundResult struct {
	Outcome  RefundOutcome
	RefundID string
}

// Client is one payment provider integration.
type Client interface {
	Gateway() model.Gateway

	// CreateCheckout opens a provider-hosted payment session for the amount.
	CreateCheckout(ctx context.Context, payment *model.Payment, description, successURL, cancelURL string) (*CheckoutSession, error)

	// CheckoutStatus polls the provider for the state of a checkout.
	CheckoutStatus(ctx context.Context, transactionID string) (*CheckoutStatusResult, error)

	// Refund returns the captured amount for the given transaction reference.
	Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error)
}
