package model

import (
	"time"
)

// PaymentStatus tracks money movement independently of the appointment's own
// lifecycle. A Payment row is never deleted, only transitioned.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentRefundPending PaymentStatus = "refund-pending"
)

// IsRefundEligible reports whether a refund attempt makes sense for this
// status. Only captured payments can be refunded.
func (s PaymentStatus) IsRefundEligible() bool {
	return s == PaymentPaid
}

// Gateway identifies the payment provider handling an online payment.
type Gateway string

const (
	GatewayStripe Gateway = "stripe"
	GatewayPaymob Gateway = "paymob"
	GatewayPayPal Gateway = "paypal"
)

// SupportsSyncRefund reports whether the gateway can complete a refund in a
// single API call. Paymob and PayPal refunds are finished by an external
// process, so the local record parks at refund-pending.
func (g Gateway) SupportsSyncRefund() bool {
	return g == GatewayStripe
}

type Payment struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	PatientID     string        `json:"patient_id" bson:"patient_id" validate:"required,mongodb"`
	ServiceID     string        `json:"service_id" bson:"service_id" validate:"required,mongodb"`
	AppointmentID string        `json:"appointment_id" bson:"appointment_id" validate:"required,mongodb"`
	Amount        float64       `json:"amount" bson:"amount" validate:"required,gt=0"`
	Method        PaymentMethod `json:"method" bson:"method" validate:"required,oneof=cash online"`
	Gateway       Gateway       `json:"gateway,omitempty" bson:"gateway,omitempty" validate:"omitempty,oneof=stripe paymob paypal"`
	Status        PaymentStatus `json:"status" bson:"status" validate:"omitempty,oneof=pending paid failed refunded refund-pending"`

	// TransactionID is the gateway reference. For Stripe it may hold either a
	// checkout-session id (cs_...) or a payment-intent id (pi_...); the
	// gateway client normalizes before refunding.
	TransactionID string `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	RefundID      string `json:"refund_id,omitempty" bson:"refund_id,omitempty"`

	PaymentDate time.Time  `json:"payment_date,omitempty" bson:"payment_date,omitempty"`
	RefundDate  *time.Time `json:"refund_date,omitempty" bson:"refund_date,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
