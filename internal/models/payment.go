package models

import "time"

// PaymentStatus is the settlement state of a payment record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentModel is one payment-gateway order. Created when an order is
// requested, updated exactly once by the verification step.
type PaymentModel struct {
	Base
	UserID           string        `json:"user_id"           gorm:"index;not null"`
	GatewayOrderID   string        `json:"gateway_order_id"  gorm:"uniqueIndex;not null"`
	GatewayPaymentID *string       `json:"gateway_payment_id"`
	Amount           int64         `json:"amount"` // smallest currency unit
	Currency         string        `json:"currency"`
	Status           PaymentStatus `json:"status"  gorm:"index;default:pending"`
	Plan             string        `json:"plan"`
	SubscriptionEnd  *time.Time    `json:"subscription_end"`
}

func (PaymentModel) TableName() string { return "payments" }
