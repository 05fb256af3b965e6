// internal/models/payment.go
package models

import "time"

type PaymentKind string

const (
	PaymentDeposit    PaymentKind = "deposit"
	PaymentWithdrawal PaymentKind = "withdrawal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment is a gateway-backed deposit or withdrawal tracked by its caller-generated reference.
type Payment struct {
	Reference   string        `json:"reference"`
	UserID      string        `json:"user_id"`
	Kind        PaymentKind   `json:"type"`
	Method      string        `json:"method"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	AccountNo   string        `json:"account_number,omitempty"`
	Status      PaymentStatus `json:"status"`
	GatewayID   string        `json:"gateway_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
