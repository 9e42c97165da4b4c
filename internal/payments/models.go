package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// replaces lists the row states each webhook outcome may overwrite.
var replaces = map[string][]string{
	StatusSucceeded: {StatusPending, StatusFailed},
	StatusFailed:    {StatusPending},
	StatusRefunded:  {StatusSucceeded},
}

// CanReplace reports whether a payment row in state from may move to to.
func CanReplace(from, to string) bool {
	for _, s := range replaces[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Webhook event types acted upon; anything else is acknowledged and ignored.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

type Payment struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user"`
	OrderID         *uuid.UUID        `json:"order,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Method          string            `json:"paymentMethod"`
	Status          string            `json:"status"`
	PaymentIntentID string            `json:"paymentIntentId"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type CreateIntentInput struct {
	Amount   decimal.Decimal   `json:"amount" validate:"required"`
	Currency string            `json:"currency" validate:"omitempty,len=3"`
	Metadata map[string]string `json:"metadata"`
	OrderID  *uuid.UUID        `json:"orderId"`
}

type IntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// Intent is the processor-side view of a payment intent.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type Refund struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
}

// WebhookEvent is a verified processor callback reduced to what reconciliation needs.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	Raw      json.RawMessage
}

// DeadLetter is a webhook event whose order could not be matched when it arrived.
type DeadLetter struct {
	ID              uuid.UUID
	EventID         string
	EventType       string
	PaymentIntentID string
	Payload         json.RawMessage
	Attempts        int
	LastError       string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
}
