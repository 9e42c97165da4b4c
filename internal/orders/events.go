package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-commerce-backend/internal/kafka"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentReconciled  = "PaymentReconciled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Items       []ItemQty `json:"items"`
	TotalAmount string    `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID       string `json:"order_id"`
	From          Status `json:"from"`
	To            Status `json:"to"`
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason,omitempty"`
}

type PaymentReconciledPayload struct {
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	WebhookEvent    string `json:"webhook_event"`
	PaymentStatus   string `json:"payment_status"`
	Status          Status `json:"status"`
}

// Publisher is the write side of the event stream.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// PublishEvent wraps payload in a v1 envelope keyed by the order id.
func PublishEvent(p Publisher, producer, eventType, orderID, traceID string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := kafkax.Encode(payload)
	if err != nil {
		return err
	}
	value, err := kafkax.Encode(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       body,
	})
	if err != nil {
		return err
	}
	p.Publish(PartitionKey(orderID), value,
		kafkago.Header{Key: kafkax.HeaderEventType, Value: []byte(eventType)},
		kafkago.Header{Key: kafkax.HeaderEventVersion, Value: []byte("1")},
	)
	return nil
}
