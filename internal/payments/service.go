// Package payments fronts the card processor: intents, refunds and the signed
// webhook that reconciles orders with what the processor reports.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
)

// OrderReconciler is the slice of the order service payments drive.
type OrderReconciler interface {
	ReconcilePayment(ctx context.Context, intentID, webhookEvent string, ps orders.PaymentStatus, target orders.Status) (*orders.Order, error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
}

type Service struct {
	Gateway       Gateway
	Store         Store
	Orders        OrderReconciler
	WebhookSecret string
	Currency      string
	Log           *logrus.Entry
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// MinorUnits converts a major-unit amount to cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *Service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, in CreateIntentInput) (*IntentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.BadRequest("Amount must be greater than zero")
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.Currency
	}
	if currency == "" {
		currency = "usd"
	}
	meta := map[string]string{"userId": userID.String()}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	if in.OrderID != nil {
		meta["orderId"] = in.OrderID.String()
	}

	intent, err := s.Gateway.CreateIntent(ctx, MinorUnits(in.Amount), currency, meta)
	if err != nil {
		s.Log.WithError(err).Error("create payment intent")
		return nil, apperr.Wrap(http.StatusBadRequest, "Failed to create payment intent", err)
	}

	p := &Payment{
		UserID:          userID,
		OrderID:         in.OrderID,
		Amount:          in.Amount,
		Currency:        currency,
		Method:          "stripe",
		Status:          StatusPending,
		PaymentIntentID: intent.ID,
		Metadata:        meta,
	}
	if err := s.Store.CreatePayment(ctx, p); err != nil {
		return nil, apperr.Wrap(http.StatusInternalServerError, "Failed to record payment", err)
	}
	if in.OrderID != nil {
		if err := s.Orders.AttachPaymentIntent(ctx, *in.OrderID, intent.ID); err != nil {
			return nil, err
		}
	}
	s.Log.WithFields(logrus.Fields{"payment_intent": intent.ID, "amount": in.Amount.String()}).Info("payment intent created")
	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

func (s *Service) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	intent, err := s.Gateway.GetIntent(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(http.StatusNotFound, "Payment intent not found", err)
	}
	return intent, nil
}

func (s *Service) ConfirmPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	intent, err := s.Gateway.ConfirmIntent(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(http.StatusBadRequest, "Failed to confirm payment", err)
	}
	return intent, nil
}

// CreateRefund refunds the whole intent when amount is nil.
func (s *Service) CreateRefund(ctx context.Context, intentID string, amount *decimal.Decimal) (*Refund, error) {
	var minor *int64
	if amount != nil {
		if !amount.IsPositive() {
			return nil, apperr.BadRequest("Refund amount must be greater than zero")
		}
		v := MinorUnits(*amount)
		minor = &v
	}
	r, err := s.Gateway.Refund(ctx, intentID, minor)
	if err != nil {
		s.Log.WithError(err).WithField("payment_intent", intentID).Error("refund")
		return nil, apperr.Wrap(http.StatusBadRequest, "Failed to process refund", err)
	}
	s.Log.WithFields(logrus.Fields{"payment_intent": intentID, "refund": r.ID}).Info("refund created")
	return r, nil
}

func (s *Service) ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error) {
	ev, err := ParseWebhook(payload, signature, s.WebhookSecret)
	if err != nil {
		return nil, apperr.Wrap(http.StatusBadRequest, "Invalid webhook signature", err)
	}
	return ev, nil
}

// outcome maps an event type onto the payment and order state it implies.
func outcome(eventType string) (paymentStatus string, ps orders.PaymentStatus, target orders.Status, ok bool) {
	switch eventType {
	case EventIntentSucceeded:
		return StatusSucceeded, orders.PaymentPaid, orders.StatusProcessing, true
	case EventIntentFailed:
		return StatusFailed, orders.PaymentFailed, "", true
	case EventChargeRefunded:
		return StatusRefunded, orders.PaymentRefunded, orders.StatusCancelled, true
	}
	return "", "", "", false
}

// apply reconciles one event with the payments table and its order.
func (s *Service) apply(ctx context.Context, eventType, intentID string) error {
	paymentStatus, ps, target, _ := outcome(eventType)
	if intentID == "" {
		return orders.ErrNotFound
	}
	if err := s.Store.SetStatus(ctx, intentID, paymentStatus); err != nil {
		return err
	}
	_, err := s.Orders.ReconcilePayment(ctx, intentID, eventType, ps, target)
	return err
}

// HandleWebhookEvent never fails the caller for reconciliation misses: events
// that cannot be applied now are dead-lettered. The returned error reports
// only a failure to persist that dead letter.
func (s *Service) HandleWebhookEvent(ctx context.Context, ev *WebhookEvent) error {
	log := s.Log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "payment_intent": ev.IntentID})
	if _, _, _, ok := outcome(ev.Type); !ok {
		log.Info("unhandled webhook event type")
		return nil
	}
	err := s.apply(ctx, ev.Type, ev.IntentID)
	if err == nil {
		log.Info("webhook reconciled")
		return nil
	}
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn("no order for payment intent, dead-lettering")
	} else {
		log.WithError(err).Error("webhook reconciliation failed, dead-lettering")
	}
	dl := &DeadLetter{
		EventID:         ev.ID,
		EventType:       ev.Type,
		PaymentIntentID: ev.IntentID,
		Payload:         ev.Raw,
		LastError:       err.Error(),
	}
	if err := s.Store.SaveDeadLetter(ctx, dl); err != nil {
		log.WithError(err).Error("save webhook dead letter")
		return err
	}
	return nil
}
