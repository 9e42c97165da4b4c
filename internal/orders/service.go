package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/postgres"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
)

type JobEnqueuer interface {
	AddOrderJob(ctx context.Context, j jobs.OrderJob) (*queue.Job, error)
}

type Service struct {
	Store    Store
	Jobs     JobEnqueuer
	Events   Publisher
	Cache    redis.Cmdable
	Pricing  Pricing
	Producer string
	Log      *logrus.Entry
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// storeErr maps repository failures onto the service error taxonomy.
func storeErr(err error, msg string) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Order not found")
	case errors.Is(err, ErrInsufficientStock):
		return apperr.Wrap(http.StatusBadRequest, "Insufficient stock", err)
	case postgres.IsUniqueViolation(err, "orders_payment_intent_idx"):
		return apperr.Wrap(http.StatusBadRequest, "Payment intent already belongs to another order", err)
	}
	return apperr.Wrap(http.StatusInternalServerError, msg, err)
}

// mergeItems sums quantities of repeated products, keeping first-seen order.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, apperr.BadRequest("Order must contain at least one item")
	}
	idx := map[uuid.UUID]int{}
	var out []ItemInput
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, apperr.BadRequest("Quantity must be at least 1")
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// claimIdempotency reserves key for this request. It returns the order a
// finished request created with the same key, or a conflict while that
// request is still running.
func (s *Service) claimIdempotency(ctx context.Context, key string) (*Order, error) {
	claimed, err := s.Cache.SetNX(ctx, key, redisx.IdemPending, redisx.TTLIdemClaim).Result()
	if err != nil {
		return nil, apperr.Wrap(http.StatusServiceUnavailable, "Idempotency store unavailable", err)
	}
	if claimed {
		return nil, nil
	}
	v, err := s.Cache.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperr.Wrap(http.StatusServiceUnavailable, "Idempotency store unavailable", err)
	}
	oid, perr := uuid.Parse(v)
	if err != nil || perr != nil {
		return nil, apperr.Conflict("A request with this Idempotency-Key is still in progress")
	}
	return s.GetOrder(ctx, oid)
}

// CreateOrder prices the requested lines against live product rows, stores
// the order and takes the stock in one transaction, then queues the
// confirmation. A non-empty idemKey replays the order first created with it;
// concurrent requests with the same key get a conflict instead of a second order.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, in CreateOrderInput, idemKey string) (o *Order, replayed bool, err error) {
	var idem string
	if idemKey != "" && s.Cache != nil {
		idem = fmt.Sprintf(redisx.KeyIdemOrderCreate, userID, idemKey)
		prev, err := s.claimIdempotency(ctx, idem)
		if err != nil {
			return nil, false, err
		}
		if prev != nil {
			return prev, true, nil
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := s.Cache.Del(context.WithoutCancel(ctx), idem).Err(); derr != nil {
				s.Log.WithError(derr).Warn("release idempotency key")
			}
		}()
	}

	items, err := mergeItems(in.Items)
	if err != nil {
		return nil, false, err
	}
	if in.ShippingCost != nil && in.ShippingCost.IsNegative() {
		return nil, false, apperr.BadRequest("Shipping cost cannot be negative")
	}
	if in.Discount != nil && in.Discount.IsNegative() {
		return nil, false, apperr.BadRequest("Discount cannot be negative")
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	now := s.now()
	build := func(products map[uuid.UUID]ProductSnapshot) (*Order, error) {
		lines := make([]OrderItem, 0, len(items))
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return nil, apperr.NotFound(fmt.Sprintf("Product %s not found", it.ProductID))
			}
			if p.Stock < it.Quantity {
				return nil, apperr.BadRequest("Insufficient stock for " + p.Name)
			}
			lines = append(lines, OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Price:     p.Price,
				Quantity:  it.Quantity,
				Image:     p.Image,
			})
		}
		t := s.Pricing.Compute(lines, in.ShippingCost, in.Discount)
		if t.TotalAmount.LessThan(decimal.Zero) {
			return nil, apperr.BadRequest("Discount exceeds order total")
		}
		return &Order{
			ID:              uuid.New(),
			OrderNumber:     fmt.Sprintf("ORD-%d", now.UnixNano()),
			UserID:          userID,
			Items:           lines,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			Subtotal:        t.Subtotal,
			Tax:             t.Tax,
			ShippingCost:    t.ShippingCost,
			Discount:        t.Discount,
			TotalAmount:     t.TotalAmount,
			Status:          StatusPending,
			PaymentStatus:   PaymentPending,
			PaymentIntentID: in.PaymentIntentID,
			Notes:           in.Notes,
		}, nil
	}

	o, err = s.Store.CreateOrder(ctx, ids, build)
	if err != nil {
		return nil, false, storeErr(err, "Failed to create order")
	}

	s.enqueue(ctx, o.ID, jobs.OrderConfirmation, jobs.PriorityConfirmation)

	qty := make([]ItemQty, len(o.Items))
	for i, it := range o.Items {
		qty[i] = ItemQty{ProductID: it.ProductID.String(), Qty: it.Quantity}
	}
	s.publish(EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID.String(),
		Items:       qty,
		TotalAmount: o.TotalAmount.StringFixed(2),
	})

	if idem != "" {
		if err := s.Cache.Set(ctx, idem, o.ID.String(), redisx.TTLIdempotency).Err(); err != nil {
			s.Log.WithError(err).Warn("store idempotency key")
		}
	}
	s.cache(ctx, o)

	s.Log.WithFields(logrus.Fields{"order_id": o.ID, "order_number": o.OrderNumber}).Info("order created")
	return o, false, nil
}

// enqueue submits an order job. The order is already committed, so a broker
// failure is logged rather than returned.
func (s *Service) enqueue(ctx context.Context, id uuid.UUID, typ string, prio int) {
	if s.Jobs == nil {
		return
	}
	if _, err := s.Jobs.AddOrderJob(ctx, jobs.OrderJob{OrderID: id.String(), Type: typ, Priority: prio}); err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"order_id": id, "type": typ}).Error("enqueue order job")
	}
}

func (s *Service) cacheKey(id uuid.UUID) string { return fmt.Sprintf(redisx.KeyOrder, id) }

func (s *Service) cache(ctx context.Context, o *Order) {
	if s.Cache == nil {
		return
	}
	if err := redisx.SetJSON(ctx, s.Cache, s.cacheKey(o.ID), o, redisx.TTLOrderCache); err != nil {
		s.Log.WithError(err).Debug("cache order")
	}
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		s.Log.WithError(err).Warn("invalidate order cache")
	}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	if s.Cache != nil {
		var cached Order
		if found, err := redisx.GetJSON(ctx, s.Cache, s.cacheKey(id), &cached); err == nil && found {
			return &cached, nil
		}
	}
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Failed to load order")
	}
	s.cache(ctx, o)
	return o, nil
}

func (s *Service) QueryOrders(ctx context.Context, f Filter, p page.Params) (page.Result[Order], error) {
	p = p.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return page.Result[Order]{}, apperr.BadRequest("Invalid order status")
	}
	items, total, err := s.Store.ListOrders(ctx, f, p)
	if err != nil {
		return page.Result[Order]{}, storeErr(err, "Failed to query orders")
	}
	return page.NewResult(items, p, total), nil
}

func (s *Service) GetUserOrders(ctx context.Context, userID uuid.UUID, p page.Params) (page.Result[Order], error) {
	return s.QueryOrders(ctx, Filter{UserID: &userID}, p)
}

func (s *Service) GetOrdersByStatus(ctx context.Context, status Status, p page.Params) (page.Result[Order], error) {
	if !status.Valid() {
		return page.Result[Order]{}, apperr.BadRequest("Invalid order status")
	}
	return s.QueryOrders(ctx, Filter{Status: status}, p)
}

// UpdateOrderStatus moves the order along the transition table. Cancelling
// restores stock in the same transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, apperr.BadRequest("Invalid order status")
	}
	var from Status
	o, err := s.Store.UpdateOrder(ctx, id, func(o *Order) (bool, error) {
		if !CanTransition(o.Status, status) {
			return false, apperr.BadRequest(fmt.Sprintf("Cannot change order status from %s to %s", o.Status, status))
		}
		from = o.Status
		return s.applyStatus(o, status), nil
	})
	if err != nil {
		return nil, storeErr(err, "Failed to update order status")
	}
	s.invalidate(ctx, id)
	s.enqueue(ctx, id, jobs.OrderStatusUpdate, jobs.PriorityStatusUpdate)
	s.publishStatus(o, from, "")
	return o, nil
}

// CancelOrder cancels any order that is not already delivered or cancelled.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	var from Status
	o, err := s.Store.UpdateOrder(ctx, id, func(o *Order) (bool, error) {
		if o.Status.Terminal() {
			return false, apperr.BadRequest("Cannot cancel this order")
		}
		from = o.Status
		o.CancelReason = reason
		return s.applyStatus(o, StatusCancelled), nil
	})
	if err != nil {
		return nil, storeErr(err, "Failed to cancel order")
	}
	s.invalidate(ctx, id)
	s.publishStatus(o, from, reason)
	return o, nil
}

// applyStatus sets status and its timestamp and reports whether stock must be restored.
func (s *Service) applyStatus(o *Order, status Status) (restock bool) {
	now := s.now()
	o.Status = status
	switch status {
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
		return true
	}
	return false
}

// publish emits a lifecycle event. The order is already committed, so a
// failure is logged and not returned.
func (s *Service) publish(eventType string, id uuid.UUID, payload any) {
	if err := PublishEvent(s.Events, s.Producer, eventType, id.String(), "", payload); err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{"order_id": id, "event_type": eventType}).Error("publish event")
	}
}

func (s *Service) publishStatus(o *Order, from Status, reason string) {
	s.publish(EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID:       o.ID.String(),
		From:          from,
		To:            o.Status,
		PaymentStatus: string(o.PaymentStatus),
		Reason:        reason,
	})
}

var errStalePayment = errors.New("stale payment outcome")

// ReconcilePayment applies a payment outcome to the order holding intentID.
// Outcomes the payment table rejects (redeliveries, late events) leave the
// order untouched and publish nothing. target is applied only when the order
// transition table allows it. ErrNotFound is returned untranslated so callers
// can dead-letter the event.
func (s *Service) ReconcilePayment(ctx context.Context, intentID, webhookEvent string, ps PaymentStatus, target Status) (*Order, error) {
	found, err := s.Store.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	var current *Order
	o, err := s.Store.UpdateOrder(ctx, found.ID, func(o *Order) (bool, error) {
		if !CanTransitionPayment(o.PaymentStatus, ps) {
			current = o
			return false, errStalePayment
		}
		o.PaymentStatus = ps
		if target != "" && CanTransition(o.Status, target) {
			return s.applyStatus(o, target), nil
		}
		return false, nil
	})
	if errors.Is(err, errStalePayment) {
		s.Log.WithFields(logrus.Fields{
			"order_id":       current.ID,
			"webhook_event":  webhookEvent,
			"payment_status": current.PaymentStatus,
		}).Info("stale payment event skipped")
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, o.ID)
	s.publish(EventPaymentReconciled, o.ID, PaymentReconciledPayload{
		OrderID:         o.ID.String(),
		PaymentIntentID: intentID,
		WebhookEvent:    webhookEvent,
		PaymentStatus:   string(o.PaymentStatus),
		Status:          o.Status,
	})
	s.Log.WithFields(logrus.Fields{
		"order_id":       o.ID,
		"payment_status": o.PaymentStatus,
		"status":         o.Status,
	}).Info("payment reconciled")
	return o, nil
}

func (s *Service) AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	if err := s.Store.SetPaymentIntent(ctx, id, intentID); err != nil {
		return storeErr(err, "Failed to attach payment intent")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) MarkConfirmationSent(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.MarkConfirmationSent(ctx, id, s.now()); err != nil {
		return storeErr(err, "Failed to mark confirmation")
	}
	s.invalidate(ctx, id)
	return nil
}
