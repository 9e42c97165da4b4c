// Package inventory watches the order event stream and alerts admins when a
// purchase leaves a product running low.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	kafkax "github.com/ariefcatur/go-commerce-backend/internal/kafka"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/products"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

const DefaultLowStockThreshold = 5

type ProductReader interface {
	Get(ctx context.Context, id uuid.UUID) (*products.Product, error)
}

type AdminLister interface {
	Admins(ctx context.Context) ([]users.User, error)
}

type InboxWriter interface {
	Create(ctx context.Context, n *inbox.Notification) error
}

type Service struct {
	Products  ProductReader
	Admins    AdminLister
	Inbox     InboxWriter
	Redis     redis.Cmdable
	Threshold int
	Log       *logrus.Entry
}

// HandleOrderCreated is installed as the consumer handler for the order
// events topic. Other event types are acknowledged untouched.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && t != orders.EventOrderCreated {
		return nil
	}
	env, err := kafkax.Decode[orders.Envelope](m.Value)
	if err != nil {
		s.Log.WithError(err).WithField("offset", m.Offset).Warn("undecodable event skipped")
		return nil
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "inventory", env.EventID)
	seen, err := redisx.Exists(ctx, s.Redis, dkey)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.Decode[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		s.Log.WithError(err).WithField("event_id", env.EventID).Warn("bad OrderCreated payload")
		return nil
	}

	if low := s.lowStock(ctx, p.Items); len(low) > 0 {
		if err := s.alert(ctx, p.OrderID, low); err != nil {
			return err
		}
	}
	_, err = redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	return err
}

func (s *Service) threshold() int {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return DefaultLowStockThreshold
}

func (s *Service) lowStock(ctx context.Context, items []orders.ItemQty) []*products.Product {
	var low []*products.Product
	for _, it := range items {
		id, err := uuid.Parse(it.ProductID)
		if err != nil {
			continue
		}
		p, err := s.Products.Get(ctx, id)
		if err != nil {
			s.Log.WithError(err).WithField("product_id", id).Warn("stock lookup failed")
			continue
		}
		if p.Stock <= s.threshold() {
			low = append(low, p)
		}
	}
	return low
}

func (s *Service) alert(ctx context.Context, orderID string, low []*products.Product) error {
	admins, err := s.Admins.Admins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	for _, p := range low {
		msg := fmt.Sprintf("Low stock: %s has %d left", p.Name, p.Stock)
		if p.Stock == 0 {
			msg = fmt.Sprintf("Out of stock: %s", p.Name)
		}
		for _, a := range admins {
			if err := s.Inbox.Create(ctx, &inbox.Notification{
				ReceiverID: a.ID,
				Message:    msg,
				Type:       inbox.TypeSystem,
				LinkID:     p.ID.String(),
			}); err != nil {
				return fmt.Errorf("store alert: %w", err)
			}
		}
		s.Log.WithFields(logrus.Fields{"product_id": p.ID, "stock": p.Stock, "order_id": orderID}).Warn("low stock")
	}
	return nil
}
