package inventory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/products"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

type fakeProducts map[uuid.UUID]*products.Product

func (f fakeProducts) Get(_ context.Context, id uuid.UUID) (*products.Product, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, products.ErrNotFound
}

type fakeAdmins []users.User

func (f fakeAdmins) Admins(context.Context) ([]users.User, error) { return f, nil }

type fakeInbox struct{ created []inbox.Notification }

func (f *fakeInbox) Create(_ context.Context, n *inbox.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

type capture struct{ msg kafkago.Message }

func (c *capture) Publish(key, value []byte, headers ...kafkago.Header) {
	c.msg = kafkago.Message{Key: key, Value: value, Headers: headers}
}

func message(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	var c capture
	require.NoError(t, orders.PublishEvent(&c, "test", eventType, uuid.NewString(), "", payload))
	return c.msg
}

func TestLowStockAlertsAdminsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	scarce := &products.Product{ID: uuid.New(), Name: "Lamp", Stock: 2}
	plenty := &products.Product{ID: uuid.New(), Name: "Mug", Stock: 50}
	gone := &products.Product{ID: uuid.New(), Name: "Vase", Stock: 0}
	box := &fakeInbox{}
	admins := fakeAdmins{{ID: uuid.New()}, {ID: uuid.New()}}
	svc := &Service{
		Products: fakeProducts{scarce.ID: scarce, plenty.ID: plenty, gone.ID: gone},
		Admins:   admins,
		Inbox:    box,
		Redis:    rdb,
		Log:      logrus.NewEntry(log),
	}
	ctx := context.Background()

	m := message(t, orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: uuid.NewString(),
		Items: []orders.ItemQty{
			{ProductID: scarce.ID.String(), Qty: 1},
			{ProductID: plenty.ID.String(), Qty: 1},
			{ProductID: gone.ID.String(), Qty: 1},
			{ProductID: uuid.NewString(), Qty: 1},
		},
	})
	require.NoError(t, svc.HandleOrderCreated(ctx, m))
	require.Len(t, box.created, 4)
	assert.Equal(t, "Low stock: Lamp has 2 left", box.created[0].Message)
	assert.Equal(t, admins[1].ID, box.created[1].ReceiverID)
	assert.Equal(t, "Out of stock: Vase", box.created[2].Message)
	assert.Equal(t, inbox.TypeSystem, box.created[0].Type)

	require.NoError(t, svc.HandleOrderCreated(ctx, m))
	assert.Len(t, box.created, 4, "redelivered event is deduplicated")

	other := message(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{})
	require.NoError(t, svc.HandleOrderCreated(ctx, other))
	require.NoError(t, svc.HandleOrderCreated(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.Len(t, box.created, 4)
}
