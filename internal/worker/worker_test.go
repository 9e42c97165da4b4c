package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

type fakeMailer struct {
	sent []notify.Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e notify.Email) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, e)
	return "msg-id", nil
}

type fakePush struct{ tokens []string }

func (p *fakePush) Send(_ context.Context, token string, _ notify.PushMessage) (string, error) {
	p.tokens = append(p.tokens, token)
	return "push-id", nil
}

type fakeOrders struct {
	orders map[uuid.UUID]*orders.Order
}

func (f *fakeOrders) GetOrder(_ context.Context, id uuid.UUID) (*orders.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) MarkConfirmationSent(_ context.Context, id uuid.UUID) error {
	now := time.Now()
	f.orders[id].ConfirmationSentAt = &now
	return nil
}

type fakeUsers map[uuid.UUID]*users.User

func (f fakeUsers) Get(_ context.Context, id uuid.UUID) (*users.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

type fakeInbox struct{ created []inbox.Notification }

func (f *fakeInbox) Create(_ context.Context, n *inbox.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

type fakeEnqueuer struct{ jobs []jobs.NotificationJob }

func (f *fakeEnqueuer) AddNotificationJob(_ context.Context, j jobs.NotificationJob) (*queue.Job, error) {
	f.jobs = append(f.jobs, j)
	return &queue.Job{ID: "1"}, nil
}

type fixture struct {
	p      *Processors
	mailer *fakeMailer
	push   *fakePush
	orders *fakeOrders
	inbox  *fakeInbox
	jobs   *fakeEnqueuer
	user   *users.User
	order  *orders.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	u := &users.User{ID: uuid.New(), FullName: "Ada", Email: "ada@example.com", FCMToken: "device-1"}
	o := &orders.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-42",
		UserID:      u.ID,
		Status:      orders.StatusShipped,
		TotalAmount: decimal.RequireFromString("22"),
	}
	f := &fixture{
		mailer: &fakeMailer{},
		push:   &fakePush{},
		orders: &fakeOrders{orders: map[uuid.UUID]*orders.Order{o.ID: o}},
		inbox:  &fakeInbox{},
		jobs:   &fakeEnqueuer{},
		user:   u,
		order:  o,
	}
	f.p = &Processors{
		Mailer: f.mailer,
		Push:   f.push,
		Orders: f.orders,
		Users:  fakeUsers{u.ID: u},
		Inbox:  f.inbox,
		Jobs:   f.jobs,
		Redis:  rdb,
		Log:    logrus.NewEntry(log),
	}
	return f
}

func job(t *testing.T, q, id string, payload any) *queue.Job {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: id, Queue: q, Data: b}
}

func TestEmailRedeliveryIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := job(t, jobs.QueueEmail, "7", jobs.EmailJob{To: "ada@example.com", Subject: "Hi", Text: "x"})

	f.mailer.err = errors.New("smtp down")
	assert.Error(t, f.p.Email(ctx, j))
	f.mailer.err = nil

	require.NoError(t, f.p.Email(ctx, j))
	require.NoError(t, f.p.Email(ctx, j))
	assert.Len(t, f.mailer.sent, 1)

	require.NoError(t, f.p.Email(ctx, job(t, jobs.QueueEmail, "8", jobs.EmailJob{To: "bob@example.com"})))
	assert.Len(t, f.mailer.sent, 2)
}

func TestNotificationJob(t *testing.T) {
	f := newFixture(t)
	j := job(t, jobs.QueueNotification, "1", jobs.NotificationJob{Token: "tok", Title: "t", Body: "b"})
	require.NoError(t, f.p.Notification(context.Background(), j))
	require.NoError(t, f.p.Notification(context.Background(), j))
	assert.Equal(t, []string{"tok"}, f.push.tokens)
}

func TestOrderConfirmationUsesDurableMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := jobs.OrderJob{OrderID: f.order.ID.String(), Type: jobs.OrderConfirmation}

	require.NoError(t, f.p.Order(ctx, job(t, jobs.QueueOrder, "1", payload)))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Order Confirmation - ORD-42", f.mailer.sent[0].Subject)
	assert.Equal(t, "ada@example.com", f.mailer.sent[0].To)

	// A second job for the same order, not just a redelivery, must not resend.
	require.NoError(t, f.p.Order(ctx, job(t, jobs.QueueOrder, "2", payload)))
	assert.Len(t, f.mailer.sent, 1)
}

func TestOrderStatusUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := job(t, jobs.QueueOrder, "3", jobs.OrderJob{OrderID: f.order.ID.String(), Type: jobs.OrderStatusUpdate})

	require.NoError(t, f.p.Order(ctx, j))
	require.NoError(t, f.p.Order(ctx, j))

	require.Len(t, f.inbox.created, 1)
	n := f.inbox.created[0]
	assert.Equal(t, f.user.ID, n.ReceiverID)
	assert.Equal(t, inbox.TypeOrder, n.Type)
	assert.Equal(t, "Your order ORD-42 is now shipped", n.Message)

	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, "device-1", f.jobs.jobs[0].Token)
	assert.Equal(t, jobs.PriorityStatusUpdate, f.jobs.jobs[0].Priority)

	f.user.FCMToken = ""
	require.NoError(t, f.p.Order(ctx, job(t, jobs.QueueOrder, "4", jobs.OrderJob{OrderID: f.order.ID.String(), Type: jobs.OrderStatusUpdate})))
	assert.Len(t, f.inbox.created, 2)
	assert.Len(t, f.jobs.jobs, 1)
}

func TestOrderJobErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.p.Order(ctx, job(t, jobs.QueueOrder, "5", jobs.OrderJob{OrderID: uuid.NewString(), Type: jobs.OrderConfirmation}))
	assert.ErrorIs(t, err, orders.ErrNotFound)

	assert.Error(t, f.p.Order(ctx, job(t, jobs.QueueOrder, "6", jobs.OrderJob{OrderID: "nope"})))

	require.NoError(t, f.p.Order(ctx, job(t, jobs.QueueOrder, "7", jobs.OrderJob{OrderID: f.order.ID.String(), Type: "refund"})))
	assert.Empty(t, f.mailer.sent)
}
