package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/page"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
)

// memStore applies the same all-or-nothing rules as Repo, in memory.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]ProductSnapshot
	orders   map[uuid.UUID]Order
	gets     int
}

func newMemStore(products ...ProductSnapshot) *memStore {
	s := &memStore{products: map[uuid.UUID]ProductSnapshot{}, orders: map[uuid.UUID]Order{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func (s *memStore) CreateOrder(ctx context.Context, ids []uuid.UUID, build BuildFunc) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := map[uuid.UUID]ProductSnapshot{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			locked[id] = p
		}
	}
	o, err := build(locked)
	if err != nil {
		return nil, err
	}
	for _, it := range o.Items {
		if s.products[it.ProductID].Stock < it.Quantity {
			return nil, ErrInsufficientStock
		}
	}
	for _, it := range o.Items {
		p := s.products[it.ProductID]
		p.Stock -= it.Quantity
		s.products[it.ProductID] = p
	}
	o.CreatedAt = time.Now()
	s.orders[o.ID] = cloneOrder(*o)
	return o, nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (s *memStore) FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentIntentID == intentID {
			c := cloneOrder(o)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) ListOrders(ctx context.Context, f Filter, p page.Params) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, len(out), nil
}

func (s *memStore) UpdateOrder(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	restock, err := mutate(&c)
	if err != nil {
		return nil, err
	}
	if restock {
		for _, it := range c.Items {
			p := s.products[it.ProductID]
			p.Stock += it.Quantity
			s.products[it.ProductID] = p
		}
	}
	s.orders[id] = cloneOrder(c)
	return &c, nil
}

func (s *memStore) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	_, err := s.UpdateOrder(ctx, id, func(o *Order) (bool, error) {
		o.PaymentIntentID = intentID
		return false, nil
	})
	return err
}

func (s *memStore) MarkConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.UpdateOrder(ctx, id, func(o *Order) (bool, error) {
		if o.ConfirmationSentAt == nil {
			o.ConfirmationSentAt = &at
		}
		return false, nil
	})
	return err
}

type fakeJobs struct {
	jobs []jobs.OrderJob
	err  error
}

func (f *fakeJobs) AddOrderJob(ctx context.Context, j jobs.OrderJob) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, j)
	return &queue.Job{ID: "1"}, nil
}

type fakePublisher struct{ events []Envelope }

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var e Envelope
	_ = json.Unmarshal(value, &e)
	f.events = append(f.events, e)
}

func (f *fakePublisher) types() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *memStore
	jobs   *fakeJobs
	events *fakePublisher
}

func newFixture(t *testing.T, products ...ProductSnapshot) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	f := &fixture{store: newMemStore(products...), jobs: &fakeJobs{}, events: &fakePublisher{}}
	f.svc = &Service{
		Store:    f.store,
		Jobs:     f.jobs,
		Events:   f.events,
		Pricing:  NewPricing(0.10, 10),
		Producer: "test",
		Log:      logrus.NewEntry(log),
	}
	return f
}

func product(name, price string, stock int) ProductSnapshot {
	return ProductSnapshot{ID: uuid.New(), Name: name, Price: dec(price), Stock: stock}
}

func orderInput(items ...ItemInput) CreateOrderInput {
	return CreateOrderInput{
		Items:         items,
		PaymentMethod: "stripe",
		ShippingAddress: Address{
			FullName: "Ada", Street: "1 Main", City: "X", State: "Y",
			ZipCode: "1", Country: "Z", PhoneNumber: "1",
		},
	}
}

func TestCreateOrderPricesFromLiveProducts(t *testing.T) {
	p := product("Mug", "10.00", 5)
	f := newFixture(t, p)
	user := uuid.New()

	o, replayed, err := f.svc.CreateOrder(context.Background(), user, orderInput(ItemInput{ProductID: p.ID, Quantity: 2}), "")
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.True(t, dec("20").Equal(o.Subtotal))
	assert.True(t, dec("2").Equal(o.Tax))
	assert.True(t, dec("10").Equal(o.ShippingCost))
	assert.True(t, dec("32").Equal(o.TotalAmount))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "Mug", o.Items[0].Name)
	assert.Equal(t, user, o.UserID)
	assert.Regexp(t, `^ORD-\d+$`, o.OrderNumber)

	assert.Equal(t, 3, f.store.stock(p.ID))
	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, jobs.OrderJob{OrderID: o.ID.String(), Type: jobs.OrderConfirmation, Priority: 10}, f.jobs.jobs[0])
	assert.Equal(t, []string{EventOrderCreated}, f.events.types())
}

func TestCreateOrderInsufficientStockLeavesEveryProductUntouched(t *testing.T) {
	a := product("A", "5", 5)
	b := product("B", "5", 1)
	f := newFixture(t, a, b)

	_, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(
		ItemInput{ProductID: a.ID, Quantity: 2},
		ItemInput{ProductID: b.ID, Quantity: 2},
	), "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	assert.Equal(t, "Insufficient stock for B", apperr.MessageOf(err))

	assert.Equal(t, 5, f.store.stock(a.ID))
	assert.Equal(t, 1, f.store.stock(b.ID))
	assert.Empty(t, f.jobs.jobs)
	assert.Empty(t, f.events.events)
}

func TestCreateOrderMissingProduct(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()

	_, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(ItemInput{ProductID: missing, Quantity: 1}), "")
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
	assert.Equal(t, "Product "+missing.String()+" not found", apperr.MessageOf(err))
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	p := product("A", "5", 5)
	f := newFixture(t, p)
	ctx := context.Background()

	_, _, err := f.svc.CreateOrder(ctx, uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: 0}), "")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, _, err = f.svc.CreateOrder(ctx, uuid.New(), orderInput(), "")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	in := orderInput(ItemInput{ProductID: p.ID, Quantity: 1})
	big := dec("100")
	in.Discount = &big
	_, _, err = f.svc.CreateOrder(ctx, uuid.New(), in, "")
	assert.Equal(t, "Discount exceeds order total", apperr.MessageOf(err))
	assert.Equal(t, 5, f.store.stock(p.ID))
}

func TestCreateOrderMergesRepeatedProducts(t *testing.T) {
	p := product("A", "1.25", 10)
	f := newFixture(t, p)

	o, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(
		ItemInput{ProductID: p.ID, Quantity: 2},
		ItemInput{ProductID: p.ID, Quantity: 3},
	), "")
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.Equal(t, 5, f.store.stock(p.ID))
}

func TestStockRunsOutAfterExactOrder(t *testing.T) {
	p := product("A", "1", 5)
	f := newFixture(t, p)
	ctx := context.Background()

	_, _, err := f.svc.CreateOrder(ctx, uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: 5}), "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.stock(p.ID))

	_, _, err = f.svc.CreateOrder(ctx, uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: 1}), "")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	assert.Equal(t, 0, f.store.stock(p.ID))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	p := product("A", "1", 5)
	f := newFixture(t, p)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: 1}), ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, ok)
	assert.Equal(t, 0, f.store.stock(p.ID))
}

func TestCreateOrderSurvivesEnqueueFailure(t *testing.T) {
	p := product("A", "1", 5)
	f := newFixture(t, p)
	f.jobs.err = errors.New("redis down")

	o, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: 1}), "")
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, 4, f.store.stock(p.ID))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	p := product("A", "1", 5)
	f := newFixture(t, p)
	mr := miniredis.RunT(t)
	f.svc.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	user := uuid.New()
	ctx := context.Background()

	first, replayed, err := f.svc.CreateOrder(ctx, user, orderInput(ItemInput{ProductID: p.ID, Quantity: 2}), "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := f.svc.CreateOrder(ctx, user, orderInput(ItemInput{ProductID: p.ID, Quantity: 2}), "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, f.store.stock(p.ID))
	assert.Len(t, f.jobs.jobs, 1)
}

func TestCreateOrderConcurrentSameKeyCreatesOnce(t *testing.T) {
	p := product("A", "1", 50)
	f := newFixture(t, p)
	mr := miniredis.RunT(t)
	f.svc.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	user := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, replays, conflicts := 0, 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, replayed, err := f.svc.CreateOrder(context.Background(), user, orderInput(ItemInput{ProductID: p.ID, Quantity: 2}), "retry-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))
				conflicts++
			case replayed:
				replays++
			default:
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, replays+conflicts)
	assert.Len(t, f.store.orders, 1)
	assert.Equal(t, 48, f.store.stock(p.ID))
}

func TestCreateOrderReleasesKeyOnFailure(t *testing.T) {
	p := product("A", "1", 1)
	f := newFixture(t, p)
	mr := miniredis.RunT(t)
	f.svc.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	user := uuid.New()
	ctx := context.Background()

	_, _, err := f.svc.CreateOrder(ctx, user, orderInput(ItemInput{ProductID: p.ID, Quantity: 2}), "key-2")
	require.Error(t, err)
	assert.False(t, mr.Exists("idem:order:create:"+user.String()+":key-2"))

	o, replayed, err := f.svc.CreateOrder(ctx, user, orderInput(ItemInput{ProductID: p.ID, Quantity: 1}), "key-2")
	require.NoError(t, err)
	assert.False(t, replayed)
	got, err := mr.Get("idem:order:create:" + user.String() + ":key-2")
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), got)
}

func TestCreateOrderKeyInFlightConflicts(t *testing.T) {
	p := product("A", "1", 5)
	f := newFixture(t, p)
	mr := miniredis.RunT(t)
	f.svc.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	user := uuid.New()
	require.NoError(t, mr.Set("idem:order:create:"+user.String()+":key-3", "pending"))

	_, _, err := f.svc.CreateOrder(context.Background(), user, orderInput(ItemInput{ProductID: p.ID, Quantity: 1}), "key-3")
	assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))
	assert.Equal(t, 5, f.store.stock(p.ID))
	assert.True(t, mr.Exists("idem:order:create:"+user.String()+":key-3"), "in-flight claim is not released by the loser")
}

func TestStoreErrDuplicatePaymentIntent(t *testing.T) {
	dup := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_intent_idx"})
	err := storeErr(dup, "Failed to create order")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	other := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"})
	assert.Equal(t, http.StatusInternalServerError, apperr.StatusOf(storeErr(other, "Failed to create order")))
}

func createPending(t *testing.T, f *fixture, p ProductSnapshot, qty int) *Order {
	t.Helper()
	o, _, err := f.svc.CreateOrder(context.Background(), uuid.New(), orderInput(ItemInput{ProductID: p.ID, Quantity: qty}), "")
	require.NoError(t, err)
	f.jobs.jobs = nil
	f.events.events = nil
	return o
}

func TestUpdateOrderStatusFollowsTransitionTable(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()
	o := createPending(t, f, p, 2)

	got, err := f.svc.UpdateOrderStatus(ctx, o.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, jobs.OrderJob{OrderID: o.ID.String(), Type: jobs.OrderStatusUpdate, Priority: 8}, f.jobs.jobs[0])
	assert.Equal(t, []string{EventOrderStatusChanged}, f.events.types())

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, StatusPending)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, StatusConfirmed)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err), "same status is not a transition")

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, "lost")
	assert.Equal(t, "Invalid order status", apperr.MessageOf(err))

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, StatusShipped)
	require.NoError(t, err)
	got, err = f.svc.UpdateOrderStatus(ctx, o.ID, StatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, got.DeliveredAt)
	assert.Equal(t, 8, f.store.stock(p.ID))

	_, err = f.svc.UpdateOrderStatus(ctx, uuid.New(), StatusConfirmed)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

func TestUpdateOrderStatusCancelRestoresStock(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	o := createPending(t, f, p, 4)
	require.Equal(t, 6, f.store.stock(p.ID))

	got, err := f.svc.UpdateOrderStatus(context.Background(), o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, 10, f.store.stock(p.ID))
}

func TestCancelOrder(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 3)
	got, err := f.svc.CancelOrder(ctx, o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, 10, f.store.stock(p.ID))
	assert.Empty(t, f.jobs.jobs)

	_, err = f.svc.CancelOrder(ctx, o.ID, "again")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	assert.Equal(t, "Cannot cancel this order", apperr.MessageOf(err))
	assert.Equal(t, 10, f.store.stock(p.ID), "stock restored only once")

	delivered := createPending(t, f, p, 1)
	for _, s := range []Status{StatusConfirmed, StatusShipped, StatusDelivered} {
		_, err := f.svc.UpdateOrderStatus(ctx, delivered.ID, s)
		require.NoError(t, err)
	}
	_, err = f.svc.CancelOrder(ctx, delivered.ID, "")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = f.svc.CancelOrder(ctx, uuid.New(), "")
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

func TestReconcilePayment(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 2)
	require.NoError(t, f.svc.AttachPaymentIntent(ctx, o.ID, "pi_1"))

	got, err := f.svc.ReconcilePayment(ctx, "pi_1", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, []string{EventPaymentReconciled}, f.events.types())

	got, err = f.svc.ReconcilePayment(ctx, "pi_1", "charge.refunded", PaymentRefunded, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 10, f.store.stock(p.ID))

	got, err = f.svc.ReconcilePayment(ctx, "pi_1", "charge.refunded", PaymentRefunded, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 10, f.store.stock(p.ID), "replayed refund does not restock twice")

	_, err = f.svc.ReconcilePayment(ctx, "pi_missing", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcilePaymentNeverMovesPaymentBackwards(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 2)
	require.NoError(t, f.svc.AttachPaymentIntent(ctx, o.ID, "pi_3"))

	_, err := f.svc.ReconcilePayment(ctx, "pi_3", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	require.NoError(t, err)
	_, err = f.svc.ReconcilePayment(ctx, "pi_3", "charge.refunded", PaymentRefunded, StatusCancelled)
	require.NoError(t, err)
	require.Len(t, f.events.events, 2)

	got, err := f.svc.ReconcilePayment(ctx, "pi_3", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, StatusCancelled, got.Status)

	got, err = f.svc.ReconcilePayment(ctx, "pi_3", "payment_intent.payment_failed", PaymentFailed, "")
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, got.PaymentStatus)

	stored, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, stored.PaymentStatus)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Len(t, f.events.events, 2, "skipped outcomes publish nothing")
	assert.Equal(t, 10, f.store.stock(p.ID))
}

func TestReconcilePaymentRetriesAfterFailure(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 1)
	require.NoError(t, f.svc.AttachPaymentIntent(ctx, o.ID, "pi_4"))

	got, err := f.svc.ReconcilePayment(ctx, "pi_4", "payment_intent.payment_failed", PaymentFailed, "")
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, got.PaymentStatus)

	got, err = f.svc.ReconcilePayment(ctx, "pi_4", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestReconcilePaymentSkipsDisallowedTransition(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 1)
	require.NoError(t, f.svc.AttachPaymentIntent(ctx, o.ID, "pi_2"))
	for _, s := range []Status{StatusConfirmed, StatusShipped} {
		_, err := f.svc.UpdateOrderStatus(ctx, o.ID, s)
		require.NoError(t, err)
	}

	got, err := f.svc.ReconcilePayment(ctx, "pi_2", "payment_intent.succeeded", PaymentPaid, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, StatusShipped, got.Status)
}

func TestGetOrderIsCachedAndInvalidated(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	mr := miniredis.RunT(t)
	f.svc.Cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	o := createPending(t, f, p, 1)
	f.store.gets = 0

	_, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.gets, "served from the cache written at creation")

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, StatusConfirmed)
	require.NoError(t, err)
	got, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 1, f.store.gets)

	_, err = f.svc.GetOrder(ctx, uuid.New())
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

func TestQueryOrders(t *testing.T) {
	p := product("A", "1", 10)
	f := newFixture(t, p)
	ctx := context.Background()

	o := createPending(t, f, p, 1)
	createPending(t, f, p, 1)

	res, err := f.svc.GetUserOrders(ctx, o.UserID, page.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalResults)
	assert.Equal(t, 10, res.Limit)

	res, err = f.svc.GetOrdersByStatus(ctx, StatusPending, page.Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalResults)

	_, err = f.svc.GetOrdersByStatus(ctx, "lost", page.Params{})
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}
