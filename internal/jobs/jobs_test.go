package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/queue"
)

type recordingAdder struct {
	data []any
	opts []queue.Options
}

func (r *recordingAdder) Add(ctx context.Context, data any, opts queue.Options) (*queue.Job, error) {
	r.data = append(r.data, data)
	r.opts = append(r.opts, opts)
	return &queue.Job{ID: "1"}, nil
}

func TestEnqueuerPassesPriority(t *testing.T) {
	email, push, order := &recordingAdder{}, &recordingAdder{}, &recordingAdder{}
	e := &Enqueuer{Email: email, Notification: push, Order: order}
	ctx := context.Background()

	_, err := e.AddOrderJob(ctx, OrderJob{OrderID: "o1", Type: OrderConfirmation, Priority: PriorityConfirmation})
	require.NoError(t, err)
	_, err = e.AddEmailJob(ctx, EmailJob{To: "a@b.c"})
	require.NoError(t, err)
	_, err = e.AddNotificationJob(ctx, NotificationJob{Token: "tok", Priority: 3})
	require.NoError(t, err)

	assert.Equal(t, PriorityConfirmation, order.opts[0].Priority)
	assert.Equal(t, OrderJob{OrderID: "o1", Type: OrderConfirmation, Priority: PriorityConfirmation}, order.data[0])
	assert.Zero(t, email.opts[0].Priority, "zero falls back to the queue default")
	assert.Equal(t, 3, push.opts[0].Priority)
}
