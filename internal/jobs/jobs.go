// Package jobs defines the payloads carried on the email, notification and
// order queues and the Enqueuer producers use to submit them.
package jobs

import (
	"context"

	"github.com/ariefcatur/go-commerce-backend/internal/queue"
)

const (
	QueueEmail        = "email"
	QueueNotification = "notification"
	QueueOrder        = "order"
)

const (
	OrderConfirmation = "confirmation"
	OrderStatusUpdate = "status_update"
)

const (
	PriorityConfirmation = 10
	PriorityStatusUpdate = 8
)

type EmailJob struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Priority int    `json:"priority,omitempty"`
}

type NotificationJob struct {
	Token    string            `json:"token"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority int               `json:"priority,omitempty"`
}

type OrderJob struct {
	OrderID  string `json:"orderId"`
	Type     string `json:"type"`
	Priority int    `json:"priority,omitempty"`
}

// Adder is the producer side of a queue.
type Adder interface {
	Add(ctx context.Context, data any, opts queue.Options) (*queue.Job, error)
}

// Enqueuer submits typed jobs. Each job's Priority field becomes the queue priority.
type Enqueuer struct {
	Email        Adder
	Notification Adder
	Order        Adder
}

func (e *Enqueuer) AddEmailJob(ctx context.Context, j EmailJob) (*queue.Job, error) {
	return e.Email.Add(ctx, j, queue.Options{Priority: j.Priority})
}

func (e *Enqueuer) AddNotificationJob(ctx context.Context, j NotificationJob) (*queue.Job, error) {
	return e.Notification.Add(ctx, j, queue.Options{Priority: j.Priority})
}

func (e *Enqueuer) AddOrderJob(ctx context.Context, j OrderJob) (*queue.Job, error) {
	return e.Order.Add(ctx, j, queue.Options{Priority: j.Priority})
}
