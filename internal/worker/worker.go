// Package worker holds the queue handlers run by cmd/worker. Every handler
// tolerates redelivery: side effects are keyed on a durable marker.
package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/inbox"
	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/orders"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
	"github.com/ariefcatur/go-commerce-backend/internal/users"
)

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (string, error)
}

type Pusher interface {
	Send(ctx context.Context, token string, m notify.PushMessage) (string, error)
}

type OrderSource interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	MarkConfirmationSent(ctx context.Context, id uuid.UUID) error
}

type UserSource interface {
	Get(ctx context.Context, id uuid.UUID) (*users.User, error)
}

type InboxWriter interface {
	Create(ctx context.Context, n *inbox.Notification) error
}

type NotificationEnqueuer interface {
	AddNotificationJob(ctx context.Context, j jobs.NotificationJob) (*queue.Job, error)
}

type Processors struct {
	Mailer Mailer
	Push   Pusher
	Orders OrderSource
	Users  UserSource
	Inbox  InboxWriter
	Jobs   NotificationEnqueuer
	Redis  redis.Cmdable
	Log    *logrus.Entry
}

func (p *Processors) dedupKey(scope string, job *queue.Job) string {
	return fmt.Sprintf(redisx.KeyDedup, scope, job.Queue+":"+job.ID)
}

// once runs fn unless the marker for (scope, job) is already set, then sets it.
// A crash between fn and the marker write can still repeat fn once.
func (p *Processors) once(ctx context.Context, scope string, job *queue.Job, fn func() error) error {
	key := p.dedupKey(scope, job)
	done, err := redisx.Exists(ctx, p.Redis, key)
	if err != nil {
		return err
	}
	if done {
		p.Log.WithFields(logrus.Fields{"job_id": job.ID, "scope": scope}).Info("duplicate delivery skipped")
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	if _, err := redisx.Claim(ctx, p.Redis, key, redisx.TTLDedup); err != nil {
		p.Log.WithError(err).WithField("job_id", job.ID).Warn("set dedup marker")
	}
	return nil
}

func (p *Processors) Email(ctx context.Context, job *queue.Job) error {
	var j jobs.EmailJob
	if err := job.Decode(&j); err != nil {
		return err
	}
	p.Log.WithFields(logrus.Fields{"job_id": job.ID, "to": j.To}).Info("processing email job")
	return p.once(ctx, "email", job, func() error {
		_, err := p.Mailer.Send(ctx, notify.Email{To: j.To, Subject: j.Subject, Text: j.Text, HTML: j.HTML})
		return err
	})
}

func (p *Processors) Notification(ctx context.Context, job *queue.Job) error {
	var j jobs.NotificationJob
	if err := job.Decode(&j); err != nil {
		return err
	}
	p.Log.WithField("job_id", job.ID).Info("processing notification job")
	return p.once(ctx, "push", job, func() error {
		_, err := p.Push.Send(ctx, j.Token, notify.PushMessage{Title: j.Title, Body: j.Body, Data: j.Data})
		return err
	})
}

func (p *Processors) Order(ctx context.Context, job *queue.Job) error {
	var j jobs.OrderJob
	if err := job.Decode(&j); err != nil {
		return err
	}
	id, err := uuid.Parse(j.OrderID)
	if err != nil {
		return fmt.Errorf("order job %s: bad order id %q", job.ID, j.OrderID)
	}
	log := p.Log.WithFields(logrus.Fields{"job_id": job.ID, "order_id": id, "type": j.Type})
	log.Info("processing order job")

	o, err := p.Orders.GetOrder(ctx, id)
	if err != nil {
		return fmt.Errorf("order %s: %w", id, err)
	}
	switch j.Type {
	case jobs.OrderConfirmation:
		return p.confirm(ctx, o, log)
	case jobs.OrderStatusUpdate:
		return p.once(ctx, "order-status", job, func() error { return p.statusUpdate(ctx, o, log) })
	default:
		log.Warn("unknown order job type")
		return nil
	}
}

// confirm keys on the order's confirmation_sent_at, not on the job.
func (p *Processors) confirm(ctx context.Context, o *orders.Order, log *logrus.Entry) error {
	if o.ConfirmationSentAt != nil {
		log.Info("confirmation already sent")
		return nil
	}
	u, err := p.Users.Get(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("order owner %s: %w", o.UserID, err)
	}
	email, err := notify.OrderConfirmationEmail(u.Email, u.FullName, o)
	if err != nil {
		return err
	}
	if _, err := p.Mailer.Send(ctx, email); err != nil {
		return err
	}
	return p.Orders.MarkConfirmationSent(ctx, o.ID)
}

func (p *Processors) statusUpdate(ctx context.Context, o *orders.Order, log *logrus.Entry) error {
	msg := notify.StatusMessage(o)
	if err := p.Inbox.Create(ctx, &inbox.Notification{
		ReceiverID: o.UserID,
		Message:    msg,
		Type:       inbox.TypeOrder,
		LinkID:     o.ID.String(),
	}); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	u, err := p.Users.Get(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("order owner %s: %w", o.UserID, err)
	}
	if u.FCMToken == "" {
		return nil
	}
	_, err = p.Jobs.AddNotificationJob(ctx, jobs.NotificationJob{
		Token:    u.FCMToken,
		Title:    "Order " + string(o.Status),
		Body:     msg,
		Data:     map[string]string{"orderId": o.ID.String(), "status": string(o.Status)},
		Priority: jobs.PriorityStatusUpdate,
	})
	if err == nil {
		log.Info("push notification queued")
	}
	return err
}
