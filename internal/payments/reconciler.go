package payments

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/orders"
)

// Reconciler periodically re-applies dead-lettered webhook events, covering
// the case where the processor's callback beat the order's intent attachment.
type Reconciler struct {
	Service  *Service
	Interval time.Duration
	Batch    int
	Log      *logrus.Entry
}

func (r *Reconciler) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Log.WithField("interval", interval).Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.Log.WithError(err).Error("reconcile dead letters")
			}
		}
	}
}

// RunOnce processes one batch and reports how many letters were resolved.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	store := r.Service.Store
	letters, err := store.PendingDeadLetters(ctx, batch)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, dl := range letters {
		if applyErr := r.Service.apply(ctx, dl.EventType, dl.PaymentIntentID); applyErr != nil {
			if !errors.Is(applyErr, orders.ErrNotFound) {
				r.Log.WithError(applyErr).WithField("event_id", dl.EventID).Warn("dead letter still failing")
			}
			if err := store.RecordDeadLetterAttempt(ctx, dl.ID, applyErr.Error()); err != nil {
				return resolved, err
			}
			continue
		}
		if err := store.ResolveDeadLetter(ctx, dl.ID, r.Service.now()); err != nil {
			return resolved, err
		}
		resolved++
		r.Log.WithFields(logrus.Fields{"event_id": dl.EventID, "payment_intent": dl.PaymentIntentID}).Info("dead letter resolved")
	}
	return resolved, nil
}
