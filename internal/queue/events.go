package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/metrics"
)

// Events are lifecycle hooks. Failed fires on every failed attempt; use
// Job.Exhausted to tell a final failure from one that will be retried.
type Events struct {
	Completed func(job *Job)
	Failed    func(job *Job, err error)
	Stalled   func(jobID string)
	Error     func(err error)
}

func LogEvents(log *logrus.Entry) Events {
	return Events{
		Completed: func(job *Job) {
			log.WithField("job_id", job.ID).Info("job completed")
		},
		Failed: func(job *Job, err error) {
			e := log.WithError(err).WithFields(logrus.Fields{
				"job_id":   job.ID,
				"attempts": job.AttemptsMade,
			})
			if job.Exhausted() {
				e.Error("job failed permanently")
				return
			}
			e.Warn("job failed, will retry")
		},
		Stalled: func(jobID string) {
			log.WithField("job_id", jobID).Warn("job stalled")
		},
		Error: func(err error) {
			log.WithError(err).Error("queue error")
		},
	}
}

// WithMetrics times every attempt of h and records its outcome under name.
// A panicking attempt counts as failed.
func WithMetrics(m *metrics.Metrics, name string, h Handler) Handler {
	return func(ctx context.Context, job *Job) error {
		start := time.Now()
		err := safeCall(ctx, h, job)
		m.ObserveJob(name, err != nil, time.Since(start))
		return err
	}
}
