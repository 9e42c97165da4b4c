package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// fetchScript promotes due delayed jobs into the wait set, then leases the
// highest-priority waiting job by moving it into the active set.
var fetchScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local score = redis.call('HGET', ARGV[3] .. id, 'score')
  if score then
    redis.call('ZADD', KEYS[1], score, id)
  end
end
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[2], popped[1])
return popped[1]
`)

// stalledScript returns jobs whose lease expired to the wait set.
var stalledScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[1], id)
  local score = redis.call('HGET', ARGV[2] .. id, 'score')
  if score then
    redis.call('ZADD', KEYS[2], score, id)
  end
end
return expired
`)

// Process starts concurrency worker slots, each running one job at a time,
// plus a stall checker. It returns immediately; use Close to stop.
func (q *Queue) Process(ctx context.Context, concurrency int, h Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	q.wg.Add(concurrency + 1)
	for i := 0; i < concurrency; i++ {
		go q.worker(ctx, h)
	}
	go q.stallChecker(ctx)
	q.log.WithField("concurrency", concurrency).Info("queue processing started")
	return nil
}

func (q *Queue) stopped(ctx context.Context) bool {
	select {
	case <-q.closing:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (q *Queue) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.closing:
	case <-ctx.Done():
	}
}

func (q *Queue) worker(ctx context.Context, h Handler) {
	defer q.wg.Done()
	for !q.stopped(ctx) {
		job, err := q.fetch(ctx)
		if err != nil {
			if !q.stopped(ctx) {
				q.emitError(fmt.Errorf("fetch: %w", err))
			}
			q.idle(ctx, q.cfg.PollInterval)
			continue
		}
		if job == nil {
			q.idle(ctx, q.cfg.PollInterval)
			continue
		}
		q.run(job, h)
	}
}

func (q *Queue) stallChecker(ctx context.Context) {
	defer q.wg.Done()
	interval := q.cfg.Lease / 2
	for !q.stopped(ctx) {
		if _, err := q.requeueStalled(ctx); err != nil && !q.stopped(ctx) {
			q.emitError(fmt.Errorf("stall check: %w", err))
		}
		q.idle(ctx, interval)
	}
}

// fetch leases the next job, or returns nil when nothing is ready.
func (q *Queue) fetch(ctx context.Context) (*Job, error) {
	now := q.nowMs()
	deadline := now + q.cfg.Lease.Milliseconds()
	res, err := fetchScript.Run(ctx, q.rdb,
		[]string{q.key("wait"), q.key("delayed"), q.key("active")},
		now, deadline, q.key("job:"),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, ok := res.(string)
	if !ok {
		return nil, nil
	}
	job, err := q.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		q.rdb.ZRem(ctx, q.key("active"), id)
		return nil, nil
	}
	return job, err
}

func (q *Queue) requeueStalled(ctx context.Context) ([]string, error) {
	ids, err := stalledScript.Run(ctx, q.rdb,
		[]string{q.key("active"), q.key("wait")},
		q.nowMs(), q.key("job:"),
	).StringSlice()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if q.events.Stalled != nil {
			q.events.Stalled(id)
		}
	}
	return ids, nil
}

// run executes one attempt, extending the lease while the handler works.
func (q *Queue) run(job *Job, h Handler) {
	ctx, cancel := context.WithCancel(q.jobCtx)
	defer cancel()

	beat := make(chan struct{})
	go func() {
		defer close(beat)
		t := time.NewTicker(q.cfg.Lease / 3)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				deadline := float64(q.nowMs() + q.cfg.Lease.Milliseconds())
				q.rdb.ZAddXX(context.Background(), q.key("active"), redis.Z{Score: deadline, Member: job.ID})
			}
		}
	}()

	err := safeCall(ctx, h, job)
	cancel()
	<-beat

	bg := context.Background()
	if err == nil {
		if cerr := q.complete(bg, job); cerr != nil {
			q.emitError(fmt.Errorf("complete job %s: %w", job.ID, cerr))
			return
		}
		if q.events.Completed != nil {
			q.events.Completed(job)
		}
		return
	}
	if ferr := q.fail(bg, job, err); ferr != nil {
		q.emitError(fmt.Errorf("fail job %s: %w", job.ID, ferr))
		return
	}
	if q.events.Failed != nil {
		q.events.Failed(job, err)
	}
}

func safeCall(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// complete removes a finished job entirely.
func (q *Queue) complete(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.key("active"), job.ID)
		p.Del(ctx, q.jobKey(job.ID))
		return nil
	})
	return err
}

// fail records the attempt and either schedules the retry after
// backoff * 2^(attempt-1) or parks the job in the failed set.
func (q *Queue) fail(ctx context.Context, job *Job, cause error) error {
	attempts, err := q.rdb.HIncrBy(ctx, q.jobKey(job.ID), "attempts_made", 1).Result()
	if err != nil {
		return err
	}
	job.AttemptsMade = int(attempts)
	job.FailedReason = cause.Error()
	now := q.now()

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.key("active"), job.ID)
		p.HSet(ctx, q.jobKey(job.ID), "failed_reason", job.FailedReason)
		if job.AttemptsMade >= job.MaxAttempts {
			p.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
			return nil
		}
		readyAt := now.Add(BackoffDelay(job.Backoff, job.AttemptsMade))
		p.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
		return nil
	})
	return err
}

// BackoffDelay is the wait before the retry that follows attempt n (1-based).
func BackoffDelay(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(n-1)))
}

func (q *Queue) emitError(err error) {
	if q.events.Error != nil {
		q.events.Error(err)
	}
}

// Exhausted reports whether the job has used its last attempt.
func (j *Job) Exhausted() bool { return j.AttemptsMade >= j.MaxAttempts }
