// Package queue is a Redis-backed priority job queue with retries, exponential
// backoff, leases for stall detection, and retention of failed jobs.
//
// Layout per queue name N:
//
//	q:N:id       INCR counter for job ids
//	q:N:job:ID   hash with the job document
//	q:N:wait     ZSET ready jobs, score = priority*1e12 + id
//	q:N:delayed  ZSET jobs waiting out a backoff, score = ready-at (unix ms)
//	q:N:active   ZSET leased jobs, score = lease deadline (unix ms)
//	q:N:failed   ZSET jobs that exhausted their attempts, score = failed-at
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
)

const (
	DefaultPriority = 5
	priorityStride  = 1e12
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrClosed      = errors.New("queue closed")
)

type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Backoff      time.Duration   `json:"backoff"`
	CreatedAt    time.Time       `json:"createdAt"`
	FailedReason string          `json:"failedReason,omitempty"`
}

// Decode unmarshals the job payload.
func (j *Job) Decode(out any) error {
	if err := json.Unmarshal(j.Data, out); err != nil {
		return fmt.Errorf("decode job %s: %w", j.ID, err)
	}
	return nil
}

// Options override the queue defaults for a single job. Zero values keep the defaults.
type Options struct {
	Priority int
	Attempts int
	Backoff  time.Duration
	Delay    time.Duration
}

type Config struct {
	Attempts     int
	Backoff      time.Duration
	Lease        time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Handler processes one job attempt. A returned error schedules a retry or,
// once attempts are exhausted, moves the job to the failed set.
type Handler func(ctx context.Context, job *Job) error

type Queue struct {
	name   string
	rdb    redis.Cmdable
	cfg    Config
	events Events
	log    *logrus.Entry
	now    func() time.Time

	mu        sync.Mutex
	closing   chan struct{}
	closed    bool
	wg        sync.WaitGroup
	jobCtx    context.Context
	cancelJob context.CancelFunc
}

type Option func(*Queue)

func WithEvents(e Events) Option { return func(q *Queue) { q.events = e } }

func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

func New(rdb redis.Cmdable, name string, cfg Config, log *logrus.Entry, opts ...Option) *Queue {
	q := &Queue{
		name:    name,
		rdb:     rdb,
		cfg:     cfg.withDefaults(),
		log:     log.WithField("queue", name),
		now:     time.Now,
		closing: make(chan struct{}),
	}
	q.events = LogEvents(q.log)
	for _, o := range opts {
		o(q)
	}
	q.jobCtx, q.cancelJob = context.WithCancel(context.Background())
	return q
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) key(suffix string) string {
	return fmt.Sprintf(redisx.KeyQueuePrefix, q.name) + suffix
}

func (q *Queue) jobKey(id string) string { return q.key("job:" + id) }

func (q *Queue) nowMs() int64 { return q.now().UnixMilli() }

func waitScore(priority int, id int64) float64 {
	return float64(priority)*priorityStride + float64(id)
}

// Add enqueues data (JSON-encoded) and returns the stored job.
func (q *Queue) Add(ctx context.Context, data any, opts Options) (*Job, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	if opts.Priority <= 0 {
		opts.Priority = DefaultPriority
	}
	if opts.Attempts <= 0 {
		opts.Attempts = q.cfg.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = q.cfg.Backoff
	}

	n, err := q.rdb.Incr(ctx, q.key("id")).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate job id: %w", err)
	}
	id := strconv.FormatInt(n, 10)
	now := q.now()
	score := waitScore(opts.Priority, n)

	job := &Job{
		ID:          id,
		Queue:       q.name,
		Data:        b,
		Priority:    opts.Priority,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		CreatedAt:   now,
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobKey(id), map[string]any{
			"data":          string(b),
			"priority":      opts.Priority,
			"score":         strconv.FormatFloat(score, 'f', 0, 64),
			"attempts_made": 0,
			"max_attempts":  opts.Attempts,
			"backoff_ms":    opts.Backoff.Milliseconds(),
			"created_at":    now.UnixMilli(),
		})
		if opts.Delay > 0 {
			p.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(now.Add(opts.Delay).UnixMilli()), Member: id})
		} else {
			p.ZAdd(ctx, q.key("wait"), redis.Z{Score: score, Member: id})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// GetJob loads a job document regardless of the set it is in.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	h, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	return q.parseJob(id, h), nil
}

func (q *Queue) parseJob(id string, h map[string]string) *Job {
	atoi := func(s string) int64 {
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	return &Job{
		ID:           id,
		Queue:        q.name,
		Data:         json.RawMessage(h["data"]),
		Priority:     int(atoi(h["priority"])),
		AttemptsMade: int(atoi(h["attempts_made"])),
		MaxAttempts:  int(atoi(h["max_attempts"])),
		Backoff:      time.Duration(atoi(h["backoff_ms"])) * time.Millisecond,
		CreatedAt:    time.UnixMilli(atoi(h["created_at"])),
		FailedReason: h["failed_reason"],
	}
}

// Failed lists up to limit failed jobs, most recent first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.rdb.ZRevRange(ctx, q.key("failed"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Retry moves a failed job back to the wait set with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, id string) error {
	score, err := q.rdb.HGet(ctx, q.jobKey(id), "score").Result()
	if errors.Is(err, redis.Nil) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	s, _ := strconv.ParseFloat(score, 64)

	removed, err := q.rdb.ZRem(ctx, q.key("failed"), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrJobNotFound
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobKey(id), "attempts_made", 0)
		p.HDel(ctx, q.jobKey(id), "failed_reason")
		p.ZAdd(ctx, q.key("wait"), redis.Z{Score: s, Member: id})
		return nil
	})
	return err
}

// Counts reports the size of each set.
func (q *Queue) Counts(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	for _, s := range []string{"wait", "delayed", "active", "failed"} {
		n, err := q.rdb.ZCard(ctx, q.key(s)).Result()
		if err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, nil
}

// Close stops fetching new jobs and waits for in-flight handlers. When ctx
// expires first, running handlers see their context cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closing)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cancelJob()
		<-done
		return ctx.Err()
	}
}
