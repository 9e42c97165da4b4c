package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *logrus.Entry

	// Attempts bounds how often a message is handed to the handler before it
	// is dropped; Backoff is the first delay between attempts and doubles.
	Attempts int
	Backoff  time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *logrus.Entry) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		log:      log.WithFields(logrus.Fields{"topic": topic, "group": group}),
		Attempts: 5,
		Backoff:  200 * time.Millisecond,
	}
}

// handle runs h until it succeeds, Attempts runs out or ctx ends. Workers
// commit out of order, so a message must be settled here before the worker
// moves on.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	attempts := max(c.Attempts, 1)
	delay := c.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return err
		}
		c.log.WithError(err).WithFields(logrus.Fields{"offset": m.Offset, "attempt": attempt}).Warn("handle message, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
		delay *= 2
	}
}

// Start fetches until ctx ends, handing messages to a fixed worker pool.
// A message whose handler still fails after every attempt is logged and
// committed so the partition keeps moving.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	msgs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgs {
				if err := c.handle(ctx, h, m); err != nil {
					if ctx.Err() != nil {
						continue
					}
					c.log.WithError(err).WithFields(logrus.Fields{
						"offset":    m.Offset,
						"partition": m.Partition,
					}).Error("message dropped after retries")
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.WithError(err).Warn("commit offset")
				}
			}
		}()
	}
	defer wg.Wait()
	defer close(msgs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case msgs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}
