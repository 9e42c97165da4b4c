package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testConsumer(attempts int) *Consumer {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return &Consumer{log: logrus.NewEntry(l), Attempts: attempts, Backoff: time.Millisecond}
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := testConsumer(5).handle(context.Background(), func(ctx context.Context, m kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("db busy")
		}
		return nil
	}, kafka.Message{Offset: 7})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := testConsumer(3).handle(context.Background(), func(ctx context.Context, m kafka.Message) error {
		calls++
		return errors.New("still down")
	}, kafka.Message{})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestHandleStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := testConsumer(10)
	c.Backoff = time.Hour
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- c.handle(ctx, func(ctx context.Context, m kafka.Message) error {
			calls++
			return errors.New("down")
		}, kafka.Message{})
	}()
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("handle did not return after cancel")
	}
}
