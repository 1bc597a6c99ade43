package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWithRetry_SameMessageUntilSuccess(t *testing.T) {
	attempts := 0
	h := func(ctx context.Context, m kafkago.Message) error {
		attempts++
		assert.Equal(t, "ride-created", m.Topic)
		assert.Equal(t, []byte(`{"id":10}`), m.Value)
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	}

	err := handleWithRetry(context.Background(), h,
		kafkago.Message{Topic: "ride-created", Value: []byte(`{"id":10}`)})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "the failed message is retried in place, not skipped")
}

func TestHandleWithRetry_FirstTrySkipsBackoff(t *testing.T) {
	start := time.Now()
	h := func(ctx context.Context, m kafkago.Message) error { return nil }

	err := handleWithRetry(context.Background(), h, kafkago.Message{Topic: "passenger-added"})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHandleWithRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	h := func(ctx context.Context, m kafkago.Message) error {
		return errors.New("still down")
	}

	err := handleWithRetry(ctx, h, kafkago.Message{Topic: "ride-created"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
