package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message may be committed. Domain-level
// inconsistencies (missing booking, unknown ride) are logged inside handlers
// and reported as nil; errors here mean transient failures worth a retry.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer reads a group subscription over several topics and handles messages
// one at a time. Sequential handling is deliberate: the bus only orders events
// per key, and running handler bodies in parallel would break per-entity
// ordering inside this group member.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(brokers []string, group string, topics []string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return &Consumer{r: r}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	for {
		// FetchMessage, not ReadMessage: the group offset moves only after
		// the handler succeeds.
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if err := handleWithRetry(ctx, h, m); err != nil {
			return nil // ctx cancelled mid-retry
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			log.Printf("consumer: commit %s: %v", m.Topic, err)
		}
	}
}

// handleWithRetry runs the handler on the same message until it succeeds or
// the context ends. Fetching the next message instead would let a later commit
// move the group offset past the failed one, dropping it for good.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message) error {
	const maxBackoff = 5 * time.Second
	backoff := 200 * time.Millisecond

	for {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		log.Printf("consumer: handle %s: %v, retrying in %s", m.Topic, err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
