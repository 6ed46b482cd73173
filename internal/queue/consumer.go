package queue

import (
	"context"

	"github.com/revflow-dev/queue/internal/domain/message"
)

// Consumer receives drained batches. Returning a non-nil error leaves the
// batch in storage for retry on the next trigger.
type Consumer interface {
	Consume(ctx context.Context, batch []message.Message) error
}

// ConsumerFunc adapts a function to a Consumer.
type ConsumerFunc func(ctx context.Context, batch []message.Message) error

func (f ConsumerFunc) Consume(ctx context.Context, batch []message.Message) error {
	return f(ctx, batch)
}
