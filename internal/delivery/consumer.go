// Package delivery implements the DeliveryConsumer (spec section 4.4,
// component C7): it turns a drained batch into a persisted, durable job
// rather than sending over the wire itself, handing the actual HTTP
// exchange to the job scheduler's independent retry layer.
package delivery

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/revflow-dev/queue/internal/domain/message"
	"github.com/revflow-dev/queue/internal/jobscheduler"
)

// Consumer adapts a drained message batch into a scheduled
// SendBatchingMessageJob. It implements queue.Consumer.
type Consumer struct {
	scheduler *jobscheduler.Scheduler
	cfg       Config
	client    *http.Client
	limiter   *rate.Limiter
	clock     func() time.Time
}

// New constructs a delivery Consumer. client and limiter may be nil to use
// defaults (http.DefaultClient, no rate limiting); clock defaults to
// time.Now and exists purely so tests can pin sentAt.
func New(scheduler *jobscheduler.Scheduler, cfg Config, client *http.Client, limiter *rate.Limiter, clock func() time.Time) *Consumer {
	if client == nil {
		client = http.DefaultClient
	}
	if clock == nil {
		clock = time.Now
	}
	return &Consumer{scheduler: scheduler, cfg: cfg, client: client, limiter: limiter, clock: clock}
}

// Consume schedules batch for delivery and returns as soon as the job is
// durably enqueued; it does not wait for the network send. It returns an
// error only when the batch cannot be encoded into job params or the
// scheduler rejects the job (for example a failed persister write, or a
// scheduler that has been shut down); a duplicate unique name never applies
// here since no unique name is set.
func (c *Consumer) Consume(ctx context.Context, batch []message.Message) error {
	params, err := encodeBatchParam(batch)
	if err != nil {
		return err
	}

	runner := &sendBatchJob{
		cfg:     c.cfg,
		batch:   batch,
		client:  c.client,
		limiter: c.limiter,
		clock:   c.clock,
	}

	_, err = jobscheduler.NewJobBuilder(JobType, runner).
		Params(params).
		Internet(jobscheduler.InternetAny).
		Persist().
		Retry(-1).
		Service(jobscheduler.ServiceBackground).
		Schedule(ctx, c.scheduler)
	return err
}
