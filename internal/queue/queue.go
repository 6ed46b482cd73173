// Package queue implements the single-writer, single-reader MessageQueue
// state machine that buffers telemetry messages ahead of delivery (spec
// section 4.2, component C4).
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/revflow-dev/queue/internal/domain/message"
	"github.com/revflow-dev/queue/internal/domain/messagestore"
	"github.com/revflow-dev/queue/internal/observability"
)

// State is the queue's position in its lifecycle. Once Stopped, a queue
// never resumes; callers construct a new instance instead.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateStopped    State = "stopped"
)

// MessageQueue coordinates ingestion, batching triggers, and dispatch
// against a pluggable MessageStorage backend. All exported methods are
// safe for concurrent use, but the drain loop itself is single-flight per
// instance: at most one drain runs at a time (spec section 4.2's
// at-most-one-drain-in-flight invariant), enforced here with a mutex
// rather than the reference design's single-threaded cooperative model.
type MessageQueue struct {
	storage  messagestore.Store
	consumer Consumer
	opts     Options
	logger   observability.Logger

	mu           sync.Mutex
	state        State
	draining     bool
	tickerCancel context.CancelFunc

	wg conc.WaitGroup

	depthGauge     metric.Int64ObservableGauge
	batchesDrained metric.Int64Counter
	drainFailures  metric.Int64Counter
}

// New constructs a MessageQueue over storage, dispatching drained batches
// to consumer. logger defaults to observability.Log() when nil.
func New(storage messagestore.Store, consumer Consumer, opts Options, logger observability.Logger) *MessageQueue {
	if logger == nil {
		logger = observability.Log()
	}
	q := &MessageQueue{
		storage:  storage,
		consumer: consumer,
		opts:     opts,
		logger:   logger,
		state:    StateIdle,
	}

	meter := otel.Meter("queue")
	q.depthGauge, _ = meter.Int64ObservableGauge("queue.depth",
		metric.WithDescription("Number of messages currently buffered in storage"),
		metric.WithUnit("{message}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			size, err := q.storage.Size(ctx)
			if err != nil {
				return nil
			}
			observer.Observe(int64(size))
			return nil
		}))
	q.batchesDrained, _ = meter.Int64Counter("queue.batches_drained",
		metric.WithDescription("Number of batches successfully delivered to the consumer"),
		metric.WithUnit("{batch}"))
	q.drainFailures, _ = meter.Int64Counter("queue.drain_failures",
		metric.WithDescription("Number of drain attempts that ended in a fetch or consume failure"),
		metric.WithUnit("{failure}"))

	return q
}

// Emit appends msg to storage, durably, before returning, then nudges the
// drain loop if one isn't already running. Emit never blocks on delivery:
// the nudge itself runs asynchronously.
func (q *MessageQueue) Emit(ctx context.Context, msg message.Message) error {
	if err := q.storage.Store(ctx, msg); err != nil {
		return err
	}
	q.triggerProcessingIfNeeded(ctx)
	return nil
}

// Size reports the number of currently buffered messages.
func (q *MessageQueue) Size(ctx context.Context) (int, error) {
	return q.storage.Size(ctx)
}

// ClearQueue cancels the in-flight batch timer and empties storage. Any
// drain already invoking consumer.Consume completes; its outcome is
// discarded since the subsequent delete becomes a no-op.
func (q *MessageQueue) ClearQueue(ctx context.Context) error {
	q.mu.Lock()
	if q.tickerCancel != nil {
		q.tickerCancel()
		q.tickerCancel = nil
	}
	q.mu.Unlock()
	return q.storage.Clear(ctx)
}

// StartRunloop transitions Idle to Processing, drains once synchronously to
// clear any backlog left over from a prior run, then starts the periodic
// batch timer if a batching window is configured. A no-op outside Idle.
func (q *MessageQueue) StartRunloop(ctx context.Context) {
	q.mu.Lock()
	if q.state != StateIdle {
		q.mu.Unlock()
		return
	}
	q.state = StateProcessing
	q.mu.Unlock()

	q.drainOnce(ctx)

	if !q.opts.BatchingWindow.enabled() || q.opts.BatchingWindow.TimeWindow <= 0 {
		return
	}

	tickerCtx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.tickerCancel = cancel
	q.mu.Unlock()

	q.wg.Go(func() { q.runTicker(tickerCtx) })
}

// Stop transitions the queue to its terminal Stopped state and cancels the
// batch timer. The drain loop observes the state on its next iteration.
func (q *MessageQueue) Stop() {
	q.mu.Lock()
	q.state = StateStopped
	if q.tickerCancel != nil {
		q.tickerCancel()
		q.tickerCancel = nil
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Drain synchronously flushes any messages remaining in storage to the
// consumer, ignoring the queue's lifecycle state. Callers use this after
// Stop when flushEventsOnClose requires a final delivery attempt before the
// process exits; unlike drainOnce it reports failures to the caller instead
// of sleeping and swallowing them.
func (q *MessageQueue) Drain(ctx context.Context) error {
	limit := q.opts.BatchingWindow.fetchLimit()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := q.storage.Fetch(ctx, limit)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := q.consumer.Consume(ctx, batch); err != nil {
			return err
		}

		ids := make([]string, len(batch))
		for i, msg := range batch {
			ids[i] = msg.ID
		}
		if err := q.storage.Delete(ctx, ids); err != nil {
			return err
		}
		q.batchesDrained.Add(ctx, 1)
	}
}

func (q *MessageQueue) runTicker(ctx context.Context) {
	ticker := time.NewTicker(q.opts.BatchingWindow.TimeWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainAsync(context.Background())
		}
	}
}

func (q *MessageQueue) triggerProcessingIfNeeded(ctx context.Context) {
	q.mu.Lock()
	processing := q.state == StateProcessing
	q.mu.Unlock()
	if !processing {
		return
	}

	if !q.opts.BatchingWindow.enabled() {
		q.drainAsync(ctx)
		return
	}

	size, err := q.storage.Size(ctx)
	if err != nil {
		return
	}
	if size >= q.opts.BatchingWindow.MaxCount {
		q.drainAsync(ctx)
	}
}

// drainAsync launches a drain on the queue's own supervised goroutine
// group, coalescing with any already-running drain.
func (q *MessageQueue) drainAsync(ctx context.Context) {
	q.wg.Go(func() { q.drainOnce(ctx) })
}

// drainOnce runs the draining algorithm to completion or until the queue
// stops, per spec section 4.2: fetch, consume, delete-on-success and
// continue; on consumer failure sleep 100ms and exit; on fetch failure
// sleep 500ms and exit.
func (q *MessageQueue) drainOnce(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	limit := q.opts.BatchingWindow.fetchLimit()

	for {
		q.mu.Lock()
		state := q.state
		q.mu.Unlock()
		if state != StateProcessing {
			return
		}

		batch, err := q.storage.Fetch(ctx, limit)
		if err != nil {
			q.logger.Error("queue: fetch failed, backing off", observability.Field{Key: "error", Value: err})
			q.drainFailures.Add(ctx, 1)
			time.Sleep(storageFailureBackoff)
			return
		}
		if len(batch) == 0 {
			return
		}

		if err := q.consumer.Consume(ctx, batch); err != nil {
			q.logger.Error("queue: consume failed, leaving batch for retry", observability.Field{Key: "error", Value: err})
			q.drainFailures.Add(ctx, 1)
			time.Sleep(consumerFailureBackoff)
			return
		}

		ids := make([]string, len(batch))
		for i, msg := range batch {
			ids[i] = msg.ID
		}
		if err := q.storage.Delete(ctx, ids); err != nil {
			q.logger.Error("queue: delete after successful consume failed", observability.Field{Key: "error", Value: err})
			q.drainFailures.Add(ctx, 1)
			time.Sleep(storageFailureBackoff)
			return
		}
		q.batchesDrained.Add(ctx, 1)
	}
}
