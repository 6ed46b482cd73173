package jobscheduler

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/revflow-dev/queue/internal/jobscheduler/persister"
	"github.com/revflow-dev/queue/internal/observability"
	"github.com/revflow-dev/queue/lib/async"
)

const constraintPollInterval = 200 * time.Millisecond

// defaultGroupWorkers bounds how many job groups can run concurrently when
// the caller does not supply its own pool via WithWorkerPool. Group workers
// are long-lived (one per active group, for the group's lifetime), so this
// is also the ceiling on concurrently active groups.
const defaultGroupWorkers = 32

// group is a per-Constraints.Group FIFO of pending jobs, drained by a
// single worker goroutine so that jobs sharing a group never run
// concurrently.
type group struct {
	queue   []*Job
	running bool
}

// Scheduler is the durable, constraint-aware background job runner (spec
// section 4.3, component C5). One Scheduler owns one persistence queue
// name; jobs within a Constraints.Group execute strictly serially,
// including through their own retries, while distinct groups run
// concurrently.
type Scheduler struct {
	queueName    string
	persister    persister.Persister
	reachability ReachabilityChecker
	power        PowerChecker
	listener     Listener
	dlq          *DeadLetterLedger
	clock        func() time.Time
	logger       observability.Logger

	mu          sync.Mutex
	groups      map[string]*group
	uniqueIndex map[string]*Job
	closed      bool

	runCtx    context.Context
	runCancel context.CancelFunc
	pool      *async.Pool
	ownsPool  bool

	scheduledCounter  metric.Int64Counter
	terminatedCounter metric.Int64Counter
	retryCounter      metric.Int64Counter
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

func WithPersister(p persister.Persister) Option { return func(s *Scheduler) { s.persister = p } }
func WithReachability(r ReachabilityChecker) Option {
	return func(s *Scheduler) { s.reachability = r }
}
func WithPowerChecker(p PowerChecker) Option { return func(s *Scheduler) { s.power = p } }
func WithListener(l Listener) Option         { return func(s *Scheduler) { s.listener = l } }
func WithDeadLetterLedger(l *DeadLetterLedger) Option {
	return func(s *Scheduler) { s.dlq = l }
}
func WithClock(clock func() time.Time) Option { return func(s *Scheduler) { s.clock = clock } }
func WithLogger(logger observability.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithWorkerPool bounds concurrent group workers to pool instead of the
// default. The caller retains ownership: Shutdown will not close a pool
// supplied this way, since it may be shared with other components.
func WithWorkerPool(pool *async.Pool) Option {
	return func(s *Scheduler) { s.pool = pool }
}

// New constructs a Scheduler bound to queueName. Jobs are not restored
// automatically; call Restore after construction if resuming a prior run.
func New(queueName string, opts ...Option) *Scheduler {
	s := &Scheduler{
		queueName:    queueName,
		persister:    persister.NewMemory(),
		reachability: AlwaysReachable,
		power:        AlwaysCharging,
		listener:     NoopListener{},
		dlq:          NewDeadLetterLedger(0),
		clock:        time.Now,
		logger:       observability.Log(),
		groups:       make(map[string]*group),
		uniqueIndex:  make(map[string]*Job),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	if s.pool == nil {
		pool, err := async.NewPool(defaultGroupWorkers, 0)
		if err != nil {
			panic(err) // defaultGroupWorkers is a positive constant, never fails
		}
		s.pool = pool
		s.ownsPool = true
	}

	meter := otel.Meter("jobscheduler")
	s.scheduledCounter, _ = meter.Int64Counter("jobscheduler.jobs.scheduled",
		metric.WithDescription("Number of jobs accepted for scheduling"),
		metric.WithUnit("{job}"))
	s.terminatedCounter, _ = meter.Int64Counter("jobscheduler.jobs.terminated",
		metric.WithDescription("Number of jobs reaching a terminal state"),
		metric.WithUnit("{job}"))
	s.retryCounter, _ = meter.Int64Counter("jobscheduler.jobs.retried",
		metric.WithDescription("Number of job retry attempts"),
		metric.WithUnit("{attempt}"))

	return s
}

// Restore replays every job blob persisted for this scheduler's queue name,
// reconstructing Runners via factory and re-enqueueing them in their
// original insertion order. Call once, before the scheduler otherwise
// receives work.
func (s *Scheduler) Restore(ctx context.Context, factory RunnerFactory) error {
	blobs, err := s.persister.Restore(ctx, s.queueName)
	if err != nil {
		return err
	}
	for _, blob := range blobs {
		record, err := unmarshalRecord(blob)
		if err != nil {
			s.logger.Error("jobscheduler: dropping unrestorable job blob", observability.Field{Key: "error", Value: err})
			continue
		}
		runner, err := factory.Build(record)
		if err != nil {
			s.logger.Error("jobscheduler: dropping job, factory error", observability.Field{Key: "job_uuid", Value: record.UUID}, observability.Field{Key: "error", Value: err})
			continue
		}
		job := fromRecord(record, runner)
		s.enqueue(ctx, job, true)
	}
	return nil
}

// Schedule accepts a job for execution, enforcing its unique-name policy
// and appending it to its group's queue.
func (s *Scheduler) Schedule(ctx context.Context, job *Job) (string, error) {
	if job.UUID == "" {
		job.UUID = job.Type
	}
	job.state = StateScheduled
	if job.scheduledAt.IsZero() {
		job.scheduledAt = s.clock()
	}
	return job.UUID, s.enqueue(ctx, job, false)
}

func (s *Scheduler) enqueue(ctx context.Context, job *Job, restoring bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return duplicateErr(job.UUID) // scheduler shut down; reuse a scheduler-domain error
	}

	if name := job.Constraints.UniqueName; name != "" {
		if existing, found := s.uniqueIndex[name]; found && existing.UUID != job.UUID {
			switch job.Constraints.UniquePolicy {
			case PolicyDropExisting:
				existing.canceled = true
				s.uniqueIndex[name] = job
			default:
				s.mu.Unlock()
				return duplicateErr(name)
			}
		} else {
			s.uniqueIndex[name] = job
		}
	}

	g, ok := s.groups[job.group()]
	if !ok {
		g = &group{}
		s.groups[job.group()] = g
	}
	g.queue = append(g.queue, job)
	needsWorker := !g.running
	if needsWorker {
		g.running = true
	}
	s.mu.Unlock()

	if !restoring && job.Constraints.Persist {
		blob, err := marshalRecord(job.toRecord())
		if err != nil {
			return err
		}
		if err := s.persister.Put(ctx, s.queueName, job.UUID, blob); err != nil {
			return err
		}
	}

	if s.scheduledCounter != nil {
		s.scheduledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", job.Type)))
	}
	s.listener.OnScheduled(job)

	if needsWorker {
		groupName := job.group()
		go func() {
			if err := s.pool.SubmitWait(s.runCtx, func(ctx context.Context) error {
				s.runGroup(ctx, groupName)
				return nil
			}); err != nil {
				s.logger.Error("jobscheduler: group worker submission failed", observability.Field{Key: "group", Value: groupName}, observability.Field{Key: "error", Value: err})
			}
		}()
	}
	return nil
}

func (s *Scheduler) runGroup(ctx context.Context, name string) {
	for {
		s.mu.Lock()
		g := s.groups[name]
		if g == nil || len(g.queue) == 0 {
			if g != nil {
				g.running = false
				delete(s.groups, name)
			}
			s.mu.Unlock()
			return
		}
		job := g.queue[0]
		g.queue = g.queue[1:]
		s.mu.Unlock()

		s.executeJob(ctx, job)
	}
}

func (s *Scheduler) executeJob(ctx context.Context, job *Job) {
	for {
		s.mu.Lock()
		canceled := job.canceled
		s.mu.Unlock()
		if canceled {
			s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
			return
		}
		if job.hasDeadlinePassed(s.clock()) {
			s.terminalize(ctx, job, Completion{Success: false, Err: deadlineErr(job.UUID)})
			return
		}

		if job.attempt == 0 && job.Constraints.Delay > 0 {
			job.state = StateWaitingForConstraint
			if !s.sleep(ctx, job.Constraints.Delay) {
				s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
				return
			}
		}
		if !s.awaitConstraints(ctx, job) {
			s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
			return
		}

		job.state = StateRunning
		s.listener.OnBeforeRun(job)

		runCtx := ctx
		var cancel context.CancelFunc
		if !job.Constraints.Deadline.IsZero() {
			runCtx, cancel = context.WithDeadline(ctx, job.Constraints.Deadline)
		}
		err := job.Runner.Run(runCtx)
		if cancel != nil {
			cancel()
		}
		s.listener.OnAfterRun(job, err)

		if err == nil {
			if s.reschedulePeriodic(ctx, job) {
				continue
			}
			s.terminalize(ctx, job, Completion{Success: true})
			return
		}

		job.attempt++
		if job.retriesExhausted() {
			s.terminalize(ctx, job, Completion{Success: false, Err: err})
			return
		}

		if s.retryCounter != nil {
			s.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", job.Type)))
		}
		constraint := job.Runner.OnRetry(err)
		switch constraint.kind {
		case retryKindCancel:
			s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
			return
		case retryKindOnRetryCancel:
			s.terminalize(ctx, job, Completion{Success: false, Err: constraint.cause})
			return
		case retryKindRetryAfter:
			job.state = StateWaitingForBackoff
			if !s.sleep(ctx, constraint.delay) {
				s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
				return
			}
		case retryKindExponential:
			job.state = StateWaitingForBackoff
			delay := exponentialDelay(constraint.initial, job.attempt)
			if !s.sleep(ctx, delay) {
				s.terminalize(ctx, job, Completion{Success: false, Err: canceledErr(job.UUID)})
				return
			}
		case retryKindRetry:
			// no delay, loop immediately
		}

		if job.Constraints.Persist {
			if blob, err := marshalRecord(job.toRecord()); err == nil {
				_ = s.persister.Put(ctx, s.queueName, job.UUID, blob)
			}
		}
	}
}

// reschedulePeriodic advances a successfully-run periodic job to its next
// occurrence. PeriodicCount <= 0 means "run forever"; PeriodicCount > 0
// bounds the total number of runs. Returns true if the job was rescheduled
// in place and executeJob should loop rather than terminate.
func (s *Scheduler) reschedulePeriodic(ctx context.Context, job *Job) bool {
	if job.Constraints.PeriodicInterval <= 0 {
		return false
	}
	job.periodicRun++
	if job.Constraints.PeriodicCount > 0 && job.periodicRun >= job.Constraints.PeriodicCount {
		return false
	}
	job.attempt = 0
	job.state = StateWaitingForConstraint
	return s.sleep(ctx, job.Constraints.PeriodicInterval)
}

// awaitConstraints polls host-provided reachability and power checkers
// until satisfied, the scheduler shuts down, or ctx is canceled. Returns
// false if the wait was aborted.
func (s *Scheduler) awaitConstraints(ctx context.Context, job *Job) bool {
	for {
		reachable := job.Constraints.Internet == InternetNone || s.reachability.Reachable(job.Constraints.Internet)
		charging := !job.Constraints.RequireCharging || s.power.Charging()
		if reachable && charging {
			job.state = StateReady
			return true
		}
		job.state = StateWaitingForConstraint
		if !s.sleep(ctx, constraintPollInterval) {
			return false
		}
	}
}

// sleep blocks for d or until ctx is done or the scheduler is shut down,
// whichever comes first. Returns false when interrupted.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) terminalize(ctx context.Context, job *Job, completion Completion) {
	job.state = StateTerminated

	s.mu.Lock()
	if name := job.Constraints.UniqueName; name != "" {
		if current, ok := s.uniqueIndex[name]; ok && current.UUID == job.UUID {
			delete(s.uniqueIndex, name)
		}
	}
	s.mu.Unlock()

	if job.Constraints.Persist {
		if err := s.persister.Remove(ctx, s.queueName, job.UUID); err != nil {
			s.logger.Error("jobscheduler: failed to remove persisted job", observability.Field{Key: "job_uuid", Value: job.UUID}, observability.Field{Key: "error", Value: err})
		}
	}

	if !completion.Success && s.dlq != nil {
		s.dlq.Offer(DeadLetter{
			JobUUID: job.UUID,
			JobType: job.Type,
			Group:   job.group(),
			Attempt: job.attempt,
			Err:     completion.Err,
		})
	}

	if s.terminatedCounter != nil {
		s.terminatedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", job.Type),
			attribute.Bool("success", completion.Success),
		))
	}

	s.listener.OnTerminated(job, completion)
	job.Runner.OnRemove(completion)
}

// DeadLetters returns and clears every terminally failed job recorded
// since the last call.
func (s *Scheduler) DeadLetters() []DeadLetter {
	return s.dlq.Drain()
}

// Shutdown stops accepting new jobs and waits for in-flight group workers
// to observe ctx cancellation and exit. Queued-but-not-started jobs are
// abandoned in place; if persisted, they remain durable for the next
// Restore.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.runCancel()

	if !s.ownsPool {
		// A caller-supplied pool may be shared with other components; the
		// scheduler only owns cancellation of its own group workers, not
		// the pool's lifecycle.
		return nil
	}
	return s.pool.Shutdown(ctx)
}
