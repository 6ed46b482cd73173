package jobscheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobBuilder assembles a Job fluently: JobBuilder(type).with(params)....schedule(manager).
type JobBuilder struct {
	job Job
}

// NewJobBuilder starts a builder for a job of the given type, executed by runner.
func NewJobBuilder(jobType string, runner Runner) *JobBuilder {
	return &JobBuilder{job: Job{
		UUID:   uuid.NewString(),
		Type:   jobType,
		Runner: runner,
		Constraints: Constraints{
			RetryMax: 0,
			Service:  ServiceDefault,
		},
	}}
}

func (b *JobBuilder) Params(params map[string]any) *JobBuilder {
	b.job.Params = params
	return b
}

func (b *JobBuilder) Internet(level InternetLevel) *JobBuilder {
	b.job.Constraints.Internet = level
	return b
}

func (b *JobBuilder) Persist() *JobBuilder {
	b.job.Constraints.Persist = true
	return b
}

func (b *JobBuilder) Delay(d time.Duration) *JobBuilder {
	b.job.Constraints.Delay = d
	return b
}

func (b *JobBuilder) Deadline(t time.Time) *JobBuilder {
	b.job.Constraints.Deadline = t
	return b
}

func (b *JobBuilder) Unique(name string, policy UniquePolicy) *JobBuilder {
	b.job.Constraints.UniqueName = name
	b.job.Constraints.UniquePolicy = policy
	return b
}

func (b *JobBuilder) Retry(max int) *JobBuilder {
	b.job.Constraints.RetryMax = max
	return b
}

func (b *JobBuilder) Group(name string) *JobBuilder {
	b.job.Constraints.Group = name
	return b
}

func (b *JobBuilder) Periodic(n int, interval time.Duration) *JobBuilder {
	b.job.Constraints.PeriodicCount = n
	b.job.Constraints.PeriodicInterval = interval
	return b
}

func (b *JobBuilder) Service(q ServiceQuality) *JobBuilder {
	b.job.Constraints.Service = q
	return b
}

func (b *JobBuilder) Tags(tags ...string) *JobBuilder {
	b.job.Constraints.Tags = tags
	return b
}

func (b *JobBuilder) RequireCharging() *JobBuilder {
	b.job.Constraints.RequireCharging = true
	return b
}

// Build returns the assembled Job without scheduling it, for tests that
// want to inspect constraints.
func (b *JobBuilder) Build() Job {
	return b.job
}

// Schedule hands the assembled job to the scheduler.
func (b *JobBuilder) Schedule(ctx context.Context, s *Scheduler) (string, error) {
	return s.Schedule(ctx, &b.job)
}
