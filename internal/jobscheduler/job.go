// Package jobscheduler implements the durable, constraint-aware background
// job runner that executes network sends for delivered batches (spec
// section 4.3, component C5).
package jobscheduler

import (
	"context"
	"time"

	"github.com/revflow-dev/queue/errs"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateScheduled           State = "scheduled"
	StateWaitingForConstraint State = "waiting_for_constraints"
	StateReady               State = "ready"
	StateRunning             State = "running"
	StateRetrying            State = "retrying"
	StateWaitingForBackoff   State = "waiting_for_backoff"
	StateTerminated          State = "terminated"
)

// InternetLevel gates a job on network reachability.
type InternetLevel string

const (
	InternetNone     InternetLevel = ""
	InternetAny      InternetLevel = "any"
	InternetCellular InternetLevel = "cellular"
	InternetWifi     InternetLevel = "wifi"
)

// ServiceQuality is a scheduling priority hint.
type ServiceQuality string

const (
	ServiceDefault    ServiceQuality = "default"
	ServiceBackground ServiceQuality = "background"
	ServiceUserInitiated ServiceQuality = "user_initiated"
)

// UniquePolicy resolves a scheduling conflict against an existing job that
// shares the same unique name.
type UniquePolicy string

const (
	PolicyDropIncoming UniquePolicy = "drop-incoming"
	PolicyDropExisting UniquePolicy = "drop-existing"
	PolicyError        UniquePolicy = "error"
)

// RetryConstraint is the policy OnRetry returns after a failed run.
type RetryConstraint struct {
	kind    retryKind
	delay   time.Duration
	initial time.Duration
	cause   error
}

type retryKind int

const (
	retryKindRetry retryKind = iota
	retryKindExponential
	retryKindCancel
	retryKindRetryAfter
	retryKindOnRetryCancel
)

// RetryAfterDelay retries after a fixed delay.
func RetryAfterDelay(delay time.Duration) RetryConstraint {
	return RetryConstraint{kind: retryKindRetryAfter, delay: delay}
}

// RetryNow retries immediately (delay zero).
func RetryNow() RetryConstraint {
	return RetryConstraint{kind: retryKindRetry}
}

// RetryExponential retries with exponential backoff seeded at initial.
func RetryExponential(initial time.Duration) RetryConstraint {
	return RetryConstraint{kind: retryKindExponential, initial: initial}
}

// RetryCancel cancels the job outright; it terminates with fail.
func RetryCancel() RetryConstraint {
	return RetryConstraint{kind: retryKindCancel}
}

// RetryOnRetryCancel cancels the job, wrapping cause as the terminal error.
// Matches the on_retry_cancel(inner) failure taxonomy entry.
func RetryOnRetryCancel(cause error) RetryConstraint {
	return RetryConstraint{kind: retryKindOnRetryCancel, cause: cause}
}

// Completion is the terminal outcome delivered to OnRemove.
type Completion struct {
	Success bool
	Err     error
}

// Runner is implemented by callers to define a job's work and failure
// policy. Run performs the work; a non-nil error triggers OnRetry to
// decide the next step. OnRemove fires once, terminally, with the final
// outcome.
type Runner interface {
	Run(ctx context.Context) error
	OnRetry(err error) RetryConstraint
	OnRemove(completion Completion)
}

// Constraints captures the builder options attached to a Job.
type Constraints struct {
	Internet         InternetLevel
	Persist          bool
	Delay            time.Duration
	Deadline         time.Time
	UniqueName       string
	UniquePolicy     UniquePolicy
	RetryMax         int // -1 = unbounded
	Group            string
	PeriodicCount    int
	PeriodicInterval time.Duration
	Service          ServiceQuality
	Tags             []string
	RequireCharging  bool
}

// Job is a scheduled unit of work.
type Job struct {
	UUID        string
	Type        string
	Params      map[string]any
	Constraints Constraints
	Runner      Runner

	scheduledAt time.Time
	attempt     int
	periodicRun int
	state       State
	canceled    bool
}

func (j *Job) group() string {
	if j.Constraints.Group != "" {
		return j.Constraints.Group
	}
	return "type:" + j.Type
}

func (j *Job) hasDeadlinePassed(now time.Time) bool {
	return !j.Constraints.Deadline.IsZero() && now.After(j.Constraints.Deadline)
}

func (j *Job) retriesExhausted() bool {
	if j.Constraints.RetryMax < 0 {
		return false
	}
	return j.attempt > j.Constraints.RetryMax
}

func deadlineErr(jobUUID string) error {
	return errs.Scheduler(errs.CanonicalDeadline, "job "+jobUUID+" missed its deadline", nil)
}

func canceledErr(jobUUID string) error {
	return errs.Scheduler(errs.CanonicalCanceled, "job "+jobUUID+" canceled", nil)
}

func duplicateErr(name string) error {
	return errs.Scheduler(errs.CanonicalDuplicate, "job with unique name "+name+" already scheduled", nil)
}
