// Package errs provides structured error types and helpers for the queue and
// job scheduler.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Code identifies the broad category of failure within a domain.
type Code string

const (
	// CodeStorage marks failures in the message storage layer (open, prepare, step, decode).
	CodeStorage Code = "storage"
	// CodeSerialization marks message/job JSON encode or decode failures.
	CodeSerialization Code = "serialization"
	// CodeScheduler marks job-scheduler lifecycle failures (duplicate, canceled, deadline, timeout).
	CodeScheduler Code = "scheduler"
	// CodeNetwork marks delivery-job transport or HTTP-status failures.
	CodeNetwork Code = "network"
)

// CanonicalCode captures a domain-agnostic classification of a scheduler failure.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalDuplicate indicates a unique-name policy rejected the job.
	CanonicalDuplicate CanonicalCode = "duplicate"
	// CanonicalCanceled indicates the job (or its retry policy) canceled itself.
	CanonicalCanceled CanonicalCode = "canceled"
	// CanonicalDeadline indicates the job missed its deadline.
	CanonicalDeadline CanonicalCode = "deadline"
	// CanonicalTimeout indicates a constraint wait or run exceeded its allotted time.
	CanonicalTimeout CanonicalCode = "timeout"
	// CanonicalRetryCancel indicates on_retry itself returned cancel, wrapping an inner cause.
	CanonicalRetryCancel CanonicalCode = "on_retry_cancel"
)

// E captures structured error information produced across the queue stack.
type E struct {
	Domain    string
	Code      Code
	HTTP      int
	Message   string
	Canonical CanonicalCode
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the domain and error code.
func New(domain string, code Code, opts ...Option) *E {
	e := &E{
		Domain:    strings.TrimSpace(domain),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithHTTP records the HTTP status code returned by a delivery attempt.
func WithHTTP(status int) Option {
	return func(e *E) { e.HTTP = status }
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

// WithCanonicalCode sets the canonical classification of a scheduler failure.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithField attaches a single diagnostic key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = value
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	domain := strings.TrimSpace(e.Domain)
	if domain == "" {
		domain = "queue"
	}
	parts = append(parts, "domain="+domain)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Storage builds a StorageError-flavored envelope, matching the spec's
// StorageError{detail} taxonomy for MessageStorage faults.
func Storage(detail string, cause error) *E {
	return New("storage", CodeStorage, WithMessage(detail), WithCause(cause))
}

// Serialization builds a SerializationError-flavored envelope for message
// JSON encode/decode failures.
func Serialization(detail string, cause error) *E {
	return New("serialization", CodeSerialization, WithMessage(detail), WithCause(cause))
}

// Scheduler builds a JobSchedulerError-flavored envelope classified by canonical code.
func Scheduler(canonical CanonicalCode, detail string, cause error) *E {
	return New("scheduler", CodeScheduler, WithCanonicalCode(canonical), WithMessage(detail), WithCause(cause))
}

// Network builds a NetworkError-flavored envelope for delivery failures.
func Network(detail string, httpStatus int, cause error) *E {
	return New("network", CodeNetwork, WithMessage(detail), WithHTTP(httpStatus), WithCause(cause))
}
