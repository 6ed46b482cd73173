package jobscheduler

import (
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/revflow-dev/queue/errs"
)

// Record is the durable, JSON-serializable projection of a Job. A Runner
// cannot be serialized directly since it usually closes over live
// collaborators (an HTTP client, a store); RunnerFactory rebuilds one from
// the Type and Params captured here.
type Record struct {
	UUID        string         `json:"uuid"`
	Type        string         `json:"type"`
	Params      map[string]any `json:"params,omitempty"`
	Constraints Constraints    `json:"constraints"`
	Attempt     int            `json:"attempt"`
	PeriodicRun int            `json:"periodic_run"`
	ScheduledAt time.Time      `json:"scheduled_at"`
}

// RunnerFactory reconstructs a Runner for a persisted Record's Type and
// Params, on scheduler restore.
type RunnerFactory interface {
	Build(record Record) (Runner, error)
}

// RunnerFactoryFunc adapts a function to RunnerFactory.
type RunnerFactoryFunc func(record Record) (Runner, error)

func (f RunnerFactoryFunc) Build(record Record) (Runner, error) { return f(record) }

func (j *Job) toRecord() Record {
	return Record{
		UUID:        j.UUID,
		Type:        j.Type,
		Params:      j.Params,
		Constraints: j.Constraints,
		Attempt:     j.attempt,
		PeriodicRun: j.periodicRun,
		ScheduledAt: j.scheduledAt,
	}
}

func marshalRecord(r Record) (string, error) {
	blob, err := gojson.Marshal(r)
	if err != nil {
		return "", errs.Serialization("job record: marshal", err)
	}
	return string(blob), nil
}

func unmarshalRecord(blob string) (Record, error) {
	var r Record
	if err := gojson.Unmarshal([]byte(blob), &r); err != nil {
		return Record{}, errs.Serialization("job record: unmarshal", err)
	}
	return r, nil
}

func fromRecord(record Record, runner Runner) *Job {
	return &Job{
		UUID:        record.UUID,
		Type:        record.Type,
		Params:      record.Params,
		Constraints: record.Constraints,
		Runner:      runner,
		scheduledAt: record.ScheduledAt,
		attempt:     record.Attempt,
		periodicRun: record.PeriodicRun,
		state:       StateScheduled,
	}
}
