package delivery

import (
	"bytes"
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/revflow-dev/queue/errs"
	"github.com/revflow-dev/queue/internal/domain/message"
	"github.com/revflow-dev/queue/internal/jobscheduler"
)

// JobType is the persisted job type name for a batch delivery attempt.
const JobType = "SendBatchingMessageJob"

const retryInitialBackoff = 5 * time.Second

// Config carries the connection details a sendBatchJob needs to reach the
// delivery endpoint.
type Config struct {
	ServerURL string
	APIKey    string
}

func (c Config) batchURL() string {
	return c.ServerURL + "/batch"
}

// sendBatchJob is the jobscheduler.Runner backing a single delivery
// attempt. It is rebuilt from a persisted Record on restart via
// NewRunnerFactory, so its state must be reconstructible purely from
// jobscheduler.Record.Params.
type sendBatchJob struct {
	cfg     Config
	batch   []message.Message
	client  *http.Client
	limiter *rate.Limiter
	clock   func() time.Time
}

var _ jobscheduler.Runner = (*sendBatchJob)(nil)

func (j *sendBatchJob) Run(ctx context.Context) error {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body := toWireBatch(j.batch, j.clock())
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Serialization("delivery: marshal batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.cfg.batchURL(), bytes.NewReader(payload))
	if err != nil {
		return errs.Network("delivery: build request", 0, err)
	}
	req.Header.Set("X-API-Key", j.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return errs.Network("delivery: transport failure", 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.Network("delivery: server rejected batch", resp.StatusCode, nil)
	}
	return nil
}

func (j *sendBatchJob) OnRetry(err error) jobscheduler.RetryConstraint {
	return jobscheduler.RetryExponential(retryInitialBackoff)
}

func (j *sendBatchJob) OnRemove(jobscheduler.Completion) {}

// NewRunnerFactory builds a jobscheduler.RunnerFactory that reconstructs
// sendBatchJob runners from persisted Records, for scheduler.Restore.
func NewRunnerFactory(cfg Config, client *http.Client, limiter *rate.Limiter, clock func() time.Time) jobscheduler.RunnerFactory {
	if client == nil {
		client = http.DefaultClient
	}
	if clock == nil {
		clock = time.Now
	}
	return jobscheduler.RunnerFactoryFunc(func(record jobscheduler.Record) (jobscheduler.Runner, error) {
		if record.Type != JobType {
			return nil, errs.Serialization("delivery: unrecognized job type "+record.Type, nil)
		}
		batch, err := decodeBatchParam(record.Params)
		if err != nil {
			return nil, err
		}
		return &sendBatchJob{cfg: cfg, batch: batch, client: client, limiter: limiter, clock: clock}, nil
	})
}
