package persister

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revflow-dev/queue/errs"
)

// Postgres is a Persister backed by a single "scheduled_jobs" table, for
// deployments that want job durability independent of the process's local
// disk. Grounded on the outbox store's enqueue/replay shape: rows carry a
// monotonic position column so Restore can replay in original insertion
// order the same way the outbox replays undelivered events.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Persister = (*Postgres)(nil)

const (
	restoreSQL = `
SELECT blob
FROM scheduled_jobs
WHERE queue_name = $1
ORDER BY position ASC;
`

	putSQL = `
INSERT INTO scheduled_jobs (queue_name, job_uuid, blob)
VALUES ($1, $2, $3)
ON CONFLICT (queue_name, job_uuid)
DO UPDATE SET blob = EXCLUDED.blob, updated_at = now();
`

	removeSQL = `
DELETE FROM scheduled_jobs
WHERE queue_name = $1 AND job_uuid = $2;
`

	clearAllSQL = `TRUNCATE TABLE scheduled_jobs;`
)

// NewPostgres constructs a Postgres persister backed by pool. Callers are
// responsible for applying the schema migrations (internal/infra/persistence/migrations)
// before use.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Restore(ctx context.Context, queueName string) ([]string, error) {
	queueName = strings.TrimSpace(queueName)
	if p.pool == nil {
		return nil, errs.Storage("job persister: nil pool", fmt.Errorf("postgres persister not initialized"))
	}

	rows, err := p.pool.Query(ctx, restoreSQL, queueName)
	if err != nil {
		return nil, errs.Storage("job persister: restore", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, errs.Storage("job persister: scan restored blob", err)
		}
		out = append(out, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("job persister: iterate restored blobs", err)
	}
	return out, nil
}

func (p *Postgres) Put(ctx context.Context, queueName, jobUUID, blob string) error {
	if p.pool == nil {
		return errs.Storage("job persister: nil pool", fmt.Errorf("postgres persister not initialized"))
	}
	if _, err := p.pool.Exec(ctx, putSQL, queueName, jobUUID, blob); err != nil {
		return errs.Storage("job persister: put", err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, queueName, jobUUID string) error {
	if p.pool == nil {
		return errs.Storage("job persister: nil pool", fmt.Errorf("postgres persister not initialized"))
	}
	if _, err := p.pool.Exec(ctx, removeSQL, queueName, jobUUID); err != nil {
		return errs.Storage("job persister: remove", err)
	}
	return nil
}

func (p *Postgres) ClearAll(ctx context.Context) error {
	if p.pool == nil {
		return errs.Storage("job persister: nil pool", fmt.Errorf("postgres persister not initialized"))
	}
	if _, err := p.pool.Exec(ctx, clearAllSQL); err != nil {
		return errs.Storage("job persister: clear all", err)
	}
	return nil
}
