// Package persister implements the JobScheduler's cross-restart persistence
// contract (spec section 4.5, component C6): a key-value store keyed by
// (queue_name, job_uuid) holding an opaque serialized job blob.
package persister

import "context"

// Persister is the pluggable job-persistence backend. Implementations must
// be safe for concurrent use by scheduler worker goroutines.
type Persister interface {
	// Restore returns the serialized blobs for queueName in original
	// insertion order, for replay on scheduler construction.
	Restore(ctx context.Context, queueName string) ([]string, error)
	// Put upserts the blob for (queueName, jobUUID).
	Put(ctx context.Context, queueName, jobUUID, blob string) error
	// Remove deletes the entry for (queueName, jobUUID). Missing entries
	// are not an error.
	Remove(ctx context.Context, queueName, jobUUID string) error
	// ClearAll removes every persisted entry across all queues.
	ClearAll(ctx context.Context) error
}
