// Package messagestore defines the durable FIFO log contract that backs the
// message queue (spec section 4.1, component C1).
package messagestore

import (
	"context"

	"github.com/revflow-dev/queue/internal/domain/message"
)

// Store is the pluggable durable log a MessageQueue appends to and drains
// from. Implementations must serialize their own operations (each instance
// behaves as if single-threaded) and must preserve arrival order on Fetch.
// All operations may fail with an *errs.E carrying errs.CodeStorage.
type Store interface {
	// Store appends msg, assigning it a monotonic arrival position.
	Store(ctx context.Context, msg message.Message) error
	// Fetch returns up to limit of the oldest stored messages, FIFO-ordered.
	// It is non-destructive; a later Delete is required to consume.
	Fetch(ctx context.Context, limit int) ([]message.Message, error)
	// Delete removes the given ids. Missing ids are ignored; an empty ids
	// slice is a no-op.
	Delete(ctx context.Context, ids []string) error
	// Size returns the number of stored messages.
	Size(ctx context.Context) (int, error)
	// Clear removes all stored messages.
	Clear(ctx context.Context) error
	// Close releases any resources (file handles, connections) held by the
	// store. It is safe to call Close more than once.
	Close() error
}
