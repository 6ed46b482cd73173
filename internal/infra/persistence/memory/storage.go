// Package memory provides the in-process fallback MessageStorage
// implementation (spec section 4.1, component C3): used deliberately when
// SqliteStorage fails to open, and directly by tests that want a fast,
// disk-free store.
package memory

import (
	"context"
	"sync"

	"github.com/revflow-dev/queue/internal/domain/message"
	"github.com/revflow-dev/queue/internal/domain/messagestore"
)

type record struct {
	msg       message.Message
	createdAt int64 // monotonic sequence, captured at Store time
}

// Storage is a mutex-guarded, insertion-ordered slice of messages. All
// operations serialize through mu, matching the "storage instances are
// single-threaded cooperative" requirement without needing an actor.
type Storage struct {
	mu      sync.Mutex
	seq     int64
	records []record
}

var _ messagestore.Store = (*Storage)(nil)

// New constructs an empty in-memory store.
func New() *Storage {
	return &Storage{}
}

func (s *Storage) Store(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records = append(s.records, record{msg: msg, createdAt: s.seq})
	return nil
}

func (s *Storage) Fetch(_ context.Context, limit int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]message.Message, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.records[i].msg
	}
	return out, nil
}

func (s *Storage) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	toDelete := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		toDelete[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if _, remove := toDelete[r.msg.ID]; remove {
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return nil
}

func (s *Storage) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *Storage) Close() error { return nil }
