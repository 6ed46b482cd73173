// Package sqlite provides the durable MessageStorage implementation (spec
// section 4.1, component C2), backed by a single-file SQLite database opened
// with the cgo-free modernc.org/sqlite driver so the queue never requires a
// C toolchain to persist.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/revflow-dev/queue/errs"
	"github.com/revflow-dev/queue/internal/domain/message"
	"github.com/revflow-dev/queue/internal/domain/messagestore"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
  id           TEXT PRIMARY KEY,
  type         TEXT NOT NULL,
  user_id      TEXT,
  anonymous_id TEXT,
  timestamp    REAL NOT NULL,
  api_version  TEXT NOT NULL,
  event        TEXT,
  properties   TEXT,
  context      TEXT NOT NULL,
  created_at   REAL NOT NULL DEFAULT (julianday('now'))
);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
`

// Storage is the durable, on-disk MessageStorage. It holds a single database
// connection (SetMaxOpenConns(1)), so concurrent calls, such as the queue's
// Emit path and its drain loop, are serialized by database/sql.
type Storage struct {
	db *sql.DB
}

var _ messagestore.Store = (*Storage)(nil)

// Open creates or attaches to the SQLite database at path, applying the
// schema and the WAL/synchronous pragmas the durability guarantee depends
// on. Callers that want the queue's "fall back to memory on open failure"
// behavior handle the returned error themselves; Open never falls back.
func Open(ctx context.Context, path string) (*Storage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errs.Storage("sqlite: open", fmt.Errorf("empty database path"))
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Storage("sqlite: create data dir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Storage("sqlite: open", err)
	}
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) init(ctx context.Context) error {
	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return errs.Storage("sqlite: set journal_mode", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;"); err != nil {
		return errs.Storage("sqlite: set synchronous", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return errs.Storage("sqlite: set busy_timeout", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errs.Storage("sqlite: apply schema", err)
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, msg message.Message) error {
	props, err := message.EncodeProperties(msg.Properties)
	if err != nil {
		return err
	}
	ctxJSON, err := message.EncodeContext(msg.Context)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO messages (id, type, user_id, anonymous_id, timestamp, api_version, event, properties, context)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		msg.ID,
		string(msg.Type),
		nullableString(msg.UserID),
		nullableString(msg.AnonymousID),
		epochSeconds(msg.Timestamp),
		msg.APIVersion,
		nullableString(msg.Event),
		props,
		ctxJSON,
	)
	if err != nil {
		return errs.Storage("sqlite: insert message", err)
	}
	return nil
}

func (s *Storage) Fetch(ctx context.Context, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, type, user_id, anonymous_id, timestamp, api_version, event, properties, context
FROM messages
ORDER BY created_at ASC, rowid ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, errs.Storage("sqlite: fetch messages", err)
	}
	defer rows.Close()

	var out []message.Message
	for rows.Next() {
		var (
			id, typ, apiVersion, ctxJSON string
			userID, anonID, event, props sql.NullString
			timestampSeconds             float64
		)
		if err := rows.Scan(&id, &typ, &userID, &anonID, &timestampSeconds, &apiVersion, &event, &props, &ctxJSON); err != nil {
			return nil, errs.Storage("sqlite: scan message row", err)
		}

		ts := timeFromEpochSeconds(timestampSeconds)

		properties, err := message.DecodeProperties([]byte(props.String))
		if err != nil {
			return nil, err
		}
		msgCtx, err := message.DecodeContext([]byte(ctxJSON))
		if err != nil {
			return nil, err
		}

		out = append(out, message.Message{
			ID:          id,
			Type:        message.Type(typ),
			UserID:      userID.String,
			AnonymousID: anonID.String,
			Timestamp:   ts,
			APIVersion:  apiVersion,
			Event:       event.String,
			Properties:  properties,
			Context:     msgCtx,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("sqlite: iterate message rows", err)
	}
	return out, nil
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id IN (`+placeholders+`);`, args...)
	if err != nil {
		return errs.Storage("sqlite: delete messages", err)
	}
	return nil
}

func (s *Storage) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages;").Scan(&n); err != nil {
		return 0, errs.Storage("sqlite: count messages", err)
	}
	return n, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages;"); err != nil {
		return errs.Storage("sqlite: clear messages", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// epochSeconds converts t to the seconds-since-epoch double the timestamp
// column stores, per the documented on-disk schema.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromEpochSeconds(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*1e9)).UTC()
}
