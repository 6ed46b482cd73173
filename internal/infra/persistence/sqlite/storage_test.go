package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revflow-dev/queue/internal/domain/message"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchemaAndIsReusable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")

	s1, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s1.Store(ctx, message.New(message.Params{Type: message.TypeTrack, APIVersion: "1", Event: "signed_up"})))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	size, err := s2.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func TestStoreFetchRoundTripsFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	props := map[string]any{"plan": "pro", "seats": int64(5)}
	msg := message.New(message.Params{
		Type:        message.TypeTrack,
		UserID:      "user-1",
		AnonymousID: "anon-1",
		APIVersion:  "2023-10",
		Event:       "upgraded",
		Properties:  props,
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
	})
	require.NoError(t, s.Store(ctx, msg))

	got, err := s.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, msg.ID, got[0].ID)
	require.Equal(t, msg.UserID, got[0].UserID)
	require.Equal(t, msg.AnonymousID, got[0].AnonymousID)
	require.Equal(t, msg.Event, got[0].Event)
	require.WithinDuration(t, msg.Timestamp, got[0].Timestamp, time.Millisecond)
	require.Len(t, got[0].Properties, 2)
}

func TestFetchOrdersByArrivalAndRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Store(ctx, message.New(message.Params{
			ID: "m" + string(rune('a'+i)), Type: message.TypeTrack, APIVersion: "1",
		})))
	}

	got, err := s.Fetch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "ma", got[0].ID)
	require.Equal(t, "mb", got[1].ID)
	require.Equal(t, "mc", got[2].ID)
}

func TestDeleteRemovesOnlyGivenIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)

	require.NoError(t, s.Store(ctx, message.New(message.Params{ID: "keep", Type: message.TypeTrack, APIVersion: "1"})))
	require.NoError(t, s.Store(ctx, message.New(message.Params{ID: "drop", Type: message.TypeTrack, APIVersion: "1"})))

	require.NoError(t, s.Delete(ctx, []string{"drop", "missing"}))

	got, err := s.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "keep", got[0].ID)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := openTestStorage(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Store(ctx, message.New(message.Params{Type: message.TypeTrack, APIVersion: "1"})))
	}
	require.NoError(t, s.Clear(ctx))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, size)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}
