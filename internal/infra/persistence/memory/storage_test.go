package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/revflow-dev/queue/internal/domain/message"
)

func newMsg(id string) message.Message {
	return message.New(message.Params{ID: id, Type: message.TypeTrack, APIVersion: "1"})
}

func TestStoreFetchPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Store(ctx, newMsg(fmt.Sprintf("id-%d", i))))
	}

	got, err := s.Fetch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, m := range got {
		require.Equal(t, fmt.Sprintf("id-%d", i), m.ID)
	}
}

func TestSizeReflectsStoresAndDeletes(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Store(ctx, newMsg(fmt.Sprintf("id-%d", i))))
	}

	require.NoError(t, s.Delete(ctx, []string{"id-1", "id-3", "does-not-exist"}))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, size)

	got, err := s.Fetch(ctx, 100)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	require.Equal(t, []string{"id-0", "id-2", "id-4"}, ids)
}

func TestDeleteEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Store(ctx, newMsg("a")))
	require.NoError(t, s.Delete(ctx, nil))
	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func TestClearEmptiesStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Store(ctx, newMsg(fmt.Sprintf("id-%d", i))))
	}
	require.NoError(t, s.Clear(ctx))

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, size)

	got, err := s.Fetch(ctx, 100)
	require.NoError(t, err)
	require.Empty(t, got)
}
