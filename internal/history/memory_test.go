package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func memRecord(n int) Record {
	return Record{
		ID:        fmt.Sprintf("id-%d", n),
		QueryHash: "abc123",
		Query:     fmt.Sprintf("query %d", n),
		Sites:     3,
		Results:   n,
		Duration:  time.Duration(n) * time.Millisecond,
		CreatedAt: time.Unix(1700000000+int64(n), 0).UTC(),
	}
}

func TestMemoryStoresAndListsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.StoreSearch(ctx, memRecord(i)))
	}

	recent := store.Recent(2)
	require.Len(t, recent, 2)
	require.Equal(t, "id-4", recent[0].ID)
	require.Equal(t, "id-3", recent[1].ID)

	all := store.Recent(0)
	require.Len(t, all, 5)
	require.Equal(t, "id-4", all[0].ID)
	require.Equal(t, "id-0", all[4].ID)
}

func TestMemoryRejectsMissingID(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	err := store.StoreSearch(context.Background(), Record{Query: "no id"})
	require.Error(t, err)
	require.Zero(t, store.Len())
}

func TestMemoryDropsOldestAtCap(t *testing.T) {
	t.Parallel()

	store := NewMemory()
	ctx := context.Background()
	for i := 0; i < memoryCap+10; i++ {
		require.NoError(t, store.StoreSearch(ctx, memRecord(i)))
	}

	require.Equal(t, memoryCap, store.Len())
	recent := store.Recent(1)
	require.Equal(t, fmt.Sprintf("id-%d", memoryCap+9), recent[0].ID)

	all := store.Recent(0)
	require.Equal(t, "id-10", all[len(all)-1].ID)
}
