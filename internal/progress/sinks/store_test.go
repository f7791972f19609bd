package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pelinal/gamesearch/internal/progress"
)

func siteEvent(n int) progress.Event {
	return progress.Event{
		SearchID: progress.UUIDToBytes(uuid.New()),
		TS:       time.Now(),
		Stage:    progress.StageSiteDone,
		Site:     fmt.Sprintf("site-%d", n),
		Strategy: "primary",
		Results:  n,
	}
}

func TestEventStoreKeepsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewEventStore(10)
	batch := []progress.Event{siteEvent(1), siteEvent(2), siteEvent(3)}
	require.NoError(t, store.Consume(context.Background(), batch))

	recent := store.Recent(0)
	require.Len(t, recent, 3)
	require.Equal(t, "site-3", recent[0].Site)
	require.Equal(t, "site-1", recent[2].Site)
}

func TestEventStoreOverwritesOldest(t *testing.T) {
	t.Parallel()

	store := NewEventStore(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Consume(context.Background(), []progress.Event{siteEvent(i)}))
	}

	require.Equal(t, 3, store.Len())
	recent := store.Recent(0)
	require.Len(t, recent, 3)
	require.Equal(t, "site-5", recent[0].Site)
	require.Equal(t, "site-3", recent[2].Site)
}

func TestEventStoreLimit(t *testing.T) {
	t.Parallel()

	store := NewEventStore(10)
	require.NoError(t, store.Consume(context.Background(),
		[]progress.Event{siteEvent(1), siteEvent(2), siteEvent(3), siteEvent(4)}))

	recent := store.Recent(2)
	require.Len(t, recent, 2)
	require.Equal(t, "site-4", recent[0].Site)
	require.Equal(t, "site-3", recent[1].Site)
}

func TestEventStoreEmpty(t *testing.T) {
	t.Parallel()

	store := NewEventStore(4)
	require.Empty(t, store.Recent(0))
	require.Zero(t, store.Len())
	require.NoError(t, store.Close(context.Background()))
}

func TestEventStoreDefaultCapacity(t *testing.T) {
	t.Parallel()

	store := NewEventStore(0)
	require.Equal(t, defaultStoreCapacity, len(store.buf))
}
