package history

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreSearchInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresWithPool(mock, "searches")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := Record{
		ID:        "uuid-v7",
		QueryHash: "deadbeef",
		Query:     "elden ring",
		Sites:     13,
		Results:   42,
		CacheHit:  false,
		Duration:  2500 * time.Millisecond,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO searches").
		WithArgs(
			rec.ID,
			rec.QueryHash,
			rec.Query,
			rec.Sites,
			rec.Results,
			rec.CacheHit,
			int64(2500),
			rec.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.StoreSearch(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSearchRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "searches", store.table)

	err = store.StoreSearch(context.Background(), Record{Query: "missing id"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(mock, "searches; drop table users")
	require.Error(t, err)

	_, err = NewPostgresWithPool(nil, "searches")
	require.Error(t, err)
}

func TestPostgresNilStoreIsSafe(t *testing.T) {
	t.Parallel()

	var store *Postgres
	store.Close()
	err := store.StoreSearch(context.Background(), Record{ID: "x"})
	require.Error(t, err)
}
