package lease

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresLeaseAcquire(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := NewPostgres(mock)

	mock.ExpectExec("INSERT INTO sync_lease").
		WithArgs(l.holder, 15*time.Minute).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := l.Acquire(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Zero rows means someone else holds an unexpired lease.
	mock.ExpectExec("INSERT INTO sync_lease").
		WithArgs(l.holder, 15*time.Minute).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = l.Acquire(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	mock.ExpectExec("DELETE FROM sync_lease").
		WithArgs(l.holder).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
