package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptRepositoryNextUsesAtomicUpsert(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewReceiptRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (school_id, year) DO UPDATE SET last_value = receipt_counters.last_value + 1")).
		WithArgs(int64(1), 2025).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(1)))

	v, err := repo.Next(context.Background(), 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestReceiptRepositoryEnsureAtLeast(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewReceiptRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("GREATEST(receipt_counters.last_value, EXCLUDED.last_value)")).
		WithArgs(int64(1), 2025, int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.EnsureAtLeast(context.Background(), 1, 2025, 40))
	require.NoError(t, mock.ExpectationsWereMet())
}
