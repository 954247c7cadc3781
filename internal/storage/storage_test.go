package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// newMockDB swaps the package connection for a scripted one. Tests in this
// package assert the transaction scripts the storage layer runs, not the
// database itself.
func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	original := DB
	DB = db
	t.Cleanup(func() {
		DB = original
		db.Close()
	})

	return mock
}

func balanceRows(total, available, invested, insurance int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total_points", "available_points", "invested_points", "insurance_points"}).
		AddRow(total, available, invested, insurance)
}
