package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/internal/models"
)

func reconcileStudentRow(studentID uuid.UUID, available int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "status", "education", "total_points", "available_points",
		"invested_points", "insurance_points", "spendable_pct", "invested_pct", "insurance_pct", "created_at",
	}).AddRow(studentID.String(), "Amina", models.StudentApproved, []byte(`{"level":"primary"}`),
		int64(20000), available, int64(0), int64(0), nil, nil, nil,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
}

func TestReconcileStudentLedger(t *testing.T) {
	studentID := uuid.New()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	txColumns := []string{
		"id", "student_id", "type", "amount", "description", "category",
		"period_key", "running_balance", "created_at",
	}
	withdrawalColumns := []string{"amount", "status", "requested_at", "processed_at"}

	// Earned 20000, a 5000 withdrawal hold, then spent 12000. The spent line
	// records 3000 because the hold was outstanding when it posted; replay
	// says 8000 and the difference is exactly the pending reservation.
	t.Run("BalancesWithPendingReservation", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectQuery(`FROM students WHERE id = \$1`).
			WithArgs(studentID).
			WillReturnRows(reconcileStudentRow(studentID, 3000))
		mock.ExpectQuery(`FROM points_transactions WHERE student_id = \$1`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows(txColumns).
				AddRow(uuid.New().String(), studentID.String(), models.TxEarned, int64(20000),
					"Monthly sponsorship allocation", CategoryMonthly, "", int64(20000), base).
				AddRow(uuid.New().String(), studentID.String(), models.TxSpent, int64(-12000),
					"Purchase order", CategoryPurchase, "", int64(3000), base.Add(2*time.Minute)))
		mock.ExpectQuery(`FROM withdrawal_requests WHERE student_id = \$1`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows(withdrawalColumns).
				AddRow(int64(5000), models.WithdrawalPending, base.Add(time.Minute), nil))

		report, err := ReconcileStudentLedger(context.Background(), studentID)
		require.NoError(t, err)
		assert.True(t, report.Consistent, report.Fault)
		assert.Equal(t, int64(5000), report.PendingReserved)
		assert.Equal(t, int64(8000), report.Replayed.Available)
		assert.Equal(t, int64(3000), report.Stored.Available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReportsStoredDrift", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectQuery(`FROM students WHERE id = \$1`).
			WithArgs(studentID).
			WillReturnRows(reconcileStudentRow(studentID, 9000))
		mock.ExpectQuery(`FROM points_transactions WHERE student_id = \$1`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows(txColumns).
				AddRow(uuid.New().String(), studentID.String(), models.TxEarned, int64(20000),
					"Monthly sponsorship allocation", CategoryMonthly, "", int64(20000), base).
				AddRow(uuid.New().String(), studentID.String(), models.TxSpent, int64(-12000),
					"Purchase order", CategoryPurchase, "", int64(8000), base.Add(2*time.Minute)))
		mock.ExpectQuery(`FROM withdrawal_requests WHERE student_id = \$1`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows(withdrawalColumns))

		report, err := ReconcileStudentLedger(context.Background(), studentID)
		require.NoError(t, err)
		assert.False(t, report.Consistent)
		assert.Contains(t, report.Fault, "available")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
