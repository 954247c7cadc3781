package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
)

var orderRowColumns = []string{
	"id", "student_id", "vendor_id", "total_points", "status", "delivery_method",
	"delivery_address", "fulfillment_token", "requested_at", "approved_at", "fulfilled_at",
}

func TestCheckout(t *testing.T) {
	config.TokenSecret = "test-fulfillment-secret"

	studentID := uuid.New()
	itemID := uuid.New()
	cart := []CartLine{{ItemID: itemID, Quantity: 2}}

	t.Run("ReservesAndPostsOneSpentLine", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(balanceRows(50000, 20000, 15000, 15000))
		mock.ExpectQuery(`SELECT unit_points, is_active FROM catalog_items WHERE id = \$1`).
			WithArgs(itemID).
			WillReturnRows(sqlmock.NewRows([]string{"unit_points", "is_active"}).AddRow(int64(6000), true))
		mock.ExpectExec(`INSERT INTO purchase_orders`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO purchase_order_items`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO points_transactions`).
			WithArgs(sqlmock.AnyArg(), studentID, models.TxSpent, int64(-12000),
				sqlmock.AnyArg(), CategoryPurchase, "", int64(8000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE students`).
			WithArgs(int64(50000), int64(8000), int64(15000), int64(15000), studentID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		order, err := Checkout(context.Background(), studentID, cart, models.DeliveryPickup, "")
		require.NoError(t, err)
		assert.Equal(t, int64(12000), order.TotalPoints)
		assert.Equal(t, models.OrderPending, order.Status)
		assert.NotEmpty(t, order.FulfillmentToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientBalanceRollsBack", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(balanceRows(50000, 8000, 15000, 15000))
		mock.ExpectQuery(`SELECT unit_points, is_active FROM catalog_items WHERE id = \$1`).
			WithArgs(itemID).
			WillReturnRows(sqlmock.NewRows([]string{"unit_points", "is_active"}).AddRow(int64(6000), true))
		mock.ExpectRollback()

		_, err := Checkout(context.Background(), studentID, cart, models.DeliveryPickup, "")
		assert.ErrorIs(t, err, errs.ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InactiveItemRollsBack", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(balanceRows(50000, 20000, 15000, 15000))
		mock.ExpectQuery(`SELECT unit_points, is_active FROM catalog_items WHERE id = \$1`).
			WithArgs(itemID).
			WillReturnRows(sqlmock.NewRows([]string{"unit_points", "is_active"}).AddRow(int64(6000), false))
		mock.ExpectRollback()

		_, err := Checkout(context.Background(), studentID, cart, models.DeliveryPickup, "")
		assert.ErrorIs(t, err, errs.ErrPriceMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRejectOrder_RefundsExactlyOnce(t *testing.T) {
	orderID := uuid.New()
	studentID := uuid.New()
	requestedAt := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)

	mock := newMockDB(t)

	// First reject: approved order refunds the reservation.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(orderID.String(), studentID.String(), nil, int64(12000), models.OrderApproved,
				models.DeliveryPickup, "", "token", requestedAt, requestedAt, nil))
	mock.ExpectQuery(`FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs(studentID).
		WillReturnRows(balanceRows(50000, 8000, 15000, 15000))
	mock.ExpectExec(`INSERT INTO points_transactions`).
		WithArgs(sqlmock.AnyArg(), studentID, models.TxEarned, int64(12000),
			sqlmock.AnyArg(), CategoryRefund, "", int64(20000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE students`).
		WithArgs(int64(50000), int64(20000), int64(15000), int64(15000), studentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE purchase_orders SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := RejectOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, order.Status)

	// Retried reject: the status check fails under the row lock and the
	// balance is never touched again.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(orderID.String(), studentID.String(), nil, int64(12000), models.OrderRejected,
				models.DeliveryPickup, "", "token", requestedAt, requestedAt, nil))
	mock.ExpectRollback()

	_, err = RejectOrder(context.Background(), orderID)
	assert.ErrorIs(t, err, errs.ErrInvalidStateTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOrder_OwnershipAndState(t *testing.T) {
	orderID := uuid.New()
	studentID := uuid.New()
	requestedAt := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)

	t.Run("OtherStudentsOrderIsHidden", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
			WithArgs(orderID).
			WillReturnRows(sqlmock.NewRows(orderRowColumns).
				AddRow(orderID.String(), uuid.New().String(), nil, int64(12000), models.OrderPending,
					models.DeliveryPickup, "", "token", requestedAt, nil, nil))
		mock.ExpectRollback()

		_, err := CancelOrder(context.Background(), orderID, studentID)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ApprovedOrderCannotBeCancelled", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM purchase_orders WHERE id = \$1 FOR UPDATE`).
			WithArgs(orderID).
			WillReturnRows(sqlmock.NewRows(orderRowColumns).
				AddRow(orderID.String(), studentID.String(), nil, int64(12000), models.OrderApproved,
					models.DeliveryPickup, "", "token", requestedAt, requestedAt, nil))
		mock.ExpectRollback()

		_, err := CancelOrder(context.Background(), orderID, studentID)
		assert.ErrorIs(t, err, errs.ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
