package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/fulfillment"
	"github.com/edupoints/edupoints/internal/models"
)

// CartLine is one checkout request line. Prices are never taken from the
// client; the catalog is re-read inside the checkout transaction.
type CartLine struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

const orderColumns = `id, student_id, vendor_id, total_points, status, delivery_method,
	delivery_address, fulfillment_token, requested_at, approved_at, fulfilled_at`

func scanOrder(scan func(dest ...any) error) (models.PurchaseOrder, error) {
	var o models.PurchaseOrder
	var vendorID *uuid.UUID
	var approvedAt, fulfilledAt sql.NullTime

	err := scan(&o.ID, &o.StudentID, &vendorID, &o.TotalPoints, &o.Status, &o.DeliveryMethod,
		&o.DeliveryAddress, &o.FulfillmentToken, &o.RequestedAt, &approvedAt, &fulfilledAt)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	o.VendorID = vendorID
	if approvedAt.Valid {
		o.ApprovedAt = &approvedAt.Time
	}
	if fulfilledAt.Valid {
		o.FulfilledAt = &fulfilledAt.Time
	}

	return o, nil
}

// Checkout reserves points for a cart and creates the order. The balance
// decrement, the single spent ledger line and the order row commit as one
// unit; any failure rolls the whole transaction back.
func Checkout(ctx context.Context, studentID uuid.UUID, lines []CartLine, deliveryMethod, address string) (models.PurchaseOrder, error) {
	if len(lines) == 0 {
		return models.PurchaseOrder{}, errs.Validation("cart is empty")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	b, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	// Reprice every line against the current catalog.
	var total int64
	orderLines := make([]models.OrderLine, 0, len(lines))
	for _, line := range lines {
		var unitPoints int64
		var isActive bool

		err = tx.QueryRowContext(ctx, `
			SELECT unit_points, is_active FROM catalog_items WHERE id = $1;
		`, line.ItemID).Scan(&unitPoints, &isActive)
		if err != nil {
			tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				return models.PurchaseOrder{}, errs.PriceMismatch(line.ItemID.String())
			}
			return models.PurchaseOrder{}, err
		}
		if !isActive {
			tx.Rollback()
			return models.PurchaseOrder{}, errs.PriceMismatch(line.ItemID.String())
		}

		linePoints := unitPoints * int64(line.Quantity)
		total += linePoints
		orderLines = append(orderLines, models.OrderLine{
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			UnitPoints: unitPoints,
			LinePoints: linePoints,
		})
	}

	if total > b.Available {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.InsufficientBalance(total, b.Available)
	}

	orderID := uuid.New()
	requestedAt := time.Now().UTC()

	token, err := fulfillment.Issue(orderID, studentID, total, requestedAt)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	order := models.PurchaseOrder{
		ID:               orderID,
		StudentID:        studentID,
		TotalPoints:      total,
		Status:           models.OrderPending,
		DeliveryMethod:   deliveryMethod,
		DeliveryAddress:  address,
		FulfillmentToken: token,
		RequestedAt:      requestedAt,
		Lines:            orderLines,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, student_id, total_points, status, delivery_method, delivery_address, fulfillment_token, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, order.ID, order.StudentID, order.TotalPoints, order.Status,
		order.DeliveryMethod, order.DeliveryAddress, order.FulfillmentToken, order.RequestedAt)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	for i, line := range orderLines {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO purchase_order_items (order_id, item_id, quantity, unit_points, line_points)
			VALUES ($1, $2, $3, $4, $5) RETURNING id;
		`, order.ID, line.ItemID, line.Quantity, line.UnitPoints, line.LinePoints).Scan(&orderLines[i].ID)
		if err != nil {
			tx.Rollback()
			return models.PurchaseOrder{}, err
		}
		orderLines[i].OrderID = order.ID
	}

	// One spent line for the whole order keeps ledger replay simple.
	b.Available -= total
	if err = postTransaction(ctx, tx, studentID, models.TxSpent, -total,
		fmt.Sprintf("Purchase order %s", order.ID), CategoryPurchase, "", b.Available); err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = saveBalances(ctx, tx, studentID, b); err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.PurchaseOrder{}, err
	}

	return order, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (models.PurchaseOrder, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE;
	`, orderID)

	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PurchaseOrder{}, errs.NotFound("order", orderID.String())
		}
		return models.PurchaseOrder{}, err
	}

	return order, nil
}

// ApproveOrder moves a pending order to approved, optionally assigning the
// fulfilling vendor.
func ApproveOrder(ctx context.Context, orderID uuid.UUID, vendorID *uuid.UUID) (models.PurchaseOrder, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if order.Status != models.OrderPending {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.InvalidTransition("order", order.Status, models.OrderApproved)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $1, approved_at = $2, vendor_id = $3 WHERE id = $4;
	`, models.OrderApproved, now, vendorID, orderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.PurchaseOrder{}, err
	}

	order.Status = models.OrderApproved
	order.ApprovedAt = &now
	order.VendorID = vendorID
	return order, nil
}

// RejectOrder terminates a pending or approved order and refunds the
// reserved points. The order row lock makes the refund fire exactly once;
// a retried reject fails the status check with the balance untouched.
func RejectOrder(ctx context.Context, orderID uuid.UUID) (models.PurchaseOrder, error) {
	return terminateWithRefund(ctx, orderID, uuid.Nil, models.OrderRejected)
}

// CancelOrder is the student-driven termination path, legal before approval
// only. It refunds exactly like reject.
func CancelOrder(ctx context.Context, orderID, studentID uuid.UUID) (models.PurchaseOrder, error) {
	return terminateWithRefund(ctx, orderID, studentID, models.OrderCancelled)
}

func terminateWithRefund(ctx context.Context, orderID, studentID uuid.UUID, target string) (models.PurchaseOrder, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if studentID != uuid.Nil && order.StudentID != studentID {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.NotFound("order", orderID.String())
	}

	allowed := order.Status == models.OrderPending ||
		(target == models.OrderRejected && order.Status == models.OrderApproved)
	if !allowed {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.InvalidTransition("order", order.Status, target)
	}

	b, err := lockStudent(ctx, tx, order.StudentID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	// Compensating earned reversal restores the reservation.
	b.Available += order.TotalPoints
	if err = postTransaction(ctx, tx, order.StudentID, models.TxEarned, order.TotalPoints,
		fmt.Sprintf("Refund for order %s", order.ID), CategoryRefund, "", b.Available); err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = saveBalances(ctx, tx, order.StudentID, b); err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $1 WHERE id = $2;
	`, target, orderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.PurchaseOrder{}, err
	}

	order.Status = target
	return order, nil
}

// FulfillOrder completes an approved order after the terminal presented a
// token whose claims match the stored row.
func FulfillOrder(ctx context.Context, claims *fulfillment.Claims) (models.PurchaseOrder, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	order, err := lockOrder(ctx, tx, claims.OrderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if !claims.Matches(order.ID, order.StudentID, order.TotalPoints) {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.Validation("fulfillment token does not match order")
	}

	if order.Status != models.OrderApproved {
		tx.Rollback()
		return models.PurchaseOrder{}, errs.InvalidTransition("order", order.Status, models.OrderFulfilled)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $1, fulfilled_at = $2 WHERE id = $3;
	`, models.OrderFulfilled, now, claims.OrderID)
	if err != nil {
		tx.Rollback()
		return models.PurchaseOrder{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.PurchaseOrder{}, err
	}

	order.Status = models.OrderFulfilled
	order.FulfilledAt = &now
	return order, nil
}

func getOrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, order_id, item_id, quantity, unit_points, line_points
		FROM purchase_order_items WHERE order_id = $1 ORDER BY id;
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err = rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPoints, &line.LinePoints)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func GetOrder(ctx context.Context, orderID uuid.UUID) (models.PurchaseOrder, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1;
	`, orderID)

	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PurchaseOrder{}, errs.NotFound("order", orderID.String())
		}
		return models.PurchaseOrder{}, err
	}

	order.Lines, err = getOrderLines(ctx, orderID)
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	return order, nil
}

func GetStudentOrders(ctx context.Context, studentID uuid.UUID) ([]models.PurchaseOrder, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders WHERE student_id = $1 ORDER BY requested_at DESC;
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// GetOrdersByStatus backs the administrative review queue.
func GetOrdersByStatus(ctx context.Context, status string) ([]models.PurchaseOrder, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM purchase_orders WHERE status = $1 ORDER BY requested_at;
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
