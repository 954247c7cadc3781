package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/points"
)

// Allocation is the outcome of one sponsorship's monthly posting.
type Allocation struct {
	SponsorshipID uuid.UUID    `json:"sponsorship_id"`
	StudentID     uuid.UUID    `json:"student_id"`
	PeriodKey     string       `json:"period"`
	Split         points.Split `json:"split"`
	Skipped       bool         `json:"skipped"`
}

// Transaction categories.
const (
	CategoryMonthly    = "monthly_allocation"
	CategoryPurchase   = "purchase"
	CategoryRefund     = "refund"
	CategoryAdjustment = "manual_adjustment"
	CategoryInvestment = "investment"
	CategoryInsurance  = "insurance"
	CategoryWithdrawal = "withdrawal"
)

// studentPolicyTx resolves the allocation split for one student: the
// per-student override when present and valid, the global default otherwise.
func studentPolicyTx(ctx context.Context, tx *sql.Tx, studentID uuid.UUID) (points.Policy, error) {
	var spendable, invested, insurance *int

	err := tx.QueryRowContext(ctx, `
		SELECT spendable_pct, invested_pct, insurance_pct FROM students WHERE id = $1;
	`, studentID).Scan(&spendable, &invested, &insurance)
	if err != nil {
		return points.Policy{}, err
	}

	policy := points.Policy{
		SpendablePct: config.SpendablePct,
		InvestedPct:  config.InvestedPct,
		InsurancePct: config.InsurancePct,
	}
	if spendable != nil && invested != nil && insurance != nil {
		override := points.Policy{SpendablePct: *spendable, InvestedPct: *invested, InsurancePct: *insurance}
		if override.Valid() {
			policy = override
		}
	}

	return policy, nil
}

// AllocateMonthly converts a donor's confirmed monthly payment into points
// for every sponsorship that still funds its student, one transaction per
// student. Idempotent per (donor, student, billing month): an already-posted
// period is absorbed as a logged no-op, never a double credit.
func AllocateMonthly(ctx context.Context, donorID uuid.UUID, period time.Time) ([]Allocation, error) {
	sponsorships, err := FundingSponsorships(ctx, donorID)
	if err != nil {
		return nil, err
	}

	var results []Allocation
	for _, s := range sponsorships {
		allocation, err := allocateForSponsorship(ctx, donorID, s, period)
		if err != nil {
			return nil, err
		}
		results = append(results, allocation)
	}

	return results, nil
}

func allocateForSponsorship(ctx context.Context, donorID uuid.UUID, s models.Sponsorship, period time.Time) (Allocation, error) {
	periodKey := points.PeriodKey(donorID, s.StudentID, period)
	result := Allocation{SponsorshipID: s.ID, StudentID: s.StudentID, PeriodKey: periodKey}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}

	b, err := lockStudent(ctx, tx, s.StudentID)
	if err != nil {
		tx.Rollback()
		return result, err
	}

	var alreadyPosted bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM points_transactions WHERE period_key = $1);
	`, periodKey).Scan(&alreadyPosted)
	if err != nil {
		tx.Rollback()
		return result, err
	}
	if alreadyPosted {
		tx.Rollback()
		logger.Log.Info("Allocation period already posted, skipping",
			zap.String("periodKey", periodKey))
		result.Skipped = true
		return result, nil
	}

	policy, err := studentPolicyTx(ctx, tx, s.StudentID)
	if err != nil {
		tx.Rollback()
		return result, err
	}

	total := points.Convert(s.MonthlyAmount, config.PointsPerUnit)
	split := policy.Apportion(total)
	result.Split = split

	if split.Spendable > 0 {
		b.Available += split.Spendable
		if err = postTransaction(ctx, tx, s.StudentID, models.TxEarned, split.Spendable,
			"Monthly sponsorship allocation", CategoryMonthly, periodKey, b.Available); err != nil {
			tx.Rollback()
			return result, err
		}
	}
	if split.Invested > 0 {
		b.Invested += split.Invested
		if err = postTransaction(ctx, tx, s.StudentID, models.TxInvested, split.Invested,
			"Monthly sponsorship allocation", CategoryMonthly, periodKey, b.Invested); err != nil {
			tx.Rollback()
			return result, err
		}
	}
	if split.Insurance > 0 {
		b.Insurance += split.Insurance
		if err = postTransaction(ctx, tx, s.StudentID, models.TxInsurance, split.Insurance,
			"Monthly sponsorship allocation", CategoryMonthly, periodKey, b.Insurance); err != nil {
			tx.Rollback()
			return result, err
		}
	}

	b.Total += total
	if err = saveBalances(ctx, tx, s.StudentID, b); err != nil {
		tx.Rollback()
		return result, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE donors
		SET total_donated = total_donated + $1, total_points_generated = total_points_generated + $2
		WHERE id = $3;
	`, s.MonthlyAmount, total, donorID)
	if err != nil {
		tx.Rollback()
		return result, err
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			result.Skipped = true
			return result, nil
		}
		return result, err
	}

	logger.Log.Info("Monthly allocation posted",
		zap.String("periodKey", periodKey),
		zap.Int64("total", total))
	return result, nil
}

// RecordManualAdjustment is the administrative correction path. It always
// posts a ledger line; balance fields are never mutated directly.
func RecordManualAdjustment(ctx context.Context, studentID uuid.UUID, txType string, amount int64, description string) error {
	if amount == 0 {
		return errs.Validation("adjustment amount must be non-zero")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	b, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		tx.Rollback()
		return err
	}

	var running int64
	switch txType {
	case models.TxEarned, models.TxSpent, models.TxWithdrawn:
		if b.Available+amount < 0 {
			tx.Rollback()
			return errs.InsufficientBalance(-amount, b.Available)
		}
		b.Available += amount
		running = b.Available
	case models.TxInvested:
		if b.Invested+amount < 0 {
			tx.Rollback()
			return errs.InsufficientBalance(-amount, b.Invested)
		}
		b.Invested += amount
		running = b.Invested
	case models.TxInsurance:
		if b.Insurance+amount < 0 {
			tx.Rollback()
			return errs.InsufficientBalance(-amount, b.Insurance)
		}
		b.Insurance += amount
		running = b.Insurance
	default:
		tx.Rollback()
		return errs.Validation("unknown transaction type")
	}

	if amount > 0 {
		b.Total += amount
	}

	if err = postTransaction(ctx, tx, studentID, txType, amount, description, CategoryAdjustment, "", running); err != nil {
		tx.Rollback()
		return err
	}

	if err = saveBalances(ctx, tx, studentID, b); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// GetStudentTransactions returns the student's ledger in posting order.
func GetStudentTransactions(ctx context.Context, studentID uuid.UUID) ([]models.PointsTransaction, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, student_id, type, amount, description, category, period_key, running_balance, created_at
		FROM points_transactions WHERE student_id = $1 ORDER BY created_at;
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.PointsTransaction
	for rows.Next() {
		var t models.PointsTransaction
		err = rows.Scan(&t.ID, &t.StudentID, &t.Type, &t.Amount, &t.Description,
			&t.Category, &t.PeriodKey, &t.RunningBalance, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// LedgerReport is the reconciliation view of one student's ledger: replayed
// category balances against the stored ones, with pending withdrawal
// reservations accounted for.
type LedgerReport struct {
	StudentID       uuid.UUID       `json:"student_id"`
	Stored          points.Balances `json:"stored"`
	Replayed        points.Balances `json:"replayed"`
	PendingReserved int64           `json:"pending_reserved"`
	Consistent      bool            `json:"consistent"`
	Fault           string          `json:"fault,omitempty"`
}

func studentReservations(ctx context.Context, studentID uuid.UUID) ([]points.Reservation, int64, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT amount, status, requested_at, processed_at
		FROM withdrawal_requests WHERE student_id = $1;
	`, studentID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reservations []points.Reservation
	var pending int64
	for rows.Next() {
		var amount int64
		var status string
		var requestedAt time.Time
		var processedAt sql.NullTime

		if err = rows.Scan(&amount, &status, &requestedAt, &processedAt); err != nil {
			return nil, 0, err
		}

		r := points.Reservation{Amount: amount, RequestedAt: requestedAt}
		if processedAt.Valid {
			r.ReleasedAt = &processedAt.Time
		}
		reservations = append(reservations, r)

		if status == models.WithdrawalPending {
			pending += amount
		}
	}

	return reservations, pending, rows.Err()
}

// ReconcileStudentLedger replays a student's full ledger and compares the
// result against the stored balances. The books balance when replay matches
// stored plus the pending withdrawal reservations and every line recorded
// the running balance replay expects.
func ReconcileStudentLedger(ctx context.Context, studentID uuid.UUID) (LedgerReport, error) {
	student, err := GetStudent(ctx, studentID)
	if err != nil {
		return LedgerReport{}, err
	}

	txs, err := GetStudentTransactions(ctx, studentID)
	if err != nil {
		return LedgerReport{}, err
	}

	reservations, pending, err := studentReservations(ctx, studentID)
	if err != nil {
		return LedgerReport{}, err
	}

	report := LedgerReport{
		StudentID: studentID,
		Stored: points.Balances{
			Available: student.AvailablePoints,
			Invested:  student.InvestedPoints,
			Insurance: student.InsurancePoints,
		},
		Replayed:        points.Replay(txs),
		PendingReserved: pending,
	}

	switch {
	case report.Replayed.Available != report.Stored.Available+pending:
		report.Fault = fmt.Sprintf("available: replay %d, stored %d + reserved %d",
			report.Replayed.Available, report.Stored.Available, pending)
	case report.Replayed.Invested != report.Stored.Invested:
		report.Fault = fmt.Sprintf("invested: replay %d, stored %d",
			report.Replayed.Invested, report.Stored.Invested)
	case report.Replayed.Insurance != report.Stored.Insurance:
		report.Fault = fmt.Sprintf("insurance: replay %d, stored %d",
			report.Replayed.Insurance, report.Stored.Insurance)
	default:
		if err := points.VerifyRunningBalances(txs, reservations); err != nil {
			report.Fault = err.Error()
		}
	}
	report.Consistent = report.Fault == ""

	return report, nil
}
