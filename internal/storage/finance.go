package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
)

// committedInvestments sums the pool points already tied up in active
// investments, under the caller's student row lock.
func committedInvestments(ctx context.Context, tx *sql.Tx, studentID uuid.UUID) (int64, error) {
	var committed int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM investments WHERE student_id = $1 AND status = $2;
	`, studentID, models.InvestmentActive).Scan(&committed)
	return committed, err
}

func committedPremiums(ctx context.Context, tx *sql.Tx, studentID uuid.UUID) (int64, error) {
	var committed int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(premium_points), 0) FROM insurance_policies WHERE student_id = $1 AND status = $2;
	`, studentID, models.PolicyActive).Scan(&committed)
	return committed, err
}

// OpenInvestment opens an investment against the student's invested pool.
// Pool-funded opens post no ledger line (the points were posted as invested
// at allocation time) and cannot exceed the uncommitted pool. An ad-hoc
// administrative open is funded from the available balance and posts the
// reallocation pair so ledger replay stays exact.
func OpenInvestment(ctx context.Context, studentID uuid.UUID, amount int64, platform string, expectedReturn float64, maturityDate time.Time, adHoc bool) (models.Investment, error) {
	if amount <= 0 {
		return models.Investment{}, errs.Validation("investment amount must be positive")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Investment{}, err
	}

	b, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	investment := models.Investment{
		ID:             uuid.New(),
		StudentID:      studentID,
		Amount:         amount,
		Platform:       platform,
		ExpectedReturn: expectedReturn,
		MaturityDate:   maturityDate,
		Status:         models.InvestmentActive,
		CreatedAt:      time.Now().UTC(),
	}

	if adHoc {
		if amount > b.Available {
			tx.Rollback()
			return models.Investment{}, errs.InsufficientBalance(amount, b.Available)
		}

		b.Available -= amount
		if err = postTransaction(ctx, tx, studentID, models.TxEarned, -amount,
			fmt.Sprintf("Reallocated to investment %s", investment.ID), CategoryInvestment, "", b.Available); err != nil {
			tx.Rollback()
			return models.Investment{}, err
		}

		b.Invested += amount
		if err = postTransaction(ctx, tx, studentID, models.TxInvested, amount,
			fmt.Sprintf("Ad-hoc funding for investment %s", investment.ID), CategoryInvestment, "", b.Invested); err != nil {
			tx.Rollback()
			return models.Investment{}, err
		}

		if err = saveBalances(ctx, tx, studentID, b); err != nil {
			tx.Rollback()
			return models.Investment{}, err
		}
	} else {
		committed, err := committedInvestments(ctx, tx, studentID)
		if err != nil {
			tx.Rollback()
			return models.Investment{}, err
		}
		if amount > b.Invested-committed {
			tx.Rollback()
			return models.Investment{}, errs.InsufficientBalance(amount, b.Invested-committed)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO investments (id, student_id, amount, platform, expected_return, maturity_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, investment.ID, investment.StudentID, investment.Amount, investment.Platform,
		investment.ExpectedReturn, investment.MaturityDate, investment.Status, investment.CreatedAt)
	if err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Investment{}, err
	}

	return investment, nil
}

// CompleteInvestment closes a matured investment and releases its points
// from the invested pool back to the available balance.
func CompleteInvestment(ctx context.Context, investmentID uuid.UUID) (models.Investment, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Investment{}, err
	}

	var investment models.Investment
	err = tx.QueryRowContext(ctx, `
		SELECT id, student_id, amount, platform, expected_return, maturity_date, status, created_at
		FROM investments WHERE id = $1 FOR UPDATE;
	`, investmentID).Scan(&investment.ID, &investment.StudentID, &investment.Amount, &investment.Platform,
		&investment.ExpectedReturn, &investment.MaturityDate, &investment.Status, &investment.CreatedAt)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return models.Investment{}, errs.NotFound("investment", investmentID.String())
		}
		return models.Investment{}, err
	}

	if investment.Status != models.InvestmentActive {
		tx.Rollback()
		return models.Investment{}, errs.InvalidTransition("investment", investment.Status, models.InvestmentCompleted)
	}

	b, err := lockStudent(ctx, tx, investment.StudentID)
	if err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	b.Invested -= investment.Amount
	if err = postTransaction(ctx, tx, investment.StudentID, models.TxInvested, -investment.Amount,
		fmt.Sprintf("Investment %s matured", investment.ID), CategoryInvestment, "", b.Invested); err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	b.Available += investment.Amount
	if err = postTransaction(ctx, tx, investment.StudentID, models.TxEarned, investment.Amount,
		fmt.Sprintf("Matured investment %s released", investment.ID), CategoryInvestment, "", b.Available); err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	if err = saveBalances(ctx, tx, investment.StudentID, b); err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE investments SET status = $1 WHERE id = $2;
	`, models.InvestmentCompleted, investmentID)
	if err != nil {
		tx.Rollback()
		return models.Investment{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Investment{}, err
	}

	investment.Status = models.InvestmentCompleted
	return investment, nil
}

// IssuePolicy issues a health cover policy against the insurance pool,
// mirroring OpenInvestment's pool-funded and ad-hoc paths.
func IssuePolicy(ctx context.Context, studentID uuid.UUID, provider string, coverageAmount float64, premiumPoints int64, startDate, expiryDate time.Time, adHoc bool) (models.InsurancePolicy, error) {
	if premiumPoints <= 0 {
		return models.InsurancePolicy{}, errs.Validation("premium must be positive")
	}
	if !expiryDate.After(startDate) {
		return models.InsurancePolicy{}, errs.Validation("expiry must be after start")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.InsurancePolicy{}, err
	}

	b, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	policy := models.InsurancePolicy{
		ID:             uuid.New(),
		StudentID:      studentID,
		Provider:       provider,
		CoverageAmount: coverageAmount,
		PremiumPoints:  premiumPoints,
		StartDate:      startDate,
		ExpiryDate:     expiryDate,
		Status:         models.PolicyActive,
	}

	if adHoc {
		if premiumPoints > b.Available {
			tx.Rollback()
			return models.InsurancePolicy{}, errs.InsufficientBalance(premiumPoints, b.Available)
		}

		b.Available -= premiumPoints
		if err = postTransaction(ctx, tx, studentID, models.TxEarned, -premiumPoints,
			fmt.Sprintf("Reallocated to policy %s", policy.ID), CategoryInsurance, "", b.Available); err != nil {
			tx.Rollback()
			return models.InsurancePolicy{}, err
		}

		b.Insurance += premiumPoints
		if err = postTransaction(ctx, tx, studentID, models.TxInsurance, premiumPoints,
			fmt.Sprintf("Ad-hoc premium for policy %s", policy.ID), CategoryInsurance, "", b.Insurance); err != nil {
			tx.Rollback()
			return models.InsurancePolicy{}, err
		}

		if err = saveBalances(ctx, tx, studentID, b); err != nil {
			tx.Rollback()
			return models.InsurancePolicy{}, err
		}
	} else {
		committed, err := committedPremiums(ctx, tx, studentID)
		if err != nil {
			tx.Rollback()
			return models.InsurancePolicy{}, err
		}
		if premiumPoints > b.Insurance-committed {
			tx.Rollback()
			return models.InsurancePolicy{}, errs.InsufficientBalance(premiumPoints, b.Insurance-committed)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO insurance_policies (id, student_id, provider, coverage_amount, premium_points, start_date, expiry_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, policy.ID, policy.StudentID, policy.Provider, policy.CoverageAmount,
		policy.PremiumPoints, policy.StartDate, policy.ExpiryDate, policy.Status)
	if err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.InsurancePolicy{}, err
	}

	return policy, nil
}

// ExpirePolicy closes a policy; the premium is consumed and leaves the
// insurance pool through a ledger line.
func ExpirePolicy(ctx context.Context, policyID uuid.UUID) (models.InsurancePolicy, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.InsurancePolicy{}, err
	}

	var policy models.InsurancePolicy
	err = tx.QueryRowContext(ctx, `
		SELECT id, student_id, provider, coverage_amount, premium_points, start_date, expiry_date, status
		FROM insurance_policies WHERE id = $1 FOR UPDATE;
	`, policyID).Scan(&policy.ID, &policy.StudentID, &policy.Provider, &policy.CoverageAmount,
		&policy.PremiumPoints, &policy.StartDate, &policy.ExpiryDate, &policy.Status)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return models.InsurancePolicy{}, errs.NotFound("policy", policyID.String())
		}
		return models.InsurancePolicy{}, err
	}

	if policy.Status != models.PolicyActive {
		tx.Rollback()
		return models.InsurancePolicy{}, errs.InvalidTransition("policy", policy.Status, models.PolicyExpired)
	}

	b, err := lockStudent(ctx, tx, policy.StudentID)
	if err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	b.Insurance -= policy.PremiumPoints
	if err = postTransaction(ctx, tx, policy.StudentID, models.TxInsurance, -policy.PremiumPoints,
		fmt.Sprintf("Premium consumed on expiry of policy %s", policy.ID), CategoryInsurance, "", b.Insurance); err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	if err = saveBalances(ctx, tx, policy.StudentID, b); err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE insurance_policies SET status = $1 WHERE id = $2;
	`, models.PolicyExpired, policyID)
	if err != nil {
		tx.Rollback()
		return models.InsurancePolicy{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.InsurancePolicy{}, err
	}

	policy.Status = models.PolicyExpired
	return policy, nil
}

// CreateWithdrawal reserves the amount by decrementing the available
// balance. No ledger line posts yet: the withdrawn transaction appears only
// on process, so a rejection restores the balance without a compensating
// reversal.
func CreateWithdrawal(ctx context.Context, studentID uuid.UUID, amount int64, reason, bankDetails string) (models.WithdrawalRequest, error) {
	if amount <= 0 {
		return models.WithdrawalRequest{}, errs.Validation("withdrawal amount must be positive")
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	b, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if amount > b.Available {
		tx.Rollback()
		return models.WithdrawalRequest{}, errs.InsufficientBalance(amount, b.Available)
	}

	request := models.WithdrawalRequest{
		ID:          uuid.New(),
		StudentID:   studentID,
		Amount:      amount,
		Reason:      reason,
		BankDetails: bankDetails,
		Status:      models.WithdrawalPending,
		RequestedAt: time.Now().UTC(),
	}

	b.Available -= amount
	if err = saveBalances(ctx, tx, studentID, b); err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (id, student_id, amount, reason, bank_details, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, request.ID, request.StudentID, request.Amount, request.Reason,
		request.BankDetails, request.Status, request.RequestedAt)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.WithdrawalRequest{}, err
	}

	return request, nil
}

func lockWithdrawal(ctx context.Context, tx *sql.Tx, requestID uuid.UUID) (models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	var processedAt sql.NullTime

	err := tx.QueryRowContext(ctx, `
		SELECT id, student_id, amount, reason, bank_details, status, requested_at, processed_at
		FROM withdrawal_requests WHERE id = $1 FOR UPDATE;
	`, requestID).Scan(&request.ID, &request.StudentID, &request.Amount, &request.Reason,
		&request.BankDetails, &request.Status, &request.RequestedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WithdrawalRequest{}, errs.NotFound("withdrawal request", requestID.String())
		}
		return models.WithdrawalRequest{}, err
	}

	if processedAt.Valid {
		request.ProcessedAt = &processedAt.Time
	}

	return request, nil
}

// ProcessWithdrawal finalizes the payout: the withdrawn ledger line posts
// now, against the balance that was already reserved at request time.
func ProcessWithdrawal(ctx context.Context, requestID uuid.UUID) (models.WithdrawalRequest, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	request, err := lockWithdrawal(ctx, tx, requestID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if request.Status != models.WithdrawalPending {
		tx.Rollback()
		return models.WithdrawalRequest{}, errs.InvalidTransition("withdrawal request", request.Status, models.WithdrawalProcessed)
	}

	b, err := lockStudent(ctx, tx, request.StudentID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	// The reservation releases at ProcessedAt; the ledger line must not
	// predate it or verification would still count the hold against it.
	now := time.Now().UTC()
	if err = postTransaction(ctx, tx, request.StudentID, models.TxWithdrawn, -request.Amount,
		fmt.Sprintf("Withdrawal %s processed", request.ID), CategoryWithdrawal, "", b.Available); err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE withdrawal_requests SET status = $1, processed_at = $2 WHERE id = $3;
	`, models.WithdrawalProcessed, now, requestID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.WithdrawalRequest{}, err
	}

	request.Status = models.WithdrawalProcessed
	request.ProcessedAt = &now
	return request, nil
}

// RejectWithdrawal releases the reservation back to the available balance.
func RejectWithdrawal(ctx context.Context, requestID uuid.UUID) (models.WithdrawalRequest, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	request, err := lockWithdrawal(ctx, tx, requestID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if request.Status != models.WithdrawalPending {
		tx.Rollback()
		return models.WithdrawalRequest{}, errs.InvalidTransition("withdrawal request", request.Status, models.WithdrawalRejected)
	}

	b, err := lockStudent(ctx, tx, request.StudentID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	b.Available += request.Amount
	if err = saveBalances(ctx, tx, request.StudentID, b); err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE withdrawal_requests SET status = $1, processed_at = $2 WHERE id = $3;
	`, models.WithdrawalRejected, now, requestID)
	if err != nil {
		tx.Rollback()
		return models.WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.WithdrawalRequest{}, err
	}

	request.Status = models.WithdrawalRejected
	request.ProcessedAt = &now
	return request, nil
}

func GetStudentWithdrawals(ctx context.Context, studentID uuid.UUID) ([]models.WithdrawalRequest, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, student_id, amount, reason, bank_details, status, requested_at, processed_at
		FROM withdrawal_requests WHERE student_id = $1 ORDER BY requested_at DESC;
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.WithdrawalRequest
	for rows.Next() {
		var request models.WithdrawalRequest
		var processedAt sql.NullTime

		err = rows.Scan(&request.ID, &request.StudentID, &request.Amount, &request.Reason,
			&request.BankDetails, &request.Status, &request.RequestedAt, &processedAt)
		if err != nil {
			return nil, err
		}
		if processedAt.Valid {
			request.ProcessedAt = &processedAt.Time
		}

		requests = append(requests, request)
	}

	return requests, rows.Err()
}

func GetStudentInvestments(ctx context.Context, studentID uuid.UUID) ([]models.Investment, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, student_id, amount, platform, expected_return, maturity_date, status, created_at
		FROM investments WHERE student_id = $1 ORDER BY created_at DESC;
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investments []models.Investment
	for rows.Next() {
		var investment models.Investment
		err = rows.Scan(&investment.ID, &investment.StudentID, &investment.Amount, &investment.Platform,
			&investment.ExpectedReturn, &investment.MaturityDate, &investment.Status, &investment.CreatedAt)
		if err != nil {
			return nil, err
		}
		investments = append(investments, investment)
	}

	return investments, rows.Err()
}

func GetStudentPolicies(ctx context.Context, studentID uuid.UUID) ([]models.InsurancePolicy, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, student_id, provider, coverage_amount, premium_points, start_date, expiry_date, status
		FROM insurance_policies WHERE student_id = $1 ORDER BY start_date DESC;
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.InsurancePolicy
	for rows.Next() {
		var policy models.InsurancePolicy
		err = rows.Scan(&policy.ID, &policy.StudentID, &policy.Provider, &policy.CoverageAmount,
			&policy.PremiumPoints, &policy.StartDate, &policy.ExpiryDate, &policy.Status)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}

	return policies, rows.Err()
}
