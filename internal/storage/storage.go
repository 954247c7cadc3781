package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/logger"
)

var (
	DB                     *sql.DB
	ErrConnectionFailed    = errors.New("db connection failed")
	ErrCreatingTableFailed = errors.New("creating table failed")
)

func Init() error {
	if config.DatabaseURI == "" {
		return ErrConnectionFailed
	}

	db, err := sql.Open("pgx", config.DatabaseURI)
	if err != nil {
		logger.Log.Error("Error opening database connection", zap.Error(err))
		return ErrConnectionFailed
	}
	DB = db

	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY NOT NULL,
			login VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS donors (
			id UUID PRIMARY KEY NOT NULL REFERENCES users(id),
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			monthly_amount DECIMAL(12, 2) NOT NULL DEFAULT 50.00,
			total_donated DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			total_points_generated BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS students (
			id UUID PRIMARY KEY NOT NULL,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			education JSONB NOT NULL DEFAULT '{}',
			total_points BIGINT NOT NULL DEFAULT 0,
			available_points BIGINT NOT NULL DEFAULT 0,
			invested_points BIGINT NOT NULL DEFAULT 0,
			insurance_points BIGINT NOT NULL DEFAULT 0,
			spendable_pct SMALLINT,
			invested_pct SMALLINT,
			insurance_pct SMALLINT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sponsorships (
			id UUID PRIMARY KEY NOT NULL,
			donor_id UUID NOT NULL REFERENCES donors(id),
			student_id UUID NOT NULL REFERENCES students(id),
			status VARCHAR(20) NOT NULL,
			start_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			end_date TIMESTAMP,
			monthly_amount DECIMAL(12, 2) NOT NULL,
			monthly_points BIGINT NOT NULL,
			student_info_hidden BOOLEAN NOT NULL DEFAULT FALSE,
			opt_out_requested_date TIMESTAMP,
			opt_out_effective_date TIMESTAMP,
			opt_out_reason TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS sponsorships_one_per_student
			ON sponsorships (student_id)
			WHERE status IN ('active', 'opt_out_pending');`,
		`CREATE TABLE IF NOT EXISTS points_transactions (
			id UUID PRIMARY KEY NOT NULL,
			student_id UUID NOT NULL REFERENCES students(id),
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category VARCHAR(50) NOT NULL DEFAULT '',
			period_key VARCHAR(100) NOT NULL DEFAULT '',
			running_balance BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS points_transactions_period
			ON points_transactions (period_key, type)
			WHERE period_key <> '';`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id UUID PRIMARY KEY NOT NULL,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL DEFAULT '',
			unit_points BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id UUID PRIMARY KEY NOT NULL,
			student_id UUID NOT NULL REFERENCES students(id),
			vendor_id UUID,
			total_points BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			delivery_method VARCHAR(20) NOT NULL,
			delivery_address TEXT NOT NULL DEFAULT '',
			fulfillment_token TEXT NOT NULL,
			requested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			approved_at TIMESTAMP,
			fulfilled_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS purchase_order_items (
			id SERIAL PRIMARY KEY NOT NULL,
			order_id UUID NOT NULL REFERENCES purchase_orders(id),
			item_id UUID NOT NULL REFERENCES catalog_items(id),
			quantity INT NOT NULL,
			unit_points BIGINT NOT NULL,
			line_points BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS investments (
			id UUID PRIMARY KEY NOT NULL,
			student_id UUID NOT NULL REFERENCES students(id),
			amount BIGINT NOT NULL,
			platform VARCHAR(255) NOT NULL,
			expected_return DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			maturity_date TIMESTAMP NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS insurance_policies (
			id UUID PRIMARY KEY NOT NULL,
			student_id UUID NOT NULL REFERENCES students(id),
			provider VARCHAR(255) NOT NULL,
			coverage_amount DECIMAL(12, 2) NOT NULL,
			premium_points BIGINT NOT NULL,
			start_date TIMESTAMP NOT NULL,
			expiry_date TIMESTAMP NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id UUID PRIMARY KEY NOT NULL,
			student_id UUID NOT NULL REFERENCES students(id),
			amount BIGINT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			bank_details TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			requested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at TIMESTAMP
		);`,
	}

	for _, table := range tables {
		if _, err := DB.Exec(table); err != nil {
			logger.Log.Error("Error creating table", zap.Error(err))
			return ErrCreatingTableFailed
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a postgres unique constraint
// violation (SQLSTATE 23505), the backstop behind check-then-insert paths.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// balances is the locked view of one student's point balances inside a
// transaction. Every ledger-mutating operation goes through lockStudent so
// concurrent operations on the same student serialize on the row lock.
type balances struct {
	Total     int64
	Available int64
	Invested  int64
	Insurance int64
}

func lockStudent(ctx context.Context, tx *sql.Tx, studentID uuid.UUID) (balances, error) {
	var b balances

	err := tx.QueryRowContext(ctx, `
		SELECT total_points, available_points, invested_points, insurance_points
		FROM students WHERE id = $1 FOR UPDATE;
	`, studentID).Scan(&b.Total, &b.Available, &b.Invested, &b.Insurance)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, errs.NotFound("student", studentID.String())
		}
		return b, err
	}

	return b, nil
}

func saveBalances(ctx context.Context, tx *sql.Tx, studentID uuid.UUID, b balances) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE students
		SET total_points = $1, available_points = $2, invested_points = $3, insurance_points = $4
		WHERE id = $5;
	`, b.Total, b.Available, b.Invested, b.Insurance, studentID)
	return err
}

// postTransaction appends one immutable ledger line inside tx. The caller
// supplies the running balance it computed under the student row lock.
func postTransaction(ctx context.Context, tx *sql.Tx, studentID uuid.UUID, txType string, amount int64, description, category, periodKey string, runningBalance int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO points_transactions (id, student_id, type, amount, description, category, period_key, running_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, uuid.New(), studentID, txType, amount, description, category, periodKey, runningBalance, time.Now().UTC())
	return err
}
