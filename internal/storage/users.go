package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
)

func GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	var user models.User

	err := DB.QueryRowContext(ctx, `
		SELECT id, login, password_hash, role, created_at FROM users WHERE login = $1;
	`, login).Scan(&user.ID, &user.Login, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return models.User{}, err
		}
	}

	return user, nil
}

// CreateUser inserts the account row and, in the same transaction, the
// role-specific profile row (donor or student).
func CreateUser(ctx context.Context, userID uuid.UUID, login, passwordHash, role, name string, education models.EducationDetails) error {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, login, password_hash, role) VALUES ($1, $2, $3, $4);
	`, userID, login, passwordHash, role)
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return errs.Conflict("login already taken")
		}
		return err
	}

	switch role {
	case models.RoleDonor:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO donors (id, name) VALUES ($1, $2);
		`, userID, name)
	case models.RoleStudent:
		var educationJSON []byte
		educationJSON, err = json.Marshal(education)
		if err == nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO students (id, name, education) VALUES ($1, $2, $3);
			`, userID, name, educationJSON)
		}
	}
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func GetDonor(ctx context.Context, donorID uuid.UUID) (models.Donor, error) {
	var donor models.Donor

	err := DB.QueryRowContext(ctx, `
		SELECT id, name, status, monthly_amount, total_donated, total_points_generated, created_at
		FROM donors WHERE id = $1;
	`, donorID).Scan(&donor.ID, &donor.Name, &donor.Status, &donor.MonthlyAmount,
		&donor.TotalDonated, &donor.TotalPoints, &donor.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Donor{}, errs.NotFound("donor", donorID.String())
		}
		return models.Donor{}, err
	}

	return donor, nil
}

func scanStudent(row *sql.Row) (models.Student, error) {
	var student models.Student
	var educationJSON []byte

	err := row.Scan(&student.ID, &student.Name, &student.Status, &educationJSON,
		&student.TotalPoints, &student.AvailablePoints, &student.InvestedPoints, &student.InsurancePoints,
		&student.SpendablePct, &student.InvestedPct, &student.InsurancePct, &student.CreatedAt)
	if err != nil {
		return models.Student{}, err
	}

	if err := json.Unmarshal(educationJSON, &student.Education); err != nil {
		return models.Student{}, err
	}

	return student, nil
}

const studentColumns = `id, name, status, education, total_points, available_points,
	invested_points, insurance_points, spendable_pct, invested_pct, insurance_pct, created_at`

func GetStudent(ctx context.Context, studentID uuid.UUID) (models.Student, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE id = $1;
	`, studentID)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Student{}, errs.NotFound("student", studentID.String())
		}
		return models.Student{}, err
	}

	return student, nil
}

// ApproveStudent is the administrative approval path; approval also happens
// implicitly on first sponsorship assignment.
func ApproveStudent(ctx context.Context, studentID uuid.UUID) error {
	result, err := DB.ExecContext(ctx, `
		UPDATE students SET status = $1 WHERE id = $2 AND status = $3;
	`, models.StudentApproved, studentID, models.StudentPending)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		student, err := GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		return errs.InvalidTransition("student", student.Status, models.StudentApproved)
	}

	return nil
}

func RejectStudent(ctx context.Context, studentID uuid.UUID) error {
	result, err := DB.ExecContext(ctx, `
		UPDATE students SET status = $1 WHERE id = $2 AND status = $3;
	`, models.StudentRejected, studentID, models.StudentPending)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		student, err := GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		return errs.InvalidTransition("student", student.Status, models.StudentRejected)
	}

	return nil
}
