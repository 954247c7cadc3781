package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/sponsorship"
)

const sponsorshipColumns = `id, donor_id, student_id, status, start_date, end_date,
	monthly_amount, monthly_points, student_info_hidden,
	opt_out_requested_date, opt_out_effective_date, opt_out_reason`

func scanSponsorship(scan func(dest ...any) error) (models.Sponsorship, error) {
	var s models.Sponsorship
	var endDate, requestedDate, effectiveDate sql.NullTime

	err := scan(&s.ID, &s.DonorID, &s.StudentID, &s.Status, &s.StartDate, &endDate,
		&s.MonthlyAmount, &s.MonthlyPoints, &s.StudentInfoHidden,
		&requestedDate, &effectiveDate, &s.OptOutReason)
	if err != nil {
		return models.Sponsorship{}, err
	}

	if endDate.Valid {
		s.EndDate = &endDate.Time
	}
	if requestedDate.Valid {
		s.OptOutRequestedDate = &requestedDate.Time
	}
	if effectiveDate.Valid {
		s.OptOutEffectiveDate = &effectiveDate.Time
	}

	return s, nil
}

// CreateSponsorship binds a donor to a student. The student row lock
// serializes concurrent creates for the same student; the partial unique
// index on sponsorships is the backstop. A pending student becomes approved
// on first assignment.
func CreateSponsorship(ctx context.Context, donorID, studentID uuid.UUID, monthlyAmount float64, monthlyPoints int64) (models.Sponsorship, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Sponsorship{}, err
	}

	var studentStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM students WHERE id = $1 FOR UPDATE;
	`, studentID).Scan(&studentStatus)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return models.Sponsorship{}, errs.NotFound("student", studentID.String())
		}
		return models.Sponsorship{}, err
	}

	if studentStatus == models.StudentRejected {
		tx.Rollback()
		return models.Sponsorship{}, errs.Validation("student is rejected")
	}

	var taken bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sponsorships WHERE student_id = $1 AND status IN ($2, $3)
		);
	`, studentID, models.SponsorshipActive, models.SponsorshipOptOutPending).Scan(&taken)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}
	if taken {
		tx.Rollback()
		return models.Sponsorship{}, errs.Conflict("student already has an active sponsorship")
	}

	s := models.Sponsorship{
		ID:            uuid.New(),
		DonorID:       donorID,
		StudentID:     studentID,
		Status:        models.SponsorshipActive,
		StartDate:     time.Now().UTC(),
		MonthlyAmount: monthlyAmount,
		MonthlyPoints: monthlyPoints,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sponsorships (id, donor_id, student_id, status, start_date, monthly_amount, monthly_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, s.ID, s.DonorID, s.StudentID, s.Status, s.StartDate, s.MonthlyAmount, s.MonthlyPoints)
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return models.Sponsorship{}, errs.Conflict("student already has an active sponsorship")
		}
		return models.Sponsorship{}, err
	}

	if studentStatus == models.StudentPending {
		_, err = tx.ExecContext(ctx, `
			UPDATE students SET status = $1 WHERE id = $2;
		`, models.StudentApproved, studentID)
		if err != nil {
			tx.Rollback()
			return models.Sponsorship{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Sponsorship{}, err
	}

	return s, nil
}

func GetSponsorship(ctx context.Context, sponsorshipID uuid.UUID) (models.Sponsorship, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT `+sponsorshipColumns+` FROM sponsorships WHERE id = $1;
	`, sponsorshipID)

	s, err := scanSponsorship(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Sponsorship{}, errs.NotFound("sponsorship", sponsorshipID.String())
		}
		return models.Sponsorship{}, err
	}

	return s, nil
}

func GetDonorSponsorships(ctx context.Context, donorID uuid.UUID) ([]models.Sponsorship, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT `+sponsorshipColumns+` FROM sponsorships WHERE donor_id = $1 ORDER BY start_date;
	`, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sponsorships []models.Sponsorship
	for rows.Next() {
		s, err := scanSponsorship(rows.Scan)
		if err != nil {
			return nil, err
		}
		sponsorships = append(sponsorships, s)
	}

	return sponsorships, rows.Err()
}

// lockSponsorship reads a sponsorship FOR UPDATE inside tx so status
// transitions serialize.
func lockSponsorship(ctx context.Context, tx *sql.Tx, sponsorshipID uuid.UUID) (models.Sponsorship, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+sponsorshipColumns+` FROM sponsorships WHERE id = $1 FOR UPDATE;
	`, sponsorshipID)

	s, err := scanSponsorship(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Sponsorship{}, errs.NotFound("sponsorship", sponsorshipID.String())
		}
		return models.Sponsorship{}, err
	}

	return s, nil
}

// RequestOptOut starts the one-month notice period. Funding continues until
// the effective date; the student is hidden from the available pool for
// everyone in the meantime.
func RequestOptOut(ctx context.Context, sponsorshipID, donorID uuid.UUID, reason string, now time.Time) (models.Sponsorship, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Sponsorship{}, err
	}

	s, err := lockSponsorship(ctx, tx, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if s.DonorID != donorID {
		tx.Rollback()
		return models.Sponsorship{}, errs.NotFound("sponsorship", sponsorshipID.String())
	}

	if s.Status != models.SponsorshipActive {
		tx.Rollback()
		return models.Sponsorship{}, errs.InvalidTransition("sponsorship", s.Status, models.SponsorshipOptOutPending)
	}

	effective := sponsorship.OptOutEffective(now)

	_, err = tx.ExecContext(ctx, `
		UPDATE sponsorships
		SET status = $1, student_info_hidden = TRUE,
			opt_out_requested_date = $2, opt_out_effective_date = $3, opt_out_reason = $4
		WHERE id = $5;
	`, models.SponsorshipOptOutPending, now, effective, reason, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Sponsorship{}, err
	}

	s.Status = models.SponsorshipOptOutPending
	s.StudentInfoHidden = true
	s.OptOutRequestedDate = &now
	s.OptOutEffectiveDate = &effective
	s.OptOutReason = reason
	return s, nil
}

// CancelOptOut reverts an opt-out-pending sponsorship to active and clears
// the opt-out fields.
func CancelOptOut(ctx context.Context, sponsorshipID, donorID uuid.UUID) (models.Sponsorship, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Sponsorship{}, err
	}

	s, err := lockSponsorship(ctx, tx, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if s.DonorID != donorID {
		tx.Rollback()
		return models.Sponsorship{}, errs.NotFound("sponsorship", sponsorshipID.String())
	}

	if s.Status != models.SponsorshipOptOutPending {
		tx.Rollback()
		return models.Sponsorship{}, errs.InvalidTransition("sponsorship", s.Status, models.SponsorshipActive)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sponsorships
		SET status = $1, student_info_hidden = FALSE,
			opt_out_requested_date = NULL, opt_out_effective_date = NULL, opt_out_reason = ''
		WHERE id = $2;
	`, models.SponsorshipActive, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Sponsorship{}, err
	}

	s.Status = models.SponsorshipActive
	s.StudentInfoHidden = false
	s.OptOutRequestedDate = nil
	s.OptOutEffectiveDate = nil
	s.OptOutReason = ""
	return s, nil
}

// ForceRemove cancels a sponsorship immediately with no notice period.
// Administrative path.
func ForceRemove(ctx context.Context, sponsorshipID uuid.UUID) (models.Sponsorship, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Sponsorship{}, err
	}

	s, err := lockSponsorship(ctx, tx, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if !sponsorship.CanTransition(s.Status, models.SponsorshipCancelled) {
		tx.Rollback()
		return models.Sponsorship{}, errs.InvalidTransition("sponsorship", s.Status, models.SponsorshipCancelled)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE sponsorships SET status = $1, end_date = $2, student_info_hidden = FALSE WHERE id = $3;
	`, models.SponsorshipCancelled, now, sponsorshipID)
	if err != nil {
		tx.Rollback()
		return models.Sponsorship{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Sponsorship{}, err
	}

	s.Status = models.SponsorshipCancelled
	s.EndDate = &now
	s.StudentInfoHidden = false
	return s, nil
}

// LapseExpired ends every opt-out-pending sponsorship whose effective date
// has passed and returns the ended rows so the caller can notify. Driven by
// the periodic sweep worker.
func LapseExpired(ctx context.Context, now time.Time) ([]models.Sponsorship, error) {
	rows, err := DB.QueryContext(ctx, `
		UPDATE sponsorships
		SET status = $1, end_date = opt_out_effective_date, student_info_hidden = FALSE
		WHERE status = $2 AND opt_out_effective_date <= $3
		RETURNING `+sponsorshipColumns+`;
	`, models.SponsorshipEnded, models.SponsorshipOptOutPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lapsed []models.Sponsorship
	for rows.Next() {
		s, err := scanSponsorship(rows.Scan)
		if err != nil {
			return nil, err
		}
		lapsed = append(lapsed, s)
	}

	return lapsed, rows.Err()
}

// FundingSponsorships returns the donor's sponsorships that still fund their
// student: active ones and those inside the opt-out notice month.
func FundingSponsorships(ctx context.Context, donorID uuid.UUID) ([]models.Sponsorship, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT `+sponsorshipColumns+` FROM sponsorships
		WHERE donor_id = $1 AND status IN ($2, $3) ORDER BY start_date;
	`, donorID, models.SponsorshipActive, models.SponsorshipOptOutPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sponsorships []models.Sponsorship
	for rows.Next() {
		s, err := scanSponsorship(rows.Scan)
		if err != nil {
			return nil, err
		}
		sponsorships = append(sponsorships, s)
	}

	return sponsorships, rows.Err()
}

// ListAvailableStudents is a pure query over current sponsorship state:
// approved students with no sponsorship in active or opt-out-pending.
// Opt-out-pending excludes the student for every donor, not just the
// departing one.
func ListAvailableStudents(ctx context.Context) ([]models.Student, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT `+studentColumns+` FROM students s
		WHERE s.status = $1 AND NOT EXISTS (
			SELECT 1 FROM sponsorships sp
			WHERE sp.student_id = s.id AND sp.status IN ($2, $3)
		)
		ORDER BY s.created_at;
	`, models.StudentApproved, models.SponsorshipActive, models.SponsorshipOptOutPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var student models.Student
		var educationJSON []byte

		err = rows.Scan(&student.ID, &student.Name, &student.Status, &educationJSON,
			&student.TotalPoints, &student.AvailablePoints, &student.InvestedPoints, &student.InsurancePoints,
			&student.SpendablePct, &student.InvestedPct, &student.InsurancePct, &student.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(educationJSON, &student.Education); err != nil {
			return nil, err
		}

		students = append(students, student)
	}

	return students, rows.Err()
}
