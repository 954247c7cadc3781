package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/internal/errs"
	"github.com/edupoints/edupoints/internal/models"
)

func TestCreateSponsorship(t *testing.T) {
	donorID := uuid.New()
	studentID := uuid.New()

	t.Run("FirstAssignmentApprovesPendingStudent", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StudentPending))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(studentID, models.SponsorshipActive, models.SponsorshipOptOutPending).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO sponsorships`).
			WithArgs(sqlmock.AnyArg(), donorID, studentID, models.SponsorshipActive,
				sqlmock.AnyArg(), 50.0, int64(10000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE students SET status = \$1`).
			WithArgs(models.StudentApproved, studentID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s, err := CreateSponsorship(context.Background(), donorID, studentID, 50.0, 10000)
		require.NoError(t, err)
		assert.Equal(t, models.SponsorshipActive, s.Status)
		assert.Equal(t, int64(10000), s.MonthlyPoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExistingActiveSponsorshipConflicts", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StudentApproved))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(studentID, models.SponsorshipActive, models.SponsorshipOptOutPending).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := CreateSponsorship(context.Background(), donorID, studentID, 50.0, 10000)
		assert.ErrorIs(t, err, errs.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// Two donors race past the EXISTS check; the partial unique index rejects
	// the second insert and it surfaces as the same conflict.
	t.Run("ConcurrentInsertHitsUniqueIndex", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StudentApproved))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(studentID, models.SponsorshipActive, models.SponsorshipOptOutPending).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO sponsorships`).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err := CreateSponsorship(context.Background(), donorID, studentID, 50.0, 10000)
		assert.ErrorIs(t, err, errs.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectedStudentIsNotSponsorable", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM students WHERE id = \$1 FOR UPDATE`).
			WithArgs(studentID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.StudentRejected))
		mock.ExpectRollback()

		_, err := CreateSponsorship(context.Background(), donorID, studentID, 50.0, 10000)
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
