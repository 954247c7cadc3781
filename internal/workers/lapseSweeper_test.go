package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/edupoints/edupoints/internal/models"
)

func TestSweepLapsed(t *testing.T) {
	original := lapseExpired
	defer func() { lapseExpired = original }()

	t.Run("PassesCurrentTime", func(t *testing.T) {
		var gotNow time.Time
		lapseExpired = func(ctx context.Context, now time.Time) ([]models.Sponsorship, error) {
			gotNow = now
			return nil, nil
		}

		before := time.Now().UTC()
		sweepLapsed()

		assert.False(t, gotNow.Before(before))
		assert.False(t, gotNow.After(time.Now().UTC()))
	})

	t.Run("NotifiesBothParties", func(t *testing.T) {
		lapsed := []models.Sponsorship{
			{ID: uuid.New(), DonorID: uuid.New(), StudentID: uuid.New(), Status: models.SponsorshipEnded},
			{ID: uuid.New(), DonorID: uuid.New(), StudentID: uuid.New(), Status: models.SponsorshipEnded},
		}
		lapseExpired = func(ctx context.Context, now time.Time) ([]models.Sponsorship, error) {
			return lapsed, nil
		}

		// Notifications are fire-and-forget with no address configured; the
		// sweep must still walk every lapsed row without panicking.
		assert.NotPanics(t, sweepLapsed)
	})

	t.Run("StorageErrorDoesNotPanic", func(t *testing.T) {
		lapseExpired = func(ctx context.Context, now time.Time) ([]models.Sponsorship, error) {
			return nil, errors.New("connection refused")
		}

		assert.NotPanics(t, sweepLapsed)
	})
}
