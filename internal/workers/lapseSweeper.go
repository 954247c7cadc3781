package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/notify"
	"github.com/edupoints/edupoints/internal/storage"
)

// The sweep reaches storage through this hook so tests can observe the
// worker without a database.
var lapseExpired func(ctx context.Context, now time.Time) ([]models.Sponsorship, error) = storage.LapseExpired

// InitLapseSweeper starts the background sweep that ends opt-out-pending
// sponsorships whose notice period has passed. Lapsed students re-enter the
// available pool on the next sweep tick.
func InitLapseSweeper() {
	go startSweeper()

	logger.Log.Info("Opt-out lapse sweeper started",
		zap.Duration("interval", config.SweepInterval))
}

func startSweeper() {
	ticker := time.NewTicker(config.SweepInterval)
	for range ticker.C {
		sweepLapsed()
	}
}

func sweepLapsed() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	lapsed, err := lapseExpired(ctx, time.Now().UTC())
	if err != nil {
		logger.Log.Error("Error sweeping lapsed sponsorships", zap.Error(err))
		return
	}

	for _, s := range lapsed {
		logger.Log.Info("Sponsorship lapsed",
			zap.String("sponsorshipID", s.ID.String()),
			zap.String("studentID", s.StudentID.String()))

		notify.Send(notify.RecipientDonor, s.DonorID, notify.EventSponsorshipEnded, s.ID.String())
		notify.Send(notify.RecipientStudent, s.StudentID, notify.EventSponsorshipEnded, s.ID.String())
	}
}
