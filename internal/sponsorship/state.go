// Package sponsorship holds the lifecycle rules of a donor-student
// sponsorship: which status transitions are legal and how the opt-out
// notice period is computed.
package sponsorship

import (
	"time"

	"github.com/edupoints/edupoints/internal/models"
)

// transitions lists the legal moves of the sponsorship state machine.
// Ended and cancelled are terminal.
var transitions = map[string][]string{
	models.SponsorshipActive: {
		models.SponsorshipOptOutPending,
		models.SponsorshipCancelled,
	},
	models.SponsorshipOptOutPending: {
		models.SponsorshipActive,
		models.SponsorshipEnded,
		models.SponsorshipCancelled,
	},
}

func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Funding reports whether a sponsorship in the given status still funds the
// student. Opt-out-pending keeps funding for the notice month.
func Funding(status string) bool {
	return status == models.SponsorshipActive || status == models.SponsorshipOptOutPending
}

// OptOutEffective computes the end of the mandatory notice period: one
// calendar month after the request.
func OptOutEffective(requestedAt time.Time) time.Time {
	return requestedAt.AddDate(0, 1, 0)
}

// Lapsed reports whether an opt-out-pending sponsorship's notice period has
// passed and it should be ended by the sweep.
func Lapsed(s models.Sponsorship, now time.Time) bool {
	if s.Status != models.SponsorshipOptOutPending || s.OptOutEffectiveDate == nil {
		return false
	}
	return !now.Before(*s.OptOutEffectiveDate)
}
