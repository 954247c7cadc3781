package sponsorship_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/sponsorship"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "ActiveToOptOutPending", from: models.SponsorshipActive, to: models.SponsorshipOptOutPending, want: true},
		{name: "ActiveToCancelled", from: models.SponsorshipActive, to: models.SponsorshipCancelled, want: true},
		{name: "ActiveToEnded", from: models.SponsorshipActive, to: models.SponsorshipEnded, want: false},
		{name: "OptOutPendingToActive", from: models.SponsorshipOptOutPending, to: models.SponsorshipActive, want: true},
		{name: "OptOutPendingToEnded", from: models.SponsorshipOptOutPending, to: models.SponsorshipEnded, want: true},
		{name: "OptOutPendingToCancelled", from: models.SponsorshipOptOutPending, to: models.SponsorshipCancelled, want: true},
		{name: "EndedIsTerminal", from: models.SponsorshipEnded, to: models.SponsorshipActive, want: false},
		{name: "CancelledIsTerminal", from: models.SponsorshipCancelled, to: models.SponsorshipActive, want: false},
		{name: "UnknownStatus", from: "archived", to: models.SponsorshipActive, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sponsorship.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFunding(t *testing.T) {
	assert.True(t, sponsorship.Funding(models.SponsorshipActive))
	assert.True(t, sponsorship.Funding(models.SponsorshipOptOutPending))
	assert.False(t, sponsorship.Funding(models.SponsorshipEnded))
	assert.False(t, sponsorship.Funding(models.SponsorshipCancelled))
}

func TestOptOutEffective(t *testing.T) {
	tests := []struct {
		name        string
		requestedAt time.Time
		want        time.Time
	}{
		{
			name:        "MidMonth",
			requestedAt: time.Date(2026, 8, 14, 9, 30, 0, 0, time.UTC),
			want:        time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC),
		},
		{
			name:        "YearBoundary",
			requestedAt: time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC),
			want:        time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			// AddDate normalizes Feb 31 forward; a Jan 31 request lapses in
			// early March rather than on a nonexistent February date.
			name:        "ShortMonthNormalizes",
			requestedAt: time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC),
			want:        time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sponsorship.OptOutEffective(tt.requestedAt))
		})
	}
}

func TestLapsed(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name        string
		status      string
		effectiveAt *time.Time
		want        bool
	}{
		{name: "PastEffectiveDate", status: models.SponsorshipOptOutPending, effectiveAt: &past, want: true},
		{name: "ExactlyAtEffectiveDate", status: models.SponsorshipOptOutPending, effectiveAt: &now, want: true},
		{name: "FutureEffectiveDate", status: models.SponsorshipOptOutPending, effectiveAt: &future, want: false},
		{name: "ActiveNeverLapses", status: models.SponsorshipActive, effectiveAt: &past, want: false},
		{name: "MissingEffectiveDate", status: models.SponsorshipOptOutPending, effectiveAt: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.Sponsorship{Status: tt.status, OptOutEffectiveDate: tt.effectiveAt}
			assert.Equal(t, tt.want, sponsorship.Lapsed(s, now))
		})
	}
}
