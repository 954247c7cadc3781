package points_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/points"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name          string
		amount        float64
		pointsPerUnit int64
		want          int64
	}{
		{name: "DefaultPledge", amount: 50, pointsPerUnit: 1000, want: 50000},
		{name: "FractionalRoundsDown", amount: 10.5, pointsPerUnit: 1000, want: 10500},
		{name: "SubPointFraction", amount: 0.0004, pointsPerUnit: 1000, want: 0},
		{name: "Zero", amount: 0, pointsPerUnit: 1000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, points.Convert(tt.amount, tt.pointsPerUnit))
		})
	}
}

func TestPolicy_Valid(t *testing.T) {
	tests := []struct {
		name   string
		policy points.Policy
		want   bool
	}{
		{name: "Default", policy: points.Policy{SpendablePct: 40, InvestedPct: 30, InsurancePct: 30}, want: true},
		{name: "AllSpendable", policy: points.Policy{SpendablePct: 100}, want: true},
		{name: "DoesNotSumTo100", policy: points.Policy{SpendablePct: 40, InvestedPct: 30, InsurancePct: 20}, want: false},
		{name: "NegativePortion", policy: points.Policy{SpendablePct: 140, InvestedPct: -40}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Valid())
		})
	}
}

func TestPolicy_Apportion(t *testing.T) {
	defaultPolicy := points.Policy{SpendablePct: 40, InvestedPct: 30, InsurancePct: 30}

	t.Run("MonthlyPledge", func(t *testing.T) {
		split := defaultPolicy.Apportion(50000)
		assert.Equal(t, int64(20000), split.Spendable)
		assert.Equal(t, int64(15000), split.Invested)
		assert.Equal(t, int64(15000), split.Insurance)
		assert.Equal(t, int64(50000), split.Total())
	})

	t.Run("RemainderGoesToSpendable", func(t *testing.T) {
		split := defaultPolicy.Apportion(101)
		assert.Equal(t, int64(30), split.Invested)
		assert.Equal(t, int64(30), split.Insurance)
		assert.Equal(t, int64(41), split.Spendable)
		assert.Equal(t, int64(101), split.Total())
	})

	t.Run("AlwaysSumsToTotal", func(t *testing.T) {
		for total := int64(0); total < 500; total++ {
			assert.Equal(t, total, defaultPolicy.Apportion(total).Total())
		}
	})
}

func TestPeriodKey(t *testing.T) {
	donorID := uuid.MustParse("6f1b5f7a-6f60-4aa1-8f52-7a33aa6a9b7e")
	studentID := uuid.MustParse("0b9ab9ef-33ba-4a3b-97a9-10d0d4f40c11")

	key := points.PeriodKey(donorID, studentID, time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, donorID.String()+":"+studentID.String()+":2026-08", key)

	t.Run("SameMonthSameKey", func(t *testing.T) {
		early := points.PeriodKey(donorID, studentID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
		late := points.PeriodKey(donorID, studentID, time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC))
		assert.Equal(t, early, late)
	})

	t.Run("DifferentMonthDifferentKey", func(t *testing.T) {
		august := points.PeriodKey(donorID, studentID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
		september := points.PeriodKey(donorID, studentID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
		assert.NotEqual(t, august, september)
	})
}

// ledgerLine builds a transaction n minutes into a fixed timeline.
func ledgerLine(studentID uuid.UUID, txType string, amount, running int64, minute int) models.PointsTransaction {
	return models.PointsTransaction{
		ID:             uuid.New(),
		StudentID:      studentID,
		Type:           txType,
		Amount:         amount,
		RunningBalance: running,
		CreatedAt:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute),
	}
}

func TestReplay(t *testing.T) {
	studentID := uuid.New()

	// Allocation of a 50-unit payment, then a 12000 point checkout, then the
	// order's rejection refund.
	txs := []models.PointsTransaction{
		ledgerLine(studentID, models.TxEarned, 20000, 20000, 0),
		ledgerLine(studentID, models.TxInvested, 15000, 15000, 1),
		ledgerLine(studentID, models.TxInsurance, 15000, 15000, 2),
		ledgerLine(studentID, models.TxSpent, -12000, 8000, 3),
		ledgerLine(studentID, models.TxEarned, 12000, 20000, 4),
	}

	got := points.Replay(txs)
	assert.Equal(t, points.Balances{Available: 20000, Invested: 15000, Insurance: 15000}, got)

	t.Run("OrderIndependent", func(t *testing.T) {
		shuffled := []models.PointsTransaction{txs[4], txs[2], txs[0], txs[3], txs[1]}
		assert.Equal(t, got, points.Replay(shuffled))
	})

	t.Run("WithdrawalLine", func(t *testing.T) {
		withTx := append(append([]models.PointsTransaction{}, txs...),
			ledgerLine(studentID, models.TxWithdrawn, -5000, 15000, 5))
		assert.Equal(t, int64(15000), points.Replay(withTx).Available)
	})
}

func TestVerifyRunningBalances(t *testing.T) {
	studentID := uuid.New()

	good := []models.PointsTransaction{
		ledgerLine(studentID, models.TxEarned, 20000, 20000, 0),
		ledgerLine(studentID, models.TxInvested, 15000, 15000, 1),
		ledgerLine(studentID, models.TxSpent, -12000, 8000, 2),
		ledgerLine(studentID, models.TxEarned, 12000, 20000, 3),
	}
	require.NoError(t, points.VerifyRunningBalances(good, nil))

	t.Run("CorruptRunningBalance", func(t *testing.T) {
		bad := append(append([]models.PointsTransaction{}, good...),
			ledgerLine(studentID, models.TxSpent, -1000, 18000, 4))
		assert.Error(t, points.VerifyRunningBalances(bad, nil))
	})

	t.Run("UnknownType", func(t *testing.T) {
		bad := []models.PointsTransaction{ledgerLine(studentID, "bonus", 10, 10, 0)}
		assert.Error(t, points.VerifyRunningBalances(bad, nil))
	})

	// A withdrawal reservation decrements the stored balance with no ledger
	// line, so lines posted while it is pending record less than pure replay.
	t.Run("SpentDuringPendingReservation", func(t *testing.T) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		txs := []models.PointsTransaction{
			ledgerLine(studentID, models.TxEarned, 20000, 20000, 0),
			ledgerLine(studentID, models.TxSpent, -12000, 3000, 2),
		}
		holds := []points.Reservation{
			{Amount: 5000, RequestedAt: base.Add(time.Minute)},
		}

		assert.Error(t, points.VerifyRunningBalances(txs, nil))
		assert.NoError(t, points.VerifyRunningBalances(txs, holds))
	})

	t.Run("ReservationReleasedByWithdrawnLine", func(t *testing.T) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		released := base.Add(3 * time.Minute)
		txs := []models.PointsTransaction{
			ledgerLine(studentID, models.TxEarned, 20000, 20000, 0),
			ledgerLine(studentID, models.TxSpent, -12000, 3000, 2),
			ledgerLine(studentID, models.TxWithdrawn, -5000, 3000, 3),
		}
		holds := []points.Reservation{
			{Amount: 5000, RequestedAt: base.Add(time.Minute), ReleasedAt: &released},
		}

		assert.NoError(t, points.VerifyRunningBalances(txs, holds))
	})

	t.Run("ReservationRejectedAndRestored", func(t *testing.T) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		released := base.Add(3 * time.Minute)
		txs := []models.PointsTransaction{
			ledgerLine(studentID, models.TxEarned, 20000, 20000, 0),
			ledgerLine(studentID, models.TxSpent, -12000, 3000, 2),
			// Posted after the rejection restored the hold.
			ledgerLine(studentID, models.TxEarned, 1000, 9000, 4),
		}
		holds := []points.Reservation{
			{Amount: 5000, RequestedAt: base.Add(time.Minute), ReleasedAt: &released},
		}

		assert.NoError(t, points.VerifyRunningBalances(txs, holds))
	})
}
