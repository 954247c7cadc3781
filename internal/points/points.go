// Package points holds the conversion and allocation arithmetic for the
// ledger: monetary-to-points conversion, the category split policy, the
// idempotency period key, and balance replay.
package points

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/models"
)

// Policy is the percentage split of a monthly allocation across the three
// balance categories. The three fields must sum to 100.
type Policy struct {
	SpendablePct int
	InvestedPct  int
	InsurancePct int
}

func (p Policy) Valid() bool {
	if p.SpendablePct < 0 || p.InvestedPct < 0 || p.InsurancePct < 0 {
		return false
	}
	return p.SpendablePct+p.InvestedPct+p.InsurancePct == 100
}

// Split is the point allocation of one monthly payment.
type Split struct {
	Spendable int64
	Invested  int64
	Insurance int64
}

func (s Split) Total() int64 {
	return s.Spendable + s.Invested + s.Insurance
}

// Convert turns a confirmed monetary amount into points at the fixed ratio.
// Fractional currency rounds down to whole points.
func Convert(amount float64, pointsPerUnit int64) int64 {
	return int64(math.Floor(amount * float64(pointsPerUnit)))
}

// Apportion splits a point total by policy. Integer division remainders are
// credited to the spendable portion so the split always sums to total.
func (p Policy) Apportion(total int64) Split {
	invested := total * int64(p.InvestedPct) / 100
	insurance := total * int64(p.InsurancePct) / 100

	return Split{
		Spendable: total - invested - insurance,
		Invested:  invested,
		Insurance: insurance,
	}
}

// PeriodKey is the deterministic idempotency key for a monthly allocation.
// Re-posting the same (donor, student, billing month) is a no-op.
func PeriodKey(donorID, studentID uuid.UUID, period time.Time) string {
	return fmt.Sprintf("%s:%s:%s", donorID, studentID, period.UTC().Format("2006-01"))
}

// Balances are the derived category balances of one student.
type Balances struct {
	Available int64
	Invested  int64
	Insurance int64
}

// Replay folds a student's ledger lines, in timestamp order, into category
// balances. Earned, spent and withdrawn lines move the available balance;
// invested and insurance lines move their own pools. The result must match
// the stored balances plus any pending withdrawal reservations.
func Replay(txs []models.PointsTransaction) Balances {
	sorted := make([]models.PointsTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var b Balances
	for _, tx := range sorted {
		switch tx.Type {
		case models.TxEarned, models.TxSpent, models.TxWithdrawn:
			b.Available += tx.Amount
		case models.TxInvested:
			b.Invested += tx.Amount
		case models.TxInsurance:
			b.Insurance += tx.Amount
		}
	}
	return b
}

// Reservation is an off-ledger hold on the available balance: a withdrawal
// request decrements the stored balance at request time but posts its
// withdrawn line only on processing. The hold spans from the request until
// the line posts or the request is rejected.
type Reservation struct {
	Amount      int64
	RequestedAt time.Time
	ReleasedAt  *time.Time
}

func outstandingReserved(reservations []Reservation, at time.Time) int64 {
	var total int64
	for _, r := range reservations {
		if at.Before(r.RequestedAt) {
			continue
		}
		if r.ReleasedAt != nil && !at.Before(*r.ReleasedAt) {
			continue
		}
		total += r.Amount
	}
	return total
}

// VerifyRunningBalances checks that every ledger line recorded the stored
// category balance that replay produces at that point. Lines touching the
// available balance record the stored balance, which sits below replay by
// whatever withdrawal reservations were outstanding when the line posted;
// the caller supplies those holds.
func VerifyRunningBalances(txs []models.PointsTransaction, reservations []Reservation) error {
	sorted := make([]models.PointsTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var b Balances
	for _, tx := range sorted {
		var want int64
		switch tx.Type {
		case models.TxEarned, models.TxSpent, models.TxWithdrawn:
			b.Available += tx.Amount
			want = b.Available - outstandingReserved(reservations, tx.CreatedAt)
		case models.TxInvested:
			b.Invested += tx.Amount
			want = b.Invested
		case models.TxInsurance:
			b.Insurance += tx.Amount
			want = b.Insurance
		default:
			return fmt.Errorf("transaction %s: unknown type %q", tx.ID, tx.Type)
		}

		if tx.RunningBalance != want {
			return fmt.Errorf("transaction %s: running balance %d, replay says %d", tx.ID, tx.RunningBalance, want)
		}
	}
	return nil
}
