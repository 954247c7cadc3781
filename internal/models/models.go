package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles carried in the auth token.
const (
	RoleDonor   = "donor"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Donor statuses.
const (
	DonorActive    = "active"
	DonorInactive  = "inactive"
	DonorSuspended = "suspended"
)

// Student statuses.
const (
	StudentPending  = "pending"
	StudentApproved = "approved"
	StudentRejected = "rejected"
)

// Sponsorship statuses.
const (
	SponsorshipActive        = "active"
	SponsorshipOptOutPending = "opt_out_pending"
	SponsorshipEnded         = "ended"
	SponsorshipCancelled     = "cancelled"
)

// Ledger transaction types.
const (
	TxEarned    = "earned"
	TxSpent     = "spent"
	TxInvested  = "invested"
	TxWithdrawn = "withdrawn"
	TxInsurance = "insurance"
)

// Purchase order statuses.
const (
	OrderPending   = "pending"
	OrderApproved  = "approved"
	OrderFulfilled = "fulfilled"
	OrderRejected  = "rejected"
	OrderCancelled = "cancelled"
)

// Delivery methods.
const (
	DeliveryPickup   = "pickup"
	DeliveryDelivery = "delivery"
)

// Investment statuses.
const (
	InvestmentActive    = "active"
	InvestmentCompleted = "completed"
)

// Insurance policy statuses.
const (
	PolicyActive  = "active"
	PolicyExpired = "expired"
)

// Withdrawal request statuses.
const (
	WithdrawalPending   = "pending"
	WithdrawalRejected  = "rejected"
	WithdrawalProcessed = "processed"
)

type User struct {
	ID           uuid.UUID `db:"id"`
	Login        string    `db:"login"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

type Donor struct {
	ID            uuid.UUID `db:"id"`
	Name          string    `db:"name"`
	Status        string    `db:"status"`
	MonthlyAmount float64   `db:"monthly_amount"`
	TotalDonated  float64   `db:"total_donated"`
	TotalPoints   int64     `db:"total_points_generated"`
	CreatedAt     time.Time `db:"created_at"`
}

// EducationDetails is a tagged variant keyed by Level; exactly one of the
// level structs is set.
type EducationDetails struct {
	Level      string             `json:"level"`
	Primary    *PrimaryDetails    `json:"primary,omitempty"`
	Secondary  *SecondaryDetails  `json:"secondary,omitempty"`
	University *UniversityDetails `json:"university,omitempty"`
}

type PrimaryDetails struct {
	School string `json:"school"`
	Grade  string `json:"grade"`
}

type SecondaryDetails struct {
	School string `json:"school"`
	Form   string `json:"form"`
	Stream string `json:"stream,omitempty"`
}

type UniversityDetails struct {
	Institution string `json:"institution"`
	Course      string `json:"course"`
	YearOfStudy int    `json:"year_of_study"`
}

type Student struct {
	ID              uuid.UUID        `db:"id"`
	Name            string           `db:"name"`
	Status          string           `db:"status"`
	Education       EducationDetails `db:"education"`
	TotalPoints     int64            `db:"total_points"`
	AvailablePoints int64            `db:"available_points"`
	InvestedPoints  int64            `db:"invested_points"`
	InsurancePoints int64            `db:"insurance_points"`

	// Optional per-student allocation split; nil means the global default.
	SpendablePct *int `db:"spendable_pct"`
	InvestedPct  *int `db:"invested_pct"`
	InsurancePct *int `db:"insurance_pct"`

	CreatedAt time.Time `db:"created_at"`
}

type Sponsorship struct {
	ID                  uuid.UUID  `db:"id"`
	DonorID             uuid.UUID  `db:"donor_id"`
	StudentID           uuid.UUID  `db:"student_id"`
	Status              string     `db:"status"`
	StartDate           time.Time  `db:"start_date"`
	EndDate             *time.Time `db:"end_date"`
	MonthlyAmount       float64    `db:"monthly_amount"`
	MonthlyPoints       int64      `db:"monthly_points"`
	StudentInfoHidden   bool       `db:"student_info_hidden"`
	OptOutRequestedDate *time.Time `db:"opt_out_requested_date"`
	OptOutEffectiveDate *time.Time `db:"opt_out_effective_date"`
	OptOutReason        string     `db:"opt_out_reason"`
}

// PointsTransaction is an immutable ledger line. Amount is signed; the
// running balance is the category balance after this line was applied.
type PointsTransaction struct {
	ID             uuid.UUID `db:"id"`
	StudentID      uuid.UUID `db:"student_id"`
	Type           string    `db:"type"`
	Amount         int64     `db:"amount"`
	Description    string    `db:"description"`
	Category       string    `db:"category"`
	PeriodKey      string    `db:"period_key"`
	RunningBalance int64     `db:"running_balance"`
	CreatedAt      time.Time `db:"created_at"`
}

type CatalogItem struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	Category   string    `db:"category"`
	UnitPoints int64     `db:"unit_points"`
	IsActive   bool      `db:"is_active"`
}

type OrderLine struct {
	ID         int       `db:"id"`
	OrderID    uuid.UUID `db:"order_id"`
	ItemID     uuid.UUID `db:"item_id"`
	Quantity   int       `db:"quantity"`
	UnitPoints int64     `db:"unit_points"`
	LinePoints int64     `db:"line_points"`
}

type PurchaseOrder struct {
	ID               uuid.UUID  `db:"id"`
	StudentID        uuid.UUID  `db:"student_id"`
	VendorID         *uuid.UUID `db:"vendor_id"`
	TotalPoints      int64      `db:"total_points"`
	Status           string     `db:"status"`
	DeliveryMethod   string     `db:"delivery_method"`
	DeliveryAddress  string     `db:"delivery_address"`
	FulfillmentToken string     `db:"fulfillment_token"`
	RequestedAt      time.Time  `db:"requested_at"`
	ApprovedAt       *time.Time `db:"approved_at"`
	FulfilledAt      *time.Time `db:"fulfilled_at"`
	Lines            []OrderLine
}

type Investment struct {
	ID             uuid.UUID `db:"id"`
	StudentID      uuid.UUID `db:"student_id"`
	Amount         int64     `db:"amount"`
	Platform       string    `db:"platform"`
	ExpectedReturn float64   `db:"expected_return"`
	MaturityDate   time.Time `db:"maturity_date"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

type InsurancePolicy struct {
	ID             uuid.UUID `db:"id"`
	StudentID      uuid.UUID `db:"student_id"`
	Provider       string    `db:"provider"`
	CoverageAmount float64   `db:"coverage_amount"`
	PremiumPoints  int64     `db:"premium_points"`
	StartDate      time.Time `db:"start_date"`
	ExpiryDate     time.Time `db:"expiry_date"`
	Status         string    `db:"status"`
}

type WithdrawalRequest struct {
	ID          uuid.UUID  `db:"id"`
	StudentID   uuid.UUID  `db:"student_id"`
	Amount      int64      `db:"amount"`
	Reason      string     `db:"reason"`
	BankDetails string     `db:"bank_details"`
	Status      string     `db:"status"`
	RequestedAt time.Time  `db:"requested_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}
