package domain

import "time"

// CreditEventStatus marks how a ledger event came to be.
type CreditEventStatus string

const (
	CreditEventStatusReserved CreditEventStatus = "reserved"
	CreditEventStatusRefunded CreditEventStatus = "refunded"
)

// CreditEvent is one debit (positive) or refund (negative) against an
// organization's usage ledger, linked to a job.
type CreditEvent struct {
	ID             string
	JobID          string
	OrganizationID string
	Credits        int
	JobType        AdvertorialType
	IsOverage      bool
	Status         CreditEventStatus
	CreatedAt      time.Time
}

// Organization carries the billing attributes the credit ledger needs.
// Identity itself is owned by an external collaborator.
type Organization struct {
	ID                 string
	PlanID             *string
	BillingPeriodStart *time.Time
}
