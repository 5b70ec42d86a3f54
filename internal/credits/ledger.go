package credits

import (
	"context"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Limits carries the plan configuration the ledger enforces.
type Limits struct {
	WindowDays   int
	FreeLimit    int
	ByPlan       map[string]int
	CostByType   map[domain.AdvertorialType]int
	OveragePlans map[string]bool
}

// NewLimits builds ledger limits from service configuration.
func NewLimits(cfg *infra.Config) Limits {
	return Limits{
		WindowDays: cfg.CreditWindowDays,
		FreeLimit:  cfg.CreditLimitFree,
		ByPlan:     cfg.CreditLimitsByPlan,
		CostByType: map[domain.AdvertorialType]int{
			domain.AdvertorialTypeListicle:    cfg.CreditCostListicle,
			domain.AdvertorialTypeAdvertorial: cfg.CreditCostAdvertorial,
		},
		OveragePlans: cfg.OveragePlans,
	}
}

// limitFor resolves the credit limit for a plan, free tier when none.
func (l Limits) limitFor(planID *string) int {
	if planID == nil || *planID == "" {
		return l.FreeLimit
	}
	if limit, ok := l.ByPlan[*planID]; ok {
		return limit
	}
	return l.FreeLimit
}

func (l Limits) costFor(t domain.AdvertorialType) int {
	if cost, ok := l.CostByType[t]; ok && cost > 0 {
		return cost
	}
	return 10
}

func (l Limits) allowsOverage(planID *string) bool {
	if planID == nil {
		return false
	}
	return l.OveragePlans[*planID]
}

// Reservation describes the outcome of a successful check-and-reserve.
type Reservation struct {
	Credits      int
	CurrentUsage int
	Limit        int
	IsOverage    bool
}

// Usage is the read-only view served by the credits endpoint.
type Usage struct {
	CurrentUsage int       `json:"current_usage"`
	Limit        int       `json:"limit"`
	WindowStart  time.Time `json:"window_start"`
	Plan         string    `json:"plan,omitempty"`
}

// Ledger implements credit accounting over the credit_events table. Methods
// take the executor explicitly so a reservation can share the submission
// transaction.
type Ledger struct {
	limits Limits
	logger infra.Logger
	now    func() time.Time
}

func NewLedger(limits Limits, logger infra.Logger) *Ledger {
	return &Ledger{limits: limits, logger: logger, now: time.Now}
}

// CheckAndReserve debits the organization for one job of the given type, or
// returns domain.ErrInsufficientCredits. Must run inside the transaction
// that also creates the job: the organization row is locked for the duration
// so two concurrent submissions cannot both pass the limit check.
func (l *Ledger) CheckAndReserve(ctx context.Context, sql infra.SQLExecutor, organizationID, jobID string, jobType domain.AdvertorialType) (Reservation, error) {
	org, err := l.lockOrganization(ctx, sql, organizationID)
	if err != nil {
		return Reservation{}, err
	}

	windowStart := l.windowStart(org)
	var usage int
	if err := sql.QueryRow(ctx, sqlinline.QSelectCreditUsage, organizationID, windowStart).Scan(&usage); err != nil {
		return Reservation{}, fmt.Errorf("credits: read usage: %w", err)
	}

	cost := l.limits.costFor(jobType)
	limit := l.limits.limitFor(org.PlanID)
	overage := false
	if usage+cost > limit {
		if !l.limits.allowsOverage(org.PlanID) {
			return Reservation{CurrentUsage: usage, Limit: limit}, domain.ErrInsufficientCredits
		}
		overage = true
	}

	if _, err := sql.Exec(ctx, sqlinline.QInsertCreditEvent,
		jobID, organizationID, cost, string(jobType), overage, string(domain.CreditEventStatusReserved),
	); err != nil {
		return Reservation{}, fmt.Errorf("credits: write debit: %w", err)
	}

	return Reservation{Credits: cost, CurrentUsage: usage, Limit: limit, IsOverage: overage}, nil
}

// Refund writes a compensating event so the job's ledger entries net to
// zero. Idempotent: when the balance is already zero nothing is written.
func (l *Ledger) Refund(ctx context.Context, sql infra.SQLExecutor, jobID string) error {
	var balance int
	var organizationID, jobType string
	row := sql.QueryRow(ctx, sqlinline.QSelectJobCreditBalance, jobID)
	if err := row.Scan(&balance, &organizationID, &jobType); err != nil {
		return fmt.Errorf("credits: read job balance: %w", err)
	}
	if balance <= 0 || organizationID == "" {
		return nil
	}
	if _, err := sql.Exec(ctx, sqlinline.QInsertCreditEvent,
		jobID, organizationID, -balance, jobType, false, string(domain.CreditEventStatusRefunded),
	); err != nil {
		return fmt.Errorf("credits: write refund: %w", err)
	}
	l.logger.Info().Str("job_id", jobID).Int("credits", balance).Msg("credits: refunded")
	return nil
}

// CurrentUsage serves the usage summary endpoint.
func (l *Ledger) CurrentUsage(ctx context.Context, sql infra.SQLExecutor, organizationID string) (Usage, error) {
	org, err := l.lockOrganization(ctx, sql, organizationID)
	if err != nil {
		return Usage{}, err
	}
	windowStart := l.windowStart(org)
	var usage int
	if err := sql.QueryRow(ctx, sqlinline.QSelectCreditUsage, organizationID, windowStart).Scan(&usage); err != nil {
		return Usage{}, fmt.Errorf("credits: read usage: %w", err)
	}
	summary := Usage{CurrentUsage: usage, Limit: l.limits.limitFor(org.PlanID), WindowStart: windowStart}
	if org.PlanID != nil {
		summary.Plan = *org.PlanID
	}
	return summary, nil
}

// lockOrganization reads the billing attributes. Unknown organizations get
// the free tier rather than a rejection, so identity provisioning lag never
// blocks submission outright.
func (l *Ledger) lockOrganization(ctx context.Context, sql infra.SQLExecutor, organizationID string) (domain.Organization, error) {
	org := domain.Organization{ID: organizationID}
	row := sql.QueryRow(ctx, sqlinline.QSelectOrganization, organizationID)
	if err := row.Scan(&org.ID, &org.PlanID, &org.BillingPeriodStart); err != nil {
		if infra.IsNoRows(err) {
			return domain.Organization{ID: organizationID}, nil
		}
		return domain.Organization{}, fmt.Errorf("credits: read organization: %w", err)
	}
	return org, nil
}

// windowStart picks the accounting window: the current billing period when
// the organization has one, a rolling window otherwise.
func (l *Ledger) windowStart(org domain.Organization) time.Time {
	now := l.now()
	if org.BillingPeriodStart != nil && !org.BillingPeriodStart.IsZero() && org.BillingPeriodStart.Before(now) {
		return currentPeriodStart(*org.BillingPeriodStart, now)
	}
	days := l.limits.WindowDays
	if days <= 0 {
		days = 30
	}
	return now.AddDate(0, 0, -days)
}

// currentPeriodStart advances the anchor month by month to the latest
// period boundary at or before now.
func currentPeriodStart(anchor, now time.Time) time.Time {
	start := anchor
	for {
		next := start.AddDate(0, 1, 0)
		if next.After(now) {
			return start
		}
		start = next
	}
}
