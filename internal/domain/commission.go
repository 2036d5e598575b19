package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionType string

const (
	CommissionTypeFixed      CommissionType = "FIXED"
	CommissionTypePercentage CommissionType = "PERCENTAGE"
	CommissionTypeTier       CommissionType = "TIER"
)

// CommissionScope is the owner kind a parameter applies to.
type CommissionScope string

const (
	CommissionScopeClient    CommissionScope = "CLIENT"
	CommissionScopeCollector CommissionScope = "COLLECTOR"
	CommissionScopeAgency    CommissionScope = "AGENCY"
)

// Tier bounds are inclusive on both ends.
type Tier struct {
	Min  decimal.Decimal `json:"min"`
	Max  decimal.Decimal `json:"max"`
	Rate decimal.Decimal `json:"rate"`
}

func (t Tier) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(t.Min) && amount.LessThanOrEqual(t.Max)
}

type CommissionParameter struct {
	ID        int64           `json:"id"`
	Scope     CommissionScope `json:"scope"`
	ScopeID   int64           `json:"scope_id"`
	Type      CommissionType  `json:"type"`
	Value     decimal.Decimal `json:"value"`
	Tiers     []Tier          `json:"tiers,omitempty"`
	ValidFrom time.Time       `json:"valid_from"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppliesOn reports whether the rule is active and valid on the given day.
// The validity window is [ValidFrom, ValidTo).
func (p *CommissionParameter) AppliesOn(day time.Time) bool {
	if !p.Active {
		return false
	}
	if day.Before(DayStart(p.ValidFrom)) {
		return false
	}
	if p.ValidTo != nil && !day.Before(DayStart(*p.ValidTo)) {
		return false
	}
	return true
}

type CommissionResult struct {
	Commission decimal.Decimal `json:"commission"`
	VAT        decimal.Decimal `json:"vat"`
}

func (r CommissionResult) Net() decimal.Decimal {
	return r.Commission.Sub(r.VAT)
}

func (r CommissionResult) IsZero() bool {
	return r.Commission.IsZero()
}

// DistributionPlan is the waterfall computed for one commission.
type DistributionPlan struct {
	Commission       decimal.Decimal `json:"commission"`
	VAT              decimal.Decimal `json:"vat"`
	Net              decimal.Decimal `json:"net"`
	InstitutionShare decimal.Decimal `json:"institution_share"`
	CollectorShare   decimal.Decimal `json:"collector_share"`
	JuniorReward     bool            `json:"junior_reward"`
}

type CommissionJobStatus string

const (
	CommissionJobPending CommissionJobStatus = "PENDING"
	CommissionJobDone    CommissionJobStatus = "DONE"
	CommissionJobFailed  CommissionJobStatus = "FAILED"
)

// CommissionJob is the outbox entry queued with an eligible movement.
// ParameterID pins the rule in force when the movement was recorded; nil
// means no rule applied.
type CommissionJob struct {
	ID          int64               `json:"id"`
	MovementID  int64               `json:"movement_id"`
	ParameterID *int64              `json:"parameter_id,omitempty"`
	Status      CommissionJobStatus `json:"status"`
	Attempts    int                 `json:"attempts"`
	NextRunAt   time.Time           `json:"next_run_at"`
	LastError   string              `json:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
